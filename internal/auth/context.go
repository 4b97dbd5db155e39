package auth

import "context"

type clientKey struct{}

// NewContext returns a context carrying the request's ServerClient.
func NewContext(ctx context.Context, c *ServerClient) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// FromContext returns the ServerClient stored by NewContext, or nil.
func FromContext(ctx context.Context) *ServerClient {
	c, _ := ctx.Value(clientKey{}).(*ServerClient)
	return c
}
