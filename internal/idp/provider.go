// Package idp talks to the identity provider that issues and refreshes
// sessions. The provider is the only authority on credentials; this package
// never stores passwords or sessions beyond what a provider itself needs.
package idp

import (
	"context"
	"errors"

	"github.com/dgellow/depo-front/internal/session"
)

var (
	// ErrInvalidCredentials is returned when the provider rejects an
	// email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefreshToken is returned when the provider no longer accepts
	// a refresh token. The session it belonged to is over.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrUnavailable is returned when the provider cannot be reached, answers
	// with a server error, or the circuit breaker is open.
	ErrUnavailable = errors.New("identity provider unavailable")
)

// Provider abstracts identity provider operations.
type Provider interface {
	// Type returns the provider type identifier ("gotrue", "oauth2", "static").
	Type() string

	// SignInWithPassword exchanges credentials for a new session.
	SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error)

	// Refresh exchanges the refresh token of current for a new session.
	// current is never modified.
	Refresh(ctx context.Context, current *session.Session) (*session.Session, error)

	// SignOut revokes the tokens of s at the provider.
	SignOut(ctx context.Context, s *session.Session) error
}
