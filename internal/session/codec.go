package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
)

// ErrInvalidCookie is returned when a session cookie cannot be decrypted or
// parsed.
var ErrInvalidCookie = errors.New("invalid session cookie")

// Codec encrypts sessions into cookie values using compact JWE with a direct
// A256GCM key.
type Codec struct {
	key []byte
}

// NewCodec returns a codec for a 32 byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("session codec key must be 32 bytes, got %d", len(key))
	}
	return &Codec{key: key}, nil
}

// Encode serializes and encrypts s.
func (c *Codec) Encode(s *Session) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}
	out, err := jwe.Encrypt(payload,
		jwe.WithKey(jwa.DIRECT, c.key),
		jwe.WithContentEncryption(jwa.A256GCM),
	)
	if err != nil {
		return "", fmt.Errorf("encrypting session: %w", err)
	}
	return string(out), nil
}

// Decode decrypts and parses a cookie value produced by Encode.
func (c *Codec) Decode(value string) (*Session, error) {
	payload, err := jwe.Decrypt([]byte(value), jwe.WithKey(jwa.DIRECT, c.key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}
	if s.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrInvalidCookie)
	}
	return &s, nil
}
