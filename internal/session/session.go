// Package session holds the authenticated-session value shared by the server
// render and the client page, plus the auth events the client observes.
package session

import (
	"time"

	"github.com/dgellow/depo-front/internal/emailutil"
)

// User is the identity attached to a session.
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Session is an issued token pair plus the identity it proves. A Session is
// never mutated: a refresh produces a new value.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
	// Provider is the type of the identity provider that issued the tokens.
	Provider string `json:"provider"`
}

// Presence is the per-request state of the session cookie.
type Presence int

const (
	PresenceAbsent Presence = iota
	PresenceValid
	PresenceExpiring
)

func (p Presence) String() string {
	switch p {
	case PresenceValid:
		return "valid"
	case PresenceExpiring:
		return "expiring"
	default:
		return "absent"
	}
}

// PresenceAt classifies s at now. A session expiring within margin is
// treated as expiring so it is refreshed before the access token lapses.
func (s *Session) PresenceAt(now time.Time, margin time.Duration) Presence {
	if s == nil || s.AccessToken == "" {
		return PresenceAbsent
	}
	if !s.ExpiresAt.After(now.Add(margin)) {
		return PresenceExpiring
	}
	return PresenceValid
}

// CanRefresh reports whether s carries a refresh token.
func (s *Session) CanRefresh() bool {
	return s != nil && s.RefreshToken != ""
}

// DisplayName is the part of the user's email before the @.
func (u User) DisplayName() string {
	return emailutil.LocalPart(u.Email)
}
