package session

// EventType names an auth state change observed by a client session handle.
type EventType string

const (
	EventInitialSession   EventType = "INITIAL_SESSION"
	EventSignedIn         EventType = "SIGNED_IN"
	EventSignedOut        EventType = "SIGNED_OUT"
	EventTokenRefreshed   EventType = "TOKEN_REFRESHED"
	EventUserUpdated      EventType = "USER_UPDATED"
	EventPasswordRecovery EventType = "PASSWORD_RECOVERY"
)

// AuthEvent is delivered to OnAuthStateChange subscribers. State is the
// client's view of the session after the change; nil after sign-out.
type AuthEvent struct {
	Type  EventType
	State *State
}

// State is the non-secret session summary the server exposes to clients.
type State struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
}

// StateOf summarizes s without exposing token material.
func StateOf(s *Session) State {
	if s == nil {
		return State{}
	}
	return State{
		Authenticated: true,
		UserID:        s.User.ID,
		Email:         s.User.Email,
		ExpiresAt:     s.ExpiresAt.Unix(),
	}
}

// Subscription is returned by OnAuthStateChange. Unsubscribe is safe to
// call more than once.
type Subscription interface {
	Unsubscribe()
}

// IsResyncEvent reports whether t changes who is signed in or the tokens
// the server render depends on.
func IsResyncEvent(t EventType) bool {
	switch t {
	case EventSignedIn, EventSignedOut, EventTokenRefreshed:
		return true
	}
	return false
}
