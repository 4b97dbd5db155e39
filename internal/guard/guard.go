// Package guard decides, per route, whether a request may proceed or must be
// redirected, based only on whether it has a session.
package guard

import "github.com/dgellow/depo-front/internal/session"

const (
	// LoginPath is the unauthenticated entry point.
	LoginPath = "/login"
	// HomePath is where authenticated users land.
	HomePath = "/dashboard"
	// EntryPath never renders; it only redirects.
	EntryPath = "/"
)

// Policy names how a route reacts to session presence.
type Policy int

const (
	// PolicyPublic always allows.
	PolicyPublic Policy = iota
	// PolicyProtected requires a session.
	PolicyProtected
	// PolicyGuestOnly requires the absence of a session.
	PolicyGuestOnly
	// PolicyEntry redirects to HomePath or LoginPath.
	PolicyEntry
)

func (p Policy) String() string {
	switch p {
	case PolicyProtected:
		return "protected"
	case PolicyGuestOnly:
		return "guest-only"
	case PolicyEntry:
		return "entry"
	default:
		return "public"
	}
}

// Decision is the outcome of Evaluate. A zero RedirectTo means allow.
type Decision struct {
	RedirectTo string
}

// Allow reports whether the route's own handler may run.
func (d Decision) Allow() bool {
	return d.RedirectTo == ""
}

// Authenticated is the one predicate every policy is derived from.
// Protected and guest-only routes are exact inverses of it, so a request
// is redirected at most once between them.
func Authenticated(s *session.Session) bool {
	return s != nil && s.AccessToken != ""
}

// Evaluate applies policy to s.
func Evaluate(policy Policy, s *session.Session) Decision {
	authed := Authenticated(s)

	switch policy {
	case PolicyProtected:
		if !authed {
			return Decision{RedirectTo: LoginPath}
		}
	case PolicyGuestOnly:
		if authed {
			return Decision{RedirectTo: HomePath}
		}
	case PolicyEntry:
		if authed {
			return Decision{RedirectTo: HomePath}
		}
		return Decision{RedirectTo: LoginPath}
	}
	return Decision{}
}
