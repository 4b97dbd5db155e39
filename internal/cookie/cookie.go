package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/depo-front/internal/envutil"
	"github.com/dgellow/depo-front/internal/log"
)

// DefaultSessionCookie is the base name of the provider session cookie.
const DefaultSessionCookie = "depo-auth-token"

// Delta is the set of Set-Cookie instructions produced while handling one
// request. A later instruction for a name replaces an earlier one, so a
// refresh followed by a sign-out in the same request emits only the clear.
type Delta struct {
	cookies []*http.Cookie
}

// NewDelta returns an empty delta.
func NewDelta() *Delta {
	return &Delta{}
}

// Set records c, superseding any earlier instruction for the same name.
func (d *Delta) Set(c *http.Cookie) {
	for i, existing := range d.cookies {
		if existing.Name == c.Name {
			d.cookies[i] = c
			return
		}
	}
	d.cookies = append(d.cookies, c)
}

// Cookies returns the instructions in the order they were first recorded.
func (d *Delta) Cookies() []*http.Cookie {
	if d == nil {
		return nil
	}
	return d.cookies
}

// Len returns the number of Set-Cookie instructions.
func (d *Delta) Len() int {
	if d == nil {
		return 0
	}
	return len(d.cookies)
}

// IsEmpty reports whether the delta carries no instructions.
func (d *Delta) IsEmpty() bool {
	return d.Len() == 0
}

// Apply writes every instruction to w's headers. It must run before the
// status line is written, including for redirects.
func (d *Delta) Apply(w http.ResponseWriter) {
	if d == nil {
		return
	}
	for _, c := range d.cookies {
		http.SetCookie(w, c)
	}
	if len(d.cookies) > 0 {
		// Responses that change the session must not be cached by intermediaries
		w.Header().Set("Cache-Control", "private, no-store")
		log.LogTraceWithFields("cookie", "Cookie delta applied", map[string]any{
			"count": len(d.cookies),
		})
	}
}

// Options is the template for session cookies.
type Options struct {
	Path     string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

// DefaultOptions returns Lax, HttpOnly cookies that are Secure outside dev.
func DefaultOptions(maxAge time.Duration) Options {
	return Options{
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
	}
}

func (o Options) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: o.SameSite,
		MaxAge:   int(o.MaxAge.Seconds()),
	}
}

func (o Options) clear(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     o.Path,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: o.SameSite,
		MaxAge:   -1,
	}
}
