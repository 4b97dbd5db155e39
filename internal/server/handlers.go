package server

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/dgellow/depo-front/internal/auth"
	"github.com/dgellow/depo-front/internal/cookie"
	"github.com/dgellow/depo-front/internal/crypto"
	"github.com/dgellow/depo-front/internal/guard"
	jsonwriter "github.com/dgellow/depo-front/internal/json"
	"github.com/dgellow/depo-front/internal/log"
	"github.com/dgellow/depo-front/internal/metrics"
	"github.com/dgellow/depo-front/internal/session"
	"github.com/dgellow/depo-front/internal/shell"
	"github.com/dgellow/depo-front/internal/storage"
)

// Messages for rejections that happen before the credential exchange.
const (
	MessageCSRFRejected = "Form süresi doldu. Lütfen sayfayı yenileyip tekrar deneyin."
	MessageRateLimited  = "Çok fazla giriş denemesi. Lütfen biraz bekleyin."
)

// Placeholder dashboard counters until the inventory service is wired in.
var dashboardStats = shell.DashboardStats{Products: 150, PendingTransfers: 5, LowStock: 12}

// Handlers serves the shell's routes. Every handler that looks at the
// session gets it from the request's auth.ServerClient and attaches that
// client's delta to whatever it writes, redirects included.
type Handlers struct {
	renderer *shell.Renderer
	csrf     *crypto.CSRFProtection
	users    storage.UserStore
	metrics  *metrics.Metrics
}

// NewHandlers creates the route handlers. users may be nil.
func NewHandlers(renderer *shell.Renderer, csrf *crypto.CSRFProtection, users storage.UserStore, m *metrics.Metrics) *Handlers {
	return &Handlers{
		renderer: renderer,
		csrf:     csrf,
		users:    users,
		metrics:  m,
	}
}

// guardedHandler runs after the route guard allowed the request.
type guardedHandler func(w http.ResponseWriter, r *http.Request, c *auth.ServerClient, s *session.Session)

// Guard resolves the session once and applies policy before next runs.
func (h *Handlers) Guard(policy guard.Policy, next guardedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		if c == nil {
			log.ErrorCtx(r.Context(), "server", "Request reached a guarded route without a session client", map[string]any{
				"path": r.URL.Path,
			})
			jsonwriter.WriteInternalServerError(w, "Internal Server Error")
			return
		}

		s, delta := c.GetSession(r.Context())
		decision := guard.Evaluate(policy, s)
		if !decision.Allow() {
			log.LogTraceWithFields("guard", "Redirecting", map[string]any{
				"path":   r.URL.Path,
				"policy": policy.String(),
				"to":     decision.RedirectTo,
			})
			redirect(w, r, delta, decision.RedirectTo, http.StatusFound)
			return
		}
		next(w, r, c, s)
	}
}

// Index never renders; the entry guard always redirects.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request, c *auth.ServerClient, s *session.Session) {
	// Unreachable for PolicyEntry.
	redirect(w, r, c.Delta(), guard.LoginPath, http.StatusFound)
}

// LoginPage renders the login form for guests.
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request, c *auth.ServerClient, s *session.Session) {
	h.renderLogin(w, r, c.Delta(), http.StatusOK, "", "")
}

// SignIn exchanges the posted credentials. JSON callers get a SignInResult
// and no Location header; the page's session watcher performs the
// navigation. Plain form posts are redirected back to /login, whose guard
// then decides.
func (h *Handlers) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := auth.FromContext(ctx)
	wantsJSON := acceptsJSON(r)

	if err := r.ParseForm(); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid form")
		return
	}

	if !h.csrf.Validate(shell.CSRFLogin, r.PostFormValue("csrf_token")) {
		log.WarnCtx(ctx, "server", "Login rejected: invalid CSRF token", map[string]any{
			"remote_addr": r.RemoteAddr,
		})
		h.metrics.ObserveSignIn(metrics.SignInCSRFRejected)
		h.signInFailed(w, r, c.Delta(), wantsJSON, http.StatusForbidden, MessageCSRFRejected, r.PostFormValue("email"))
		return
	}

	email := r.PostFormValue("email")
	_, err := c.SignInWithPassword(ctx, email, r.PostFormValue("password"))
	if err != nil {
		h.signInFailed(w, r, c.Delta(), wantsJSON, auth.HTTPStatus(err), auth.UserMessage(err), email)
		return
	}

	if wantsJSON {
		c.Delta().Apply(w)
		_ = jsonwriter.Write(w, auth.ResultOf(nil))
		return
	}
	redirect(w, r, c.Delta(), guard.LoginPath, http.StatusSeeOther)
}

// RejectSignIn answers rate-limited sign-in attempts.
func (h *Handlers) RejectSignIn(w http.ResponseWriter, r *http.Request) {
	h.metrics.ObserveSignIn(metrics.SignInRateLimited)
	if acceptsJSON(r) {
		_ = jsonwriter.WriteResponse(w, http.StatusTooManyRequests, auth.SignInResult{Error: MessageRateLimited})
		return
	}
	h.renderLogin(w, r, nil, http.StatusTooManyRequests, "", MessageRateLimited)
}

func (h *Handlers) signInFailed(w http.ResponseWriter, r *http.Request, delta *cookie.Delta, wantsJSON bool, status int, message, email string) {
	if wantsJSON {
		delta.Apply(w)
		_ = jsonwriter.WriteResponse(w, status, auth.SignInResult{Error: message})
		return
	}
	h.renderLogin(w, r, delta, status, email, message)
}

func (h *Handlers) renderLogin(w http.ResponseWriter, r *http.Request, delta *cookie.Delta, status int, email, message string) {
	token, err := h.csrf.Generate(shell.CSRFLogin)
	if err != nil {
		log.ErrorCtx(r.Context(), "server", "Failed to generate CSRF token", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal Server Error")
		return
	}
	h.render(w, r, delta, status, shell.View{
		Page:  shell.PageLogin,
		Title: "Giriş",
		Path:  guard.LoginPath,
		Data:  shell.LoginData{CSRFToken: token, Email: email, Error: message},
	})
}

// SignOut revokes the session and always lands on /login with the session
// cookies cleared, whether or not the provider call succeeded.
func (h *Handlers) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := auth.FromContext(ctx)

	if !h.csrf.Validate(shell.CSRFLogout, r.PostFormValue("csrf_token")) {
		log.WarnCtx(ctx, "server", "Logout rejected: invalid CSRF token", map[string]any{
			"remote_addr": r.RemoteAddr,
		})
		redirect(w, r, c.Delta(), guard.EntryPath, http.StatusSeeOther)
		return
	}

	if err := c.SignOut(ctx); err != nil {
		log.InfoCtx(ctx, "server", "Signed out locally after provider error", map[string]any{
			"error": err.Error(),
		})
	}
	redirect(w, r, c.Delta(), guard.LoginPath, http.StatusSeeOther)
}

// SignOutGet redirects to the entry route without signing out.
func (h *Handlers) SignOutGet(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, guard.EntryPath, http.StatusFound)
}

// SessionState reports the request's session summary. It runs the same
// extractor as page renders, so it also refreshes and carries the delta.
func (h *Handlers) SessionState(w http.ResponseWriter, r *http.Request) {
	c := auth.FromContext(r.Context())
	s, delta := c.GetSession(r.Context())
	delta.Apply(w)
	_ = jsonwriter.Write(w, session.StateOf(s))
}

// Dashboard renders the landing page of signed-in users.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request, c *auth.ServerClient, s *session.Session) {
	stats := dashboardStats
	if h.users != nil {
		record, err := h.users.GetUser(r.Context(), s.User.ID)
		switch {
		case err == nil:
			stats.LastSignIn = record.LastSeen
		case !errors.Is(err, storage.ErrUserNotFound):
			log.WarnCtx(r.Context(), "server", "Failed to load user record", map[string]any{
				"user_id": s.User.ID,
				"error":   err.Error(),
			})
			h.metrics.ObserveDirectoryError()
		}
	}

	h.render(w, r, c.Delta(), http.StatusOK, shell.View{
		Page:    shell.PageDashboard,
		Title:   "Gösterge Paneli",
		Path:    r.URL.Path,
		Session: s,
		Data:    stats,
	})
}

// Section renders a business page that has no content of its own yet.
func (h *Handlers) Section(w http.ResponseWriter, r *http.Request, c *auth.ServerClient, s *session.Session) {
	heading := sectionHeading(r.URL.Path)
	h.render(w, r, c.Delta(), http.StatusOK, shell.View{
		Page:    shell.PageSection,
		Title:   heading,
		Path:    r.URL.Path,
		Session: s,
		Data:    shell.SectionData{Heading: heading},
	})
}

// Profile renders the signed-in user's identity and session expiry.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request, c *auth.ServerClient, s *session.Session) {
	h.render(w, r, c.Delta(), http.StatusOK, shell.View{
		Page:    shell.PageProfile,
		Title:   "Profilim",
		Path:    r.URL.Path,
		Session: s,
	})
}

// SectionPaths are the business pages served by Section.
func SectionPaths() []string {
	var paths []string
	for _, item := range shell.Navigation {
		if item.Href == guard.HomePath || item.Href == "/profile" {
			continue
		}
		paths = append(paths, item.Href)
	}
	return paths
}

func sectionHeading(path string) string {
	for _, item := range shell.Navigation {
		if item.Href == path {
			return item.Name
		}
	}
	return "Depo Yönetimi"
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, delta *cookie.Delta, status int, v shell.View) {
	err := h.renderer.Render(r.Context(), w, status, delta, v)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Nothing was written; the client is gone or the deadline passed.
		log.WarnCtx(r.Context(), "server", "Render abandoned", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		if errors.Is(err, context.DeadlineExceeded) {
			jsonwriter.WriteServiceUnavailable(w, "Request timed out")
		}
	default:
		log.ErrorCtx(r.Context(), "server", "Render failed", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal Server Error")
	}
}

// redirect writes the delta and then the redirect.
func redirect(w http.ResponseWriter, r *http.Request, delta *cookie.Delta, to string, status int) {
	delta.Apply(w)
	http.Redirect(w, r, to, status)
}

func acceptsJSON(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "application/json" {
			return true
		}
	}
	return false
}
