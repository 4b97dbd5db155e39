package server

import (
	"net/http"
	"time"

	"github.com/dgellow/depo-front/internal/auth"
	"github.com/dgellow/depo-front/internal/config"
	"github.com/dgellow/depo-front/internal/guard"
	"github.com/dgellow/depo-front/internal/metrics"
	"github.com/dgellow/depo-front/internal/shell"
)

// RouterConfig holds what NewRouter needs besides the handlers.
type RouterConfig struct {
	Auth           *auth.Factory
	Metrics        *metrics.Metrics
	Health         http.Handler
	LoginRateLimit *config.RateLimitConfig
	RequestTimeout time.Duration
}

// NewRouter registers every route and wraps the mux in the request
// middleware stack.
func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Guard(guard.PolicyEntry, h.Index))
	mux.HandleFunc("GET /login", h.Guard(guard.PolicyGuestOnly, h.LoginPage))

	var signIn http.Handler = http.HandlerFunc(h.SignIn)
	if cfg.LoginRateLimit != nil {
		signIn = NewRateLimitMiddleware(*cfg.LoginRateLimit, h.RejectSignIn)(signIn)
	}
	mux.Handle("POST /login", signIn)

	mux.HandleFunc("POST /logout", h.SignOut)
	mux.HandleFunc("GET /logout", h.SignOutGet)
	mux.HandleFunc("GET /auth/session", h.SessionState)

	mux.HandleFunc("GET "+guard.HomePath, h.Guard(guard.PolicyProtected, h.Dashboard))
	mux.HandleFunc("GET /profile", h.Guard(guard.PolicyProtected, h.Profile))
	for _, path := range SectionPaths() {
		mux.HandleFunc("GET "+path, h.Guard(guard.PolicyProtected, h.Section))
	}

	mux.Handle("GET "+shell.ScriptPath, shell.ScriptHandler())
	if cfg.Health != nil {
		mux.Handle("GET /health", cfg.Health)
	}
	mux.Handle("GET /metrics", cfg.Metrics.Handler())

	return ChainMiddleware(mux,
		NewMetricsMiddleware(cfg.Metrics),
		NewSessionMiddleware(cfg.Auth),
		NewTimeoutMiddleware(cfg.RequestTimeout),
		NewLoggerMiddleware("http"),
		NewRequestIDMiddleware(),
		NewRecoverMiddleware("http"),
	)
}
