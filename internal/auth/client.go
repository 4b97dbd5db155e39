// Package auth resolves the session of each request from its cookies and
// performs the password sign-in and sign-out exchanges. Every cookie change
// it makes is recorded in the request's cookie.Delta; nothing is written to
// the response here.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgellow/depo-front/internal/cookie"
	"github.com/dgellow/depo-front/internal/emailutil"
	"github.com/dgellow/depo-front/internal/idp"
	"github.com/dgellow/depo-front/internal/log"
	"github.com/dgellow/depo-front/internal/metrics"
	"github.com/dgellow/depo-front/internal/session"
	"github.com/dgellow/depo-front/internal/storage"
	"golang.org/x/sync/singleflight"
)

// refreshReuseWindow is how long a refresh result is served to requests
// still carrying the refresh token it consumed. Browsers send requests
// in flight with the old cookie before the new one lands.
const refreshReuseWindow = 10 * time.Second

// Config configures a Factory.
type Config struct {
	Provider idp.Provider
	Codec    *session.Codec
	Jar      cookie.Jar
	Users    storage.UserStore // optional
	Metrics  *metrics.Metrics  // optional

	// RefreshMargin treats sessions expiring within the margin as expiring.
	RefreshMargin time.Duration
}

// Factory holds what is shared by all requests: the provider, the cookie
// codec and the refresh de-duplication state. Everything else is per
// request, in ServerClient.
type Factory struct {
	provider idp.Provider
	codec    *session.Codec
	jar      cookie.Jar
	users    storage.UserStore
	metrics  *metrics.Metrics
	margin   time.Duration
	now      func() time.Time

	refreshes singleflight.Group

	recentMu sync.Mutex
	recent   map[string]recentRefresh
}

type recentRefresh struct {
	session *session.Session
	at      time.Time
}

// NewFactory creates a Factory.
func NewFactory(cfg Config) *Factory {
	return &Factory{
		provider: cfg.Provider,
		codec:    cfg.Codec,
		jar:      cfg.Jar,
		users:    cfg.Users,
		metrics:  cfg.Metrics,
		margin:   cfg.RefreshMargin,
		now:      time.Now,
		recent:   make(map[string]recentRefresh),
	}
}

// ForRequest returns the client for one request. It must not be shared
// across requests.
func (f *Factory) ForRequest(r *http.Request) *ServerClient {
	return &ServerClient{f: f, r: r, delta: cookie.NewDelta()}
}

// ServerClient is the per-request view of the session.
type ServerClient struct {
	f     *Factory
	r     *http.Request
	delta *cookie.Delta

	resolved bool
	session  *session.Session
}

// Delta returns the cookie instructions produced so far. The caller attaches
// them to the response, including redirects.
func (c *ServerClient) Delta() *cookie.Delta {
	return c.delta
}

// GetSession resolves the request's session, refreshing it when it is
// expiring. The result is memoized: a request refreshes at most once. A nil
// session is not an error; failures are logged and collapse to nil.
func (c *ServerClient) GetSession(ctx context.Context) (*session.Session, *cookie.Delta) {
	if !c.resolved {
		c.session = c.resolve(ctx)
		c.resolved = true
	}
	return c.session, c.delta
}

func (c *ServerClient) resolve(ctx context.Context) *session.Session {
	f := c.f

	raw, ok := f.jar.Read(c.r)
	if !ok {
		f.metrics.ObserveSession(metrics.SessionAbsent)
		return nil
	}

	s, err := f.codec.Decode(raw)
	if err != nil {
		log.WarnCtx(ctx, "auth", "Discarding unreadable session cookie", map[string]any{
			"error": err.Error(),
		})
		f.jar.Clear(c.delta, c.r)
		f.metrics.ObserveSession(metrics.SessionCleared)
		return nil
	}

	now := f.now()
	if s.PresenceAt(now, f.margin) == session.PresenceValid {
		f.metrics.ObserveSession(metrics.SessionValid)
		return s
	}

	if !s.CanRefresh() {
		if s.ExpiresAt.After(now) {
			f.metrics.ObserveSession(metrics.SessionValid)
			return s
		}
		f.jar.Clear(c.delta, c.r)
		f.metrics.ObserveSession(metrics.SessionCleared)
		return nil
	}

	refreshed, err := f.refresh(ctx, s)
	switch {
	case errors.Is(err, ErrSessionExpired):
		log.InfoCtx(ctx, "auth", "Session expired", map[string]any{
			"user_id": s.User.ID,
			"error":   err.Error(),
		})
		f.jar.Clear(c.delta, c.r)
		f.metrics.ObserveSession(metrics.SessionCleared)
		return nil
	case err != nil:
		// Cookies are left alone so a later request can retry the refresh.
		log.ErrorCtx(ctx, "auth", "Session refresh failed", map[string]any{
			"user_id": s.User.ID,
			"error":   err.Error(),
		})
		f.metrics.ObserveSession(metrics.SessionProviderError)
		return nil
	}

	if err := c.store(refreshed); err != nil {
		log.ErrorCtx(ctx, "auth", "Failed to encode refreshed session", map[string]any{
			"error": err.Error(),
		})
		f.metrics.ObserveSession(metrics.SessionProviderError)
		return nil
	}

	log.DebugCtx(ctx, "auth", "Session refreshed", map[string]any{
		"user_id":    refreshed.User.ID,
		"expires_at": refreshed.ExpiresAt,
	})
	f.metrics.ObserveSession(metrics.SessionRefreshed)
	return refreshed
}

// refresh exchanges the refresh token of s once across all concurrent
// requests carrying it. The provider call is detached from ctx so that one
// cancelled request does not fail the others waiting on it.
func (f *Factory) refresh(ctx context.Context, s *session.Session) (*session.Session, error) {
	if recent := f.recentRefresh(s.RefreshToken); recent != nil {
		return recent, nil
	}

	v, err, _ := f.refreshes.Do(s.RefreshToken, func() (any, error) {
		refreshed, err := f.provider.Refresh(context.WithoutCancel(ctx), s)
		if err != nil {
			return nil, err
		}
		f.rememberRefresh(s.RefreshToken, refreshed)
		return refreshed, nil
	})
	if err != nil {
		if errors.Is(err, idp.ErrInvalidRefreshToken) {
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return v.(*session.Session), nil
}

func (f *Factory) recentRefresh(refreshToken string) *session.Session {
	f.recentMu.Lock()
	defer f.recentMu.Unlock()

	r, ok := f.recent[refreshToken]
	if !ok || f.now().Sub(r.at) > refreshReuseWindow {
		return nil
	}
	return r.session
}

func (f *Factory) rememberRefresh(refreshToken string, s *session.Session) {
	f.recentMu.Lock()
	defer f.recentMu.Unlock()

	now := f.now()
	for k, r := range f.recent {
		if now.Sub(r.at) > refreshReuseWindow {
			delete(f.recent, k)
		}
	}
	f.recent[refreshToken] = recentRefresh{session: s, at: now}
}

// store encodes s into the request's delta and makes it the request's
// session.
func (c *ServerClient) store(s *session.Session) error {
	value, err := c.f.codec.Encode(s)
	if err != nil {
		return err
	}
	c.f.jar.Write(c.delta, c.r, value)
	return nil
}

// SignInWithPassword exchanges credentials for a session. On success the
// session cookie is in the delta and the session becomes this request's
// session. On failure the delta is untouched.
func (c *ServerClient) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	f := c.f

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		f.metrics.ObserveSignIn(metrics.SignInMissingCredentials)
		return nil, ErrMissingCredentials
	}

	s, err := f.provider.SignInWithPassword(ctx, emailutil.Normalize(email), password)
	if err != nil {
		if errors.Is(err, idp.ErrInvalidCredentials) {
			log.InfoCtx(ctx, "auth", "Sign-in rejected", map[string]any{
				"error": err.Error(),
			})
			f.metrics.ObserveSignIn(metrics.SignInInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		log.ErrorCtx(ctx, "auth", "Sign-in failed", map[string]any{
			"error": err.Error(),
		})
		f.metrics.ObserveSignIn(metrics.SignInUnavailable)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if err := c.store(s); err != nil {
		log.ErrorCtx(ctx, "auth", "Failed to encode session", map[string]any{
			"error": err.Error(),
		})
		f.metrics.ObserveSignIn(metrics.SignInUnavailable)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	c.session, c.resolved = s, true

	if f.users != nil {
		if _, err := f.users.RecordSignIn(ctx, s.User, f.now()); err != nil {
			log.WarnCtx(ctx, "auth", "Failed to record sign-in", map[string]any{
				"user_id": s.User.ID,
				"error":   err.Error(),
			})
			f.metrics.ObserveDirectoryError()
		}
	}

	log.InfoCtx(ctx, "auth", "User signed in", map[string]any{
		"user_id": s.User.ID,
	})
	f.metrics.ObserveSignIn(metrics.SignInSuccess)
	return s, nil
}

// SignOut revokes the session at the provider and clears the session
// cookies. The cookies are cleared even when the provider call fails; the
// provider error is returned for logging only.
func (c *ServerClient) SignOut(ctx context.Context) error {
	f := c.f

	s := c.session
	if !c.resolved {
		// Revocation does not need a fresh access token, so skip the refresh.
		if raw, ok := f.jar.Read(c.r); ok {
			s, _ = f.codec.Decode(raw)
		}
	}

	var err error
	if s != nil {
		if err = f.provider.SignOut(ctx, s); err != nil {
			log.WarnCtx(ctx, "auth", "Provider sign-out failed", map[string]any{
				"user_id": s.User.ID,
				"error":   err.Error(),
			})
			err = fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
	}

	f.jar.Clear(c.delta, c.r)
	c.session, c.resolved = nil, true
	f.metrics.ObserveSignOut(err == nil)
	return err
}
