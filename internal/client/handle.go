package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dgellow/depo-front/internal/auth"
	"github.com/dgellow/depo-front/internal/guard"
	"github.com/dgellow/depo-front/internal/log"
	"github.com/dgellow/depo-front/internal/session"
	"github.com/dgellow/depo-front/internal/shell"
)

// SessionStatePath is the server endpoint the handle polls.
const SessionStatePath = "/auth/session"

// ErrMissingCSRFToken is returned when the current page has no form to
// submit the requested action with.
var ErrMissingCSRFToken = errors.New("page has no csrf token for this form")

// SessionHandle observes the session of a Page through the shell's
// endpoints. Subscribers are called outside the handle's lock, in the order
// changes are observed.
type SessionHandle struct {
	cfg  shell.PublicConfig
	page *Page

	pollMu sync.Mutex

	mu     sync.Mutex
	last   *session.State
	nextID int
	subs   map[int]func(session.AuthEvent)
}

// NewSessionHandle creates a handle for page. cfg is the public
// configuration the page was rendered with.
func NewSessionHandle(cfg shell.PublicConfig, page *Page) (*SessionHandle, error) {
	if cfg.ProviderURL == "" || cfg.PublicKey == "" {
		return nil, errors.New("incomplete public configuration")
	}
	return &SessionHandle{
		cfg:  cfg,
		page: page,
		subs: make(map[int]func(session.AuthEvent)),
	}, nil
}

// Config returns the public configuration the handle was built from.
func (h *SessionHandle) Config() shell.PublicConfig {
	return h.cfg
}

type subscription struct {
	once sync.Once
	drop func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.drop)
}

// OnAuthStateChange registers fn. When the handle already knows the
// session, fn receives INITIAL_SESSION before OnAuthStateChange returns.
func (h *SessionHandle) OnAuthStateChange(fn func(session.AuthEvent)) session.Subscription {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	var initial *session.State
	if h.last != nil {
		st := *h.last
		initial = &st
	}
	h.mu.Unlock()

	if initial != nil {
		fn(session.AuthEvent{Type: session.EventInitialSession, State: stateOrNil(*initial)})
	}

	return &subscription{drop: func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}}
}

// SignInWithPassword posts the credentials with the login form's CSRF
// token. It does not navigate; on success the resulting SIGNED_IN event is
// what moves the page along.
func (h *SessionHandle) SignInWithPassword(ctx context.Context, email, password string) (auth.SignInResult, error) {
	token, ok := h.page.formToken(loginForm)
	if !ok {
		return auth.SignInResult{}, ErrMissingCSRFToken
	}

	// A sign-in from a signed-out page is a change even before the first poll.
	h.mu.Lock()
	if h.last == nil {
		h.last = &session.State{}
	}
	h.mu.Unlock()

	resp, body, err := h.page.post(ctx, guard.LoginPath, url.Values{
		"csrf_token": {token},
		"email":      {email},
		"password":   {password},
	}, "application/json")
	if err != nil {
		return auth.SignInResult{}, fmt.Errorf("sign-in request failed: %w", err)
	}

	var result auth.SignInResult
	if err := json.Unmarshal(body, &result); err != nil {
		return auth.SignInResult{}, fmt.Errorf("unexpected sign-in response (status %d): %w", resp.StatusCode, err)
	}
	if !result.Success {
		return result, nil
	}

	if _, err := h.Poll(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// SignOut posts the logout form and then reports the change.
func (h *SessionHandle) SignOut(ctx context.Context) error {
	token, ok := h.page.formToken(logoutForm)
	if !ok {
		return ErrMissingCSRFToken
	}

	h.mu.Lock()
	known := h.last != nil
	h.mu.Unlock()
	if !known {
		if _, err := h.Poll(ctx); err != nil {
			return err
		}
	}

	resp, _, err := h.page.post(ctx, "/logout", url.Values{"csrf_token": {token}}, "")
	if err != nil {
		return fmt.Errorf("sign-out request failed: %w", err)
	}
	if resp.StatusCode != http.StatusSeeOther {
		return fmt.Errorf("unexpected sign-out status %d", resp.StatusCode)
	}

	_, err = h.Poll(ctx)
	return err
}

// Poll fetches the session state and notifies subscribers of any change.
func (h *SessionHandle) Poll(ctx context.Context) (session.State, error) {
	h.pollMu.Lock()
	defer h.pollMu.Unlock()

	resp, body, err := h.page.get(ctx, SessionStatePath, "application/json")
	if err != nil {
		return session.State{}, fmt.Errorf("session poll failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return session.State{}, fmt.Errorf("session poll returned status %d", resp.StatusCode)
	}

	var current session.State
	if err := json.Unmarshal(body, &current); err != nil {
		return session.State{}, fmt.Errorf("invalid session state: %w", err)
	}

	h.mu.Lock()
	ev, changed := classify(h.last, current)
	h.last = &current
	subs := make([]func(session.AuthEvent), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	if changed {
		log.LogTraceWithFields("client", "Session changed", map[string]any{
			"event": string(ev.Type),
		})
		for _, fn := range subs {
			fn(ev)
		}
	}
	return current, nil
}

// StartPolling polls every interval until ctx is done.
func (h *SessionHandle) StartPolling(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
PollLoop:
	for {
		select {
		case <-ctx.Done():
			log.Logf("<client> Context done, stopping session poll")
			break PollLoop
		case <-ticker.C:
			if _, err := h.Poll(ctx); err != nil && ctx.Err() == nil {
				log.LogWarnWithFields("client", "Session poll failed", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}
}

// classify turns a state transition into an auth event.
func classify(prev *session.State, cur session.State) (session.AuthEvent, bool) {
	ev := session.AuthEvent{State: stateOrNil(cur)}
	switch {
	case prev == nil:
		ev.Type = session.EventInitialSession
	case !prev.Authenticated && cur.Authenticated:
		ev.Type = session.EventSignedIn
	case prev.Authenticated && !cur.Authenticated:
		ev.Type = session.EventSignedOut
	case !cur.Authenticated:
		return ev, false
	case prev.UserID != cur.UserID:
		ev.Type = session.EventSignedIn
	case prev.ExpiresAt != cur.ExpiresAt:
		ev.Type = session.EventTokenRefreshed
	case prev.Email != cur.Email:
		ev.Type = session.EventUserUpdated
	default:
		return ev, false
	}
	return ev, true
}

func stateOrNil(s session.State) *session.State {
	if !s.Authenticated {
		return nil
	}
	return &s
}
