package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/depo-front/internal/auth"
	"github.com/dgellow/depo-front/internal/cookie"
	"github.com/dgellow/depo-front/internal/crypto"
	"github.com/dgellow/depo-front/internal/idp"
	"github.com/dgellow/depo-front/internal/metrics"
	"github.com/dgellow/depo-front/internal/server"
	"github.com/dgellow/depo-front/internal/session"
	"github.com/dgellow/depo-front/internal/shell"
	"github.com/dgellow/depo-front/internal/storage"
	"github.com/dgellow/depo-front/internal/testutil"
	"github.com/dgellow/depo-front/internal/watcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var publicConfig = shell.PublicConfig{ProviderURL: "https://abc.supabase.co", PublicKey: "anon"}

const (
	testEmail    = "ayse@example.com"
	testPassword = "correct horse"
)

func newShellServer(t *testing.T) *httptest.Server {
	t.Helper()

	hash, err := crypto.HashPassword(testPassword)
	require.NoError(t, err)
	provider := idp.NewStaticProvider([]idp.StaticUser{{ID: "u1", Email: testEmail, PasswordHash: hash}}, time.Hour)

	codec, err := session.NewCodec(testutil.TestKey)
	require.NoError(t, err)
	csrf := crypto.NewCSRFProtection(testutil.TestKey, time.Hour)
	renderer, err := shell.NewRenderer(publicConfig, &csrf)
	require.NoError(t, err)

	users := storage.NewMemoryStorage()
	m := metrics.New(prometheus.NewRegistry())
	factory := auth.NewFactory(auth.Config{
		Provider:      provider,
		Codec:         codec,
		Jar:           cookie.NewJar(cookie.DefaultSessionCookie, cookie.Options{Path: "/", MaxAge: time.Hour, SameSite: http.SameSiteLaxMode}),
		Users:         users,
		Metrics:       m,
		RefreshMargin: time.Minute,
	})
	handler := server.NewRouter(server.NewHandlers(renderer, &csrf, users, m), server.RouterConfig{
		Auth:           factory,
		Metrics:        m,
		Health:         server.NewHealthHandler("depo-front", nil),
		RequestTimeout: 5 * time.Second,
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

type eventRecorder struct {
	mu     sync.Mutex
	events []session.EventType
}

func (r *eventRecorder) record(ev session.AuthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev.Type)
}

func (r *eventRecorder) list() []session.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.EventType(nil), r.events...)
}

// openWatchedPage loads path and starts a watcher on it the way the shell
// script does on page load.
func openWatchedPage(t *testing.T, srv *httptest.Server, path string) (*Page, *SessionHandle) {
	t.Helper()
	ctx := context.Background()

	page, err := NewPage(srv.URL)
	require.NoError(t, err)
	require.NoError(t, page.Open(ctx, path))

	cfg, err := page.PublicConfig()
	require.NoError(t, err)

	w := watcher.New(cfg, func(cfg shell.PublicConfig) (watcher.SessionHandle, error) {
		return NewSessionHandle(cfg, page)
	}, page)
	require.NoError(t, w.Init(ctx))
	t.Cleanup(w.Teardown)

	return page, w.Handle().(*SessionHandle)
}

func TestPage_FollowsGuardRedirects(t *testing.T) {
	srv := newShellServer(t)

	page, err := NewPage(srv.URL)
	require.NoError(t, err)
	require.NoError(t, page.Open(context.Background(), "/dashboard"))

	assert.Equal(t, "/login", page.Path())
	assert.Equal(t, http.StatusOK, page.Status())
	assert.Equal(t, 1, page.Hops())
	assert.Equal(t, 1, page.Renders())
	assert.Contains(t, page.Body(), "Depo Yönetim Sistemi Giriş")

	cfg, err := page.PublicConfig()
	require.NoError(t, err)
	assert.Equal(t, publicConfig, cfg)

	_, ok := page.formToken(loginForm)
	assert.True(t, ok)
	_, ok = page.formToken(logoutForm)
	assert.False(t, ok)
}

func TestPage_ResyncBeforeOpen(t *testing.T) {
	page, err := NewPage("http://127.0.0.1:1")
	require.NoError(t, err)
	assert.Error(t, page.Resync(context.Background()))
}

func TestPage_TooManyRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	page, err := NewPage(srv.URL)
	require.NoError(t, err)
	assert.ErrorIs(t, page.Open(context.Background(), "/loop"), ErrTooManyRedirects)
	assert.Equal(t, 0, page.Renders())
}

func TestSignInResyncsToDashboard(t *testing.T) {
	srv := newShellServer(t)
	page, handle := openWatchedPage(t, srv, "/login")
	require.Equal(t, 1, page.Renders())

	result, err := handle.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Eventually(t, func() bool { return page.Path() == "/dashboard" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, page.Renders())
	assert.Equal(t, 1, page.Hops())
	assert.Equal(t, http.StatusOK, page.Status())
	assert.Contains(t, page.Body(), "Hoşgeldin, ayse")
}

func TestSignInWithWrongPassword(t *testing.T) {
	srv := newShellServer(t)
	page, handle := openWatchedPage(t, srv, "/login")

	rec := &eventRecorder{}
	handle.OnAuthStateChange(rec.record)

	result, err := handle.SignInWithPassword(context.Background(), testEmail, "wrong")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.list())
	assert.Equal(t, "/login", page.Path())
	assert.Equal(t, 1, page.Renders())
}

func TestSignOutResyncsToLogin(t *testing.T) {
	srv := newShellServer(t)
	page, handle := openWatchedPage(t, srv, "/login")

	_, err := handle.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return page.Path() == "/dashboard" }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, handle.SignOut(context.Background()))
	require.Eventually(t, func() bool { return page.Path() == "/login" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, page.Hops())

	state, err := handle.Poll(context.Background())
	require.NoError(t, err)
	assert.False(t, state.Authenticated)
}

func TestSignOutWithoutLogoutForm(t *testing.T) {
	srv := newShellServer(t)
	_, handle := openWatchedPage(t, srv, "/login")
	assert.ErrorIs(t, handle.SignOut(context.Background()), ErrMissingCSRFToken)
}

func TestOnAuthStateChange(t *testing.T) {
	srv := newShellServer(t)
	_, handle := openWatchedPage(t, srv, "/login")

	early := &eventRecorder{}
	sub := handle.OnAuthStateChange(early.record)
	assert.Empty(t, early.list())

	_, err := handle.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []session.EventType{session.EventInitialSession}, early.list())

	late := &eventRecorder{}
	handle.OnAuthStateChange(late.record)
	assert.Equal(t, []session.EventType{session.EventInitialSession}, late.list())

	sub.Unsubscribe()
	sub.Unsubscribe()

	_, err = handle.SignInWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, []session.EventType{session.EventInitialSession}, early.list())
	assert.Equal(t, []session.EventType{session.EventInitialSession, session.EventSignedIn}, late.list())
}

func TestStartPolling(t *testing.T) {
	srv := newShellServer(t)
	_, handle := openWatchedPage(t, srv, "/login")

	rec := &eventRecorder{}
	handle.OnAuthStateChange(rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		handle.StartPolling(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(rec.list()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("polling did not stop")
	}
	assert.Equal(t, []session.EventType{session.EventInitialSession}, rec.list())
}

func TestNewSessionHandleRequiresConfig(t *testing.T) {
	_, err := NewSessionHandle(shell.PublicConfig{ProviderURL: "https://abc.supabase.co"}, nil)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	signedIn := session.State{Authenticated: true, UserID: "u1", Email: "a@example.com", ExpiresAt: 100}

	tests := []struct {
		name    string
		prev    *session.State
		cur     session.State
		want    session.EventType
		changed bool
	}{
		{"first observation", nil, session.State{}, session.EventInitialSession, true},
		{"signed in", &session.State{}, signedIn, session.EventSignedIn, true},
		{"signed out", &signedIn, session.State{}, session.EventSignedOut, true},
		{"still signed out", &session.State{}, session.State{}, "", false},
		{"unchanged", &signedIn, signedIn, "", false},
		{"refreshed", &signedIn, session.State{Authenticated: true, UserID: "u1", Email: "a@example.com", ExpiresAt: 200}, session.EventTokenRefreshed, true},
		{"email changed", &signedIn, session.State{Authenticated: true, UserID: "u1", Email: "b@example.com", ExpiresAt: 100}, session.EventUserUpdated, true},
		{"other user", &signedIn, session.State{Authenticated: true, UserID: "u2", ExpiresAt: 100}, session.EventSignedIn, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, changed := classify(tt.prev, tt.cur)
			assert.Equal(t, tt.changed, changed)
			if tt.changed {
				assert.Equal(t, tt.want, ev.Type)
			}
			if tt.cur.Authenticated {
				require.NotNil(t, ev.State)
				assert.Equal(t, tt.cur.UserID, ev.State.UserID)
			} else {
				assert.Nil(t, ev.State)
			}
		})
	}
}

func TestParsePage(t *testing.T) {
	body := []byte(`<!doctype html><html><body>
<form data-depo-logout method="post"><input type="hidden" name="csrf_token" value="out"></form>
<form data-depo-login><input name="email"><input type="hidden" name="csrf_token" value="in"></form>
<script id="depo-env" type="application/json">{"PROVIDER_URL":"https://x.supabase.co","PROVIDER_PUBLIC_KEY":"k"}</script>
</body></html>`)

	env, tokens := parsePage(body)
	require.NotNil(t, env)
	assert.Equal(t, shell.PublicConfig{ProviderURL: "https://x.supabase.co", PublicKey: "k"}, *env)
	assert.Equal(t, map[string]string{loginForm: "in", logoutForm: "out"}, tokens)

	env, tokens = parsePage([]byte("<p>no shell</p>"))
	assert.Nil(t, env)
	assert.Empty(t, tokens)
}
