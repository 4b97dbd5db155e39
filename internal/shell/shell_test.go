package shell

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgellow/depo-front/internal/config"
	"github.com/dgellow/depo-front/internal/cookie"
	"github.com/dgellow/depo-front/internal/crypto"
	"github.com/dgellow/depo-front/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPublic = PublicConfig{ProviderURL: "https://abc.supabase.co", PublicKey: "anon-key-123"}

func newTestRenderer(t *testing.T) (*Renderer, *crypto.CSRFProtection) {
	t.Helper()
	csrf := crypto.NewCSRFProtection([]byte("csrf-signing-key-that-is-32-byte"), time.Hour)
	r, err := NewRenderer(testPublic, &csrf)
	require.NoError(t, err)
	return r, &csrf
}

func testSession() *session.Session {
	return &session.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         session.User{ID: "u1", Email: "ayse@depo.example"},
		Provider:     "gotrue",
	}
}

func TestNewPublicConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ProviderConfig
		want    PublicConfig
		wantErr string
	}{
		{
			name: "valid",
			cfg:  config.ProviderConfig{URL: "https://abc.supabase.co", PublicKey: "anon"},
			want: PublicConfig{ProviderURL: "https://abc.supabase.co", PublicKey: "anon"},
		},
		{
			name:    "missing url",
			cfg:     config.ProviderConfig{PublicKey: "anon"},
			wantErr: "url is required",
		},
		{
			name:    "relative url",
			cfg:     config.ProviderConfig{URL: "/auth", PublicKey: "anon"},
			wantErr: "absolute http(s) URL",
		},
		{
			name:    "credentials in url",
			cfg:     config.ProviderConfig{URL: "https://admin:pw@abc.supabase.co", PublicKey: "anon"},
			wantErr: "must not carry credentials",
		},
		{
			name:    "missing key",
			cfg:     config.ProviderConfig{URL: "https://abc.supabase.co"},
			wantErr: "public key is required",
		},
		{
			name:    "secret as public key",
			cfg:     config.ProviderConfig{URL: "https://abc.supabase.co", PublicKey: "s3cr3t", ClientSecret: "s3cr3t"},
			wantErr: "must not be the client secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewPublicConfig(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChooseLayout(t *testing.T) {
	s := testSession()

	tests := []struct {
		name    string
		session *session.Session
		path    string
		want    Layout
	}{
		{"signed in on dashboard", s, "/dashboard", LayoutFrame},
		{"signed in on business page", s, "/transfers/new", LayoutFrame},
		{"signed in on login", s, "/login", LayoutBare},
		{"signed out on login", nil, "/login", LayoutBare},
		{"signed out elsewhere", nil, "/dashboard", LayoutBare},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseLayout(tt.session, tt.path))
		})
	}
}

func TestRender_Frame(t *testing.T) {
	r, csrf := newTestRenderer(t)
	w := httptest.NewRecorder()

	err := r.Render(context.Background(), w, http.StatusOK, cookie.NewDelta(), View{
		Page:    PageDashboard,
		Title:   "Gösterge Paneli",
		Path:    "/dashboard",
		Session: testSession(),
		Data:    DashboardStats{Products: 150, PendingTransfers: 5, LowStock: 12},
	})
	require.NoError(t, err)

	body := w.Body.String()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, body, "Hoşgeldin, ayse")
	assert.Contains(t, body, `action="/logout"`)
	assert.Contains(t, body, "Toplam Ürün")
	assert.Contains(t, body, ">150<")
	for _, item := range Navigation {
		assert.Contains(t, body, `href="`+item.Href+`"`)
	}
	assert.Contains(t, body, `href="/dashboard" class="active"`)

	token := extractValue(t, body, `name="csrf_token" value="`)
	assert.True(t, csrf.Validate(CSRFLogout, token))
	assert.False(t, csrf.Validate(CSRFLogin, token))
}

func TestRender_Bare(t *testing.T) {
	r, _ := newTestRenderer(t)
	w := httptest.NewRecorder()

	err := r.Render(context.Background(), w, http.StatusUnauthorized, cookie.NewDelta(), View{
		Page:  PageLogin,
		Title: "Giriş",
		Path:  "/login",
		Data:  LoginData{CSRFToken: "tok", Email: "a@b.c", Error: "Geçersiz e-posta veya şifre."},
	})
	require.NoError(t, err)

	body := w.Body.String()
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotContains(t, body, `class="sidebar"`)
	assert.NotContains(t, body, `action="/logout"`)
	assert.Contains(t, body, "Depo Yönetim Sistemi Giriş")
	assert.Contains(t, body, "Geçersiz e-posta veya şifre.")
	assert.Contains(t, body, `value="a@b.c"`)
}

func TestRender_PublicConfigOnce(t *testing.T) {
	r, _ := newTestRenderer(t)

	views := []View{
		{Page: PageLogin, Title: "Giriş", Path: "/login", Data: LoginData{}},
		{Page: PageDashboard, Title: "Gösterge Paneli", Path: "/dashboard", Session: testSession(), Data: DashboardStats{}},
		{Page: PageProfile, Title: "Profilim", Path: "/profile", Session: testSession()},
		{Page: PageSection, Title: "Ürün Yönetimi", Path: "/products", Session: testSession(), Data: SectionData{Heading: "Ürün Yönetimi"}},
	}

	for _, v := range views {
		t.Run(string(v.Page), func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, r.Render(context.Background(), w, http.StatusOK, nil, v))

			body := w.Body.String()
			assert.Equal(t, 1, strings.Count(body, `id="depo-env"`))
			assert.Equal(t, 1, strings.Count(body, testPublic.ProviderURL))
			assert.Equal(t, 1, strings.Count(body, testPublic.PublicKey))
			assert.Contains(t, body, `{"PROVIDER_URL":"https://abc.supabase.co","PROVIDER_PUBLIC_KEY":"anon-key-123"}`)
			assert.Contains(t, body, `src="/static/shell.js"`)
		})
	}
}

func TestRender_AppliesDelta(t *testing.T) {
	r, _ := newTestRenderer(t)
	w := httptest.NewRecorder()

	delta := cookie.NewDelta()
	delta.Set(&http.Cookie{Name: "depo-auth-token", Value: "new", Path: "/"})

	err := r.Render(context.Background(), w, http.StatusOK, delta, View{
		Page: PageLogin, Title: "Giriş", Path: "/login", Data: LoginData{},
	})
	require.NoError(t, err)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "new", cookies[0].Value)
}

func TestRender_CancelledWritesNothing(t *testing.T) {
	r, _ := newTestRenderer(t)
	w := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delta := cookie.NewDelta()
	delta.Set(&http.Cookie{Name: "depo-auth-token", Value: "new", Path: "/"})

	err := r.Render(ctx, w, http.StatusOK, delta, View{
		Page: PageDashboard, Title: "Gösterge Paneli", Path: "/dashboard", Session: testSession(), Data: DashboardStats{},
	})
	require.ErrorIs(t, err, context.Canceled)

	assert.False(t, w.Flushed)
	assert.Empty(t, w.Body.String())
	assert.Empty(t, w.Header().Values("Set-Cookie"))
}

func TestRender_UnknownPage(t *testing.T) {
	r, _ := newTestRenderer(t)
	w := httptest.NewRecorder()

	err := r.Render(context.Background(), w, http.StatusOK, nil, View{Page: "missing"})
	require.Error(t, err)
	assert.Empty(t, w.Body.String())
}

func TestScriptHandler(t *testing.T) {
	w := httptest.NewRecorder()
	ScriptHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, ScriptPath, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, w.Body.String(), "/auth/session")
	assert.Contains(t, w.Body.String(), "location.reload")
}

func extractValue(t *testing.T, body, prefix string) string {
	t.Helper()
	i := strings.Index(body, prefix)
	require.GreaterOrEqual(t, i, 0, "prefix %q not found", prefix)
	rest := body[i+len(prefix):]
	end := strings.IndexByte(rest, '"')
	require.GreaterOrEqual(t, end, 0)
	return rest[:end]
}
