package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgellow/depo-front/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOAuth2Server(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var revoked []string
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		switch r.Form.Get("grant_type") {
		case "password":
			if r.Form.Get("username") != "depo@example.com" || r.Form.Get("password") != "secret" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
		case "refresh_token":
			if r.Form.Get("refresh_token") != "rt-1" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"token_type":    "Bearer",
			"expires_in":    600,
			"refresh_token": "rt-1",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sub": "sub-1", "email": "Depo@Example.com", "name": "Depo"})
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		revoked = append(revoked, r.Form.Get("token_type_hint")+":"+r.Form.Get("token"))
		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &revoked
}

func newTestOAuth2Provider(t *testing.T, server *httptest.Server, userInfo bool) *OAuth2Provider {
	t.Helper()
	cfg := OAuth2Config{
		TokenURL:      server.URL + "/token",
		RevocationURL: server.URL + "/revoke",
		ClientID:      "client",
		ClientSecret:  "client-secret",
	}
	if userInfo {
		cfg.UserInfoURL = server.URL + "/userinfo"
	}
	p, err := NewOAuth2Provider(cfg, server.Client())
	require.NoError(t, err)
	return p
}

func TestNewOAuth2Provider_RequiresTokenURL(t *testing.T) {
	_, err := NewOAuth2Provider(OAuth2Config{ClientID: "client"}, nil)
	assert.Error(t, err)
}

func TestOAuth2Provider_SignInWithPassword(t *testing.T) {
	server, _ := newOAuth2Server(t)

	t.Run("with userinfo", func(t *testing.T) {
		p := newTestOAuth2Provider(t, server, true)
		s, err := p.SignInWithPassword(context.Background(), "depo@example.com", "secret")
		require.NoError(t, err)
		assert.Equal(t, "at-1", s.AccessToken)
		assert.Equal(t, "sub-1", s.User.ID)
		assert.Equal(t, "depo@example.com", s.User.Email)
		assert.Equal(t, "oauth2", s.Provider)
		assert.False(t, s.ExpiresAt.IsZero())
	})

	t.Run("without userinfo", func(t *testing.T) {
		p := newTestOAuth2Provider(t, server, false)
		s, err := p.SignInWithPassword(context.Background(), "Depo@example.com ", "secret")
		require.NoError(t, err)
		assert.Equal(t, "depo@example.com", s.User.ID)
	})

	t.Run("invalid grant", func(t *testing.T) {
		p := newTestOAuth2Provider(t, server, true)
		_, err := p.SignInWithPassword(context.Background(), "depo@example.com", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestOAuth2Provider_Refresh(t *testing.T) {
	server, _ := newOAuth2Server(t)
	p := newTestOAuth2Provider(t, server, false)

	current := &session.Session{
		AccessToken:  "old",
		RefreshToken: "rt-1",
		User:         session.User{ID: "u", Email: "depo@example.com"},
	}
	s, err := p.Refresh(context.Background(), current)
	require.NoError(t, err)
	assert.Equal(t, "at-1", s.AccessToken)
	assert.Equal(t, current.User, s.User)

	_, err = p.Refresh(context.Background(), &session.Session{AccessToken: "old", RefreshToken: "revoked"})
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestOAuth2Provider_SignOut(t *testing.T) {
	server, revoked := newOAuth2Server(t)
	p := newTestOAuth2Provider(t, server, false)

	require.NoError(t, p.SignOut(context.Background(), &session.Session{AccessToken: "at-1", RefreshToken: "rt-1"}))
	require.NoError(t, p.SignOut(context.Background(), &session.Session{AccessToken: "at-1"}))
	assert.Equal(t, []string{"refresh_token:rt-1", "access_token:at-1"}, *revoked)

	noRevoke, err := NewOAuth2Provider(OAuth2Config{TokenURL: server.URL + "/token"}, server.Client())
	require.NoError(t, err)
	assert.NoError(t, noRevoke.SignOut(context.Background(), &session.Session{AccessToken: "at-1"}))
}

func TestOAuth2Provider_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p, err := NewOAuth2Provider(OAuth2Config{TokenURL: server.URL}, server.Client())
	require.NoError(t, err)

	_, err = p.SignInWithPassword(context.Background(), "depo@example.com", "secret")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}
