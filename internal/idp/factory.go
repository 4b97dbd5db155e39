package idp

import (
	"context"
	"fmt"
	"time"

	"github.com/dgellow/depo-front/internal/config"
	"github.com/dgellow/depo-front/internal/metrics"
	"github.com/dgellow/depo-front/internal/session"
)

// NewProvider creates a Provider based on the ProviderConfig. HTTP providers
// share a breaker-protected client; every provider is instrumented.
func NewProvider(cfg config.ProviderConfig, m *metrics.Metrics) (Provider, error) {
	var p Provider

	switch cfg.Kind {
	case config.ProviderKindGoTrue:
		p = NewGoTrueProvider(cfg.URL, cfg.PublicKey, NewHTTPClient("gotrue", cfg.Timeout, m))

	case config.ProviderKindOAuth2:
		op, err := NewOAuth2Provider(OAuth2Config{
			TokenURL:      cfg.TokenURL,
			UserInfoURL:   cfg.UserInfoURL,
			RevocationURL: cfg.RevocationURL,
			ClientID:      cfg.ClientID,
			ClientSecret:  string(cfg.ClientSecret),
			Scopes:        cfg.Scopes,
		}, NewHTTPClient("oauth2", cfg.Timeout, m))
		if err != nil {
			return nil, err
		}
		p = op

	case config.ProviderKindStatic:
		users := make([]StaticUser, 0, len(cfg.Users))
		for _, u := range cfg.Users {
			users = append(users, StaticUser{ID: u.ID, Email: u.Email, PasswordHash: []byte(u.PasswordHash)})
		}
		ttl := cfg.TokenTTL
		if ttl == 0 {
			ttl = time.Hour
		}
		p = NewStaticProvider(users, ttl)

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Kind)
	}

	return Instrument(p, m), nil
}

// Instrument records every provider call in m.
func Instrument(p Provider, m *metrics.Metrics) Provider {
	if m == nil {
		return p
	}
	return &instrumented{Provider: p, m: m}
}

type instrumented struct {
	Provider
	m *metrics.Metrics
}

func (i *instrumented) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	s, err := i.Provider.SignInWithPassword(ctx, email, password)
	i.m.ObserveProviderCall(i.Type(), "sign_in", err)
	return s, err
}

func (i *instrumented) Refresh(ctx context.Context, current *session.Session) (*session.Session, error) {
	s, err := i.Provider.Refresh(ctx, current)
	i.m.ObserveProviderCall(i.Type(), "refresh", err)
	return s, err
}

func (i *instrumented) SignOut(ctx context.Context, s *session.Session) error {
	err := i.Provider.SignOut(ctx, s)
	i.m.ObserveProviderCall(i.Type(), "sign_out", err)
	return err
}
