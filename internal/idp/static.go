package idp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgellow/depo-front/internal/crypto"
	"github.com/dgellow/depo-front/internal/emailutil"
	"github.com/dgellow/depo-front/internal/session"
)

// StaticUser is an account known to the static provider.
type StaticUser struct {
	ID           string
	Email        string
	PasswordHash []byte
}

// StaticProvider authenticates against a fixed user list and issues opaque
// tokens held in memory. Refresh tokens rotate on every use.
type StaticProvider struct {
	users    map[string]StaticUser // by normalized email
	tokenTTL time.Duration
	now      func() time.Time

	mu      sync.Mutex
	refresh map[string]session.User // refresh token -> user
	access  map[string]string       // access token -> refresh token
}

// NewStaticProvider creates a static provider.
func NewStaticProvider(users []StaticUser, tokenTTL time.Duration) *StaticProvider {
	byEmail := make(map[string]StaticUser, len(users))
	for _, u := range users {
		u.Email = emailutil.Normalize(u.Email)
		if u.ID == "" {
			u.ID = u.Email
		}
		byEmail[u.Email] = u
	}
	return &StaticProvider{
		users:    byEmail,
		tokenTTL: tokenTTL,
		now:      time.Now,
		refresh:  make(map[string]session.User),
		access:   make(map[string]string),
	}
}

// Type returns the provider type.
func (p *StaticProvider) Type() string {
	return "static"
}

// SignInWithPassword checks the password against the bcrypt hash.
func (p *StaticProvider) SignInWithPassword(_ context.Context, email, password string) (*session.Session, error) {
	u, ok := p.users[emailutil.Normalize(email)]
	if !ok || !crypto.ComparePassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issueLocked(session.User{ID: u.ID, Email: u.Email})
}

// Refresh consumes the refresh token and issues a new pair.
func (p *StaticProvider) Refresh(_ context.Context, current *session.Session) (*session.Session, error) {
	if !current.CanRefresh() {
		return nil, ErrInvalidRefreshToken
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	user, ok := p.refresh[current.RefreshToken]
	if !ok {
		return nil, ErrInvalidRefreshToken
	}
	p.revokeLocked(current.RefreshToken)
	return p.issueLocked(user)
}

// SignOut forgets the session's tokens.
func (p *StaticProvider) SignOut(_ context.Context, s *session.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rt := s.RefreshToken
	if rt == "" {
		rt = p.access[s.AccessToken]
	}
	if _, ok := p.refresh[rt]; !ok {
		return fmt.Errorf("unknown session")
	}
	p.revokeLocked(rt)
	return nil
}

func (p *StaticProvider) issueLocked(user session.User) (*session.Session, error) {
	accessToken, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, err
	}
	refreshToken, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, err
	}

	p.refresh[refreshToken] = user
	p.access[accessToken] = refreshToken

	return &session.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    p.now().Add(p.tokenTTL),
		User:         user,
		Provider:     p.Type(),
	}, nil
}

func (p *StaticProvider) revokeLocked(refreshToken string) {
	delete(p.refresh, refreshToken)
	for at, rt := range p.access {
		if rt == refreshToken {
			delete(p.access, at)
		}
	}
}
