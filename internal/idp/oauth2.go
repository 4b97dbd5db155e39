package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/depo-front/internal/emailutil"
	"github.com/dgellow/depo-front/internal/ioutil"
	"github.com/dgellow/depo-front/internal/session"
	"golang.org/x/oauth2"
)

// defaultTokenLifetime applies when the token endpoint omits expires_in.
const defaultTokenLifetime = time.Hour

// OAuth2Config configures a generic OAuth 2.0 provider that supports the
// resource owner password grant.
type OAuth2Config struct {
	TokenURL      string
	UserInfoURL   string
	RevocationURL string
	ClientID      string
	ClientSecret  string
	Scopes        []string
}

// OAuth2Provider implements Provider using golang.org/x/oauth2.
type OAuth2Provider struct {
	config        oauth2.Config
	userInfoURL   string
	revocationURL string
	client        *http.Client
}

type oauth2UserInfoResponse struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// NewOAuth2Provider creates an OAuth 2.0 provider.
func NewOAuth2Provider(cfg OAuth2Config, client *http.Client) (*OAuth2Provider, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("tokenUrl is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "offline_access"}
	}
	return &OAuth2Provider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL:   cfg.UserInfoURL,
		revocationURL: cfg.RevocationURL,
		client:        client,
	}, nil
}

// Type returns the provider type.
func (p *OAuth2Provider) Type() string {
	return "oauth2"
}

func (p *OAuth2Provider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

// SignInWithPassword performs the resource owner password credentials grant.
func (p *OAuth2Provider) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	ctx = p.withClient(ctx)
	tok, err := p.config.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return nil, classifyTokenError(err, ErrInvalidCredentials)
	}

	user := session.User{ID: emailutil.Normalize(email), Email: emailutil.Normalize(email)}
	if p.userInfoURL != "" {
		u, err := p.userInfo(ctx, tok)
		if err != nil {
			return nil, err
		}
		user = *u
	}
	return p.toSession(tok, user), nil
}

// Refresh performs the refresh token grant. The user is re-read from the
// userinfo endpoint when one is configured and carried over otherwise.
func (p *OAuth2Provider) Refresh(ctx context.Context, current *session.Session) (*session.Session, error) {
	if !current.CanRefresh() {
		return nil, ErrInvalidRefreshToken
	}
	ctx = p.withClient(ctx)

	// An expired token without an access token forces the refresh grant.
	src := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyTokenError(err, ErrInvalidRefreshToken)
	}

	user := current.User
	if p.userInfoURL != "" {
		u, err := p.userInfo(ctx, tok)
		if err != nil {
			return nil, err
		}
		user = *u
	}
	return p.toSession(tok, user), nil
}

// SignOut revokes the refresh token (RFC 7009). Without a revocation
// endpoint there is nothing to do.
func (p *OAuth2Provider) SignOut(ctx context.Context, s *session.Session) error {
	if p.revocationURL == "" {
		return nil
	}

	token, hint := s.RefreshToken, "refresh_token"
	if token == "" {
		token, hint = s.AccessToken, "access_token"
	}
	form := url.Values{"token": {token}, "token_type_hint": {hint}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(p.config.ClientSecret))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revocation returned status %d: %s", resp.StatusCode, ioutil.ReadLimited(resp.Body, 1024))
	}
	return nil
}

func (p *OAuth2Provider) userInfo(ctx context.Context, tok *oauth2.Token) (*session.User, error) {
	client := p.config.Client(ctx, tok)
	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching user info: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: user info status %d: %s", ErrUnavailable, resp.StatusCode, ioutil.ReadLimited(resp.Body, 1024))
	}

	var info oauth2UserInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decoding user info: %v", ErrUnavailable, err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("%w: user info without subject", ErrUnavailable)
	}

	user := &session.User{ID: info.Sub, Email: emailutil.Normalize(info.Email)}
	if info.Name != "" {
		user.Metadata = map[string]any{"name": info.Name}
	}
	return user, nil
}

func (p *OAuth2Provider) toSession(tok *oauth2.Token, user session.User) *session.Session {
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(defaultTokenLifetime)
	}
	return &session.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    expiresAt,
		User:         user,
		Provider:     p.Type(),
	}
}

// classifyTokenError maps a token endpoint 4xx answer to rejected and
// everything else to ErrUnavailable.
func classifyTokenError(err error, rejected error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		code := rerr.Response.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", rejected, rerr.ErrorCode)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
