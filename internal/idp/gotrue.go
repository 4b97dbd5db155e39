package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dgellow/depo-front/internal/ioutil"
	"github.com/dgellow/depo-front/internal/session"
	"github.com/dgellow/depo-front/internal/urlutil"
)

// GoTrueProvider implements Provider against a GoTrue (Supabase Auth) REST API.
type GoTrueProvider struct {
	tokenURL  string
	logoutURL string
	publicKey string
	client    *http.Client
	now       func() time.Time
}

// NewGoTrueProvider creates a GoTrue provider. baseURL is the project URL;
// the auth API lives under /auth/v1.
func NewGoTrueProvider(baseURL, publicKey string, client *http.Client) *GoTrueProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &GoTrueProvider{
		tokenURL:  urlutil.MustJoinPath(baseURL, "auth/v1/token"),
		logoutURL: urlutil.MustJoinPath(baseURL, "auth/v1/logout"),
		publicKey: publicKey,
		client:    client,
		now:       time.Now,
	}
}

type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type gotrueTokenResponse struct {
	AccessToken  string     `json:"access_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	RefreshToken string     `json:"refresh_token"`
	User         gotrueUser `json:"user"`
}

// gotrueError covers both the legacy OAuth-style body and the newer
// {code, error_code, msg} body.
type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
}

func (e gotrueError) String() string {
	for _, s := range []string{e.ErrorCode, e.Error} {
		if s != "" {
			msg := e.Msg
			if msg == "" {
				msg = e.ErrorDescription
			}
			return s + ": " + msg
		}
	}
	return e.Msg
}

// Type returns the provider type.
func (p *GoTrueProvider) Type() string {
	return "gotrue"
}

// SignInWithPassword performs the password grant.
func (p *GoTrueProvider) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	body := map[string]string{"email": email, "password": password}
	return p.token(ctx, "password", body, ErrInvalidCredentials)
}

// Refresh performs the refresh_token grant.
func (p *GoTrueProvider) Refresh(ctx context.Context, current *session.Session) (*session.Session, error) {
	if !current.CanRefresh() {
		return nil, ErrInvalidRefreshToken
	}
	body := map[string]string{"refresh_token": current.RefreshToken}
	return p.token(ctx, "refresh_token", body, ErrInvalidRefreshToken)
}

// SignOut revokes the session's refresh tokens at GoTrue.
func (p *GoTrueProvider) SignOut(ctx context.Context, s *session.Session) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.logoutURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating logout request: %w", err)
	}
	p.setHeaders(req)
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("logout returned status %d: %s", resp.StatusCode, ioutil.ReadLimited(resp.Body, 1024))
	}
	return nil
}

func (p *GoTrueProvider) setHeaders(req *http.Request) {
	req.Header.Set("apikey", p.publicKey)
	req.Header.Set("Authorization", "Bearer "+p.publicKey)
	req.Header.Set("Accept", "application/json")
}

// token calls the token endpoint. A 4xx answer other than 429 is reported as
// rejected.
func (p *GoTrueProvider) token(ctx context.Context, grantType string, body map[string]string, rejected error) (*session.Session, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling token request: %w", err)
	}

	endpoint := p.tokenURL + "?" + url.Values{"grant_type": {grantType}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	p.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: rate limited by provider", ErrUnavailable)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var gerr gotrueError
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&gerr)
		return nil, fmt.Errorf("%w: %s", rejected, gerr)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var tok gotrueTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("%w: decoding token response: %v", ErrUnavailable, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response without access_token", ErrUnavailable)
	}

	expiresAt := time.Unix(tok.ExpiresAt, 0)
	if tok.ExpiresAt == 0 {
		expiresAt = p.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}

	return &session.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    expiresAt,
		User: session.User{
			ID:       tok.User.ID,
			Email:    tok.User.Email,
			Metadata: tok.User.UserMetadata,
		},
		Provider: p.Type(),
	}, nil
}
