// Package client drives the shell the way a long-lived browser page does: a
// Page holds the cookie jar and the current URL and re-runs the server
// render on demand, and a SessionHandle observes the session through the
// shell's own endpoints and reports auth events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/dgellow/depo-front/internal/ioutil"
	"github.com/dgellow/depo-front/internal/log"
	"github.com/dgellow/depo-front/internal/shell"
	"golang.org/x/net/html"
)

const (
	// MaxRedirects bounds the redirects followed by one load.
	MaxRedirects = 10

	// MaxDocumentSize bounds a rendered page or endpoint response.
	MaxDocumentSize = 1 << 20
)

// ErrTooManyRedirects is returned when a load exceeds MaxRedirects.
var ErrTooManyRedirects = errors.New("too many redirects")

// Page is a loaded shell page. It is safe for concurrent use, but loads are
// serialized.
type Page struct {
	base   *url.URL
	client *http.Client

	loadMu sync.Mutex

	mu      sync.RWMutex
	path    string
	status  int
	body    []byte
	hops    int
	renders int
	env     *shell.PublicConfig
	tokens  map[string]string // form marker -> csrf token
}

// NewPage creates a page against baseURL with its own cookie jar. Redirects
// are followed by the page itself so they can be counted.
func NewPage(baseURL string) (*Page, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Page{
		base: base,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Open loads path, following redirects.
func (p *Page) Open(ctx context.Context, path string) error {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	return p.load(ctx, path)
}

// Resync re-runs the server render for the current URL. Any redirect the
// route guard issues is followed, so the page ends wherever the server
// sends it.
func (p *Page) Resync(ctx context.Context) error {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	p.mu.RLock()
	path := p.path
	p.mu.RUnlock()
	if path == "" {
		return errors.New("page has not been opened")
	}
	return p.load(ctx, path)
}

func (p *Page) load(ctx context.Context, path string) error {
	target := p.base.ResolveReference(&url.URL{Path: path})
	hops := 0

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "text/html")

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", target.Path, err)
		}
		body, err := ioutil.ReadBounded(resp.Body, MaxDocumentSize)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", target.Path, err)
		}

		if isRedirect(resp.StatusCode) {
			loc, err := resp.Location()
			if err != nil {
				return fmt.Errorf("redirect from %s without location: %w", target.Path, err)
			}
			hops++
			if hops > MaxRedirects {
				return ErrTooManyRedirects
			}
			log.LogTraceWithFields("page", "Following redirect", map[string]any{
				"from": target.Path,
				"to":   loc.Path,
			})
			target = loc
			continue
		}

		env, tokens := parsePage(body)

		p.mu.Lock()
		p.path = target.Path
		p.status = resp.StatusCode
		p.body = body
		p.hops = hops
		p.renders++
		if env != nil {
			p.env = env
		}
		p.tokens = tokens
		p.mu.Unlock()
		return nil
	}
}

// Path is the path of the last rendered page.
func (p *Page) Path() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.path
}

// Status is the status code of the last rendered page.
func (p *Page) Status() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Body is the last rendered document.
func (p *Page) Body() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return string(p.body)
}

// Hops is the number of redirects followed by the last load.
func (p *Page) Hops() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hops
}

// Renders counts completed loads.
func (p *Page) Renders() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.renders
}

// PublicConfig returns the configuration embedded in the first page that
// carried one.
func (p *Page) PublicConfig() (shell.PublicConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.env == nil {
		return shell.PublicConfig{}, errors.New("page carries no public configuration")
	}
	return *p.env, nil
}

// formToken returns the CSRF token of the form marked with marker.
func (p *Page) formToken(marker string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tok, ok := p.tokens[marker]
	return tok, ok
}

// post submits form to path with the page's cookies. Redirects are not
// followed: the page does not navigate on a form response.
func (p *Page) post(ctx context.Context, path string, form url.Values, accept string) (*http.Response, []byte, error) {
	target := p.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return p.do(req)
}

func (p *Page) get(ctx context.Context, path string, accept string) (*http.Response, []byte, error) {
	target := p.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", accept)
	return p.do(req)
}

func (p *Page) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadBounded(resp.Body, MaxDocumentSize)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Form markers of the shell's templates.
const (
	loginForm  = "data-depo-login"
	logoutForm = "data-depo-logout"
)

// parsePage extracts the public configuration script and the CSRF tokens of
// the login and logout forms.
func parsePage(body []byte) (*shell.PublicConfig, map[string]string) {
	tokens := make(map[string]string)
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, tokens
	}

	var env *shell.PublicConfig
	var walk func(n *html.Node, form string)
	walk = func(n *html.Node, form string) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script":
				if attr(n, "id") == shell.EnvElementID && n.FirstChild != nil {
					var cfg shell.PublicConfig
					if err := json.Unmarshal([]byte(n.FirstChild.Data), &cfg); err == nil {
						env = &cfg
					}
				}
			case "form":
				for _, marker := range []string{loginForm, logoutForm} {
					if hasAttr(n, marker) {
						form = marker
					}
				}
			case "input":
				if form != "" && attr(n, "name") == "csrf_token" {
					tokens[form] = attr(n, "value")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, form)
		}
	}
	walk(doc, "")
	return env, tokens
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
