// Package shell renders the outer page of every server-rendered route: the
// application frame for signed-in users or the bare view otherwise, plus the
// public configuration the browser needs to build its own session handle.
package shell

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/dgellow/depo-front/internal/config"
	"github.com/dgellow/depo-front/internal/cookie"
	"github.com/dgellow/depo-front/internal/crypto"
	"github.com/dgellow/depo-front/internal/guard"
	"github.com/dgellow/depo-front/internal/log"
	"github.com/dgellow/depo-front/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/shell.js
var shellScript []byte

// ScriptPath is where the browser watcher script is served.
const ScriptPath = "/static/shell.js"

// CSRF token purposes of the shell's forms.
const (
	CSRFLogin  = "login"
	CSRFLogout = "logout"
)

// EnvElementID is the id of the script element carrying the public
// configuration.
const EnvElementID = "depo-env"

// PublicConfig is the part of the configuration handed to the browser. It
// holds nothing that grants privileged access.
type PublicConfig struct {
	ProviderURL string `json:"PROVIDER_URL"`
	PublicKey   string `json:"PROVIDER_PUBLIC_KEY"`
}

// NewPublicConfig extracts the public part of the provider configuration.
func NewPublicConfig(cfg config.ProviderConfig) (PublicConfig, error) {
	if cfg.URL == "" {
		return PublicConfig{}, errors.New("provider url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return PublicConfig{}, fmt.Errorf("provider url must be an absolute http(s) URL: %q", cfg.URL)
	}
	if u.User != nil {
		return PublicConfig{}, errors.New("provider url must not carry credentials")
	}
	if cfg.PublicKey == "" {
		return PublicConfig{}, errors.New("provider public key is required")
	}
	if cfg.ClientSecret != "" && string(cfg.ClientSecret) == cfg.PublicKey {
		return PublicConfig{}, errors.New("provider public key must not be the client secret")
	}
	return PublicConfig{ProviderURL: cfg.URL, PublicKey: cfg.PublicKey}, nil
}

// Layout is the outer structure of a rendered page.
type Layout int

const (
	// LayoutBare renders the page content alone.
	LayoutBare Layout = iota
	// LayoutFrame wraps the content in navigation and header.
	LayoutFrame
)

func (l Layout) String() string {
	if l == LayoutFrame {
		return "frame"
	}
	return "bare"
}

// ChooseLayout returns the frame for a signed-in user anywhere but the login
// page.
func ChooseLayout(s *session.Session, path string) Layout {
	if guard.Authenticated(s) && path != guard.LoginPath {
		return LayoutFrame
	}
	return LayoutBare
}

// Page names a content template.
type Page string

const (
	PageLogin     Page = "login"
	PageDashboard Page = "dashboard"
	PageSection   Page = "section"
	PageProfile   Page = "profile"
)

var pages = []Page{PageLogin, PageDashboard, PageSection, PageProfile}

// View is what a handler asks the renderer to draw.
type View struct {
	Page    Page
	Title   string
	Path    string
	Session *session.Session
	// Data is handed to the content template as .Data.
	Data any
}

// NavItem is one sidebar entry.
type NavItem struct {
	Name   string
	Href   string
	Active bool
}

// Navigation is the sidebar of the application frame.
var Navigation = []NavItem{
	{Name: "Gösterge Paneli", Href: "/dashboard"},
	{Name: "Ürün Yönetimi", Href: "/products"},
	{Name: "Departman Yönetimi", Href: "/departments"},
	{Name: "Transfer Oluştur", Href: "/transfers/new"},
	{Name: "Transfer Geçmişi", Href: "/transfers"},
	{Name: "Satın Alma Girişi", Href: "/purchases/new"},
	{Name: "Satın Alma Geçmişi", Href: "/purchases"},
	{Name: "Stok Sayım Girişi", Href: "/inventory/new"},
	{Name: "Stok Sayım Geçmişi", Href: "/inventory"},
	{Name: "Profilim", Href: "/profile"},
}

// LoginData is the content of the login page.
type LoginData struct {
	CSRFToken string
	Email     string
	Error     string
}

// DashboardStats are the dashboard counters.
type DashboardStats struct {
	Products         int
	PendingTransfers int
	LowStock         int
	LastSignIn       time.Time
}

// SectionData is the content of a business page without its own template.
type SectionData struct {
	Heading string
}

type shellData struct {
	Title     string
	Layout    string
	Env       template.JS
	Nav       []NavItem
	Greeting  string
	Email     string
	CSRFToken string
	Session   *session.Session
	Data      any
	Script    string
	EnvID     string
}

// Renderer draws views into complete HTML responses.
type Renderer struct {
	env   template.JS
	csrf  *crypto.CSRFProtection
	pages map[Page]*template.Template
}

// NewRenderer parses the embedded templates and serializes pub.
func NewRenderer(pub PublicConfig, csrf *crypto.CSRFProtection) (*Renderer, error) {
	env, err := json.Marshal(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public config: %w", err)
	}

	funcs := template.FuncMap{
		"date": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Local().Format("02.01.2006 15:04")
		},
	}

	base, err := template.New("shell.html").Funcs(funcs).ParseFS(templatesFS, "templates/shell.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse shell template: %w", err)
	}

	r := &Renderer{
		env:   template.JS(env),
		csrf:  csrf,
		pages: make(map[Page]*template.Template, len(pages)),
	}
	for _, p := range pages {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templatesFS, "templates/"+string(p)+".html"); err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", p, err)
		}
		r.pages[p] = t
	}
	return r, nil
}

// Render draws v with status. The delta and the body are written together
// once the page is fully rendered; if ctx is done by then nothing is
// written and ctx's error is returned.
func (r *Renderer) Render(ctx context.Context, w http.ResponseWriter, status int, delta *cookie.Delta, v View) error {
	t, ok := r.pages[v.Page]
	if !ok {
		return fmt.Errorf("unknown page %q", v.Page)
	}

	data := shellData{
		Title:   v.Title,
		Layout:  ChooseLayout(v.Session, v.Path).String(),
		Env:     r.env,
		Session: v.Session,
		Data:    v.Data,
		Script:  ScriptPath,
		EnvID:   EnvElementID,
	}
	if data.Layout == LayoutFrame.String() {
		data.Nav = navFor(v.Path)
		data.Greeting = v.Session.User.DisplayName()
		data.Email = v.Session.User.Email
		token, err := r.csrf.Generate(CSRFLogout)
		if err != nil {
			return fmt.Errorf("failed to generate logout token: %w", err)
		}
		data.CSRFToken = token
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "shell.html", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", v.Page, err)
	}

	if err := ctx.Err(); err != nil {
		log.DebugCtx(ctx, "shell", "Render discarded", map[string]any{
			"page":  string(v.Page),
			"error": err.Error(),
		})
		return err
	}

	delta.Apply(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// ScriptHandler serves the browser watcher script.
func ScriptHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(shellScript)
	})
}

func navFor(path string) []NavItem {
	items := make([]NavItem, len(Navigation))
	copy(items, Navigation)
	for i := range items {
		items[i].Active = items[i].Href == path
	}
	return items
}
