package config

import (
	"encoding/json"
	"time"
)

// SupportedVersion is the only config file version Load accepts
const SupportedVersion = "v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// ProviderKind selects the identity provider implementation
type ProviderKind string

const (
	// ProviderKindGoTrue talks to a GoTrue (Supabase Auth) compatible REST API.
	ProviderKindGoTrue ProviderKind = "gotrue"

	// ProviderKindOAuth2 uses the OAuth 2.0 resource owner password and
	// refresh token grants against a standard token endpoint.
	ProviderKindOAuth2 ProviderKind = "oauth2"

	// ProviderKindStatic authenticates against users listed in the config.
	// Intended for local development and tests.
	ProviderKindStatic ProviderKind = "static"
)

// StorageKind selects the user directory backend
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindFirestore StorageKind = "firestore"
)

// StaticUser is a user accepted by the static provider
type StaticUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"` // bcrypt
}

// ProviderConfig configures the identity provider. URL and PublicKey are
// the two values re-exposed to the client as public configuration; nothing
// else in this struct may be.
type ProviderConfig struct {
	Kind      ProviderKind  `json:"kind"`
	URL       string        `json:"url"`
	PublicKey string        `json:"publicKey"`
	Timeout   time.Duration `json:"timeout"`

	// OAuth2
	ClientID      string   `json:"clientId,omitempty"`
	ClientSecret  Secret   `json:"clientSecret,omitempty"`
	TokenURL      string   `json:"tokenUrl,omitempty"`
	UserInfoURL   string   `json:"userInfoUrl,omitempty"`
	RevocationURL string   `json:"revocationUrl,omitempty"`
	Scopes        []string `json:"scopes,omitempty"`

	// Static
	Users    []StaticUser  `json:"users,omitempty"`
	TokenTTL time.Duration `json:"tokenTtl,omitempty"`
}

// SessionConfig configures the session cookie and the forms that change it
type SessionConfig struct {
	CookieName    string        `json:"cookieName"`
	EncryptionKey Secret        `json:"encryptionKey"`
	MaxAge        time.Duration `json:"maxAge"`
	RefreshMargin time.Duration `json:"refreshMargin"`
	CSRFKey       Secret        `json:"csrfKey"`
}

// StorageConfig configures the user directory
type StorageConfig struct {
	Kind       StorageKind `json:"kind"`
	GCPProject string      `json:"gcpProject,omitempty"`
	Database   string      `json:"database,omitempty"`
	Collection string      `json:"collection,omitempty"`

	// Retention removes users not seen for this long. Zero keeps everyone.
	Retention time.Duration `json:"retention,omitempty"`
}

// RateLimitConfig configures per-IP login throttling
type RateLimitConfig struct {
	RPS   float64 `json:"rps"`
	Burst int     `json:"burst"`
}

// AppConfig configures the HTTP server
type AppConfig struct {
	Name           string        `json:"name"`
	Addr           string        `json:"addr"`
	BaseURL        string        `json:"baseURL"`
	RequestTimeout time.Duration `json:"requestTimeout"`
}

// Config represents the config structure with resolved values
type Config struct {
	App            AppConfig        `json:"app"`
	Provider       ProviderConfig   `json:"provider"`
	Session        SessionConfig    `json:"session"`
	Storage        StorageConfig    `json:"storage"`
	LoginRateLimit *RateLimitConfig `json:"loginRateLimit,omitempty"`
}
