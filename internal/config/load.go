package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dgellow/depo-front/internal/cookie"
)

const (
	DefaultAddr            = ":3000"
	DefaultName            = "depo-front"
	DefaultRequestTimeout  = 10 * time.Second
	DefaultProviderTimeout = 5 * time.Second
	DefaultRefreshMargin   = 60 * time.Second
	DefaultCookieMaxAge    = 7 * 24 * time.Hour
	DefaultStaticTokenTTL  = time.Hour
	DefaultUsersCollection = "depo_users"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a config document, resolves env references, fills defaults
// and validates the result.
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != SupportedVersion {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig checks, before env resolution, that secrets are env refs
func validateRawConfig(rawConfig map[string]any) error {
	if session, ok := rawConfig["session"].(map[string]any); ok {
		for _, name := range []string{"encryptionKey", "csrfKey"} {
			value, exists := session[name]
			if !exists {
				return fmt.Errorf("session.%s is required", name)
			}
			if verr := validateEnvVarReference(value, name, "session."+name); verr != nil {
				return fmt.Errorf("%s", verr.Message)
			}
		}
	} else {
		return fmt.Errorf("session is required")
	}

	if provider, ok := rawConfig["provider"].(map[string]any); ok {
		if value, exists := provider["clientSecret"]; exists {
			if verr := validateEnvVarReference(value, "clientSecret", "provider.clientSecret"); verr != nil {
				return fmt.Errorf("%s", verr.Message)
			}
		}
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.App.Name == "" {
		c.App.Name = DefaultName
	}
	if c.App.Addr == "" {
		c.App.Addr = DefaultAddr
	}
	if c.App.RequestTimeout == 0 {
		c.App.RequestTimeout = DefaultRequestTimeout
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultProviderTimeout
	}
	if c.Provider.Kind == ProviderKindStatic && c.Provider.TokenTTL == 0 {
		c.Provider.TokenTTL = DefaultStaticTokenTTL
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = cookie.DefaultSessionCookie
	}
	if c.Session.MaxAge == 0 {
		c.Session.MaxAge = DefaultCookieMaxAge
	}
	if c.Session.RefreshMargin == 0 {
		c.Session.RefreshMargin = DefaultRefreshMargin
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageKindMemory
	}
	if c.Storage.Kind == StorageKindFirestore && c.Storage.Collection == "" {
		c.Storage.Collection = DefaultUsersCollection
	}
}

// ValidateConfig checks resolved values
func ValidateConfig(c *Config) error {
	switch c.Provider.Kind {
	case ProviderKindGoTrue, ProviderKindOAuth2, ProviderKindStatic:
	case "":
		return fmt.Errorf("provider.kind is required")
	default:
		return fmt.Errorf("unknown provider kind %q", c.Provider.Kind)
	}

	// URL and public key are re-exposed to the browser and must always exist
	if c.Provider.URL == "" {
		return fmt.Errorf("provider.url is required")
	}
	if c.Provider.PublicKey == "" {
		return fmt.Errorf("provider.publicKey is required")
	}

	switch c.Provider.Kind {
	case ProviderKindOAuth2:
		if c.Provider.ClientID == "" {
			return fmt.Errorf("provider.clientId is required for oauth2")
		}
		if c.Provider.TokenURL == "" {
			return fmt.Errorf("provider.tokenUrl is required for oauth2")
		}
	case ProviderKindStatic:
		if len(c.Provider.Users) == 0 {
			return fmt.Errorf("provider.users must list at least one user for static")
		}
		for i, u := range c.Provider.Users {
			if u.Email == "" || u.PasswordHash == "" {
				return fmt.Errorf("provider.users[%d] requires email and passwordHash", i)
			}
		}
	}

	if len(c.Session.EncryptionKey) != 32 {
		return fmt.Errorf("session.encryptionKey must be exactly 32 bytes, got %d", len(c.Session.EncryptionKey))
	}
	if len(c.Session.CSRFKey) < 32 {
		return fmt.Errorf("session.csrfKey must be at least 32 bytes")
	}
	if c.Session.RefreshMargin < 0 {
		return fmt.Errorf("session.refreshMargin must not be negative")
	}

	switch c.Storage.Kind {
	case StorageKindMemory:
	case StorageKindFirestore:
		if c.Storage.GCPProject == "" {
			return fmt.Errorf("storage.gcpProject is required for firestore")
		}
	default:
		return fmt.Errorf("unknown storage kind %q", c.Storage.Kind)
	}
	if c.Storage.Retention < 0 {
		return fmt.Errorf("storage.retention must not be negative")
	}

	if rl := c.LoginRateLimit; rl != nil {
		if rl.RPS <= 0 || rl.Burst <= 0 {
			return fmt.Errorf("loginRateLimit.rps and loginRateLimit.burst must be positive")
		}
	}
	return nil
}

// DefaultConfigJSON is the document written by -config-init
func DefaultConfigJSON() map[string]any {
	return map[string]any{
		"version": SupportedVersion,
		"app": map[string]any{
			"name":           DefaultName,
			"addr":           DefaultAddr,
			"baseURL":        "http://localhost:3000",
			"requestTimeout": DefaultRequestTimeout.String(),
		},
		"provider": map[string]any{
			"kind":      string(ProviderKindGoTrue),
			"url":       map[string]string{"$env": "DEPO_PROVIDER_URL"},
			"publicKey": map[string]string{"$env": "DEPO_PROVIDER_PUBLIC_KEY"},
			"timeout":   DefaultProviderTimeout.String(),
		},
		"session": map[string]any{
			"cookieName":    cookie.DefaultSessionCookie,
			"encryptionKey": map[string]string{"$env": "DEPO_COOKIE_ENCRYPTION_KEY"},
			"csrfKey":       map[string]string{"$env": "DEPO_CSRF_KEY"},
			"maxAge":        DefaultCookieMaxAge.String(),
			"refreshMargin": DefaultRefreshMargin.String(),
		},
		"storage": map[string]any{
			"kind": string(StorageKindMemory),
		},
		"loginRateLimit": map[string]any{
			"rps":   1,
			"burst": 5,
		},
	}
}
