package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ParseConfigValue parses a JSON value that is either a plain string or an
// environment reference of the form {"$env": "VAR_NAME"}.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or {\"$env\": \"VAR\"} reference")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference object, expected {\"$env\": \"VAR\"}")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}

// UnmarshalJSON implements custom unmarshaling for AppConfig
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type rawApp struct {
		Name           string          `json:"name"`
		Addr           string          `json:"addr"`
		BaseURL        json.RawMessage `json:"baseURL"`
		RequestTimeout string          `json:"requestTimeout"`
	}

	var raw rawApp
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.Name = raw.Name
	a.Addr = raw.Addr

	var err error
	if a.BaseURL, err = ParseConfigValue(raw.BaseURL); err != nil {
		return fmt.Errorf("parsing baseURL: %w", err)
	}
	if a.RequestTimeout, err = parseDuration("requestTimeout", raw.RequestTimeout); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ProviderConfig
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	type rawProvider struct {
		Kind          ProviderKind    `json:"kind"`
		URL           json.RawMessage `json:"url"`
		PublicKey     json.RawMessage `json:"publicKey"`
		Timeout       string          `json:"timeout"`
		ClientID      json.RawMessage `json:"clientId"`
		ClientSecret  json.RawMessage `json:"clientSecret"`
		TokenURL      string          `json:"tokenUrl"`
		UserInfoURL   string          `json:"userInfoUrl"`
		RevocationURL string          `json:"revocationUrl"`
		Scopes        []string        `json:"scopes"`
		Users         []StaticUser    `json:"users"`
		TokenTTL      string          `json:"tokenTtl"`
	}

	var raw rawProvider
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Kind = raw.Kind
	p.TokenURL = raw.TokenURL
	p.UserInfoURL = raw.UserInfoURL
	p.RevocationURL = raw.RevocationURL
	p.Scopes = raw.Scopes
	p.Users = raw.Users

	var err error
	if p.URL, err = ParseConfigValue(raw.URL); err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	if p.PublicKey, err = ParseConfigValue(raw.PublicKey); err != nil {
		return fmt.Errorf("parsing publicKey: %w", err)
	}
	if p.ClientID, err = ParseConfigValue(raw.ClientID); err != nil {
		return fmt.Errorf("parsing clientId: %w", err)
	}
	secret, err := ParseConfigValue(raw.ClientSecret)
	if err != nil {
		return fmt.Errorf("parsing clientSecret: %w", err)
	}
	p.ClientSecret = Secret(secret)

	if p.Timeout, err = parseDuration("timeout", raw.Timeout); err != nil {
		return err
	}
	if p.TokenTTL, err = parseDuration("tokenTtl", raw.TokenTTL); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for SessionConfig
func (s *SessionConfig) UnmarshalJSON(data []byte) error {
	type rawSession struct {
		CookieName    string          `json:"cookieName"`
		EncryptionKey json.RawMessage `json:"encryptionKey"`
		MaxAge        string          `json:"maxAge"`
		RefreshMargin string          `json:"refreshMargin"`
		CSRFKey       json.RawMessage `json:"csrfKey"`
	}

	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.CookieName = raw.CookieName

	key, err := ParseConfigValue(raw.EncryptionKey)
	if err != nil {
		return fmt.Errorf("parsing encryptionKey: %w", err)
	}
	s.EncryptionKey = Secret(key)

	csrfKey, err := ParseConfigValue(raw.CSRFKey)
	if err != nil {
		return fmt.Errorf("parsing csrfKey: %w", err)
	}
	s.CSRFKey = Secret(csrfKey)

	if s.MaxAge, err = parseDuration("maxAge", raw.MaxAge); err != nil {
		return err
	}
	if s.RefreshMargin, err = parseDuration("refreshMargin", raw.RefreshMargin); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind       StorageKind     `json:"kind"`
		GCPProject json.RawMessage `json:"gcpProject"`
		Database   string          `json:"database"`
		Collection string          `json:"collection"`
		Retention  string          `json:"retention"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.Database = raw.Database
	s.Collection = raw.Collection

	var err error
	if s.GCPProject, err = ParseConfigValue(raw.GCPProject); err != nil {
		return fmt.Errorf("parsing gcpProject: %w", err)
	}
	if s.Retention, err = parseDuration("retention", raw.Retention); err != nil {
		return err
	}
	return nil
}
