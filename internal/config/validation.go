package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateDocument(data), nil
}

// ValidateDocument is ValidateFile on an in-memory document
func ValidateDocument(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", SupportedVersion)
	} else if version != SupportedVersion {
		result.addError("version", "unsupported version '%s' - use '%s'", version, SupportedVersion)
	}

	validateAppStructure(rawConfig, result)
	validateProviderStructure(rawConfig, result)
	validateSessionStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	return result
}

func validateAppStructure(rawConfig map[string]any, result *ValidationResult) {
	app, ok := rawConfig["app"].(map[string]any)
	if !ok {
		if _, exists := rawConfig["app"]; exists {
			result.addError("app", "app must be an object")
		}
		return
	}
	validateDurationField(app, "requestTimeout", "app.requestTimeout", result)
}

func validateProviderStructure(rawConfig map[string]any, result *ValidationResult) {
	provider, ok := rawConfig["provider"].(map[string]any)
	if !ok {
		result.addError("provider", "provider field is required and must be an object")
		return
	}

	kind, _ := provider["kind"].(string)
	switch ProviderKind(kind) {
	case ProviderKindGoTrue, ProviderKindOAuth2, ProviderKindStatic:
	case "":
		result.addError("provider.kind", "kind is required. Options: gotrue, oauth2, static")
	default:
		result.addError("provider.kind", "unknown provider kind '%s'. Options: gotrue, oauth2, static", kind)
	}

	for _, field := range []string{"url", "publicKey"} {
		if _, ok := provider[field]; !ok {
			result.addError("provider."+field, "%s is required", field)
		}
	}

	if ProviderKind(kind) == ProviderKindOAuth2 {
		for _, field := range []string{"clientId", "tokenUrl"} {
			if _, ok := provider[field]; !ok {
				result.addError("provider."+field, "%s is required for oauth2 providers", field)
			}
		}
	}
	if secret, ok := provider["clientSecret"]; ok {
		if verr := validateEnvVarReference(secret, "clientSecret", "provider.clientSecret"); verr != nil {
			result.Errors = append(result.Errors, *verr)
		}
	}

	if ProviderKind(kind) == ProviderKindStatic {
		users, _ := provider["users"].([]any)
		if len(users) == 0 {
			result.addError("provider.users", "static providers need at least one user")
		}
		for i, u := range users {
			user, ok := u.(map[string]any)
			if !ok {
				result.addError(fmt.Sprintf("provider.users[%d]", i), "user must be an object")
				continue
			}
			hash, _ := user["passwordHash"].(string)
			if !strings.HasPrefix(hash, "$2") {
				result.addError(fmt.Sprintf("provider.users[%d].passwordHash", i), "passwordHash must be a bcrypt hash")
			}
		}
	}

	validateDurationField(provider, "timeout", "provider.timeout", result)
	validateDurationField(provider, "tokenTtl", "provider.tokenTtl", result)
}

func validateSessionStructure(rawConfig map[string]any, result *ValidationResult) {
	session, ok := rawConfig["session"].(map[string]any)
	if !ok {
		result.addError("session", "session field is required and must be an object")
		return
	}

	for _, field := range []string{"encryptionKey", "csrfKey"} {
		value, exists := session[field]
		if !exists {
			result.addError("session."+field, "%s is required", field)
			continue
		}
		if verr := validateEnvVarReference(value, field, "session."+field); verr != nil {
			result.Errors = append(result.Errors, *verr)
		}
	}

	validateDurationField(session, "maxAge", "session.maxAge", result)
	validateDurationField(session, "refreshMargin", "session.refreshMargin", result)
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		return
	}
	validateDurationField(storage, "retention", "storage.retention", result)

	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageKindMemory:
	case StorageKindFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required for firestore storage")
		}
	default:
		result.addError("storage.kind", "unknown storage kind '%s'. Options: memory, firestore", kind)
	}
}

func validateDurationField(obj map[string]any, field, path string, result *ValidationResult) {
	value, ok := obj[field]
	if !ok {
		return
	}
	s, isString := value.(string)
	if !isString {
		result.addError(path, "%s must be a duration string like \"30s\"", field)
		return
	}
	if _, err := time.ParseDuration(s); err != nil {
		result.addError(path, "invalid duration '%s': %v", s, err)
	}
}

// validateEnvVarReference ensures a secret is given as {"$env": "VAR"}
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.Warnings = append(result.Warnings, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName),
			})
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			if key == "passwordHash" {
				continue
			}
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
