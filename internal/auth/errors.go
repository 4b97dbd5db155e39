package auth

import (
	"errors"
	"net/http"
)

var (
	// ErrMissingCredentials is returned when the email or password is empty.
	// The provider is not called.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrInvalidCredentials is returned when the provider rejects the
	// credentials. It never says which field was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProviderUnavailable covers network and provider failures during
	// session resolution or credential exchange.
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// ErrSessionExpired is reported when a refresh token is no longer
	// accepted. It collapses to "no session" and never reaches a page.
	ErrSessionExpired = errors.New("session expired")
)

// User-facing messages. Provider error text is logged, never shown.
const (
	MessageMissingCredentials  = "E-posta ve şifre gereklidir."
	MessageInvalidCredentials  = "Geçersiz e-posta veya şifre."
	MessageProviderUnavailable = "Giriş servisine şu anda ulaşılamıyor. Lütfen daha sonra tekrar deneyin."
)

// UserMessage maps an error from this package to the text shown to users.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return MessageMissingCredentials
	case errors.Is(err, ErrInvalidCredentials):
		return MessageInvalidCredentials
	default:
		return MessageProviderUnavailable
	}
}

// HTTPStatus maps an error from this package to a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingCredentials):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusServiceUnavailable
	}
}

// SignInResult is the body of a password sign-in response.
type SignInResult struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ResultOf builds the SignInResult for the outcome of SignInWithPassword.
func ResultOf(err error) SignInResult {
	if err == nil {
		return SignInResult{Success: true}
	}
	return SignInResult{Error: UserMessage(err)}
}
