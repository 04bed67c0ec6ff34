package fireauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
	ErrInvalidCACert    = errors.New("invalid CA certificate")
	ErrNotFound         = errors.New("not found")

	// ErrUserNotVerified is returned from Login when the provider is
	// configured to require verified email addresses and the account has
	// not completed verification.
	ErrUserNotVerified = errors.New("user not verified")

	// ErrAccountDisabled is returned when the provider reports the account
	// as disabled. The session is cleared before the error is returned.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrNotAuthenticated is returned when an operation requiring an active
	// session is attempted while logged out.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// ProviderError represents a failed request to the identity provider. It
// carries the upstream HTTP status along with the provider's error code and
// message when the response body could be parsed.
type ProviderError struct {
	// StatusCode is the upstream HTTP status code
	StatusCode int

	// Code is the provider's numeric error code, when present
	Code int

	// Message is the provider's error message (for example
	// "INVALID_PASSWORD"), or a status-text fallback
	Message string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider request failed: %d: %s", e.StatusCode, e.Message)
}

// parseProviderError builds a ProviderError from a non-2xx response body.
// The relying-party API reports failures as {"error":{"code","message"}};
// anything unparsable falls back to the HTTP status text.
func parseProviderError(statusCode int, body []byte) *ProviderError {
	var resp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error.Message != "" {
		return &ProviderError{
			StatusCode: statusCode,
			Code:       resp.Error.Code,
			Message:    resp.Error.Message,
		}
	}
	return &ProviderError{
		StatusCode: statusCode,
		Message:    http.StatusText(statusCode),
	}
}
