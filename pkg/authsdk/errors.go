package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/keyhouse/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	ErrorCodeInvalidRequest        = "invalid_request"
	ErrorCodeInvalidRegistration   = "invalid_registration"
	ErrorCodeLoginConflict         = "login_conflict"
	ErrorCodeInvalidCredentials    = "invalid_credentials"
	ErrorCodeTooManyAttempts       = "too_many_attempts"
	ErrorCodeInvalidGrant          = "invalid_grant"
	ErrorCodeRefreshFailed         = "refresh_failed"
	ErrorCodeUnauthorized          = "unauthorized"
	ErrorCodeInsufficientPrivilege = "insufficient_privilege"
	ErrorCodeServerError           = "server_error"
)

// ============================================================================
// APIError
// ============================================================================

// APIError is the error body returned by every auth endpoint. It is used by
// the server to write responses and by SDKClient to report them.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the machine-readable error code (e.g. "invalid_grant")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`

	// Fields holds per-field validation messages for invalid_registration
	Fields map[string]string `json:"fields,omitempty"`

	// BlockedUntil is set on too_many_attempts responses
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes the error as a JSON response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	if e.BlockedUntil != nil {
		secs := int(time.Until(*e.BlockedUntil).Seconds()) + 1
		w.Header().Set("Retry-After", fmt.Sprintf("%d", max(secs, 1)))
	}
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(e)
}

// NewAPIError creates an APIError with the given status, code and description.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}

// IsCode reports whether err is an *APIError carrying the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	// ErrInvalidRequest is returned when the body is malformed or a required
	// parameter is missing.
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrLoginConflict is returned when registering a login that is taken.
	ErrLoginConflict = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeLoginConflict,
		Description: "login is already registered",
	}

	// ErrInvalidCredentials covers both unknown users and wrong passwords.
	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid username or password",
	}

	// ErrInvalidGrant is returned for any broken code exchange. The
	// description never says which check failed.
	ErrInvalidGrant = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidGrant,
		Description: "authorization code is invalid",
	}

	// ErrRefreshFailed is returned when the refresh token or its csrf pair
	// is rejected.
	ErrRefreshFailed = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeRefreshFailed,
		Description: "refresh token is invalid",
	}

	// ErrUnauthorized is returned when a protected route has no valid bearer token.
	ErrUnauthorized = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUnauthorized,
		Description: "missing or invalid bearer token",
	}

	// ErrServerError is returned when the server hit an unexpected condition.
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	// ErrMethodNotAllowed is returned when the HTTP method is not allowed.
	ErrMethodNotAllowed = &APIError{
		StatusCode:  http.StatusMethodNotAllowed,
		Code:        ErrorCodeInvalidRequest,
		Description: "method not allowed",
	}
)

// InvalidRegistration builds the 422 response for a rejected registration.
func InvalidRegistration(fields map[string]string) *APIError {
	return &APIError{
		StatusCode:  http.StatusUnprocessableEntity,
		Code:        ErrorCodeInvalidRegistration,
		Description: "registration data is invalid",
		Fields:      fields,
	}
}

// TooManyAttempts builds the 429 response for a locked-out login.
func TooManyAttempts(until time.Time) *APIError {
	until = until.UTC()
	return &APIError{
		StatusCode:   http.StatusTooManyRequests,
		Code:         ErrorCodeTooManyAttempts,
		Description:  "too many failed login attempts",
		BlockedUntil: &until,
	}
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
