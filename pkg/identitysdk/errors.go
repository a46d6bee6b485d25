package identitysdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/roomkey/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	ErrorCodeInvalidRequest            = "invalid_request"
	ErrorCodeInvalidCredentials        = "invalid_credentials"
	ErrorCodeAccountDisabled           = "account_disabled"
	ErrorCodeInvalidVerificationCode   = "invalid_verification_code"
	ErrorCodeAuthenticationUnavailable = "authentication_unavailable"
	ErrorCodeInvalidToken              = "invalid_token"
	ErrorCodeForbidden                 = "forbidden"
	ErrorCodeNotFound                  = "not_found"
	ErrorCodeConflict                  = "conflict"
	ErrorCodeInvalidConfig             = "invalid_config"
	ErrorCodeSyncInProgress            = "sync_in_progress"
	ErrorCodeTwoFANotEnabled           = "two_fa_not_enabled"
	ErrorCodeTwoFAAlreadyEnabled       = "two_fa_already_enabled"
	ErrorCodeTwoFANotEnrolled          = "two_fa_not_enrolled"
	ErrorCodeTrustedDevicesDisabled    = "trusted_devices_disabled"
	ErrorCodeAlreadySetup              = "already_setup"
	ErrorCodeUnauthorized              = "unauthorized"
	ErrorCodeRateLimitExceeded         = "rate_limit_exceeded"
	ErrorCodeServerError               = "server_error"
)

// ============================================================================
// APIError
// ============================================================================

// APIError is the error envelope as a Go error. The server writes it and
// the client parses it back.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is a stable machine readable code
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on status and code so callers can use errors.Is with the
// predefined values below.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode && e.Code == t.Code
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Description)
}

// WithDescription returns a copy carrying a more specific description.
func (e *APIError) WithDescription(desc string) *APIError {
	out := *e
	out.Description = desc
	return &out
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid email or password",
	}

	ErrAccountDisabled = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeAccountDisabled,
		Description: "account is disabled",
	}

	ErrInvalidVerificationCode = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidVerificationCode,
		Description: "invalid verification code",
	}

	// ErrAuthenticationUnavailable is returned when the directory or identity
	// provider needed to check the credential cannot be reached.
	ErrAuthenticationUnavailable = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeAuthenticationUnavailable,
		Description: "authentication service temporarily unavailable",
	}

	ErrForbidden = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeForbidden,
		Description: "not allowed",
	}

	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "not found",
	}

	ErrConflict = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeConflict,
		Description: "tenant already has a config",
	}

	ErrInvalidConfig = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidConfig,
		Description: "invalid config",
	}

	ErrSyncInProgress = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeSyncInProgress,
		Description: "a sync is already running for this tenant",
	}

	ErrTwoFANotEnabled = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeTwoFANotEnabled,
		Description: "two-factor authentication is not enabled",
	}

	ErrTwoFAAlreadyEnabled = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeTwoFAAlreadyEnabled,
		Description: "two-factor authentication is already enabled",
	}

	ErrTwoFANotEnrolled = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeTwoFANotEnrolled,
		Description: "two-factor setup has not been started",
	}

	ErrTrustedDevicesDisabled = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeTrustedDevicesDisabled,
		Description: "trusted devices are disabled",
	}

	ErrAlreadySetup = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeAlreadySetup,
		Description: "service has already been bootstrapped",
	}

	ErrUnauthorized = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUnauthorized,
		Description: "unauthorized",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	// Fallback: create generic error from status code
	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
