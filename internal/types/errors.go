package types

import (
	"errors"
	"net/http"
	"strings"
)

// ErrorCode is the machine-readable error identifier returned in API error
// bodies. Its prefix selects the HTTP status.
type ErrorCode string

const (
	ErrCodeValidationThresholdRange ErrorCode = "validation_threshold_out_of_range"
	ErrCodeValidationLookbackRange  ErrorCode = "validation_lookback_out_of_range"
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationImmutableField ErrorCode = "validation_immutable_field"
	ErrCodeValidationInvalidValue   ErrorCode = "validation_invalid_value"
	ErrCodeValidationInvalidJSON    ErrorCode = "validation_invalid_json"

	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"

	ErrCodeNotFoundRule    ErrorCode = "not_found_rule"
	ErrCodeNotFoundWarning ErrorCode = "not_found_warning"
	ErrCodeNotFoundUser    ErrorCode = "not_found_user"

	ErrCodeConflictAcknowledged  ErrorCode = "conflict_already_acknowledged"
	ErrCodeConflictDetectionBusy ErrorCode = "conflict_detection_in_progress"

	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

var statusByPrefix = []struct {
	prefix string
	status int
}{
	{"validation_", http.StatusBadRequest},
	{"auth_", http.StatusUnauthorized},
	{"not_found_", http.StatusNotFound},
	{"conflict_", http.StatusConflict},
}

// HTTPStatus maps the code to a response status. Unknown prefixes are 500.
func (c ErrorCode) HTTPStatus() int {
	for _, p := range statusByPrefix {
		if strings.HasPrefix(string(c), p.prefix) {
			return p.status
		}
	}
	return http.StatusInternalServerError
}

// AppError carries a code, a client-safe message and optional details
// through repositories, services and handlers. Err is never serialized.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return string(e.Code) + ": " + e.Message
	}
	return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) HTTPStatus() int { return e.Code.HTTPStatus() }

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewAppErrorWithDetails is NewAppError plus structured details, such as the
// offending field name, for the response body.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	appErr := NewAppError(code, message, err)
	appErr.Details = details
	return appErr
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
