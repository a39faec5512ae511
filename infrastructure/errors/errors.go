// Package errors provides the unified error envelope used by both the
// workflow and builder services: one ServiceError type, one constructor per
// error code, and helpers to recover a ServiceError from an error chain.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies one of the error categories exposed in API
// responses. httputil.WriteErrorResponse writes it as the top-level "code"
// field of a flat {code, message, details, trace_id} object; the response
// has no "success" flag and no nested "error" object.
type ErrorCode string

const (
	CodeValidation ErrorCode = "VALIDATION_ERROR"
	CodeAuth       ErrorCode = "AUTH_ERROR"
	CodeForbidden  ErrorCode = "FORBIDDEN"
	CodeNotFound   ErrorCode = "NOT_FOUND"
	CodeConflict   ErrorCode = "CONFLICT"
	CodeRateLimit  ErrorCode = "RATE_LIMIT"
	CodeBuild      ErrorCode = "BUILD_ERROR"
	CodeInternal   ErrorCode = "INTERNAL_ERROR"
)

var httpStatusByCode = map[ErrorCode]int{
	CodeValidation: http.StatusBadRequest,
	CodeAuth:       http.StatusUnauthorized,
	CodeForbidden:  http.StatusForbidden,
	CodeNotFound:   http.StatusNotFound,
	CodeConflict:   http.StatusConflict,
	CodeRateLimit:  http.StatusTooManyRequests,
	CodeBuild:      http.StatusInternalServerError,
	CodeInternal:   http.StatusInternalServerError,
}

// ServiceError represents a structured error with code, message, HTTP
// status, and optional details, matching the {code, message, details}
// error envelope.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError, resolving HTTP status from the code.
func New(code ErrorCode, message string) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatusByCode[code],
	}
}

// Wrap wraps an existing error with a ServiceError.
func Wrap(code ErrorCode, message string, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatusByCode[code],
		Err:        err,
	}
}

// Validation constructs a VALIDATION_ERROR.
func Validation(field, reason string) *ServiceError {
	e := New(CodeValidation, "invalid input")
	if field != "" {
		e = e.WithDetails("field", field)
	}
	if reason != "" {
		e = e.WithDetails("reason", reason)
	}
	return e
}

// MissingParameter constructs a VALIDATION_ERROR for an absent field.
func MissingParameter(param string) *ServiceError {
	return New(CodeValidation, "missing required parameter").WithDetails("parameter", param)
}

// Unauthorized constructs an AUTH_ERROR.
func Unauthorized(message string) *ServiceError {
	return New(CodeAuth, message)
}

// InvalidToken constructs an AUTH_ERROR wrapping a token parse/verify failure.
func InvalidToken(err error) *ServiceError {
	return Wrap(CodeAuth, "invalid authentication token", err)
}

// Forbidden constructs a FORBIDDEN error, used for cross-tenant access attempts.
func Forbidden(message string) *ServiceError {
	return New(CodeForbidden, message)
}

// NotFound constructs a NOT_FOUND error naming the missing resource and id.
func NotFound(resource, id string) *ServiceError {
	e := New(CodeNotFound, fmt.Sprintf("%s not found", resource))
	if id != "" {
		e = e.WithDetails("id", id)
	}
	return e
}

// Conflict constructs a CONFLICT error.
func Conflict(message string) *ServiceError {
	return New(CodeConflict, message)
}

// AlreadyExists constructs a CONFLICT error for a duplicate resource.
func AlreadyExists(resource, id string) *ServiceError {
	return New(CodeConflict, fmt.Sprintf("%s already exists", resource)).WithDetails("id", id)
}

// RateLimitExceeded constructs a RATE_LIMIT error.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(CodeRateLimit, "rate limit exceeded").
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// BuildFailed constructs a BUILD_ERROR wrapping a site build pipeline failure.
func BuildFailed(stage string, err error) *ServiceError {
	return Wrap(CodeBuild, fmt.Sprintf("build failed at stage %q", stage), err).WithDetails("stage", stage)
}

// Internal constructs an INTERNAL_ERROR.
func Internal(message string, err error) *ServiceError {
	return Wrap(CodeInternal, message, err)
}

// DatabaseError constructs an INTERNAL_ERROR for a repository failure.
func DatabaseError(operation string, err error) *ServiceError {
	return Wrap(CodeInternal, "database operation failed", err).WithDetails("operation", operation)
}

// IsServiceError reports whether err carries a ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain, if present.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Is reports whether err (or something it wraps) is a ServiceError with
// the given code, for use with errors.Is-style checks at call sites.
func Is(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
