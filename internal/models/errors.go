package models

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents validation errors (400)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeAuthentication represents authentication errors (401)
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeAuthorization represents authorization errors (403)
	ErrorTypeAuthorization ErrorType = "authorization"
	// ErrorTypeNotFound represents resource not found errors (404)
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConflict represents uniqueness conflicts (409)
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeRateLimit represents rate limiting errors (429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeProvider represents backend provider errors (502)
	ErrorTypeProvider ErrorType = "provider"
	// ErrorTypeTooBusy represents saturation errors (503)
	ErrorTypeTooBusy ErrorType = "too_busy"
	// ErrorTypeTimeout represents timeout errors (504)
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInternal represents internal server errors (500)
	ErrorTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitzero"`
	StatusCode int       `json:"-"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows error unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetStatusCode returns the HTTP status code for the error
func (e *AppError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeAuthorization:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeProvider:
		return http.StatusBadGateway
	case ErrorTypeTooBusy:
		return http.StatusServiceUnavailable
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewModelNotFoundError creates the error returned for unknown model names
func NewModelNotFoundError(model string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("model %q not found", model),
		Code:       "MODEL_NOT_FOUND",
		StatusCode: http.StatusNotFound,
	}
}

// NewWrongModelTypeError is returned when a model exists but cannot serve the endpoint
func NewWrongModelTypeError(model string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    fmt.Sprintf("model %q has the wrong type for this endpoint", model),
		Code:       "WRONG_MODEL_TYPE",
		StatusCode: http.StatusBadRequest,
	}
}

// NewInvalidAPIKeyError creates an invalid API key error
func NewInvalidAPIKeyError() *AppError {
	return &AppError{
		Type:       ErrorTypeAuthorization,
		Message:    "invalid API key",
		Code:       "INVALID_API_KEY",
		StatusCode: http.StatusForbidden,
	}
}

// NewInsufficientPermissionError creates an insufficient permission error
func NewInsufficientPermissionError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthorization,
		Message:    message,
		Code:       "INSUFFICIENT_PERMISSION",
		StatusCode: http.StatusForbidden,
	}
}

// NewInsufficientBudgetError is returned when a costed model is requested with no budget left
func NewInsufficientBudgetError() *AppError {
	return &AppError{
		Type:       ErrorTypeAuthorization,
		Message:    "insufficient budget",
		Code:       "INSUFFICIENT_BUDGET",
		StatusCode: http.StatusForbidden,
	}
}

// NewRateLimitError creates a rate limit error with a human readable detail
func NewRateLimitError(detail string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Message:    detail,
		Code:       "RATE_LIMIT_EXCEEDED",
		StatusCode: http.StatusTooManyRequests,
		Retryable:  true,
	}
}

// NewModelTooBusyError is returned when routing gives up after QoS retries
func NewModelTooBusyError(detail string) *AppError {
	return &AppError{
		Type:       ErrorTypeTooBusy,
		Message:    detail,
		Code:       "MODEL_TOO_BUSY",
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
	}
}

// NewProviderError creates a backend provider error
func NewProviderError(provider, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProvider,
		Message:    fmt.Sprintf("provider %s error: %s", provider, message),
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    fmt.Sprintf("operation %s timed out", operation),
		StatusCode: http.StatusGatewayTimeout,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewConflictError creates a uniqueness conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewNotFoundError creates a generic not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// SanitizeError sanitizes an error for external consumption
func SanitizeError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Type:       appErr.Type,
			Message:    appErr.Message,
			Code:       appErr.Code,
			StatusCode: appErr.GetStatusCode(),
			Retryable:  appErr.Retryable,
		}
	}

	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    "an unexpected error occurred",
		StatusCode: http.StatusInternalServerError,
		Cause:      err,
	}
}
