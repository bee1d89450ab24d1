package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind represents the category of error that occurred
type ErrorKind string

const (
	// ErrorKindStoreUnavailable indicates the window store transaction could not
	// be issued or completed. The caller decides fail-open vs fail-closed.
	ErrorKindStoreUnavailable ErrorKind = "store_unavailable"
	// ErrorKindInvalidQuota indicates invalid quota parameters (window <= 0, negative limit)
	ErrorKindInvalidQuota ErrorKind = "invalid_quota_parameters"
	// ErrorKindInvalidUsage indicates invalid usage input (negative token counts)
	ErrorKindInvalidUsage ErrorKind = "invalid_usage_input"
	// ErrorKindUnknownPricing indicates a malformed ModelPricing value
	ErrorKindUnknownPricing ErrorKind = "unknown_pricing_variant"
	// ErrorKindRateLimited indicates an admission denial surfaced over HTTP (429)
	ErrorKindRateLimited ErrorKind = "rate_limit_error"
	// ErrorKindAuthentication indicates an authentication error (401)
	ErrorKindAuthentication ErrorKind = "authentication_error"
	// ErrorKindNotFound indicates a missing resource, e.g. unknown model (404)
	ErrorKindNotFound ErrorKind = "not_found_error"
)

// MeterError is the base error type for all metering errors
type MeterError struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *MeterError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *MeterError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *MeterError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Kind {
	case ErrorKindStoreUnavailable:
		return http.StatusServiceUnavailable
	case ErrorKindInvalidQuota, ErrorKindInvalidUsage, ErrorKindUnknownPricing:
		return http.StatusBadRequest
	case ErrorKindRateLimited:
		return http.StatusTooManyRequests
	case ErrorKindAuthentication:
		return http.StatusUnauthorized
	case ErrorKindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *MeterError) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"kind":    e.Kind,
			"message": e.Message,
		},
	}
}

// IsKind reports whether err is a MeterError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var me *MeterError
	if errors.As(err, &me) {
		return me.Kind == kind
	}
	return false
}

// NewStoreUnavailableError creates a store unavailable error (503)
func NewStoreUnavailableError(message string, err error) *MeterError {
	return &MeterError{
		Kind:       ErrorKindStoreUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewInvalidQuotaError creates an invalid quota parameters error (400)
func NewInvalidQuotaError(message string) *MeterError {
	return &MeterError{
		Kind:       ErrorKindInvalidQuota,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewInvalidUsageError creates an invalid usage input error (400)
func NewInvalidUsageError(message string) *MeterError {
	return &MeterError{
		Kind:       ErrorKindInvalidUsage,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewUnknownPricingError creates an unknown pricing variant error (400)
func NewUnknownPricingError(message string) *MeterError {
	return &MeterError{
		Kind:       ErrorKindUnknownPricing,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewRateLimitError creates a rate limit error (429)
func NewRateLimitError(message string) *MeterError {
	return &MeterError{
		Kind:       ErrorKindRateLimited,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

// NewAuthenticationError creates an authentication error (401)
func NewAuthenticationError(message string) *MeterError {
	return &MeterError{
		Kind:       ErrorKindAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNotFoundError creates a not found error (404)
func NewNotFoundError(message string) *MeterError {
	return &MeterError{
		Kind:       ErrorKindNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}
