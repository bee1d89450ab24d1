package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMeterError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *MeterError
		expected string
	}{
		{
			name: "store unavailable",
			err: &MeterError{
				Kind:    ErrorKindStoreUnavailable,
				Message: "redis connection refused",
			},
			expected: "store_unavailable: redis connection refused",
		},
		{
			name: "invalid quota",
			err: &MeterError{
				Kind:    ErrorKindInvalidQuota,
				Message: "window must be positive",
			},
			expected: "invalid_quota_parameters: window must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMeterError_Unwrap(t *testing.T) {
	originalErr := errors.New("dial tcp: connection refused")
	meterErr := NewStoreUnavailableError("window store unreachable", originalErr)

	if unwrapped := meterErr.Unwrap(); unwrapped != originalErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, originalErr)
	}
	if !errors.Is(meterErr, originalErr) {
		t.Error("errors.Is should find the wrapped error")
	}
}

func TestMeterError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *MeterError
		expected int
	}{
		{"store unavailable", NewStoreUnavailableError("down", nil), http.StatusServiceUnavailable},
		{"invalid quota", NewInvalidQuotaError("bad window"), http.StatusBadRequest},
		{"invalid usage", NewInvalidUsageError("negative tokens"), http.StatusBadRequest},
		{"unknown pricing", NewUnknownPricingError("no kind"), http.StatusBadRequest},
		{"rate limited", NewRateLimitError("quota exceeded"), http.StatusTooManyRequests},
		{"authentication", NewAuthenticationError("bad key"), http.StatusUnauthorized},
		{"not found", NewNotFoundError("unknown model"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestMeterError_HTTPStatusCode_DefaultByKind(t *testing.T) {
	// StatusCode left zero falls back to the kind mapping
	err := &MeterError{Kind: ErrorKindRateLimited, Message: "denied"}
	if got := err.HTTPStatusCode(); got != http.StatusTooManyRequests {
		t.Errorf("HTTPStatusCode() = %d, want %d", got, http.StatusTooManyRequests)
	}

	unknown := &MeterError{Kind: ErrorKind("mystery"), Message: "?"}
	if got := unknown.HTTPStatusCode(); got != http.StatusInternalServerError {
		t.Errorf("HTTPStatusCode() = %d, want %d", got, http.StatusInternalServerError)
	}
}

func TestIsKind(t *testing.T) {
	storeErr := NewStoreUnavailableError("down", errors.New("timeout"))

	if !IsKind(storeErr, ErrorKindStoreUnavailable) {
		t.Error("IsKind should match the error's own kind")
	}
	if IsKind(storeErr, ErrorKindInvalidQuota) {
		t.Error("IsKind should not match a different kind")
	}
	if IsKind(errors.New("plain"), ErrorKindStoreUnavailable) {
		t.Error("IsKind should not match a non-MeterError")
	}

	// Matches through wrapping
	wrapped := fmt.Errorf("admission check: %w", storeErr)
	if !IsKind(wrapped, ErrorKindStoreUnavailable) {
		t.Error("IsKind should match a wrapped MeterError")
	}
}

func TestMeterError_ToJSON(t *testing.T) {
	err := NewInvalidUsageError("prompt tokens must be non-negative")
	m := err.ToJSON()

	inner, ok := m["error"].(map[string]interface{})
	if !ok {
		t.Fatal("expected error key with map value")
	}
	if inner["kind"] != ErrorKindInvalidUsage {
		t.Errorf("kind = %v, want %v", inner["kind"], ErrorKindInvalidUsage)
	}
	if inner["message"] != "prompt tokens must be non-negative" {
		t.Errorf("unexpected message: %v", inner["message"])
	}
}
