//go:build integration

package dbassert

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ExpectedEvent contains expected values for usage event assertions.
// Zero values are not checked, allowing partial matching.
type ExpectedEvent struct {
	Model            string
	Endpoint         string
	AccountID        string
	CredentialID     string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	RequestID        string
	ErrorText        string
}

// AssertEventFieldCompleteness verifies that all required fields are populated.
func AssertEventFieldCompleteness(t *testing.T, event UsageEvent) {
	t.Helper()

	assert.NotEmpty(t, event.ID, "event ID should not be empty")
	assert.NotEmpty(t, event.RequestID, "event request ID should not be empty")
	assert.False(t, event.Timestamp.IsZero(), "event timestamp should not be zero")
	assert.NotEmpty(t, event.Model, "event model should not be empty")
	assert.NotEmpty(t, event.Endpoint, "event endpoint should not be empty")
	assert.NotEmpty(t, event.AccountID, "event account ID should not be empty")
}

// AssertEventMatches verifies that the actual event matches expected values.
// Only non-zero expected values are checked.
func AssertEventMatches(t *testing.T, expected ExpectedEvent, actual UsageEvent) {
	t.Helper()

	if expected.Model != "" {
		assert.Equal(t, expected.Model, actual.Model, "model mismatch")
	}
	if expected.Endpoint != "" {
		assert.Equal(t, expected.Endpoint, actual.Endpoint, "endpoint mismatch")
	}
	if expected.AccountID != "" {
		assert.Equal(t, expected.AccountID, actual.AccountID, "account ID mismatch")
	}
	if expected.CredentialID != "" {
		assert.Equal(t, expected.CredentialID, actual.CredentialID, "credential ID mismatch")
	}
	if expected.PromptTokens != 0 {
		assert.Equal(t, expected.PromptTokens, actual.PromptTokens, "prompt tokens mismatch")
	}
	if expected.CompletionTokens != 0 {
		assert.Equal(t, expected.CompletionTokens, actual.CompletionTokens, "completion tokens mismatch")
	}
	if expected.TotalTokens != 0 {
		assert.Equal(t, expected.TotalTokens, actual.TotalTokens, "total tokens mismatch")
	}
	if expected.RequestID != "" {
		assert.Equal(t, expected.RequestID, actual.RequestID, "request ID mismatch")
	}
	if expected.ErrorText != "" {
		assert.Equal(t, expected.ErrorText, actual.ErrorText, "error text mismatch")
	}
}

// AssertEventHasTokens verifies that token counts are populated (non-zero).
func AssertEventHasTokens(t *testing.T, event UsageEvent) {
	t.Helper()

	assert.Greater(t, event.TotalTokens, 0, "total tokens should be greater than zero")
}

// AssertEventTokensConsistent verifies that prompt + completion = total tokens.
func AssertEventTokensConsistent(t *testing.T, event UsageEvent) {
	t.Helper()

	expectedTotal := event.PromptTokens + event.CompletionTokens
	assert.Equal(t, expectedTotal, event.TotalTokens,
		"total tokens (%d) should equal prompt (%d) + completion (%d)",
		event.TotalTokens, event.PromptTokens, event.CompletionTokens)
}

// AssertEventHasCost verifies that the cost fields are populated and consistent.
func AssertEventHasCost(t *testing.T, event UsageEvent) {
	t.Helper()

	assert.Greater(t, event.TotalCostCents, 0.0, "total cost should be greater than zero")
	assert.InDelta(t, event.PromptCostCents+event.CompletionCostCents, event.TotalCostCents, 1e-6,
		"total cost should equal prompt cost + completion cost")
}

// unmarshalRawData unmarshals JSON bytes to map[string]any.
func unmarshalRawData(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var rawData map[string]any
	err := json.Unmarshal(data, &rawData)
	require.NoError(t, err, "failed to unmarshal raw data")
	return rawData
}
