// Package usage provides cost computation and usage-event metering for the
// gateway. Every handled request, successful or not, produces exactly one
// priced UsageEvent that is buffered and persisted for auditing.
package usage

import (
	"context"
	"time"
)

// EventStore defines the interface for usage-event storage backends.
// Implementations must be safe for concurrent use.
type EventStore interface {
	// WriteBatch appends multiple usage events to storage.
	// This is called by the Logger when flushing buffered events.
	WriteBatch(ctx context.Context, events []*UsageEvent) error

	// Flush forces any pending writes to complete.
	// Called during graceful shutdown.
	Flush(ctx context.Context) error

	// Close releases resources and flushes pending writes.
	Close() error
}

// UsageEvent is the immutable record of one metered request attempt. It is
// created exactly once, after the upstream call completes (success or
// failure), and never mutated afterwards.
type UsageEvent struct {
	// ID is a unique identifier for this event (UUID)
	ID string `json:"id" bson:"_id"`

	// RequestID links the event to the request that produced it
	RequestID string `json:"request_id" bson:"request_id"`

	// Endpoint identifies the API surface the request hit
	Endpoint string `json:"endpoint" bson:"endpoint"`

	// Timestamp is when the request completed
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	// Model is the model identifier the request was billed against
	Model string `json:"model" bson:"model"`

	// AccountID and CredentialID attribute the event to an identity.
	// Both are opaque references owned by the identity resolver.
	AccountID    string `json:"account_id" bson:"account_id"`
	CredentialID string `json:"credential_id,omitempty" bson:"credential_id,omitempty"`

	// Token counts (normalized)
	PromptTokens     int `json:"prompt_tokens" bson:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" bson:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" bson:"total_tokens"`

	// Cost breakdown in cents, rounded to 6 fractional digits
	PromptCostCents     float64 `json:"prompt_cost_cents" bson:"prompt_cost_cents"`
	CompletionCostCents float64 `json:"completion_cost_cents" bson:"completion_cost_cents"`
	TotalCostCents      float64 `json:"total_cost_cents" bson:"total_cost_cents"`

	// DurationMs is the wall-clock processing time of the upstream call
	DurationMs int64 `json:"duration_ms" bson:"duration_ms"`

	// Succeeded records whether the upstream call completed successfully.
	// Failed calls are still metered: the tokens were already spent.
	Succeeded bool `json:"succeeded" bson:"succeeded"`

	// ErrorText carries the upstream error for failed calls
	ErrorText string `json:"error_text,omitempty" bson:"error_text,omitempty"`

	// RawData preserves provider-specific extended usage fields
	// (e.g. cached_tokens, reasoning_tokens) for later analysis
	RawData map[string]any `json:"raw_data,omitempty" bson:"raw_data,omitempty"`
}

// Config holds usage metering configuration
type Config struct {
	// Enabled controls whether usage metering persistence is active
	Enabled bool

	// BufferSize is the number of events to buffer before dropping
	BufferSize int

	// FlushInterval is how often to flush buffered events
	FlushInterval time.Duration

	// RetentionDays is how long to keep usage data (0 = forever)
	RetentionDays int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 90,
	}
}
