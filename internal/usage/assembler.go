package usage

import (
	"time"

	"github.com/google/uuid"

	"gometer/internal/core"
)

// AssembleEvent composes the outcome of one handled request into an immutable
// UsageEvent. It performs no I/O; persisting the event is the caller's job.
//
// Exactly one event must be assembled per logical request attempt, whether
// the upstream call succeeded or failed: failed calls still spent tokens and
// still matter for observability.
func AssembleEvent(requestID, endpoint string, usage core.TokenUsage, cost core.CostBreakdown, durationMs int64, succeeded bool, errorText string, refs core.EventRefs) *UsageEvent {
	return &UsageEvent{
		ID:                  uuid.New().String(),
		RequestID:           requestID,
		Endpoint:            endpoint,
		Timestamp:           time.Now().UTC(),
		Model:               refs.ModelID,
		AccountID:           refs.AccountID,
		CredentialID:        refs.CredentialID,
		PromptTokens:        usage.PromptTokens,
		CompletionTokens:    usage.CompletionTokens,
		TotalTokens:         usage.TotalTokens,
		PromptCostCents:     cost.PromptCostCents,
		CompletionCostCents: cost.CompletionCostCents,
		TotalCostCents:      cost.TotalCostCents,
		DurationMs:          durationMs,
		Succeeded:           succeeded,
		ErrorText:           errorText,
	}
}
