// Package core provides core types and interfaces for the metering gateway.
package core

// TokenUsage represents normalized token counts for one request/response pair.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewTokenUsage builds a TokenUsage with the total derived from its parts.
func NewTokenUsage(promptTokens, completionTokens int) TokenUsage {
	return TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// PricingKind discriminates the two pricing policies.
type PricingKind string

const (
	// PricingSystem is first-party pricing: base rates plus a percentage markup.
	PricingSystem PricingKind = "system"
	// PricingExternal is user-supplied pricing: the rates are already the full
	// billable rates, no markup is applied.
	PricingExternal PricingKind = "external"
)

// ModelPricing holds per-model pricing metadata. It is a tagged variant: Kind
// selects which field group applies. Rates are cents per 1000 tokens.
type ModelPricing struct {
	Kind PricingKind `json:"kind" yaml:"kind"`

	// System variant fields.
	BasePromptCostPerKTokenCents     float64 `json:"base_prompt_cost_per_k_token_cents,omitempty" yaml:"base_prompt_cost_per_k_token_cents,omitempty"`
	BaseCompletionCostPerKTokenCents float64 `json:"base_completion_cost_per_k_token_cents,omitempty" yaml:"base_completion_cost_per_k_token_cents,omitempty"`
	MarkupPercent                    float64 `json:"markup_percent,omitempty" yaml:"markup_percent,omitempty"`

	// External variant fields.
	PromptCostPerKTokenCents     float64 `json:"prompt_cost_per_k_token_cents,omitempty" yaml:"prompt_cost_per_k_token_cents,omitempty"`
	CompletionCostPerKTokenCents float64 `json:"completion_cost_per_k_token_cents,omitempty" yaml:"completion_cost_per_k_token_cents,omitempty"`
}

// CostBreakdown is the priced result of a metered call. All values are cents,
// rounded to 6 fractional digits.
type CostBreakdown struct {
	PromptCostCents     float64 `json:"prompt_cost_cents"`
	CompletionCostCents float64 `json:"completion_cost_cents"`
	TotalCostCents      float64 `json:"total_cost_cents"`
}

// Message represents a single chat message for token counting.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// EventRefs carries the identity references a usage event is attributed to.
// All fields are opaque to this service; they are recorded for auditing.
type EventRefs struct {
	AccountID    string `json:"account_id,omitempty"`
	CredentialID string `json:"credential_id,omitempty"`
	ModelID      string `json:"model_id,omitempty"`
}
