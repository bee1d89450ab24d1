package usage

import (
	"fmt"
	"math"

	"gometer/internal/core"
)

// costDecimals is the fixed-point precision of every cost field: 6 fractional
// digits, in cents.
const costDecimals = 1e6

// CalculateCost converts token counts and pricing metadata into a cost
// breakdown.
//
// External pricing charges the user-set rate as-is; it is already the full
// billable rate. System pricing charges the base rate inflated by the markup
// percentage. Rates are cents per 1000 tokens.
//
// Each of the three output fields is rounded to 6 fractional digits
// independently, half away from zero, and the total is the sum of the two
// rounded sides, so TotalCostCents == PromptCostCents + CompletionCostCents
// holds exactly.
func CalculateCost(usage core.TokenUsage, pricing core.ModelPricing) (core.CostBreakdown, error) {
	if usage.PromptTokens < 0 {
		return core.CostBreakdown{}, core.NewInvalidUsageError(fmt.Sprintf("prompt tokens must be non-negative, got %d", usage.PromptTokens))
	}
	if usage.CompletionTokens < 0 {
		return core.CostBreakdown{}, core.NewInvalidUsageError(fmt.Sprintf("completion tokens must be non-negative, got %d", usage.CompletionTokens))
	}

	var promptRate, completionRate float64
	switch pricing.Kind {
	case core.PricingExternal:
		promptRate = pricing.PromptCostPerKTokenCents
		completionRate = pricing.CompletionCostPerKTokenCents
	case core.PricingSystem:
		markup := 1 + pricing.MarkupPercent/100
		promptRate = pricing.BasePromptCostPerKTokenCents * markup
		completionRate = pricing.BaseCompletionCostPerKTokenCents * markup
	default:
		return core.CostBreakdown{}, core.NewUnknownPricingError(fmt.Sprintf("unknown pricing kind %q", pricing.Kind))
	}

	promptCost := round6(float64(usage.PromptTokens) / 1000 * promptRate)
	completionCost := round6(float64(usage.CompletionTokens) / 1000 * completionRate)

	return core.CostBreakdown{
		PromptCostCents:     promptCost,
		CompletionCostCents: completionCost,
		TotalCostCents:      round6(promptCost + completionCost),
	}, nil
}

// round6 rounds to 6 fractional digits, half away from zero.
func round6(v float64) float64 {
	return math.Round(v*costDecimals) / costDecimals
}
