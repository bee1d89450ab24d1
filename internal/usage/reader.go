package usage

import (
	"context"
	"time"
)

// SummaryQuery specifies the query parameters for usage data retrieval.
type SummaryQuery struct {
	AccountID string    // Optional exact-match account filter
	Model     string    // Optional exact-match model filter
	StartDate time.Time // Inclusive start (day precision)
	EndDate   time.Time // Inclusive end (day precision)
	Interval  string    // "daily", "weekly", "monthly", "yearly"
}

// Summary holds aggregated usage statistics over a time period.
type Summary struct {
	TotalRequests   int     `json:"total_requests"`
	TotalPrompt     int64   `json:"total_prompt_tokens"`
	TotalCompletion int64   `json:"total_completion_tokens"`
	TotalTokens     int64   `json:"total_tokens"`
	TotalCostCents  float64 `json:"total_cost_cents"`
	FailedRequests  int     `json:"failed_requests"`
}

// PeriodUsage holds usage statistics for a single period.
// Date holds the period label: YYYY-MM-DD for daily, YYYY-Www for weekly,
// YYYY-MM for monthly, or YYYY for yearly intervals.
type PeriodUsage struct {
	Date             string  `json:"date"`
	Requests         int     `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	CostCents        float64 `json:"cost_cents"`
}

// Reader provides read access to recorded usage events.
type Reader interface {
	// GetSummary returns aggregated usage statistics for the given query.
	// If both StartDate and EndDate are zero, returns all-time statistics.
	GetSummary(ctx context.Context, q SummaryQuery) (*Summary, error)

	// GetPeriodUsage returns usage statistics grouped by the specified interval.
	// If both StartDate and EndDate are zero, returns all available data.
	GetPeriodUsage(ctx context.Context, q SummaryQuery) ([]PeriodUsage, error)
}
