// Package server provides HTTP handlers and server setup for the metering service.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"gometer/internal/core"
	"gometer/internal/metrics"
	"gometer/internal/plan"
	"gometer/internal/pricing"
	"gometer/internal/ratelimit"
	"gometer/internal/tokencount"
	"gometer/internal/usage"
)

// Handler holds the HTTP handlers and their collaborators.
type Handler struct {
	limiter *ratelimit.Limiter
	plans   plan.Resolver
	counter *tokencount.Counter
	pricing pricing.Resolver
	logger  usage.LoggerInterface
	reader  usage.Reader
}

// NewHandler creates a new handler. reader may be nil when usage tracking
// is disabled; the summary endpoint then reports 404.
func NewHandler(limiter *ratelimit.Limiter, plans plan.Resolver, counter *tokencount.Counter,
	pricingResolver pricing.Resolver, logger usage.LoggerInterface, reader usage.Reader) *Handler {
	return &Handler{
		limiter: limiter,
		plans:   plans,
		counter: counter,
		pricing: pricingResolver,
		logger:  logger,
		reader:  reader,
	}
}

// AdmissionRequest is the body of POST /v1/admission/check.
// Either an explicit {key, window_ms, limit} triple or an account_id
// resolved through the plan catalog.
type AdmissionRequest struct {
	Key       string `json:"key"`
	WindowMs  int64  `json:"window_ms"`
	Limit     int64  `json:"limit"`
	AccountID string `json:"account_id"`
}

// AdmissionResponse reports the admission decision for one attempt.
type AdmissionResponse struct {
	Allowed      bool   `json:"allowed"`
	CurrentCount int    `json:"current_count"`
	Limit        int    `json:"limit"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
	Degraded     bool   `json:"degraded,omitempty"`
	Plan         string `json:"plan,omitempty"`
}

// CheckAdmission handles POST /v1/admission/check.
func (h *Handler) CheckAdmission(c echo.Context) error {
	var req AdmissionRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidQuotaError("invalid request body: "+err.Error()))
	}

	key := req.Key
	window := time.Duration(req.WindowMs) * time.Millisecond
	limit := int(req.Limit)
	planID := ""

	if req.AccountID != "" {
		if h.plans == nil {
			return handleError(c, core.NewNotFoundError("no plan catalog configured"))
		}
		p, ok := h.plans.Resolve(req.AccountID)
		if !ok {
			return handleError(c, core.NewNotFoundError("no plan for account "+req.AccountID))
		}
		key = p.QuotaKey(req.AccountID)
		window = p.Window
		limit = int(p.Limit)
		planID = p.ID
	}

	start := time.Now()
	decision, err := h.limiter.Check(c.Request().Context(), key, window, limit)
	metrics.ObserveWindowStore(start)

	if err != nil {
		if core.IsKind(err, core.ErrorKindStoreUnavailable) && decision.Allowed {
			// Fail-open: serve the degraded decision instead of an error.
			metrics.AdmissionDecisions.WithLabelValues("error").Inc()
			c.Logger().Warn("admission check degraded: ", err)
			return c.JSON(http.StatusOK, AdmissionResponse{
				Allowed:  true,
				Limit:    decision.Limit,
				Degraded: true,
				Plan:     planID,
			})
		}
		if core.IsKind(err, core.ErrorKindStoreUnavailable) {
			metrics.AdmissionDecisions.WithLabelValues("error").Inc()
		}
		return handleError(c, err)
	}

	outcome := "denied"
	if decision.Allowed {
		outcome = "allowed"
	}
	metrics.AdmissionDecisions.WithLabelValues(outcome).Inc()

	return c.JSON(http.StatusOK, AdmissionResponse{
		Allowed:      decision.Allowed,
		CurrentCount: decision.CurrentCount,
		Limit:        decision.Limit,
		RetryAfterMs: decision.RetryAfterMs,
		Plan:         planID,
	})
}

// MeterRequest is the body of POST /v1/usage/events. ResponseBody carries the
// raw upstream response JSON; token counts are extracted from it when present
// and estimated from Messages and CompletionText otherwise.
type MeterRequest struct {
	RequestID      string          `json:"request_id"`
	Endpoint       string          `json:"endpoint"`
	Model          string          `json:"model"`
	AccountID      string          `json:"account_id"`
	CredentialID   string          `json:"credential_id"`
	DurationMs     int64           `json:"duration_ms"`
	Succeeded      *bool           `json:"succeeded"`
	ErrorText      string          `json:"error_text"`
	ResponseBody   json.RawMessage `json:"response_body"`
	Messages       []core.Message  `json:"messages"`
	CompletionText string          `json:"completion_text"`
}

// MeterResponse acknowledges a metered call.
type MeterResponse struct {
	EventID string             `json:"event_id"`
	Usage   core.TokenUsage    `json:"usage"`
	Cost    core.CostBreakdown `json:"cost"`
	Counted bool               `json:"counted"`
}

// MeterUsage handles POST /v1/usage/events.
func (h *Handler) MeterUsage(c echo.Context) error {
	var req MeterRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidUsageError("invalid request body: "+err.Error()))
	}
	if req.Model == "" {
		return handleError(c, core.NewInvalidUsageError("model is required"))
	}
	if req.RequestID == "" {
		return handleError(c, core.NewInvalidUsageError("request_id is required"))
	}

	// Prefer counts reported by the upstream, fall back to estimation.
	var tokenUsage core.TokenUsage
	var rawData map[string]any
	reported := false
	if len(req.ResponseBody) > 0 {
		tokenUsage, rawData, reported = usage.ExtractTokenUsage(req.ResponseBody)
	}
	if !reported {
		promptTokens := h.counter.CountMessages(req.Messages)
		completionTokens := h.counter.CountText(req.CompletionText)
		tokenUsage = core.NewTokenUsage(promptTokens, completionTokens)
	}

	modelPricing, ok := h.pricing.Resolve(req.Model)
	if !ok {
		return handleError(c, core.NewNotFoundError("no pricing for model "+req.Model))
	}

	cost, err := usage.CalculateCost(tokenUsage, modelPricing)
	if err != nil {
		return handleError(c, err)
	}

	succeeded := true
	if req.Succeeded != nil {
		succeeded = *req.Succeeded
	}

	event := usage.AssembleEvent(req.RequestID, req.Endpoint, tokenUsage, cost,
		req.DurationMs, succeeded, req.ErrorText, core.EventRefs{
			AccountID:    req.AccountID,
			CredentialID: req.CredentialID,
			ModelID:      req.Model,
		})
	event.RawData = rawData
	h.logger.Write(event)

	metrics.MeteredTokens.WithLabelValues("prompt").Add(float64(tokenUsage.PromptTokens))
	metrics.MeteredTokens.WithLabelValues("completion").Add(float64(tokenUsage.CompletionTokens))
	metrics.MeteredCostCents.Add(cost.TotalCostCents)
	result := "success"
	if !succeeded {
		result = "failure"
	}
	metrics.UsageEventsRecorded.WithLabelValues(result).Inc()

	return c.JSON(http.StatusAccepted, MeterResponse{
		EventID: event.ID,
		Usage:   tokenUsage,
		Cost:    cost,
		Counted: !reported,
	})
}

// SummaryResponse is the body of GET /v1/usage/summary.
type SummaryResponse struct {
	Summary *usage.Summary      `json:"summary"`
	Periods []usage.PeriodUsage `json:"periods,omitempty"`
}

// UsageSummary handles GET /v1/usage/summary.
func (h *Handler) UsageSummary(c echo.Context) error {
	if h.reader == nil {
		return handleError(c, core.NewNotFoundError("usage tracking is disabled"))
	}

	q := usage.SummaryQuery{
		AccountID: c.QueryParam("account_id"),
		Model:     c.QueryParam("model"),
		Interval:  c.QueryParam("interval"),
	}

	var err error
	if q.StartDate, err = parseDateParam(c.QueryParam("start")); err != nil {
		return handleError(c, core.NewInvalidUsageError("invalid start date, expected YYYY-MM-DD"))
	}
	if q.EndDate, err = parseDateParam(c.QueryParam("end")); err != nil {
		return handleError(c, core.NewInvalidUsageError("invalid end date, expected YYYY-MM-DD"))
	}

	ctx := c.Request().Context()
	summary, err := h.reader.GetSummary(ctx, q)
	if err != nil {
		return handleError(c, core.NewStoreUnavailableError("usage summary query failed", err))
	}

	resp := SummaryResponse{Summary: summary}
	if q.Interval != "" {
		periods, err := h.reader.GetPeriodUsage(ctx, q)
		if err != nil {
			return handleError(c, core.NewStoreUnavailableError("period usage query failed", err))
		}
		resp.Periods = periods
	}

	return c.JSON(http.StatusOK, resp)
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func parseDateParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}

// handleError converts metering errors to appropriate HTTP responses.
func handleError(c echo.Context, err error) error {
	var meterErr *core.MeterError
	if errors.As(err, &meterErr) {
		return c.JSON(meterErr.HTTPStatusCode(), meterErr.ToJSON())
	}

	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
