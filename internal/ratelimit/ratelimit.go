// Package ratelimit implements distributed sliding-window admission control.
//
// Every quota key maps to an ordered set of (timestamp, member) entries held
// in a WindowStore. A check evicts expired entries, records the current
// attempt, and counts what remains, all inside one atomic store transaction,
// so concurrent gateway processes sharing the store never over-admit.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gometer/internal/core"
)

// FailurePolicy decides what a caller does when the window store is
// unreachable. The check still surfaces the store error either way; the
// policy only selects the accompanying decision.
type FailurePolicy string

const (
	// FailClosed denies requests while the store is unreachable.
	FailClosed FailurePolicy = "closed"
	// FailOpen admits requests while the store is unreachable.
	FailOpen FailurePolicy = "open"
)

// Decision is the outcome of one admission check. It is produced fresh per
// call and never stored.
type Decision struct {
	Allowed      bool  `json:"allowed"`
	CurrentCount int   `json:"current_count"`
	Limit        int   `json:"limit"`
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"`
}

// Options configures a Limiter.
type Options struct {
	// Policy is applied when the store is unreachable (default: FailClosed).
	Policy FailurePolicy

	// Timeout bounds each store round trip (default: 2s). The upstream call
	// must never stall behind a hung store.
	Timeout time.Duration
}

// Limiter is the sliding-window admission controller. It holds no per-key
// state of its own; all shared mutable state lives behind the WindowStore.
type Limiter struct {
	store   WindowStore
	policy  FailurePolicy
	timeout time.Duration

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// NewLimiter creates an admission controller over the given store.
func NewLimiter(store WindowStore, opts Options) *Limiter {
	policy := opts.Policy
	if policy == "" {
		policy = FailClosed
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Limiter{
		store:   store,
		policy:  policy,
		timeout: timeout,
		now:     time.Now,
	}
}

// Check records the current attempt under key and decides whether it is
// admitted to a window of the given size and limit.
//
// A limit of 0 always denies. count == limit is still allowed; count ==
// limit+1 is the first denial. The attempt is recorded even when denied, so
// hammering a saturated key does not get free retries against the same
// window.
//
// When the store transaction fails, Check returns a Decision resolved by the
// limiter's FailurePolicy together with a store_unavailable error; it never
// hides the failure inside a plain allow/deny.
func (l *Limiter) Check(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	if window <= 0 {
		return Decision{}, core.NewInvalidQuotaError(fmt.Sprintf("window must be positive, got %s", window))
	}
	if limit < 0 {
		return Decision{}, core.NewInvalidQuotaError(fmt.Sprintf("limit must be non-negative, got %d", limit))
	}
	if key == "" {
		return Decision{}, core.NewInvalidQuotaError("quota key must not be empty")
	}

	now := l.now()

	// Member values must stay unique across concurrent callers that land in
	// the same millisecond.
	member := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())

	slideCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.store.Slide(slideCtx, key, now, window, member)
	if err != nil {
		return Decision{
			Allowed: l.policy == FailOpen,
			Limit:   limit,
		}, core.NewStoreUnavailableError("window store transaction failed", err)
	}

	d := Decision{
		Allowed:      res.Count <= int64(limit),
		CurrentCount: int(res.Count),
		Limit:        limit,
	}
	if !d.Allowed {
		d.RetryAfterMs = retryAfter(now, res.OldestUnixMilli, window)
	}
	return d, nil
}

// retryAfter estimates when the oldest surviving entry will slide out of the
// window. Clock skew between processes is assumed bounded and is not
// compensated for.
func retryAfter(now time.Time, oldestUnixMilli int64, window time.Duration) int64 {
	if oldestUnixMilli <= 0 {
		return window.Milliseconds()
	}
	age := now.UnixMilli() - oldestUnixMilli
	remaining := window.Milliseconds() - age
	if remaining < 0 {
		return 0
	}
	return remaining
}
