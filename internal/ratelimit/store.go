package ratelimit

import (
	"context"
	"time"
)

// SlideResult is the outcome of one atomic sliding-window transaction.
type SlideResult struct {
	// Count is the number of entries remaining under the key after eviction
	// and after the new entry was inserted.
	Count int64

	// OldestUnixMilli is the score (timestamp, unix milliseconds) of the oldest
	// surviving entry. Since the transaction always inserts an entry, this is
	// never zero on success.
	OldestUnixMilli int64
}

// WindowStore is the capability the admission controller needs from an
// external ordered-set store. One call performs, as a single atomic
// transaction:
//
//  1. evict all entries with score in [0, now-window)
//  2. insert a new entry with score = now and the given member value
//  3. count the remaining entries
//  4. refresh the key's own expiry to the window size
//
// Partial application would corrupt quota accounting for all concurrent
// callers sharing the key, so implementations must not split these into
// independent round trips.
//
// Implementations must be safe for concurrent use.
type WindowStore interface {
	Slide(ctx context.Context, key string, now time.Time, window time.Duration, member string) (SlideResult, error)

	// Close releases any resources held by the store.
	Close() error
}
