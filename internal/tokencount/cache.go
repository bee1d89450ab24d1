package tokencount

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultCacheSize bounds the memo map of a CachedEstimator.
const DefaultCacheSize = 4096

// CachedEstimator memoizes another estimator's results keyed by an xxhash of
// the input text. Chat traffic repeats system prompts and tool schemas
// constantly, so the same strings get counted over and over.
//
// The cache is reset wholesale when full; counting is cheap enough that an
// occasional cold map beats tracking recency per entry.
type CachedEstimator struct {
	inner Estimator
	max   int

	mu     sync.RWMutex
	counts map[uint64]int
}

// NewCachedEstimator wraps inner with a bounded memo cache. maxEntries <= 0
// uses DefaultCacheSize.
func NewCachedEstimator(inner Estimator, maxEntries int) *CachedEstimator {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	return &CachedEstimator{
		inner:  inner,
		max:    maxEntries,
		counts: make(map[uint64]int),
	}
}

// EstimateTokens implements Estimator.
func (c *CachedEstimator) EstimateTokens(text string) int {
	key := xxhash.Sum64String(text)

	c.mu.RLock()
	n, ok := c.counts[key]
	c.mu.RUnlock()
	if ok {
		return n
	}

	n = c.inner.EstimateTokens(text)

	c.mu.Lock()
	if len(c.counts) >= c.max {
		c.counts = make(map[uint64]int, c.max)
	}
	c.counts[key] = n
	c.mu.Unlock()

	return n
}

// Len reports the number of cached entries. Used by tests.
func (c *CachedEstimator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.counts)
}
