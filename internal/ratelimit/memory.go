package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

type windowEntry struct {
	score  int64
	member string
}

type window struct {
	entries   []windowEntry
	expiresAt time.Time
}

// MemoryStore implements WindowStore with a process-local map. The whole
// Slide sequence runs under one mutex, which gives it the same atomicity
// contract as the Redis transaction. Suitable for single-process deployments
// and as the test double for the admission controller.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryStore creates an empty in-memory window store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

// Slide performs evict/insert/count/expire under a single lock.
func (s *MemoryStore) Slide(_ context.Context, key string, now time.Time, windowSize time.Duration, member string) (SlideResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil || !now.Before(w.expiresAt) {
		w = &window{}
		s.windows[key] = w
	}

	nowMs := now.UnixMilli()
	cutoff := nowMs - windowSize.Milliseconds()

	// Evict scores in [0, cutoff], matching the inclusive ZRemRangeByScore
	// bound of the Redis store. Entries are kept sorted by score, so the
	// survivors are a suffix.
	idx := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].score > cutoff
	})
	w.entries = append([]windowEntry(nil), w.entries[idx:]...)

	// Insert preserving score order. Concurrent callers in the same
	// millisecond land behind each other; member uniqueness is the caller's
	// responsibility, as with the Redis sorted set.
	pos := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].score > nowMs
	})
	w.entries = append(w.entries, windowEntry{})
	copy(w.entries[pos+1:], w.entries[pos:])
	w.entries[pos] = windowEntry{score: nowMs, member: member}

	w.expiresAt = now.Add(windowSize)

	return SlideResult{
		Count:           int64(len(w.entries)),
		OldestUnixMilli: w.entries[0].score,
	}, nil
}

// Len reports the number of live entries under key at the given time, without
// mutating the window. Used by tests.
func (s *MemoryStore) Len(key string, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil || !now.Before(w.expiresAt) {
		return 0
	}
	return len(w.entries)
}

// Close releases the store's state.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = make(map[string]*window)
	return nil
}
