package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStore_SlideCountsAndOldest(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.UnixMilli(1_000_000)
	window := time.Minute

	res, err := s.Slide(ctx, "k", base, window, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 1 || res.OldestUnixMilli != base.UnixMilli() {
		t.Errorf("got %+v, want count 1 and oldest %d", res, base.UnixMilli())
	}

	res, err = s.Slide(ctx, "k", base.Add(time.Second), window, "m2")
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 {
		t.Errorf("Count = %d, want 2", res.Count)
	}
	if res.OldestUnixMilli != base.UnixMilli() {
		t.Errorf("OldestUnixMilli = %d, want first entry %d", res.OldestUnixMilli, base.UnixMilli())
	}
}

func TestMemoryStore_EvictsExpiredScores(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.UnixMilli(1_000_000)
	window := time.Second

	if _, err := s.Slide(ctx, "k", base, window, "old"); err != nil {
		t.Fatal(err)
	}

	// Exactly window later: the old entry's score equals now-window, the
	// inclusive end of the evicted range.
	res, err := s.Slide(ctx, "k", base.Add(window), window, "new")
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 1 {
		t.Errorf("Count = %d, want 1 after boundary eviction", res.Count)
	}
	if res.OldestUnixMilli != base.Add(window).UnixMilli() {
		t.Errorf("OldestUnixMilli = %d, want the new entry", res.OldestUnixMilli)
	}
}

func TestMemoryStore_BoundaryEvictionOnLiveKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.UnixMilli(1_000_000)
	window := time.Second

	if _, err := s.Slide(ctx, "k", base, window, "first"); err != nil {
		t.Fatal(err)
	}
	// The mid-window check refreshes the key TTL, so the boundary check below
	// exercises score eviction rather than whole-key expiry.
	if _, err := s.Slide(ctx, "k", base.Add(500*time.Millisecond), window, "second"); err != nil {
		t.Fatal(err)
	}

	res, err := s.Slide(ctx, "k", base.Add(window), window, "third")
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 {
		t.Errorf("Count = %d, want 2: entry recorded exactly one window ago must be evicted", res.Count)
	}
	if want := base.Add(500 * time.Millisecond).UnixMilli(); res.OldestUnixMilli != want {
		t.Errorf("OldestUnixMilli = %d, want surviving entry %d", res.OldestUnixMilli, want)
	}
}

func TestMemoryStore_KeyExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.UnixMilli(1_000_000)
	window := time.Second

	if _, err := s.Slide(ctx, "k", base, window, "m"); err != nil {
		t.Fatal(err)
	}
	if got := s.Len("k", base.Add(500*time.Millisecond)); got != 1 {
		t.Errorf("Len before expiry = %d, want 1", got)
	}
	// The key's own TTL is one window; an abandoned key reads as empty.
	if got := s.Len("k", base.Add(window)); got != 0 {
		t.Errorf("Len after expiry = %d, want 0", got)
	}
}

func TestMemoryStore_SameMillisecondMembers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.UnixMilli(1_000_000)

	for i := 0; i < 10; i++ {
		res, err := s.Slide(ctx, "k", now, time.Minute, fmt.Sprintf("m-%d", i))
		if err != nil {
			t.Fatal(err)
		}
		if res.Count != int64(i+1) {
			t.Fatalf("Count = %d, want %d: same-millisecond entries must not collide", res.Count, i+1)
		}
	}
}

func TestMemoryStore_CloseResets(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.UnixMilli(1_000_000)

	if _, err := s.Slide(ctx, "k", now, time.Minute, "m"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if got := s.Len("k", now); got != 0 {
		t.Errorf("Len after Close = %d, want 0", got)
	}
}
