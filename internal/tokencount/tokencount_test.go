package tokencount

import (
	"strings"
	"testing"

	"gometer/internal/core"
)

func TestCountText_Empty(t *testing.T) {
	c := NewCounter(nil)
	if got := c.CountText(""); got != 0 {
		t.Errorf("CountText(\"\") = %d, want 0", got)
	}
}

func TestCountText_Deterministic(t *testing.T) {
	c := NewCounter(nil)
	inputs := []string{
		"hi",
		"The quick brown fox jumps over the lazy dog.",
		strings.Repeat("tokenization ", 100),
		"内部トークンの推定は決定的でなければならない",
	}

	for _, in := range inputs {
		first := c.CountText(in)
		for i := 0; i < 5; i++ {
			if got := c.CountText(in); got != first {
				t.Fatalf("CountText(%q) returned %d then %d", in, first, got)
			}
		}
	}
}

func TestCountText_GrowsWithInput(t *testing.T) {
	c := NewCounter(nil)

	short := c.CountText("one two three")
	long := c.CountText(strings.Repeat("one two three ", 50))
	if long <= short {
		t.Errorf("longer text counted %d <= shorter text %d", long, short)
	}
}

func TestHeuristicEstimator_WordSplitting(t *testing.T) {
	est := HeuristicEstimator{}

	tests := []struct {
		text string
		want int
	}{
		{"hi", 1},
		// rune signal dominates typical prose: 11 runes -> 3
		{"hello world", 3},
		{"internationali", 4},
		// word signal dominates runs of tiny words: 6 words vs 11 runes
		{"a b c d e f", 6},
		// unspaced scripts fall back to the rune signal: 9 runes -> 3
		{"東京都内の天気予報", 3},
	}

	for _, tt := range tests {
		if got := est.EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestCountMessages_Empty(t *testing.T) {
	c := NewCounter(nil)
	if got := c.CountMessages(nil); got != 0 {
		t.Errorf("CountMessages(nil) = %d, want 0", got)
	}
	if got := c.CountMessages([]core.Message{}); got != 0 {
		t.Errorf("CountMessages([]) = %d, want 0", got)
	}
}

func TestCountMessages_SingleMessage(t *testing.T) {
	c := NewCounter(nil)

	// One message costs tokens(content) + 4, plus the 3-token wrapper.
	content := "hi"
	want := c.CountText(content) + perMessageOverhead + wrapperOverhead

	got := c.CountMessages([]core.Message{{Role: "user", Content: content}})
	if got != want {
		t.Errorf("CountMessages = %d, want %d", got, want)
	}
}

func TestCountMessages_NameOverhead(t *testing.T) {
	c := NewCounter(nil)

	without := c.CountMessages([]core.Message{{Role: "user", Content: "hello there"}})
	with := c.CountMessages([]core.Message{{Role: "user", Content: "hello there", Name: "alice"}})

	wantDelta := c.CountText("alice") + perNameOverhead
	if with-without != wantDelta {
		t.Errorf("name overhead = %d, want %d", with-without, wantDelta)
	}
}

func TestCountMessages_WrapperAppliedOnce(t *testing.T) {
	c := NewCounter(nil)

	one := c.CountMessages([]core.Message{{Role: "user", Content: "hi"}})
	two := c.CountMessages([]core.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hi"},
	})

	// The second message adds its own content + header but no second wrapper.
	wantDelta := c.CountText("hi") + perMessageOverhead
	if two-one != wantDelta {
		t.Errorf("second message delta = %d, want %d", two-one, wantDelta)
	}
}

func TestCachedEstimator_MatchesInner(t *testing.T) {
	inner := HeuristicEstimator{}
	cached := NewCachedEstimator(inner, 16)

	inputs := []string{"", "hi", "the quick brown fox", strings.Repeat("x", 100)}
	for _, in := range inputs {
		want := inner.EstimateTokens(in)
		if got := cached.EstimateTokens(in); got != want {
			t.Errorf("cached EstimateTokens(%q) = %d, want %d", in, got, want)
		}
		// Second call served from cache must agree.
		if got := cached.EstimateTokens(in); got != want {
			t.Errorf("cache hit for %q = %d, want %d", in, got, want)
		}
	}
}

// countingEstimator records how many times it is invoked.
type countingEstimator struct {
	calls int
}

func (e *countingEstimator) EstimateTokens(text string) int {
	e.calls++
	return len(text)
}

func TestCachedEstimator_AvoidsRecount(t *testing.T) {
	inner := &countingEstimator{}
	cached := NewCachedEstimator(inner, 16)

	for i := 0; i < 10; i++ {
		cached.EstimateTokens("system prompt")
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
}

func TestCachedEstimator_ResetWhenFull(t *testing.T) {
	inner := &countingEstimator{}
	cached := NewCachedEstimator(inner, 2)

	cached.EstimateTokens("a")
	cached.EstimateTokens("bb")
	cached.EstimateTokens("ccc") // triggers reset before insert

	if got := cached.Len(); got > 2 {
		t.Errorf("cache size %d exceeds bound 2", got)
	}
	// Correctness survives the reset.
	if got := cached.EstimateTokens("a"); got != 1 {
		t.Errorf("EstimateTokens(\"a\") after reset = %d, want 1", got)
	}
}
