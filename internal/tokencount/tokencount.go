// Package tokencount approximates billable token counts for free text and
// chat message sequences.
//
// The estimate is a best-effort approximation of byte-pair encoding; exact
// equivalence with any provider's tokenizer is out of scope. The one hard
// requirement is determinism: the same input yields the same count on every
// call, in every process.
package tokencount

import (
	"strings"
	"unicode/utf8"

	"gometer/internal/core"
)

// Chat format overhead, matching the OpenAI chat-markup accounting:
// every message costs a fixed header, a name costs one extra token, and a
// non-empty conversation pays a one-time wrapper cost for the reply priming.
const (
	perMessageOverhead = 4
	perNameOverhead    = 1
	wrapperOverhead    = 3
)

// Estimator is the swappable tokenization strategy. Implementations must be
// deterministic and safe for concurrent use.
type Estimator interface {
	EstimateTokens(text string) int
}

// Counter counts tokens for text and chat payloads using an Estimator.
type Counter struct {
	est Estimator
}

// NewCounter creates a Counter. A nil estimator falls back to the built-in
// heuristic.
func NewCounter(est Estimator) *Counter {
	if est == nil {
		est = HeuristicEstimator{}
	}
	return &Counter{est: est}
}

// CountText returns the approximate token count of free text.
func (c *Counter) CountText(text string) int {
	if text == "" {
		return 0
	}
	return c.est.EstimateTokens(text)
}

// CountMessages returns the approximate token count of an ordered chat
// message sequence, including per-message and wrapper overhead. An empty
// sequence counts as zero; the wrapper overhead applies only when at least
// one message exists.
func (c *Counter) CountMessages(messages []core.Message) int {
	if len(messages) == 0 {
		return 0
	}

	total := wrapperOverhead
	for _, m := range messages {
		total += perMessageOverhead
		total += c.CountText(m.Content)
		if m.Name != "" {
			total += c.CountText(m.Name) + perNameOverhead
		}
	}
	return total
}

// HeuristicEstimator approximates BPE token counts without a tokenizer model.
//
// Two signals are combined: a word-level count where long words are split into
// roughly 7-rune subwords (BPE rarely keeps longer merges), and a rune-level
// count of one token per 4 runes, which dominates for scripts written without
// spaces. The larger of the two is returned.
type HeuristicEstimator struct{}

// EstimateTokens implements Estimator.
func (HeuristicEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	wordTokens := 0
	for _, field := range strings.Fields(text) {
		runes := utf8.RuneCountInString(field)
		wordTokens += 1 + (runes-1)/7
	}

	charTokens := (utf8.RuneCountInString(text) + 3) / 4

	if charTokens > wordTokens {
		return charTokens
	}
	return wordTokens
}
