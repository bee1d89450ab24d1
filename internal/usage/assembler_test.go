package usage

import (
	"testing"
	"time"

	"gometer/internal/core"
)

func TestAssembleEvent(t *testing.T) {
	usage := core.NewTokenUsage(150, 42)
	cost := core.CostBreakdown{
		PromptCostCents:     0.0375,
		CompletionCostCents: 0.063,
		TotalCostCents:      0.1005,
	}
	refs := core.EventRefs{
		AccountID:    "acct-9",
		CredentialID: "key-3",
		ModelID:      "gpt-4o",
	}

	ev := AssembleEvent("req-1", "/v1/chat/completions", usage, cost, 840, true, "", refs)

	if ev.ID == "" {
		t.Error("event ID should be generated")
	}
	if ev.RequestID != "req-1" || ev.Endpoint != "/v1/chat/completions" {
		t.Errorf("request fields = %q %q", ev.RequestID, ev.Endpoint)
	}
	if ev.AccountID != "acct-9" || ev.CredentialID != "key-3" || ev.Model != "gpt-4o" {
		t.Errorf("refs not carried: %+v", ev)
	}
	if ev.PromptTokens != 150 || ev.CompletionTokens != 42 || ev.TotalTokens != 192 {
		t.Errorf("token fields = %d %d %d", ev.PromptTokens, ev.CompletionTokens, ev.TotalTokens)
	}
	if ev.TotalCostCents != 0.1005 {
		t.Errorf("TotalCostCents = %v", ev.TotalCostCents)
	}
	if ev.DurationMs != 840 || !ev.Succeeded || ev.ErrorText != "" {
		t.Errorf("outcome fields = %d %v %q", ev.DurationMs, ev.Succeeded, ev.ErrorText)
	}
	if time.Since(ev.Timestamp) > time.Minute {
		t.Errorf("Timestamp %v not recent", ev.Timestamp)
	}
}

func TestAssembleEvent_FailedCallStillMetered(t *testing.T) {
	ev := AssembleEvent("req-2", "/v1/chat/completions", core.NewTokenUsage(90, 0),
		core.CostBreakdown{PromptCostCents: 0.0225, TotalCostCents: 0.0225},
		120, false, "upstream timeout", core.EventRefs{AccountID: "acct-9"})

	if ev.Succeeded {
		t.Error("Succeeded should be false")
	}
	if ev.ErrorText != "upstream timeout" {
		t.Errorf("ErrorText = %q", ev.ErrorText)
	}
	// Tokens were spent on the prompt even though the call failed.
	if ev.PromptTokens != 90 || ev.TotalCostCents != 0.0225 {
		t.Errorf("failed call not priced: %+v", ev)
	}
}

func TestAssembleEvent_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ev := AssembleEvent("req", "/v1/x", core.TokenUsage{}, core.CostBreakdown{}, 0, true, "", core.EventRefs{})
		if seen[ev.ID] {
			t.Fatalf("duplicate event ID %q", ev.ID)
		}
		seen[ev.ID] = true
	}
}
