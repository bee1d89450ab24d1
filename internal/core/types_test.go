package core

import "testing"

func TestNewTokenUsage(t *testing.T) {
	tests := []struct {
		name       string
		prompt     int
		completion int
		wantTotal  int
	}{
		{"typical", 120, 48, 168},
		{"zero both", 0, 0, 0},
		{"prompt only", 512, 0, 512},
		{"completion only", 0, 64, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewTokenUsage(tt.prompt, tt.completion)
			if u.PromptTokens != tt.prompt {
				t.Errorf("PromptTokens = %d, want %d", u.PromptTokens, tt.prompt)
			}
			if u.CompletionTokens != tt.completion {
				t.Errorf("CompletionTokens = %d, want %d", u.CompletionTokens, tt.completion)
			}
			if u.TotalTokens != tt.wantTotal {
				t.Errorf("TotalTokens = %d, want %d", u.TotalTokens, tt.wantTotal)
			}
		})
	}
}

func TestPricingKinds(t *testing.T) {
	// The discriminant values are part of the wire/catalog format.
	if PricingSystem != "system" {
		t.Errorf("PricingSystem = %q, want %q", PricingSystem, "system")
	}
	if PricingExternal != "external" {
		t.Errorf("PricingExternal = %q, want %q", PricingExternal, "external")
	}
}
