package usage

import "testing"

func TestExtractTokenUsage_OpenAIShape(t *testing.T) {
	body := []byte(`{
		"id": "chatcmpl-abc123",
		"usage": {
			"prompt_tokens": 120,
			"completion_tokens": 48,
			"total_tokens": 168
		}
	}`)

	usage, raw, ok := ExtractTokenUsage(body)
	if !ok {
		t.Fatal("expected usage to be reported")
	}
	if usage.PromptTokens != 120 || usage.CompletionTokens != 48 || usage.TotalTokens != 168 {
		t.Errorf("usage = %+v", usage)
	}
	if len(raw) != 0 {
		t.Errorf("raw = %v, want empty", raw)
	}
}

func TestExtractTokenUsage_AnthropicShape(t *testing.T) {
	body := []byte(`{
		"id": "msg_xyz",
		"usage": {
			"input_tokens": 200,
			"output_tokens": 75,
			"cache_read_input_tokens": 150
		}
	}`)

	usage, raw, ok := ExtractTokenUsage(body)
	if !ok {
		t.Fatal("expected usage to be reported")
	}
	if usage.PromptTokens != 200 || usage.CompletionTokens != 75 {
		t.Errorf("usage = %+v", usage)
	}
	if usage.TotalTokens != 275 {
		t.Errorf("TotalTokens = %d, want derived 275", usage.TotalTokens)
	}
	if raw["cache_read_input_tokens"] != int64(150) {
		t.Errorf("raw = %v, want cache_read_input_tokens preserved", raw)
	}
}

func TestExtractTokenUsage_DetailObjectsFlattened(t *testing.T) {
	body := []byte(`{
		"usage": {
			"prompt_tokens": 500,
			"completion_tokens": 300,
			"prompt_tokens_details": {"cached_tokens": 200},
			"completion_tokens_details": {"reasoning_tokens": 100, "note": "x"}
		}
	}`)

	_, raw, ok := ExtractTokenUsage(body)
	if !ok {
		t.Fatal("expected usage to be reported")
	}
	if raw["prompt_tokens_details.cached_tokens"] != int64(200) {
		t.Errorf("raw = %v, want cached_tokens flattened", raw)
	}
	if raw["completion_tokens_details.reasoning_tokens"] != int64(100) {
		t.Errorf("raw = %v, want reasoning_tokens flattened", raw)
	}
	if _, present := raw["completion_tokens_details.note"]; present {
		t.Error("non-numeric detail fields should be dropped")
	}
}

func TestExtractTokenUsage_NotReported(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no usage key", `{"id": "x"}`},
		{"usage not object", `{"usage": 5}`},
		{"usage empty object", `{"usage": {}}`},
		{"invalid json", `{"usage": `},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := ExtractTokenUsage([]byte(tt.body))
			if ok {
				t.Error("expected ok=false")
			}
		})
	}
}

func TestExtractTokenUsage_PartialCounts(t *testing.T) {
	// Anthropic reports only output tokens on some stream closes.
	usage, _, ok := ExtractTokenUsage([]byte(`{"usage": {"output_tokens": 42}}`))
	if !ok {
		t.Fatal("expected usage to be reported")
	}
	if usage.PromptTokens != 0 || usage.CompletionTokens != 42 || usage.TotalTokens != 42 {
		t.Errorf("usage = %+v", usage)
	}
}
