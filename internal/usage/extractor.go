package usage

import (
	"github.com/tidwall/gjson"

	"gometer/internal/core"
)

// standardUsageFields are the normalized token fields; everything else under
// the usage object is preserved as raw extended data.
var standardUsageFields = map[string]bool{
	"prompt_tokens":     true,
	"completion_tokens": true,
	"total_tokens":      true,
	"input_tokens":      true,
	"output_tokens":     true,
}

// ExtractTokenUsage pulls reported token usage out of a raw upstream response
// body. It understands both the OpenAI shape (usage.prompt_tokens /
// completion_tokens) and the Anthropic shape (usage.input_tokens /
// output_tokens).
//
// The second return value holds provider-specific extended usage fields
// (cached_tokens, reasoning_tokens, cache_read_input_tokens, ...) flattened
// one level. The boolean reports whether the upstream reported usage at all:
// when false, the caller should fall back to counting tokens itself.
func ExtractTokenUsage(body []byte) (core.TokenUsage, map[string]any, bool) {
	u := gjson.GetBytes(body, "usage")
	if !u.IsObject() {
		return core.TokenUsage{}, nil, false
	}

	prompt := u.Get("prompt_tokens")
	if !prompt.Exists() {
		prompt = u.Get("input_tokens")
	}
	completion := u.Get("completion_tokens")
	if !completion.Exists() {
		completion = u.Get("output_tokens")
	}
	if !prompt.Exists() && !completion.Exists() {
		return core.TokenUsage{}, nil, false
	}

	usage := core.NewTokenUsage(int(prompt.Int()), int(completion.Int()))

	var raw map[string]any
	u.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if standardUsageFields[name] {
			return true
		}
		switch {
		case value.IsObject():
			// Detail objects (prompt_tokens_details etc.) flatten one level.
			value.ForEach(func(k, v gjson.Result) bool {
				if v.Type == gjson.Number {
					if raw == nil {
						raw = make(map[string]any)
					}
					raw[name+"."+k.String()] = v.Int()
				}
				return true
			})
		case value.Type == gjson.Number:
			if raw == nil {
				raw = make(map[string]any)
			}
			raw[name] = value.Int()
		}
		return true
	})

	return usage, raw, true
}
