//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// API endpoints
const (
	admissionPath = "/v1/admission/check"
	eventsPath    = "/v1/usage/events"
	summaryPath   = "/v1/usage/summary"
	healthPath    = "/health"
)

// admissionRequest mirrors the admission check request body.
type admissionRequest struct {
	Key       string `json:"key,omitempty"`
	WindowMs  int64  `json:"window_ms,omitempty"`
	Limit     int64  `json:"limit,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}

// admissionResponse mirrors the admission check response body.
type admissionResponse struct {
	Allowed      bool   `json:"allowed"`
	CurrentCount int    `json:"current_count"`
	Limit        int    `json:"limit"`
	RetryAfterMs int64  `json:"retry_after_ms"`
	Degraded     bool   `json:"degraded"`
	Plan         string `json:"plan"`
}

// meterRequest mirrors the usage event ingestion request body.
type meterRequest struct {
	RequestID      string          `json:"request_id"`
	Endpoint       string          `json:"endpoint"`
	Model          string          `json:"model"`
	AccountID      string          `json:"account_id"`
	CredentialID   string          `json:"credential_id,omitempty"`
	DurationMs     int64           `json:"duration_ms"`
	Succeeded      *bool           `json:"succeeded,omitempty"`
	ErrorText      string          `json:"error_text,omitempty"`
	ResponseBody   json.RawMessage `json:"response_body,omitempty"`
	CompletionText string          `json:"completion_text,omitempty"`
}

// meterResponse mirrors the usage event ingestion response body.
type meterResponse struct {
	EventID string `json:"event_id"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Cost struct {
		PromptCostCents     float64 `json:"prompt_cost_cents"`
		CompletionCostCents float64 `json:"completion_cost_cents"`
		TotalCostCents      float64 `json:"total_cost_cents"`
	} `json:"cost"`
	Counted bool `json:"counted"`
}

// checkAdmission posts an admission check and returns the decoded response.
func checkAdmission(t *testing.T, serverURL string, payload admissionRequest) (admissionResponse, int) {
	t.Helper()

	resp := sendJSONRequest(t, serverURL+admissionPath, payload, nil)
	defer closeBody(resp)

	var decision admissionResponse
	decodeResponse(t, resp, &decision)
	return decision, resp.StatusCode
}

// meterUsage posts a usage event and returns the decoded response.
func meterUsage(t *testing.T, serverURL string, payload meterRequest) (meterResponse, int) {
	t.Helper()

	resp := sendJSONRequest(t, serverURL+eventsPath, payload, nil)
	defer closeBody(resp)

	var result meterResponse
	decodeResponse(t, resp, &result)
	return result, resp.StatusCode
}

// sendJSONRequest sends a JSON POST request and returns the response.
func sendJSONRequest(t *testing.T, url string, payload interface{}, headers map[string]string) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err, "failed to marshal request payload")

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err, "failed to create request")

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	require.NoError(t, err, "failed to send request")

	return resp
}

// getJSON sends a GET request and decodes the JSON response into out.
func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err, "failed to send GET request")
	defer closeBody(resp)

	decodeResponse(t, resp, out)
	return resp.StatusCode
}

// decodeResponse decodes the response body into out, ignoring decode errors
// for non-2xx responses whose body shape differs.
func decodeResponse(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		require.NoError(t, json.Unmarshal(body, out), "failed to decode response: %s", body)
		return
	}
	_ = json.Unmarshal(body, out)
}

// closeBody is a helper to close response body in defer statements.
func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

// boolPtr returns a pointer to b.
func boolPtr(b bool) *bool {
	return &b
}

// openAIResponseBody builds a provider response body with reported usage.
func openAIResponseBody(prompt, completion int) json.RawMessage {
	body := map[string]interface{}{
		"id":     "chatcmpl-test123",
		"object": "chat.completion",
		"model":  "gpt-4o",
		"usage": map[string]interface{}{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      prompt + completion,
		},
	}
	data, _ := json.Marshal(body)
	return data
}
