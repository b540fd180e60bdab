package ai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *OpenRouterClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewOpenRouterClient(OpenRouterConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Title:   "TeachMate",
	})
	require.NoError(t, err)
	return client
}

func TestChatMapsToolCalls(t *testing.T) {
	client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "TeachMate", r.Header.Get("X-Title"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "anthropic/claude-3.5-sonnet", body["model"])
		require.Len(t, body["tools"], 1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{"id": "call-1", "type": "function", "function": {"name": "get_student_progress", "arguments": "{}"}}]
				}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})

	resp, err := client.Chat(t.Context(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "How am I doing?"}},
		Tools:    []Tool{{Name: "get_student_progress", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)
	require.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "get_student_progress", resp.ToolCalls[0].Name)
}

func TestChatReturnsErrorOnEmptyChoices(t *testing.T) {
	client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-2","object":"chat.completion","choices":[]}`))
	})

	_, err := client.Chat(t.Context(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
}

func TestEmbed(t *testing.T) {
	client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.25,0.5]}],"model":"openai/text-embedding-3-small"}`))
	})

	vector, err := client.Embed(t.Context(), "fractions")
	require.NoError(t, err)
	require.Equal(t, []float32{0.25, 0.5}, vector)
}

func TestNewOpenRouterClientRequiresKey(t *testing.T) {
	_, err := NewOpenRouterClient(OpenRouterConfig{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestDecodeJSON(t *testing.T) {
	schema := jsonschema.MustCompileString("grade.json", `{
		"type": "object",
		"required": ["marks"],
		"properties": {"marks": {"type": "number"}}
	}`)

	type grade struct {
		Marks float64 `json:"marks"`
	}

	got, err := DecodeJSON[grade]("Here you go:\n```json\n{\"marks\": 2}\n```", schema)
	require.NoError(t, err)
	require.Equal(t, 2.0, got.Marks)

	_, err = DecodeJSON[grade](`{"marks": "two"}`, schema)
	require.ErrorIs(t, err, ErrMalformedJSON)

	_, err = DecodeJSON[grade]("no json here", nil)
	require.ErrorIs(t, err, ErrNoJSON)
}
