package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/wikiagent/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_Generate_ToolCalls(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "calculator", "arguments": "{\"expression\":\"2+2\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})

	resp, err := m.Generate(context.Background(), model.Request{
		Instructions: "be brief",
		Messages: []model.Message{
			model.UserMessage("what is 2+2"),
			model.AssistantMessage("", model.ToolCall{ID: "call_0", Type: "function", Function: model.ToolCallFunction{Name: "calculator", Arguments: `{"expression":"1+1"}`}}),
			model.ToolMessage("call_0", "calculator", "1+1 = 2"),
		},
		Tools: []model.ToolDefinition{
			model.NewToolDefinition("calculator", "Evaluate arithmetic", map[string]any{"type": "object"}),
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "calculator", resp.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"expression":"2+2"}`, resp.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "tool", msgs[3].(map[string]any)["role"])
	assert.Equal(t, "call_0", msgs[3].(map[string]any)["tool_call_id"])
	assert.Len(t, body["tools"], 1)
}

func TestModel_Generate_StatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})
	_, err := m.Generate(context.Background(), model.Request{Messages: []model.Message{model.UserMessage("hi")}})

	var pe *model.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.True(t, pe.Transient())
	assert.Equal(t, "openai", pe.Provider)
}

func TestEmbedder_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		// Out of order on purpose.
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0, 1, 0]},
				{"object": "embedding", "index": 0, "embedding": [1, 0, 0]}
			],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	e := NewEmbedder(func(o *EmbedderOptions) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
		o.Dimensions = 3
	})
	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, vecs)
	assert.Equal(t, 3, e.Dimensions())
}

func TestModel_Info(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "test" })
	assert.Equal(t, "openai", m.Info().Provider)
	assert.Equal(t, "gpt-4o-mini", m.Info().Name)
}
