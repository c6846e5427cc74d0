package anthropic

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

func TestModel_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-sonnet-20241022",
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "tu_1", "name": "weather_current", "input": {"location": "Berlin"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 7, "output_tokens": 3}
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
			model.UserMessage("weather in Berlin and Paris?"),
			model.AssistantMessage("",
				model.ToolCall{ID: "a", Function: model.ToolCallFunction{Name: "weather_current", Arguments: `{"location":"Paris"}`}},
				model.ToolCall{ID: "b", Function: model.ToolCallFunction{Name: "weather_current", Arguments: `{"location":"Rome"}`}},
			),
			model.ToolMessage("a", "weather_current", "sunny"),
			model.ToolMessage("b", "weather_current", "rain"),
		},
		Tools: []model.ToolDefinition{
			model.NewToolDefinition("weather_current", "Current weather", map[string]any{
				"type":       "object",
				"properties": map[string]any{"location": map[string]any{"type": "string"}},
				"required":   []string{"location"},
			}),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Let me check.", resp.Content)
	assert.Equal(t, "tool_use", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "tu_1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"location":"Berlin"}`, resp.ToolCalls[0].Function.Arguments)
	assert.Equal(t, 10, resp.Usage.TotalTokens)

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 3, "both tool results share one user message")
	results := msgs[2].(map[string]any)["content"].([]any)
	assert.Len(t, results, 2)
	assert.NotEmpty(t, body["system"])
}

func TestModel_Generate_WithoutToolsFlattensToolTurns(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_2",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-sonnet-20241022",
			"content": [{"type": "text", "text": "It is sunny in Paris."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 9, "output_tokens": 6}
		}`))
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})
	resp, err := m.Generate(context.Background(), model.Request{
		Instructions: "answer from the tool results",
		Messages: []model.Message{
			model.UserMessage("weather in Paris?"),
			model.AssistantMessage("",
				model.ToolCall{ID: "a", Function: model.ToolCallFunction{Name: "weather_current", Arguments: `{"location":"Paris"}`}},
			),
			model.ToolMessage("a", "weather_current", "sunny"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "It is sunny in Paris.", resp.Content)

	assert.Nil(t, body["tools"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 3)
	for _, raw := range msgs {
		for _, block := range raw.(map[string]any)["content"].([]any) {
			assert.Equal(t, "text", block.(map[string]any)["type"])
		}
	}
	call := msgs[1].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Contains(t, call["text"], "weather_current")
	result := msgs[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "[weather_current result] sunny", result["text"])
}

func TestModel_Generate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`))
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})
	_, err := m.Generate(context.Background(), model.Request{Messages: []model.Message{model.UserMessage("hi")}})

	var pe *model.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)
	assert.True(t, pe.Transient())
}
