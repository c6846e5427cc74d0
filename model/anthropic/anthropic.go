// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/wikiagent/model"
)

// Options configures the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.1,
		MaxTokens:   4096,
	}
}

// NewModel creates a new Anthropic model using the official client. The SDK's
// own retries are disabled; compose with model.WithRetry instead.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements model.Model with a single Messages API call.
func (m *Model) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Messages, len(req.Tools) == 0),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}
	if system := systemBlocks(req); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.Response{}, wrapError(err)
	}

	out := model.Response{
		ID:           resp.ID,
		FinishReason: "stop",
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
	if resp.StopReason != "" {
		out.FinishReason = string(resp.StopReason)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := "{}"
			if toolBlock.Input != nil {
				if b, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(b)
				}
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:   toolBlock.ID,
				Type: "function",
				Function: model.ToolCallFunction{
					Name:      toolBlock.Name,
					Arguments: args,
				},
			})
		}
	}
	out.Content = text.String()
	return out, nil
}

// systemBlocks collects the instructions and any system messages.
func systemBlocks(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, msg := range req.Messages {
		if msg.Role == model.RoleSystem && msg.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Content})
		}
	}
	return blocks
}

// buildMessages converts normalized messages to the Anthropic format.
// Consecutive tool results are merged into one user message, as the API
// requires all results for a tool_use turn in the following user turn.
//
// The API rejects tool_use and tool_result blocks in a request without tool
// definitions, so with flatten set tool calls and results are rendered as
// plain text instead.
func buildMessages(msgs []model.Message, flatten bool) []anthropic.MessageParam {
	var (
		messages []anthropic.MessageParam
		results  []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(results) > 0 {
			messages = append(messages, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range msgs {
		switch msg.Role {
		case model.RoleSystem:
			continue
		case model.RoleTool:
			if flatten {
				results = append(results, anthropic.NewTextBlock(fmt.Sprintf("[%s result] %s", msg.Name, msg.Content)))
			} else {
				results = append(results, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			}
			continue
		}
		flush()

		switch msg.Role {
		case model.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				if flatten {
					content = append(content, anthropic.NewTextBlock(fmt.Sprintf("[called %s %s]", tc.Function.Name, tc.Function.Arguments)))
					continue
				}
				var input any = map[string]any{}
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
						input = tc.Function.Arguments
					}
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		default:
			if msg.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}
	flush()
	return messages
}

// buildTools converts tool definitions to the Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if params := tool.Function.Parameters; params != nil {
			if properties, ok := params["properties"]; ok {
				inputSchema.Properties = properties
			}
			inputSchema.Required = requiredFields(params["required"])
		}
		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Function.Name)
		if out[i].OfTool != nil && tool.Function.Description != "" {
			out[i].OfTool.Description = anthropic.String(tool.Function.Description)
		}
	}
	return out
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// wrapError maps SDK API errors to model.ProviderError.
func wrapError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("anthropic: %w", err)
	}
	pe := &model.ProviderError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Err: err}
	if apiErr.Response != nil {
		if secs, convErr := strconv.Atoi(apiErr.Response.Header.Get("Retry-After")); convErr == nil {
			pe.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return pe
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}

var _ model.Model = (*Model)(nil)
