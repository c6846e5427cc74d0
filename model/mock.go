package model

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned by MockModel when no scripted step is left.
var ErrScriptExhausted = errors.New("mock model: script exhausted")

// MockStep is one scripted reply of a MockModel. Exactly one of Response,
// Err or Handler is used, in that order of precedence: Handler, Err, Response.
type MockStep struct {
	Response Response
	Err      error
	Handler  func(ctx context.Context, req Request) (Response, error)
}

// MockModel is a lightweight in-memory Model useful for tests and examples.
// It replays scripted steps in order and records every request it receives.
type MockModel struct {
	info Info

	mu       sync.Mutex
	steps    []MockStep
	requests []Request
	fallback func(ctx context.Context, req Request) (Response, error)
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string, steps ...MockStep) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      "mock",
			SupportsTools: true,
		},
		steps: steps,
	}
}

// AddText scripts a final answer.
func (m *MockModel) AddText(text string) *MockModel {
	return m.add(MockStep{Response: Response{Content: text, FinishReason: "stop"}})
}

// AddToolCalls scripts a response requesting the given calls.
func (m *MockModel) AddToolCalls(calls ...ToolCall) *MockModel {
	return m.add(MockStep{Response: Response{ToolCalls: calls, FinishReason: "tool_calls"}})
}

// AddError scripts a failing call.
func (m *MockModel) AddError(err error) *MockModel {
	return m.add(MockStep{Err: err})
}

// AddHandler scripts a call answered by fn.
func (m *MockModel) AddHandler(fn func(ctx context.Context, req Request) (Response, error)) *MockModel {
	return m.add(MockStep{Handler: fn})
}

// SetFallback answers every call made after the script is exhausted.
func (m *MockModel) SetFallback(fn func(ctx context.Context, req Request) (Response, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = fn
}

func (m *MockModel) add(step MockStep) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step)
	return m
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, cloneRequest(req))
	if len(m.steps) == 0 {
		fallback := m.fallback
		m.mu.Unlock()
		if fallback != nil {
			return fallback(ctx, req)
		}
		return Response{}, ErrScriptExhausted
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	m.mu.Unlock()

	switch {
	case step.Handler != nil:
		return step.Handler(ctx, req)
	case step.Err != nil:
		return Response{}, step.Err
	default:
		return step.Response, nil
	}
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate calls.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Remaining returns the number of unconsumed scripted steps.
func (m *MockModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps)
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

func cloneRequest(req Request) Request {
	out := req
	out.Messages = append([]Message(nil), req.Messages...)
	out.Tools = append([]ToolDefinition(nil), req.Tools...)
	return out
}

var _ Model = (*MockModel)(nil)
