package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names the kind of trace record emitted by the agent loop.
type EventType string

const (
	// EventRoundStart is emitted before the reasoning provider is called.
	EventRoundStart EventType = "round.start"
	// EventRoundEnd is emitted after a round finished executing its tool calls.
	EventRoundEnd EventType = "round.end"
	// EventToolInvocation carries a copy of a completed ToolInvocation.
	EventToolInvocation EventType = "tool.invocation"
	// EventTurnComplete is emitted when a turn produced an answer.
	EventTurnComplete EventType = "turn.complete"
	// EventTurnFailed is emitted when a turn ended with a terminal error.
	EventTurnFailed EventType = "turn.failed"
)

// Event is a trace record for offline inspection. After emission it should be
// treated as immutable; sinks receive their own copy of any invocation.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	TurnID     string          `json:"turn_id"`
	SessionID  string          `json:"session_id,omitempty"`
	Round      int             `json:"round,omitempty"`
	ToolCalls  int             `json:"tool_calls,omitempty"`
	Invocation *ToolInvocation `json:"invocation,omitempty"`
	Partial    bool            `json:"partial,omitempty"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewEvent creates an event of the given type bound to a turn.
func NewEvent(typ EventType, turnID string) Event {
	return Event{
		ID:        NewID(),
		Type:      typ,
		TurnID:    turnID,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvocationEvent wraps a copy of inv in an EventToolInvocation event.
func NewInvocationEvent(turnID string, round int, inv ToolInvocation) Event {
	e := NewEvent(EventToolInvocation, turnID)
	e.Round = round
	c := inv.Clone()
	e.Invocation = &c
	e.Duration = inv.Duration
	e.Error = inv.Error
	return e
}

// NewID generates a new unique identifier for turns, invocations and events.
func NewID() string { return uuid.NewString() }

// EventSink receives trace events. Implementations must not block the caller
// for long; the agent loop never inspects the outcome of Emit.
type EventSink interface {
	Emit(ctx context.Context, e Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, e Event)

// Emit calls f(ctx, e).
func (f EventSinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit discards e.
func (NoOpSink) Emit(context.Context, Event) {}

// MultiSink fans an event out to several sinks in order.
type MultiSink []EventSink

// Emit forwards e to every sink.
func (m MultiSink) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, e)
		}
	}
}
