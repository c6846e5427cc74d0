package testutil

import (
	"time"

	"github.com/hupe1980/wikiagent/core"
)

// EventBuilder provides a fluent helper for constructing trace events in tests.
// Example:
//
//	ev := NewEventBuilder(core.EventRoundEnd, "turn-1").Round(1).ToolCalls(2).Build()
//
// Chain only the parts you need; ID and Timestamp default to fresh values.
type EventBuilder struct {
	e core.Event
}

// NewEventBuilder creates a builder for an event of typ bound to turnID.
func NewEventBuilder(typ core.EventType, turnID string) *EventBuilder {
	return &EventBuilder{e: core.NewEvent(typ, turnID)}
}

// Session sets the session ID (chainable).
func (b *EventBuilder) Session(id string) *EventBuilder { b.e.SessionID = id; return b }

// Round sets the round number (chainable).
func (b *EventBuilder) Round(n int) *EventBuilder { b.e.Round = n; return b }

// ToolCalls sets the number of tool calls (chainable).
func (b *EventBuilder) ToolCalls(n int) *EventBuilder { b.e.ToolCalls = n; return b }

// Partial marks a turn that ended without a complete answer (chainable).
func (b *EventBuilder) Partial() *EventBuilder { b.e.Partial = true; return b }

// Error sets the error message (chainable).
func (b *EventBuilder) Error(msg string) *EventBuilder { b.e.Error = msg; return b }

// Duration sets the measured duration (chainable).
func (b *EventBuilder) Duration(d time.Duration) *EventBuilder { b.e.Duration = d; return b }

// At overrides the timestamp (chainable).
func (b *EventBuilder) At(ts time.Time) *EventBuilder { b.e.Timestamp = ts; return b }

// Invocation attaches a copy of inv and mirrors its duration and error, the
// way the agent loop does for EventToolInvocation (chainable).
func (b *EventBuilder) Invocation(inv core.ToolInvocation) *EventBuilder {
	c := inv.Clone()
	b.e.Invocation = &c
	b.e.Duration = inv.Duration
	b.e.Error = inv.Error
	return b
}

// Build returns the event.
func (b *EventBuilder) Build() core.Event { return b.e }
