package observer

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/wikiagent/core"
)

// maxInputAttr bounds the tool input recorded on spans.
const maxInputAttr = 256

// OTelSink rebuilds the span tree of a turn from its events and records
// metrics. Each turn becomes an "agent.turn" span with one "agent.round"
// child per round and one "tool.invoke" grandchild per invocation.
//
// Events of a turn must arrive in emission order, which holds for the agent
// loop and for AsyncSink.
type OTelSink struct {
	inst *Instruments

	mu    sync.Mutex
	turns map[string]*turnSpans
}

type turnSpans struct {
	ctx   context.Context // carries the turn span
	turn  trace.Span
	round trace.Span
	rctx  context.Context // carries the open round span
}

// NewOTelSink returns a sink exporting through inst.
func NewOTelSink(inst *Instruments) *OTelSink {
	return &OTelSink{inst: inst, turns: make(map[string]*turnSpans)}
}

// Emit implements core.EventSink.
func (s *OTelSink) Emit(ctx context.Context, e core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.turnFor(ctx, e)

	switch e.Type {
	case core.EventRoundStart:
		s.endRound(ts, e)
		ts.rctx, ts.round = s.inst.Tracer.Start(ts.ctx, "agent.round",
			trace.WithTimestamp(e.Timestamp),
			trace.WithAttributes(AttrRound.Int(e.Round)),
		)
	case core.EventToolInvocation:
		s.recordInvocation(ts, e)
	case core.EventRoundEnd:
		if ts.round != nil {
			ts.round.SetAttributes(AttrToolCalls.Int(e.ToolCalls))
			if e.Error != "" {
				ts.round.SetStatus(codes.Error, e.Error)
			}
		}
		s.endRound(ts, e)
		s.inst.Rounds.Add(ctx, 1)
		s.inst.RoundDuration.Record(ctx, ms(e))
	case core.EventTurnComplete, core.EventTurnFailed:
		s.endRound(ts, e)
		status := "ok"
		if e.Type == core.EventTurnFailed {
			status = "error"
			ts.turn.RecordError(errorString(e.Error))
			ts.turn.SetStatus(codes.Error, e.Error)
		}
		ts.turn.SetAttributes(
			AttrRound.Int(e.Round),
			AttrToolCalls.Int(e.ToolCalls),
			AttrPartial.Bool(e.Partial),
		)
		ts.turn.End(trace.WithTimestamp(e.Timestamp))
		delete(s.turns, e.TurnID)

		attrs := metric.WithAttributes(AttrStatus.String(status), AttrPartial.Bool(e.Partial))
		s.inst.Turns.Add(ctx, 1, attrs)
		s.inst.TurnDuration.Record(ctx, ms(e), attrs)
	}
}

// Open returns the number of turns with spans still in flight.
func (s *OTelSink) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

func (s *OTelSink) turnFor(ctx context.Context, e core.Event) *turnSpans {
	if ts, ok := s.turns[e.TurnID]; ok {
		return ts
	}
	attrs := []attribute.KeyValue{AttrTurnID.String(e.TurnID)}
	if e.SessionID != "" {
		attrs = append(attrs, AttrSessionID.String(e.SessionID))
	}
	start := e.Timestamp
	if e.Type == core.EventTurnComplete || e.Type == core.EventTurnFailed {
		start = e.Timestamp.Add(-e.Duration)
	}
	tctx, span := s.inst.Tracer.Start(context.WithoutCancel(ctx), "agent.turn",
		trace.WithTimestamp(start),
		trace.WithAttributes(attrs...),
	)
	ts := &turnSpans{ctx: tctx, turn: span}
	s.turns[e.TurnID] = ts
	return ts
}

func (s *OTelSink) endRound(ts *turnSpans, e core.Event) {
	if ts.round == nil {
		return
	}
	ts.round.End(trace.WithTimestamp(e.Timestamp))
	ts.round = nil
	ts.rctx = nil
}

func (s *OTelSink) recordInvocation(ts *turnSpans, e core.Event) {
	inv := e.Invocation
	if inv == nil {
		return
	}
	parent := ts.ctx
	if ts.rctx != nil {
		parent = ts.rctx
	}

	attrs := []attribute.KeyValue{
		AttrToolName.String(inv.ToolName),
		AttrToolInvocation.String(inv.ID),
		AttrToolInput.String(clip(inv.RawInput, maxInputAttr)),
		AttrRound.Int(e.Round),
	}
	if inv.ErrorCode != "" {
		attrs = append(attrs, AttrToolErrorCode.String(inv.ErrorCode))
	}

	_, span := s.inst.Tracer.Start(parent, "tool.invoke",
		trace.WithTimestamp(inv.StartedAt),
		trace.WithAttributes(attrs...),
	)
	status := "ok"
	if inv.Failed() {
		status = inv.ErrorCode
		span.RecordError(errorString(inv.Error))
		span.SetStatus(codes.Error, inv.Error)
	}
	span.End(trace.WithTimestamp(inv.StartedAt.Add(inv.Duration)))

	s.inst.ToolInvocations.Add(parent, 1, metric.WithAttributes(
		AttrToolName.String(inv.ToolName),
		AttrStatus.String(status),
	))
	s.inst.ToolDuration.Record(parent, float64(inv.Duration.Milliseconds()), metric.WithAttributes(
		AttrToolName.String(inv.ToolName),
	))
}

func ms(e core.Event) float64 { return float64(e.Duration.Milliseconds()) }

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type errorString string

func (e errorString) Error() string { return string(e) }

var _ core.EventSink = (*OTelSink)(nil)
