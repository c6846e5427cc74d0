package observer

import (
	"context"

	"github.com/hupe1980/wikiagent/core"
	"github.com/hupe1980/wikiagent/logging"
)

// LogSink writes every event as a structured log line named "trace.<type>".
type LogSink struct {
	logger logging.Logger
}

// NewLogSink returns a sink logging to logger.
func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logging.Ensure(logger)}
}

// Emit implements core.EventSink.
func (s *LogSink) Emit(_ context.Context, e core.Event) {
	args := []any{"turn", e.TurnID}
	if e.SessionID != "" {
		args = append(args, "session", e.SessionID)
	}
	if e.Round > 0 {
		args = append(args, "round", e.Round)
	}
	if e.Invocation != nil {
		args = append(args,
			"tool", e.Invocation.ToolName,
			"invocation", e.Invocation.ID,
			"input", e.Invocation.RawInput,
		)
		if e.Invocation.ErrorCode != "" {
			args = append(args, "error_code", e.Invocation.ErrorCode)
		}
	}
	if e.ToolCalls > 0 {
		args = append(args, "tool_calls", e.ToolCalls)
	}
	if e.Duration > 0 {
		args = append(args, "duration_ms", e.Duration.Milliseconds())
	}
	if e.Partial {
		args = append(args, "partial", true)
	}

	msg := "trace." + string(e.Type)
	if e.Error != "" {
		s.logger.Warn(msg, append(args, "error", e.Error)...)
		return
	}
	s.logger.Debug(msg, args...)
}

var _ core.EventSink = (*LogSink)(nil)
