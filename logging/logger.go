package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hupe1980/wikiagent/core"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config string ("debug", "INFO", "warning", ...) into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger defines the minimal logging interface for wikiagent.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Ensure returns l, or a NoOpLogger when l is nil.
func Ensure(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

// StructuredLogger wraps slog.Logger adding scoping helpers (component,
// session, turn) and domain convenience methods. With* methods return copies.
type StructuredLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	sessionID string
	turnID    string
}

// LoggerConfig configures construction of a StructuredLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// NewLogger builds a StructuredLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *StructuredLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &StructuredLogger{logger: slog.New(handler), level: cfg.Level, component: cfg.Component}
}

// NewSlogLogger creates a StructuredLogger writing to stderr.
func NewSlogLogger(level LogLevel, format string, addSource bool) *StructuredLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent sets the logical component (agent, retrieval, weather, ...).
func (l *StructuredLogger) WithComponent(c string) *StructuredLogger {
	nl := *l
	nl.component = c
	return &nl
}

// WithSession attaches session and turn identifiers.
func (l *StructuredLogger) WithSession(sessionID, turnID string) *StructuredLogger {
	nl := *l
	nl.sessionID = sessionID
	nl.turnID = turnID
	return &nl
}

func (l *StructuredLogger) buildAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, 3+len(args)/2)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", l.sessionID))
	}
	if l.turnID != "" {
		attrs = append(attrs, slog.String("turn_id", l.turnID))
	}
	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case slog.Attr:
			attrs = append(attrs, a)
		case string:
			if i+1 < len(args) {
				attrs = append(attrs, slog.Any(a, args[i+1]))
				i++
			} else {
				attrs = append(attrs, slog.String("!BADKEY", a))
			}
		default:
			attrs = append(attrs, slog.Any("!BADKEY", a))
		}
	}
	return attrs
}

func (l *StructuredLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	l.logger.LogAttrs(context.Background(), level, msg, l.buildAttrs(args)...)
}

// Debug logs at debug level.
func (l *StructuredLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *StructuredLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *StructuredLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *StructuredLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// WithComponent scopes l to a logical component (agent, retrieval, weather,
// ...). A StructuredLogger carries it as an attribute; any other Logger gets
// a leading component key/value pair.
func WithComponent(l Logger, component string) Logger {
	switch sl := l.(type) {
	case nil:
		return NoOpLogger{}
	case NoOpLogger:
		return sl
	case *StructuredLogger:
		return sl.WithComponent(component)
	default:
		return &scoped{Logger: l, kv: []any{"component", component}}
	}
}

// WithSession scopes l to one session and turn.
func WithSession(l Logger, sessionID, turnID string) Logger {
	switch sl := l.(type) {
	case nil:
		return NoOpLogger{}
	case NoOpLogger:
		return sl
	case *StructuredLogger:
		return sl.WithSession(sessionID, turnID)
	default:
		return &scoped{Logger: l, kv: []any{"session_id", sessionID, "turn_id", turnID}}
	}
}

// scoped prepends fixed key/value pairs to every record.
type scoped struct {
	Logger
	kv []any
}

func (s *scoped) with(args []any) []any {
	return append(append(make([]any, 0, len(s.kv)+len(args)), s.kv...), args...)
}

func (s *scoped) Debug(msg string, args ...any) { s.Logger.Debug(msg, s.with(args)...) }
func (s *scoped) Info(msg string, args ...any)  { s.Logger.Info(msg, s.with(args)...) }
func (s *scoped) Warn(msg string, args ...any)  { s.Logger.Warn(msg, s.with(args)...) }
func (s *scoped) Error(msg string, args ...any) { s.Logger.Error(msg, s.with(args)...) }

// ToolInvocation records the outcome of a completed tool invocation. args
// are appended to the record.
func ToolInvocation(l Logger, inv core.ToolInvocation, args ...any) {
	if inv.Failed() {
		l.Warn("tool.call.failed", append([]any{
			"tool", inv.ToolName,
			"duration_ms", inv.Duration.Milliseconds(),
			"error_code", inv.ErrorCode,
			"error", inv.Error,
		}, args...)...)
		return
	}
	l.Info("tool.call.completed", append([]any{
		"tool", inv.ToolName,
		"duration_ms", inv.Duration.Milliseconds(),
	}, args...)...)
}

// ProviderCall records reasoning or embedding provider latency and success.
func ProviderCall(l Logger, provider, model string, dur time.Duration, err error) {
	if err != nil {
		l.Error("provider.call.failed", "provider", provider, "model", model, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	l.Debug("provider.call.completed", "provider", provider, "model", model, "duration_ms", dur.Milliseconds())
}

// Turn records aggregate turn metrics.
func Turn(l Logger, rounds, invocations int, dur time.Duration, partial bool, err error) {
	if err != nil {
		l.Error("agent.turn.failed", "rounds", rounds, "invocations", invocations, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	l.Info("agent.turn.completed", "rounds", rounds, "invocations", invocations, "duration_ms", dur.Milliseconds(), "partial", partial)
}

// StartTimer returns a closure that logs the elapsed duration of op when
// invoked.
func StartTimer(l Logger, op string) func() {
	start := time.Now()
	return func() { l.Debug("operation.completed", "operation", op, "duration_ms", time.Since(start).Milliseconds()) }
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug discards the message.
func (NoOpLogger) Debug(string, ...any) {}

// Info discards the message.
func (NoOpLogger) Info(string, ...any) {}

// Warn discards the message.
func (NoOpLogger) Warn(string, ...any) {}

// Error discards the message.
func (NoOpLogger) Error(string, ...any) {}
