// Package logging provides a minimal logging interface and adapters for wikiagent.
//
// The Logger interface defines the leveled, key/value logging methods that the
// agent loop, tools, providers and index backends use. This package includes:
//
//   - Logger interface for dependency injection
//   - StructuredLogger over log/slog with component and session scoping
//   - WithComponent and WithSession, which scope any Logger
//   - ToolInvocation, ProviderCall, Turn and StartTimer record helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	a := agent.New(llm, registry, func(o *agent.Options) { o.Logger = logger })
//
// Log messages are dotted event names ("tool.call.start") followed by
// key/value pairs, so they stay greppable across handlers.
package logging
