// Package observer turns agent trace events (core.Event) into logs,
// OpenTelemetry spans and metrics.
//
// Sinks compose: wrap the exporting sinks in an AsyncSink so the agent loop
// never waits on a slow backend.
//
//	sink := observer.NewAsyncSink(core.MultiSink{
//		observer.NewLogSink(logger),
//		otelSink,
//	})
//	defer sink.Close()
package observer

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/hupe1980/wikiagent/observer"

// Instruments holds all OTEL instruments used by OTelSink.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	// Counters
	Turns           metric.Int64Counter
	Rounds          metric.Int64Counter
	ToolInvocations metric.Int64Counter

	// Histograms
	TurnDuration  metric.Float64Histogram
	RoundDuration metric.Float64Histogram
	ToolDuration  metric.Float64Histogram
}

// InstrumentOptions selects the providers instruments are created from.
type InstrumentOptions struct {
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider

	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider
}

// NewInstruments creates the tracer, meter and instruments. Without options
// it uses the global providers, which are no-ops until telemetry is
// initialized.
func NewInstruments(optFns ...func(o *InstrumentOptions)) (*Instruments, error) {
	opts := InstrumentOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}

	tracer := opts.TracerProvider.Tracer(scopeName)
	meter := opts.MeterProvider.Meter(scopeName)

	turns, err := meter.Int64Counter("agent.turns",
		metric.WithDescription("Agent turn count"),
		metric.WithUnit("{turn}"))
	if err != nil {
		return nil, err
	}

	rounds, err := meter.Int64Counter("agent.rounds",
		metric.WithDescription("Reasoning round count"),
		metric.WithUnit("{round}"))
	if err != nil {
		return nil, err
	}

	toolInvocations, err := meter.Int64Counter("tool.invocations",
		metric.WithDescription("Tool invocation count"),
		metric.WithUnit("{invocation}"))
	if err != nil {
		return nil, err
	}

	turnDuration, err := meter.Float64Histogram("agent.turn.duration",
		metric.WithDescription("Agent turn duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	roundDuration, err := meter.Float64Histogram("agent.round.duration",
		metric.WithDescription("Reasoning round duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	toolDuration, err := meter.Float64Histogram("tool.duration",
		metric.WithDescription("Tool invocation duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:          tracer,
		Meter:           meter,
		Turns:           turns,
		Rounds:          rounds,
		ToolInvocations: toolInvocations,
		TurnDuration:    turnDuration,
		RoundDuration:   roundDuration,
		ToolDuration:    toolDuration,
	}, nil
}
