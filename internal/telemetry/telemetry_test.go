package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "wikiagent"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_WithEndpoint(t *testing.T) {
	// Exporters connect lazily, so Init succeeds without a collector.
	shutdown, err := Init(context.Background(), Config{
		Endpoint:    "127.0.0.1:4318",
		ServiceName: "wikiagent-test",
		Version:     "test",
		Insecure:    true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, Status{ServiceName: "svc"}, StatusOf(Config{ServiceName: "svc"}))
	assert.Equal(t,
		Status{TracingEnabled: true, Endpoint: "otel:4318", ServiceName: "svc"},
		StatusOf(Config{Endpoint: "otel:4318", ServiceName: "svc"}),
	)
}
