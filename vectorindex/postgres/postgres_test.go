package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hupe1980/wikiagent/vectorindex"
)

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, "postgres://localhost/none", 3, func(o *Options) { o.Table = "chunks; DROP TABLE x" })
	assert.ErrorContains(t, err, "invalid table name")

	_, err = New(ctx, "postgres://localhost/none", 0)
	assert.ErrorContains(t, err, "dimension")
}

func TestIndex_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:pg17",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "wikiagent",
				"POSTGRES_PASSWORD": "wikiagent",
				"POSTGRES_DB":       "wikiagent",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://wikiagent:wikiagent@%s:%s/wikiagent?sslmode=disable", host, port.Port())

	idx, err := New(ctx, dsn, 2)
	require.NoError(t, err)
	defer idx.Close()

	m, err := idx.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, m)

	chunks := []vectorindex.Chunk{
		{ID: "go#0", SourceDocumentID: "go", Text: "Go", Embedding: []float32{1, 0}, Metadata: map[string]string{"title": "Go"}},
		{ID: "go#1", SourceDocumentID: "go", Text: "Go 2", Embedding: []float32{0.8, 0.6}},
		{ID: "rust#0", SourceDocumentID: "rust", Text: "Rust", Embedding: []float32{0, 1}},
	}
	require.NoError(t, idx.Upsert(ctx, chunks))
	require.NoError(t, idx.Upsert(ctx, chunks))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	m, err = idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, m, 2)
	assert.Equal(t, "go#0", m[0].Chunk.ID)
	assert.Equal(t, "Go", m[0].Chunk.Metadata["title"])
	assert.InDelta(t, 0.8, m[1].Score, 1e-4)

	assert.ErrorIs(t, idx.Upsert(ctx, []vectorindex.Chunk{{ID: "x", Embedding: []float32{1}}}), vectorindex.ErrDimensionMismatch)
}
