package qdrant

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

func TestParseURL(t *testing.T) {
	tests := []struct {
		rawURL  string
		host    string
		port    int
		tls     bool
		wantErr bool
	}{
		{rawURL: "https://xyz.cloud.qdrant.io:6333", host: "xyz.cloud.qdrant.io", port: 6334, tls: true},
		{rawURL: "http://localhost:6334", host: "localhost", port: 6334},
		{rawURL: "http://qdrant.internal", host: "qdrant.internal", port: 6334},
		{rawURL: "http://localhost:7000", host: "localhost", port: 7000},
		{rawURL: "", wantErr: true},
		{rawURL: "http://localhost:abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.rawURL, func(t *testing.T) {
			host, port, tls, err := parseURL(tt.rawURL)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
			assert.Equal(t, tt.tls, tls)
		})
	}
}

func TestPointIDIsStable(t *testing.T) {
	assert.Equal(t, PointID("doc#0"), PointID("doc#0"))
	assert.NotEqual(t, PointID("doc#0"), PointID("doc#1"))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{URL: "http://localhost:6333"})
	assert.Error(t, err)

	_, err = New(Config{URL: "", Collection: "chunks"})
	assert.Error(t, err)

	idx, err := New(Config{URL: "http://localhost:16334", Collection: "chunks", Dims: 4})
	require.NoError(t, err, "gRPC connects lazily")
	assert.Equal(t, "chunks", idx.collection)
	_ = idx.Close()
}

func TestIndex_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "qdrant/qdrant:v1.16.2",
			ExposedPorts: []string{"6334/tcp"},
			WaitingFor:   wait.ForListeningPort("6334/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6334")
	require.NoError(t, err)

	idx, err := New(Config{URL: fmt.Sprintf("http://%s:%s", host, port.Port()), Collection: "chunks", Dims: 2})
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.EnsureCollection(ctx))
	require.NoError(t, idx.EnsureCollection(ctx))

	m, err := idx.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, m)

	chunks := []vectorindex.Chunk{
		{ID: "go#0", SourceDocumentID: "go", Text: "Go", Embedding: []float32{1, 0}, Metadata: map[string]string{"title": "Go"}},
		{ID: "rust#0", SourceDocumentID: "rust", Text: "Rust", Embedding: []float32{0, 1}},
	}
	require.NoError(t, idx.Upsert(ctx, chunks))
	require.NoError(t, idx.Upsert(ctx, chunks))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	m, err = idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, m, 2)
	assert.Equal(t, "go#0", m[0].Chunk.ID)
	assert.Equal(t, "Go", m[0].Chunk.Metadata["title"])
	assert.GreaterOrEqual(t, m[0].Score, m[1].Score)
}
