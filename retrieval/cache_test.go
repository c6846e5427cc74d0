package retrieval

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hupe1980/wikiagent/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestCachedEmbedder_MemoryCache(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{Embedder: model.NewHashEmbedder(16)}
	cache := NewMemoryEmbeddingCache()
	e := NewCachedEmbedder(inner, cache, "hash", nil)

	first, err := e.Embed(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	second, err := e.Embed(ctx, []string{"beta", "gamma", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, 3, cache.Len())
	assert.EqualValues(t, 2, inner.calls.Load(), "second call embeds only gamma")

	_, err = e.Embed(ctx, []string{"alpha", "gamma"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, inner.calls.Load())
	assert.Equal(t, 16, e.Dimensions())
}

type brokenCache struct{}

func (brokenCache) GetMany(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("cache down")
}

func (brokenCache) SetMany(context.Context, []string, [][]float32) error {
	return fmt.Errorf("cache down")
}

func TestCachedEmbedder_CacheFailureIsAMiss(t *testing.T) {
	e := NewCachedEmbedder(model.NewHashEmbedder(8), brokenCache{}, "hash", nil)
	vecs, err := e.Embed(context.Background(), []string{"alpha"})
	require.NoError(t, err)
	assert.Len(t, vecs[0], 8)
}

func TestVectorEncoding(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4028235e38}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestRedisEmbeddingCache_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	cache, err := NewRedisEmbeddingCache(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()), func(o *RedisCacheOptions) {
		o.TTL = time.Minute
	})
	require.NoError(t, err)
	defer cache.Close()

	got, err := cache.GetMany(ctx, []string{"k1", "k2"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{nil, nil}, got)

	require.NoError(t, cache.SetMany(ctx, []string{"k1"}, [][]float32{{1, 2, 3}}))
	got, err = cache.GetMany(ctx, []string{"k1", "k2"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got[0])
	assert.Nil(t, got[1])

	ttl, err := cache.client.TTL(ctx, "wikiagent:emb:k1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
