package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hupe1980/wikiagent/logging"
	"github.com/hupe1980/wikiagent/model"
)

// EmbeddingCache stores vectors by key. GetMany returns one entry per key,
// nil for misses.
type EmbeddingCache interface {
	GetMany(ctx context.Context, keys []string) ([][]float32, error)
	SetMany(ctx context.Context, keys []string, vecs [][]float32) error
}

// CachedEmbedder consults an EmbeddingCache before calling the wrapped
// Embedder and stores fresh vectors afterwards. Cache failures are logged
// and treated as misses.
type CachedEmbedder struct {
	inner     model.Embedder
	cache     EmbeddingCache
	namespace string
	logger    logging.Logger
}

// NewCachedEmbedder wraps inner. namespace separates vectors of different
// embedding models sharing one cache.
func NewCachedEmbedder(inner model.Embedder, cache EmbeddingCache, namespace string, logger logging.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:     inner,
		cache:     cache,
		namespace: fmt.Sprintf("%s:%d", namespace, inner.Dimensions()),
		logger:    logging.Ensure(logger),
	}
}

// Dimensions implements model.Embedder.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Embed implements model.Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out, err := c.cache.GetMany(ctx, keys)
	if err != nil || len(out) != len(texts) {
		if err != nil {
			c.logger.Warn("embedding.cache.get_failed", "error", err.Error())
		}
		out = make([][]float32, len(texts))
	}

	var (
		missIdx   []int
		missTexts []string
	)
	dims := c.inner.Dimensions()
	for i, v := range out {
		if v == nil || (dims > 0 && len(v) != dims) {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missTexts))
	}
	missKeys := make([]string, len(missIdx))
	for j, i := range missIdx {
		out[i] = fresh[j]
		missKeys[j] = keys[i]
	}
	if err := c.cache.SetMany(ctx, missKeys, fresh); err != nil {
		c.logger.Warn("embedding.cache.set_failed", "error", err.Error())
	}
	return out, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.namespace + ":" + hex.EncodeToString(sum[:])
}

// MemoryEmbeddingCache is an unbounded in-process EmbeddingCache.
type MemoryEmbeddingCache struct {
	mu   sync.RWMutex
	vecs map[string][]float32
}

// NewMemoryEmbeddingCache returns an empty MemoryEmbeddingCache.
func NewMemoryEmbeddingCache() *MemoryEmbeddingCache {
	return &MemoryEmbeddingCache{vecs: map[string][]float32{}}
}

// GetMany implements EmbeddingCache.
func (m *MemoryEmbeddingCache) GetMany(_ context.Context, keys []string) ([][]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]float32, len(keys))
	for i, k := range keys {
		if v, ok := m.vecs[k]; ok {
			out[i] = append([]float32(nil), v...)
		}
	}
	return out, nil
}

// SetMany implements EmbeddingCache.
func (m *MemoryEmbeddingCache) SetMany(_ context.Context, keys []string, vecs [][]float32) error {
	if len(keys) != len(vecs) {
		return fmt.Errorf("cache: %d keys for %d vectors", len(keys), len(vecs))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, k := range keys {
		m.vecs[k] = append([]float32(nil), vecs[i]...)
	}
	return nil
}

// Len returns the number of cached vectors.
func (m *MemoryEmbeddingCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vecs)
}

// RedisCacheOptions configures RedisEmbeddingCache.
type RedisCacheOptions struct {
	Prefix   string
	TTL      time.Duration
	Password string
	DB       int
}

// RedisEmbeddingCache stores vectors as little-endian float32 strings with a TTL.
type RedisEmbeddingCache struct {
	client *redis.Client
	opts   RedisCacheOptions
}

func defaultRedisCacheOptions() RedisCacheOptions {
	return RedisCacheOptions{
		Prefix: "wikiagent:emb:",
		TTL:    7 * 24 * time.Hour,
	}
}

// NewRedisEmbeddingCache connects to addr, either host:port or a redis:// URL,
// and verifies the connection with PING.
func NewRedisEmbeddingCache(ctx context.Context, addr string, optFns ...func(o *RedisCacheOptions)) (*RedisEmbeddingCache, error) {
	opts := defaultRedisCacheOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var ropts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		ropts = parsed
	} else {
		ropts = &redis.Options{Addr: addr, Password: opts.Password, DB: opts.DB}
	}
	client := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisEmbeddingCache{client: client, opts: opts}, nil
}

// NewRedisEmbeddingCacheFromClient wraps an existing client.
func NewRedisEmbeddingCacheFromClient(client *redis.Client, optFns ...func(o *RedisCacheOptions)) *RedisEmbeddingCache {
	opts := defaultRedisCacheOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisEmbeddingCache{client: client, opts: opts}
}

// GetMany implements EmbeddingCache with a single MGET.
func (r *RedisEmbeddingCache) GetMany(ctx context.Context, keys []string) ([][]float32, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.opts.Prefix + k
	}
	vals, err := r.client.MGet(ctx, full...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([][]float32, len(keys))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if vec, err := decodeVector([]byte(s)); err == nil {
			out[i] = vec
		}
	}
	return out, nil
}

// SetMany implements EmbeddingCache with one pipelined SET per key.
func (r *RedisEmbeddingCache) SetMany(ctx context.Context, keys []string, vecs [][]float32) error {
	if len(keys) != len(vecs) {
		return fmt.Errorf("cache: %d keys for %d vectors", len(keys), len(vecs))
	}
	if len(keys) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for i, k := range keys {
		pipe.Set(ctx, r.opts.Prefix+k, encodeVector(vecs[i]), r.opts.TTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the underlying client.
func (r *RedisEmbeddingCache) Close() error { return r.client.Close() }

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("cache: corrupt vector of %d bytes", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}

var (
	_ model.Embedder = (*CachedEmbedder)(nil)
	_ EmbeddingCache = (*MemoryEmbeddingCache)(nil)
	_ EmbeddingCache = (*RedisEmbeddingCache)(nil)
)
