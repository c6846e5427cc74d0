package vectorindex

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an Index kept entirely in process memory with brute-force search.
type Memory struct {
	mu     sync.RWMutex
	chunks map[string]Chunk
	dim    int
}

var _ Index = (*Memory)(nil)

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{chunks: make(map[string]Chunk)}
}

// Upsert stores copies of chunks, replacing any with the same ID.
func (m *Memory) Upsert(_ context.Context, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk id must not be empty")
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s: empty embedding", c.ID)
		}
		if m.dim == 0 {
			m.dim = len(c.Embedding)
		}
		if len(c.Embedding) != m.dim {
			return fmt.Errorf("chunk %s: %w: got %d, want %d", c.ID, ErrDimensionMismatch, len(c.Embedding), m.dim)
		}
		m.chunks[c.ID] = cloneChunk(c)
	}

	return nil
}

// Search returns the k chunks most similar to vector.
func (m *Memory) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.chunks) == 0 {
		return []Match{}, nil
	}

	if len(vector) != m.dim {
		return nil, fmt.Errorf("query: %w: got %d, want %d", ErrDimensionMismatch, len(vector), m.dim)
	}

	matches := make([]Match, 0, len(m.chunks))
	for _, c := range m.chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches = append(matches, Match{Chunk: cloneChunk(c), Score: Score(CosineSimilarity(vector, c.Embedding))})
	}

	SortMatches(matches)

	if len(matches) > k {
		matches = matches[:k]
	}

	return matches, nil
}

// Count returns the number of stored chunks.
func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.chunks), nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func cloneChunk(c Chunk) Chunk {
	out := c
	if c.Embedding != nil {
		out.Embedding = append([]float32(nil), c.Embedding...)
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
