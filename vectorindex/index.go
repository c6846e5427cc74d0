// Package vectorindex defines the storage contract for embedded document
// chunks and ships an in-memory implementation. Persistent backends live in
// the sqlite, qdrant and postgres subpackages.
package vectorindex

import (
	"context"
	"errors"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when a vector does not match the index dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk is an embedded fragment of a source document. Chunks are immutable
// once stored; upserting an existing ID replaces the previous chunk.
type Chunk struct {
	ID               string            `json:"id"`
	SourceDocumentID string            `json:"source_document_id"`
	Text             string            `json:"text"`
	Embedding        []float32         `json:"embedding,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Match is a chunk paired with its similarity to a query vector.
// Score lies in [0,1]; higher is more similar.
type Match struct {
	Chunk Chunk
	Score float32
}

// Index stores chunks and answers nearest-neighbor queries.
//
// Implementations must be safe for concurrent use. Search on an empty index
// returns an empty slice and no error.
type Index interface {
	Upsert(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched or zero vectors yield 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// Score maps a cosine similarity onto the [0,1] relevance range. Opposed
// vectors are as irrelevant as orthogonal ones, and NaN (a zero vector on
// the server side) scores 0.
func Score(cosine float32) float32 {
	switch {
	case math.IsNaN(float64(cosine)), cosine < 0:
		return 0
	case cosine > 1:
		return 1
	default:
		return cosine
	}
}

// SortMatches orders matches by descending score, breaking ties by chunk ID
// so that rankings are deterministic.
func SortMatches(m []Match) {
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].Score != m[j].Score {
			return m[i].Score > m[j].Score
		}
		return m[i].Chunk.ID < m[j].Chunk.ID
	})
}
