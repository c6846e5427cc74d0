package vectorindex

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, float32(0), CosineSimilarity([]float32{0, 0}, []float32{1, 2}))

	assert.Equal(t, float32(0), Score(-0.5))
	assert.Equal(t, float32(0.5), Score(0.5))
	assert.Equal(t, float32(1), Score(1.0000001))
	assert.Equal(t, float32(0), Score(float32(math.NaN())))
}

func TestMemory_SearchOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	require.NoError(t, idx.Upsert(ctx, []Chunk{
		{ID: "a#0", SourceDocumentID: "a", Text: "a", Embedding: []float32{1, 0}},
		{ID: "b#0", SourceDocumentID: "b", Text: "b", Embedding: []float32{0.7, 0.7}},
		{ID: "c#0", SourceDocumentID: "c", Text: "c", Embedding: []float32{-1, 0}},
		{ID: "d#0", SourceDocumentID: "d", Text: "d", Embedding: []float32{1, 0}},
	}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	matches, err := idx.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	// ties resolve by chunk id
	assert.Equal(t, "a#0", matches[0].Chunk.ID)
	assert.Equal(t, "d#0", matches[1].Chunk.ID)
	assert.Equal(t, "b#0", matches[2].Chunk.ID)

	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}

	all, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, float32(0), all[3].Score)
}

func TestMemory_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	require.NoError(t, idx.Upsert(ctx, []Chunk{{ID: "a#0", SourceDocumentID: "a", Text: "old", Embedding: []float32{1, 0}}}))
	require.NoError(t, idx.Upsert(ctx, []Chunk{{ID: "a#0", SourceDocumentID: "a", Text: "new", Embedding: []float32{1, 0}}}))

	n, _ := idx.Count(ctx)
	assert.Equal(t, 1, n)

	m, err := idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", m[0].Chunk.Text)
}

func TestMemory_EmptyAndInvalid(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	m, err := idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, m)

	require.NoError(t, idx.Upsert(ctx, []Chunk{{ID: "a#0", Embedding: []float32{1, 0}}}))

	assert.ErrorIs(t, idx.Upsert(ctx, []Chunk{{ID: "b#0", Embedding: []float32{1, 0, 0}}}), ErrDimensionMismatch)
	assert.Error(t, idx.Upsert(ctx, []Chunk{{ID: "", Embedding: []float32{1, 0}}}))

	_, err = idx.Search(ctx, []float32{1}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	m, err = idx.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	c := Chunk{ID: "a#0", Embedding: []float32{1, 0}, Metadata: map[string]string{"title": "A"}}
	require.NoError(t, idx.Upsert(ctx, []Chunk{c}))
	c.Metadata["title"] = "changed"

	m, err := idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "A", m[0].Chunk.Metadata["title"])
}
