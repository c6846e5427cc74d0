package retrieval

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/wikiagent/model"
	"github.com/hupe1980/wikiagent/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var corpus = []Document{
	{
		ID:    "paris",
		Title: "Paris",
		URL:   "https://en.wikipedia.org/wiki/Paris",
		Text: "Paris is the capital and most populous city of France. The Eiffel Tower, " +
			"built for the 1889 World's Fair, stands on the Champ de Mars in Paris and is " +
			"the most visited paid monument in the world.",
	},
	{
		ID:    "photosynthesis",
		Title: "Photosynthesis",
		URL:   "https://en.wikipedia.org/wiki/Photosynthesis",
		Text: "Photosynthesis is a process used by plants and other organisms to convert " +
			"light energy into chemical energy that, through cellular respiration, can later " +
			"be released to fuel the organism's activities.",
	},
	{
		ID:    "go",
		Title: "Go (programming language)",
		URL:   "https://en.wikipedia.org/wiki/Go_(programming_language)",
		Text: "Go is a statically typed, compiled high-level programming language designed " +
			"at Google. It is syntactically similar to C, but also has memory safety, garbage " +
			"collection, structural typing and CSP-style concurrency.",
	},
	{ID: "stub", Title: "Stub", Text: "Too short to index."},
}

func newTestRetriever(t *testing.T, optFns ...func(o *Options)) *Retriever {
	t.Helper()
	return New(vectorindex.NewMemory(), model.NewHashEmbedder(128), optFns...)
}

func TestRetriever_IngestAndQuery(t *testing.T) {
	ctx := context.Background()
	r := newTestRetriever(t)

	stats, err := r.Ingest(ctx, corpus)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 1, stats.Batches)

	results, err := r.Query(ctx, "Where is the Eiffel Tower?", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 2)
	assert.Equal(t, "paris", results[0].SourceDocumentID)
	assert.Equal(t, "paris#0", results[0].ChunkID)
	assert.Equal(t, "Paris", results[0].Title())
	assert.Equal(t, "https://en.wikipedia.org/wiki/Paris", results[0].URL())

	for i, res := range results {
		assert.GreaterOrEqual(t, res.Score, float32(0))
		assert.LessOrEqual(t, res.Score, float32(1))
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, res.Score)
		}
	}
}

func TestRetriever_EmptyIndex(t *testing.T) {
	results, err := newTestRetriever(t).Query(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRetriever_EmptyQuery(t *testing.T) {
	_, err := newTestRetriever(t).Query(context.Background(), "   ", 3)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRetriever_IngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newTestRetriever(t)

	_, err := r.Ingest(ctx, corpus)
	require.NoError(t, err)
	first, err := r.Query(ctx, "programming language concurrency", 3)
	require.NoError(t, err)
	n1, err := r.Count(ctx)
	require.NoError(t, err)

	_, err = r.Ingest(ctx, corpus)
	require.NoError(t, err)
	second, err := r.Query(ctx, "programming language concurrency", 3)
	require.NoError(t, err)
	n2, err := r.Count(ctx)
	require.NoError(t, err)

	assert.Equal(t, n1, n2)
	assert.Equal(t, first, second)
}

func TestRetriever_OneResultPerDocument(t *testing.T) {
	ctx := context.Background()
	r := newTestRetriever(t, func(o *Options) {
		o.ChunkSize = 120
		o.ChunkOverlap = 20
		o.MinChunkLength = 10
	})

	long := Document{
		ID:    "tower",
		Title: "Eiffel Tower",
		Text: strings.Repeat("The Eiffel Tower is a wrought-iron lattice tower in Paris. ", 6) +
			"\n\nIt is named after the engineer Gustave Eiffel, whose company built the tower.",
	}
	stats, err := r.Ingest(ctx, append([]Document{long}, corpus...))
	require.NoError(t, err)
	require.Greater(t, stats.Chunks, 4)

	results, err := r.Query(ctx, "Eiffel Tower Paris", 5)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, res := range results {
		assert.False(t, seen[res.SourceDocumentID], "duplicate source %s", res.SourceDocumentID)
		seen[res.SourceDocumentID] = true
	}
	assert.True(t, seen["tower"])
}

func TestRetriever_MinScore(t *testing.T) {
	ctx := context.Background()
	r := newTestRetriever(t, func(o *Options) { o.MinScore = 0.99 })
	_, err := r.Ingest(ctx, corpus)
	require.NoError(t, err)

	results, err := r.Query(ctx, "unrelated astronomy question", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_MaxDocumentsAndBatches(t *testing.T) {
	ctx := context.Background()
	emb := &countingEmbedder{Embedder: model.NewHashEmbedder(32)}
	r := New(vectorindex.NewMemory(), emb, func(o *Options) {
		o.MaxDocuments = 2
		o.BatchSize = 1
	})

	stats, err := r.Ingest(ctx, corpus)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Batches)
	assert.EqualValues(t, 2, emb.calls.Load())
}

func TestRetriever_IngestPropagatesEmbedderErrors(t *testing.T) {
	r := New(vectorindex.NewMemory(), failingEmbedder{})
	_, err := r.Ingest(context.Background(), corpus[:1])
	assert.ErrorContains(t, err, "embed batch")
}

func TestRank(t *testing.T) {
	matches := []vectorindex.Match{
		{Chunk: vectorindex.Chunk{ID: "b#0", SourceDocumentID: "b"}, Score: 0.5},
		{Chunk: vectorindex.Chunk{ID: "a#1", SourceDocumentID: "a"}, Score: 0.9},
		{Chunk: vectorindex.Chunk{ID: "a#0", SourceDocumentID: "a"}, Score: 0.8},
		{Chunk: vectorindex.Chunk{ID: "c#0", SourceDocumentID: "c"}, Score: 0.5},
		{Chunk: vectorindex.Chunk{ID: "d#0", SourceDocumentID: "d"}, Score: 0.1},
	}
	out := rank(matches, 3, 0.2)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"a#1", "b#0", "c#0"}, []string{out[0].ChunkID, out[1].ChunkID, out[2].ChunkID})
}

type countingEmbedder struct {
	model.Embedder
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	return c.Embedder.Embed(ctx, texts)
}

type failingEmbedder struct{}

func (failingEmbedder) Dimensions() int { return 8 }

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, assert.AnError
}

// fixedEmbedder maps every text to the same vector. A non-nil gate blocks
// Embed until it is closed.
type fixedEmbedder struct {
	vec     []float32
	gate    chan struct{}
	entered chan struct{}
	calls   atomic.Int32
}

func (f *fixedEmbedder) Dimensions() int { return len(f.vec) }

func (f *fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.calls.Add(1) == 1 && f.entered != nil {
		close(f.entered)
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = append([]float32(nil), f.vec...)
	}
	return out, nil
}

func seedChunks(t *testing.T, index vectorindex.Index, doc string, n int, vec []float32) {
	t.Helper()
	chunks := make([]vectorindex.Chunk, n)
	for i := range chunks {
		chunks[i] = vectorindex.Chunk{
			ID:               doc + "#" + strconv.Itoa(i),
			SourceDocumentID: doc,
			Text:             doc + " passage",
			Embedding:        vec,
		}
	}
	require.NoError(t, index.Upsert(context.Background(), chunks))
}

func TestRetriever_QueryWidensPastDominantDocument(t *testing.T) {
	index := vectorindex.NewMemory()
	seedChunks(t, index, "a", 9, []float32{1, 0})
	seedChunks(t, index, "b", 1, []float32{0.9, 0.1})
	seedChunks(t, index, "c", 1, []float32{0.8, 0.2})

	r := New(index, &fixedEmbedder{vec: []float32{1, 0}})
	results, err := r.Query(context.Background(), "q", 3)
	require.NoError(t, err)

	docs := make([]string, len(results))
	for i, res := range results {
		docs[i] = res.SourceDocumentID
	}
	assert.Equal(t, []string{"a", "b", "c"}, docs)
}

func TestRetriever_QueryStopsAtScoreFloor(t *testing.T) {
	index := vectorindex.NewMemory()
	seedChunks(t, index, "a", 9, []float32{1, 0})
	seedChunks(t, index, "b", 1, []float32{0, 1})

	r := New(index, &fixedEmbedder{vec: []float32{1, 0}}, func(o *Options) { o.MinScore = 0.5 })
	results, err := r.Query(context.Background(), "q", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].SourceDocumentID)
}

func TestRetriever_SharedQuerySurvivesCallerCancellation(t *testing.T) {
	index := vectorindex.NewMemory()
	seedChunks(t, index, "a", 1, []float32{1, 0})

	emb := &fixedEmbedder{vec: []float32{1, 0}, gate: make(chan struct{}), entered: make(chan struct{})}
	r := New(index, emb)

	ctx1, cancel1 := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := r.Query(ctx1, "eiffel", 1)
		first <- err
	}()
	<-emb.entered

	type outcome struct {
		results []Result
		err     error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := r.Query(context.Background(), "eiffel", 1)
		second <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel1()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(emb.gate)
	got := <-second
	require.NoError(t, got.err)
	require.Len(t, got.results, 1)
	assert.Equal(t, "a", got.results[0].SourceDocumentID)
	assert.Equal(t, int32(1), emb.calls.Load())
}
