package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/wikiagent/logging"
	"github.com/hupe1980/wikiagent/model"
	"github.com/hupe1980/wikiagent/vectorindex"
)

// Options configures a Retriever.
type Options struct {
	ChunkSize    int
	ChunkOverlap int

	// BatchSize is the number of chunks embedded and upserted together.
	BatchSize int
	// Concurrency bounds the number of batches in flight.
	Concurrency int
	// MinDocumentLength skips documents with less trimmed text.
	MinDocumentLength int
	// MinChunkLength drops chunks with less trimmed text.
	MinChunkLength int
	// MaxDocuments caps the number of ingested documents per call. Zero means no cap.
	MaxDocuments int

	// TopK is used when Query receives a non-positive k.
	TopK int
	// MinScore drops matches scoring below it.
	MinScore float32
	// OverFetch multiplies k for the first index search. The window doubles
	// while deduplication by source document leaves fewer than k results.
	OverFetch int
	// QueryTimeout bounds a query shared by concurrent callers. It runs
	// detached from any single caller's cancellation.
	QueryTimeout time.Duration

	Logger logging.Logger
}

// IngestStats summarizes one Ingest call.
type IngestStats struct {
	Documents     int           `json:"documents"`
	Skipped       int           `json:"skipped"`
	Chunks        int           `json:"chunks"`
	DroppedChunks int           `json:"dropped_chunks"`
	Batches       int           `json:"batches"`
	Duration      time.Duration `json:"duration"`
}

// Retriever ingests documents into a vector index and answers top-k queries.
type Retriever struct {
	index    vectorindex.Index
	embedder model.Embedder
	chunker  *Chunker
	opts     Options
	logger   logging.Logger
	group    singleflight.Group
}

// New creates a Retriever over index using embedder for chunks and queries.
func New(index vectorindex.Index, embedder model.Embedder, optFns ...func(o *Options)) *Retriever {
	opts := Options{
		ChunkSize:         DefaultChunkSize,
		ChunkOverlap:      DefaultChunkOverlap,
		BatchSize:         5,
		Concurrency:       4,
		MinDocumentLength: 100,
		MinChunkLength:    50,
		TopK:              3,
		OverFetch:         3,
		QueryTimeout:      30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.OverFetch < 1 {
		opts.OverFetch = 1
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	return &Retriever{
		index:    index,
		embedder: embedder,
		chunker:  NewChunker(opts.ChunkSize, opts.ChunkOverlap),
		opts:     opts,
		logger:   logging.Ensure(opts.Logger),
	}
}

// Index returns the underlying vector index.
func (r *Retriever) Index() vectorindex.Index { return r.index }

// Count returns the number of indexed chunks.
func (r *Retriever) Count(ctx context.Context) (int, error) { return r.index.Count(ctx) }

// Ingest chunks, embeds and upserts docs. Chunk IDs are derived from the
// document ID and chunk position, so ingesting the same documents again
// replaces their chunks in place.
func (r *Retriever) Ingest(ctx context.Context, docs []Document) (IngestStats, error) {
	start := time.Now()
	var stats IngestStats

	var chunks []vectorindex.Chunk
	for _, doc := range docs {
		if r.opts.MaxDocuments > 0 && stats.Documents >= r.opts.MaxDocuments {
			break
		}
		if len([]rune(strings.TrimSpace(doc.Text))) < r.opts.MinDocumentLength {
			stats.Skipped++
			r.logger.Debug("retrieval.ingest.skip", "document_id", doc.DocumentID(), "title", doc.Title)
			continue
		}
		docChunks, dropped := r.chunkDocument(doc)
		stats.Documents++
		stats.DroppedChunks += dropped
		chunks = append(chunks, docChunks...)
	}
	stats.Chunks = len(chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i := 0; i < len(chunks); i += r.opts.BatchSize {
		end := i + r.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]
		stats.Batches++
		g.Go(func() error {
			return r.ingestBatch(gctx, batch)
		})
	}
	err := g.Wait()
	stats.Duration = time.Since(start)
	if err != nil {
		r.logger.Error("retrieval.ingest.failed", "error", err.Error(), "documents", stats.Documents)
		return stats, err
	}

	r.logger.Info("retrieval.ingest.completed",
		"documents", stats.Documents,
		"skipped", stats.Skipped,
		"chunks", stats.Chunks,
		"batches", stats.Batches,
		"duration_ms", stats.Duration.Milliseconds())
	return stats, nil
}

func (r *Retriever) chunkDocument(doc Document) ([]vectorindex.Chunk, int) {
	docID := doc.DocumentID()
	var (
		out     []vectorindex.Chunk
		dropped int
	)
	for n, text := range r.chunker.Split(doc.Text) {
		if len([]rune(strings.TrimSpace(text))) < r.opts.MinChunkLength {
			dropped++
			continue
		}
		meta := make(map[string]string, len(doc.Metadata)+3)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta[MetaTitle] = doc.Title
		meta[MetaURL] = doc.URL
		meta[MetaChunkIndex] = strconv.Itoa(n)
		out = append(out, vectorindex.Chunk{
			ID:               ChunkID(docID, n),
			SourceDocumentID: docID,
			Text:             text,
			Metadata:         meta,
		})
	}
	return out, dropped
}

func (r *Retriever) ingestBatch(ctx context.Context, batch []vectorindex.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	vecs, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embed batch: got %d vectors for %d chunks", len(vecs), len(batch))
	}
	embedded := make([]vectorindex.Chunk, len(batch))
	for i, c := range batch {
		c.Embedding = vecs[i]
		embedded[i] = c
	}
	if err := r.index.Upsert(ctx, embedded); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}

// Query returns up to topK results for text, at most one per source
// document, ordered by descending score with ties broken by chunk ID. An
// empty index yields an empty slice.
func (r *Retriever) Query(ctx context.Context, text string, topK int) ([]Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = r.opts.TopK
	}

	start := time.Now()
	key := strconv.Itoa(topK) + "\x00" + text
	ch := r.group.DoChan(key, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.QueryTimeout)
		defer cancel()
		return r.query(qctx, text, topK)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			r.logger.Warn("retrieval.query.failed", "error", res.Err.Error())
			return nil, res.Err
		}
		results := cloneResults(res.Val.([]Result))
		r.logger.Debug("retrieval.query",
			"top_k", topK,
			"results", len(results),
			"shared", res.Shared,
			"duration_ms", time.Since(start).Milliseconds())
		return results, nil
	}
}

func (r *Retriever) query(ctx context.Context, text string, topK int) ([]Result, error) {
	count, err := r.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count index: %w", err)
	}
	if count == 0 {
		return []Result{}, nil
	}

	vecs, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}

	k := min(topK*r.opts.OverFetch, count)
	for {
		matches, err := r.index.Search(ctx, vecs[0], k)
		if err != nil {
			return nil, fmt.Errorf("search index: %w", err)
		}
		out := rank(matches, topK, r.opts.MinScore)
		if len(out) >= topK || k >= count || len(matches) < k || exhausted(matches, r.opts.MinScore) {
			return out, nil
		}
		k = min(k*2, count)
	}
}

// exhausted reports whether the weakest match already falls under the score
// floor, so a wider search cannot add results.
func exhausted(matches []vectorindex.Match, minScore float32) bool {
	if len(matches) == 0 {
		return true
	}
	weakest := matches[0].Score
	for _, m := range matches[1:] {
		weakest = min(weakest, m.Score)
	}
	return weakest < minScore
}

// rank applies the score floor, keeps the best chunk per source document
// and truncates to k.
func rank(matches []vectorindex.Match, k int, minScore float32) []Result {
	vectorindex.SortMatches(matches)
	seen := make(map[string]struct{}, len(matches))
	out := make([]Result, 0, k)
	for _, m := range matches {
		if m.Score < minScore {
			continue
		}
		if _, dup := seen[m.Chunk.SourceDocumentID]; dup {
			continue
		}
		seen[m.Chunk.SourceDocumentID] = struct{}{}
		out = append(out, resultFromMatch(m))
		if len(out) == k {
			break
		}
	}
	return out
}

func cloneResults(in []Result) []Result {
	out := make([]Result, len(in))
	copy(out, in)
	return out
}

// IngestPath loads every supported file below path and ingests it.
func (r *Retriever) IngestPath(ctx context.Context, path string) (IngestStats, error) {
	docs, err := LoadPath(ctx, path, nil)
	if err != nil {
		return IngestStats{}, err
	}
	return r.Ingest(ctx, docs)
}
