// Package qdrant implements vectorindex.Index on a Qdrant collection reached
// over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/hupe1980/wikiagent/logging"
	"github.com/hupe1980/wikiagent/vectorindex"
)

// chunk ids are hashed into this namespace to get stable point ids
var pointNamespace = uuid.MustParse("6f1c3c1e-8a43-4f53-9a8e-0b1f6d4b2a11")

// Config holds connection settings.
type Config struct {
	URL        string // e.g. "http://localhost:6333" or "https://xyz.cloud.qdrant.io:6334"
	APIKey     string
	Collection string
	Dims       uint64
}

// Options configures an Index.
type Options struct {
	Logger logging.Logger
}

// Index is a vectorindex.Index backed by Qdrant.
type Index struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     logging.Logger
}

var _ vectorindex.Index = (*Index)(nil)

// parseURL extracts host, gRPC port and TLS flag. The REST port 6333 is
// mapped to the gRPC port 6334.
func parseURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("qdrant: invalid URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()
	port = 6334

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("qdrant: invalid port in URL: %q", portStr)
		}
		if p != 6333 {
			port = p
		}
	}

	return host, port, useTLS, nil
}

// New creates an Index. The gRPC connection is established lazily; call
// EnsureCollection before first use.
func New(cfg Config, optFns ...func(o *Options)) (*Index, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}

	host, port, useTLS, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect to %s:%d: %w", host, port, err)
	}

	return &Index{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		logger:     logging.Ensure(opts.Logger),
	}, nil
}

// EnsureCollection creates the collection with cosine distance if missing.
func (x *Index) EnsureCollection(ctx context.Context) error {
	exists, err := x.client.CollectionExists(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection exists: %w", err)
	}
	if exists {
		return nil
	}

	if x.dims == 0 {
		return fmt.Errorf("qdrant: collection %q missing and no dimension configured", x.collection)
	}

	if err := x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     x.dims,
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		return fmt.Errorf("qdrant: create collection %q: %w", x.collection, err)
	}

	keyword := qdrant.FieldType_FieldTypeKeyword
	if _, err := x.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: x.collection,
		FieldName:      "source_document_id",
		FieldType:      &keyword,
	}); err != nil {
		return fmt.Errorf("qdrant: index source_document_id: %w", err)
	}

	x.logger.Info("vectorindex.qdrant.collection_created", "collection", x.collection, "dims", x.dims)

	return nil
}

// PointID derives the stable Qdrant point id of a chunk id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// Upsert writes chunks and waits for the write to be applied.
func (x *Index) Upsert(ctx context.Context, chunks []vectorindex.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		if c.ID == "" || len(c.Embedding) == 0 {
			return fmt.Errorf("qdrant: chunk %q: id and embedding are required", c.ID)
		}

		meta := make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			meta[k] = v
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(c.ID)),
			Vectors: qdrant.NewVectorsDense(c.Embedding),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":           c.ID,
				"source_document_id": c.SourceDocumentID,
				"text":               c.Text,
				"metadata":           meta,
			}),
		}
	}

	if _, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: x.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant: upsert %d points: %w", len(points), err)
	}

	return nil
}

// Search runs a dense cosine query.
func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]vectorindex.Match, error) {
	if k <= 0 {
		return []vectorindex.Match{}, nil
	}

	limit := uint64(k) //nolint:gosec // k > 0
	scored, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: x.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query: %w", err)
	}

	matches := make([]vectorindex.Match, 0, len(scored))
	for _, sp := range scored {
		payload := sp.GetPayload()

		c := vectorindex.Chunk{
			ID:               payload["chunk_id"].GetStringValue(),
			SourceDocumentID: payload["source_document_id"].GetStringValue(),
			Text:             payload["text"].GetStringValue(),
		}
		if c.ID == "" {
			x.logger.Warn("vectorindex.qdrant.point_without_chunk_id", "point_id", sp.GetId().GetUuid())
			continue
		}

		if fields := payload["metadata"].GetStructValue().GetFields(); len(fields) > 0 {
			c.Metadata = make(map[string]string, len(fields))
			for k, v := range fields {
				c.Metadata[k] = v.GetStringValue()
			}
		}

		matches = append(matches, vectorindex.Match{Chunk: c, Score: vectorindex.Score(sp.GetScore())})
	}

	vectorindex.SortMatches(matches)

	return matches, nil
}

// Count returns the exact number of points in the collection.
func (x *Index) Count(ctx context.Context) (int, error) {
	n, err := x.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: x.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count: %w", err)
	}
	return int(n), nil //nolint:gosec // collection sizes fit in int
}

// Close shuts down the gRPC connection.
func (x *Index) Close() error { return x.client.Close() }
