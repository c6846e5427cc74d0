// Package postgres implements vectorindex.Index on PostgreSQL with the
// pgvector extension.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/hupe1980/wikiagent/logging"
	"github.com/hupe1980/wikiagent/vectorindex"
)

var validTable = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Options configures an Index.
type Options struct {
	// Table holding the chunks.
	Table string

	// CreateExtension runs CREATE EXTENSION IF NOT EXISTS vector on startup.
	CreateExtension bool

	Logger logging.Logger
}

// Index is a vectorindex.Index backed by a pgx connection pool.
type Index struct {
	pool   *pgxpool.Pool
	table  string
	dims   int
	logger logging.Logger
}

var _ vectorindex.Index = (*Index)(nil)

// New connects to dsn and ensures the chunk table exists with a vector column
// of the given dimension.
func New(ctx context.Context, dsn string, dims int, optFns ...func(o *Options)) (*Index, error) {
	opts := Options{Table: "wikiagent_chunks", CreateExtension: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	if !validTable.MatchString(opts.Table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", opts.Table)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("postgres: dimension must be positive")
	}

	logger := logging.Ensure(opts.Logger)

	if opts.CreateExtension {
		// types can only be registered once the extension exists
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres: connect: %w", err)
		}
		_, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
		_ = conn.Close(ctx)
		if err != nil {
			return nil, fmt.Errorf("postgres: create vector extension: %w", err)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}

	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	idx := &Index{pool: pool, table: opts.Table, dims: dims, logger: logger}
	if err := idx.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return idx, nil
}

func (x *Index) init(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		source_document_id TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		metadata JSONB,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, x.ident(), x.dims)

	if _, err := x.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}

	return nil
}

func (x *Index) ident() string { return pgx.Identifier{x.table}.Sanitize() }

// Upsert writes all chunks in one batch.
func (x *Index) Upsert(ctx context.Context, chunks []vectorindex.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	start := time.Now()

	stmt := fmt.Sprintf(`INSERT INTO %s (id, source_document_id, content, embedding, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			source_document_id = EXCLUDED.source_document_id,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()`, x.ident())

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if c.ID == "" || len(c.Embedding) != x.dims {
			return fmt.Errorf("postgres: chunk %q: %w: got %d, want %d", c.ID, vectorindex.ErrDimensionMismatch, len(c.Embedding), x.dims)
		}
		batch.Queue(stmt, c.ID, c.SourceDocumentID, c.Text, pgvector.NewVector(c.Embedding), c.Metadata)
	}

	if err := x.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: upsert %d chunks: %w", len(chunks), err)
	}

	x.logger.Debug("vectorindex.postgres.upsert", "chunks", len(chunks), "duration", time.Since(start))

	return nil
}

// Search orders by cosine distance using the <=> operator.
func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]vectorindex.Match, error) {
	if k <= 0 {
		return []vectorindex.Match{}, nil
	}
	if len(vector) != x.dims {
		return nil, fmt.Errorf("postgres: query: %w: got %d, want %d", vectorindex.ErrDimensionMismatch, len(vector), x.dims)
	}

	query := fmt.Sprintf(`SELECT id, source_document_id, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1, id
		LIMIT $2`, x.ident())

	rows, err := x.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("postgres: search: %w", err)
	}
	defer rows.Close()

	matches := []vectorindex.Match{}
	for rows.Next() {
		var (
			c          vectorindex.Chunk
			similarity float64
		)
		if err := rows.Scan(&c.ID, &c.SourceDocumentID, &c.Text, &c.Metadata, &similarity); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		matches = append(matches, vectorindex.Match{Chunk: c, Score: vectorindex.Score(float32(similarity))})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate: %w", err)
	}

	vectorindex.SortMatches(matches)

	return matches, nil
}

// Count returns the number of stored chunks.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, x.ident())).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

// Close closes the pool.
func (x *Index) Close() error {
	x.pool.Close()
	return nil
}
