// Package sqlite implements vectorindex.Index on a local SQLite file using the
// pure-Go modernc driver. Embeddings are stored as JSON text and searched with
// in-process brute-force cosine similarity.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/hupe1980/wikiagent/logging"
	"github.com/hupe1980/wikiagent/vectorindex"
)

// Options configures a SQLite index.
type Options struct {
	// Logger receives debug timings for every operation.
	Logger logging.Logger
}

// Index is a vectorindex.Index backed by SQLite.
type Index struct {
	db     *sql.DB
	logger logging.Logger
}

var _ vectorindex.Index = (*Index)(nil)

// New opens (or creates) the database at path and ensures the schema exists.
// Use ":memory:" for a throwaway database. All access goes through a single
// connection so concurrent writers never observe SQLITE_BUSY.
func New(ctx context.Context, path string, optFns ...func(o *Options)) (*Index, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	idx := &Index{db: db, logger: logging.Ensure(opts.Logger)}
	if err := idx.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	idx.logger.Debug("vectorindex.sqlite.opened", "path", path)

	return idx, nil
}

func (x *Index) init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			source_document_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			metadata TEXT,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_document_id)`,
	}
	for _, s := range stmts {
		if _, err := x.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("sqlite: init schema: %w", err)
		}
	}
	return nil
}

// Upsert inserts or replaces chunks in a single transaction.
func (x *Index) Upsert(ctx context.Context, chunks []vectorindex.Chunk) error {
	start := time.Now()

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().Unix()
	for _, c := range chunks {
		if c.ID == "" || len(c.Embedding) == 0 {
			return fmt.Errorf("sqlite: chunk %q: id and embedding are required", c.ID)
		}

		emb, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("sqlite: encode embedding: %w", err)
		}

		var meta *string
		if len(c.Metadata) > 0 {
			data, err := json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("sqlite: encode metadata: %w", err)
			}
			v := string(data)
			meta = &v
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO chunks (id, source_document_id, content, embedding, metadata, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.SourceDocumentID, c.Text, string(emb), meta, now,
		); err != nil {
			x.logger.Error("vectorindex.sqlite.upsert_failed", "chunk_id", c.ID, "error", err)
			return fmt.Errorf("sqlite: insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}

	x.logger.Debug("vectorindex.sqlite.upsert", "chunks", len(chunks), "duration", time.Since(start))

	return nil
}

// Search scans every stored embedding and returns the k best matches.
func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]vectorindex.Match, error) {
	if k <= 0 {
		return []vectorindex.Match{}, nil
	}

	start := time.Now()

	rows, err := x.db.QueryContext(ctx, `SELECT id, source_document_id, content, embedding, metadata FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search: %w", err)
	}
	defer rows.Close()

	matches := []vectorindex.Match{}
	for rows.Next() {
		var (
			c        vectorindex.Chunk
			embJSON  string
			metaJSON sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.SourceDocumentID, &c.Text, &embJSON, &metaJSON); err != nil {
			return nil, fmt.Errorf("sqlite: scan chunk: %w", err)
		}

		var emb []float32
		if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
			continue
		}
		if len(emb) != len(vector) {
			return nil, fmt.Errorf("sqlite: %w: got %d, want %d", vectorindex.ErrDimensionMismatch, len(vector), len(emb))
		}
		if metaJSON.Valid {
			_ = json.Unmarshal([]byte(metaJSON.String), &c.Metadata)
		}

		c.Embedding = emb
		matches = append(matches, vectorindex.Match{Chunk: c, Score: vectorindex.Score(vectorindex.CosineSimilarity(vector, emb))})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate chunks: %w", err)
	}

	vectorindex.SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}

	x.logger.Debug("vectorindex.sqlite.search", "returned", len(matches), "duration", time.Since(start))

	return matches, nil
}

// Count returns the number of stored chunks.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (x *Index) Close() error { return x.db.Close() }
