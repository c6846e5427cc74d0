package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/hupe1980/wikiagent/vectorindex"
)

var (
	// ErrEmptyQuery is returned by Query for blank input.
	ErrEmptyQuery = errors.New("empty query")

	// ErrUnsupportedFormat is returned by LoadFile for unknown extensions.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// Metadata keys attached to every ingested chunk.
const (
	MetaTitle      = "title"
	MetaURL        = "url"
	MetaChunkIndex = "chunk_index"
	MetaSource     = "source"
)

// Document is a unit of the corpus before chunking.
type Document struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	URL      string            `json:"url"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DocumentID returns the document ID, deriving a stable one from the title
// and text when none is set.
func (d Document) DocumentID() string {
	if d.ID != "" {
		return d.ID
	}
	sum := sha256.Sum256([]byte(d.Title + "\n" + d.Text))
	return hex.EncodeToString(sum[:8])
}

// ChunkID names the n-th chunk of a document.
func ChunkID(docID string, n int) string {
	return docID + "#" + strconv.Itoa(n)
}

// Result is a ranked chunk returned by Query.
type Result struct {
	ChunkID          string            `json:"chunk_id"`
	SourceDocumentID string            `json:"source_document_id"`
	Text             string            `json:"text"`
	Score            float32           `json:"score"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Title returns the source document title, if known.
func (r Result) Title() string { return r.Metadata[MetaTitle] }

// URL returns the source document URL, if known.
func (r Result) URL() string { return r.Metadata[MetaURL] }

func resultFromMatch(m vectorindex.Match) Result {
	var meta map[string]string
	if len(m.Chunk.Metadata) > 0 {
		meta = make(map[string]string, len(m.Chunk.Metadata))
		for k, v := range m.Chunk.Metadata {
			meta[k] = v
		}
	}
	return Result{
		ChunkID:          m.Chunk.ID,
		SourceDocumentID: m.Chunk.SourceDocumentID,
		Text:             m.Chunk.Text,
		Score:            m.Score,
		Metadata:         meta,
	}
}
