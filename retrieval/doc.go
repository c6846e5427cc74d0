// Package retrieval turns a document corpus into searchable chunks and
// answers top-k knowledge queries.
//
// Ingestion loads documents (JSONL, HTML, Markdown, PDF, plain text), splits
// them with a recursive character Chunker, embeds the chunks in batches and
// upserts them into a vectorindex.Index. Queries embed the question, search
// the index with over-fetch and return at most one chunk per source
// document, ranked by descending score.
package retrieval
