// Package model defines the provider-agnostic abstractions used to talk to
// reasoning and embedding providers.
//
// A Model turns a Request (instructions, prior messages and the tools on
// offer) into a single Response carrying either final text or a batch of
// tool calls. An Embedder maps texts to fixed-width vectors. Vendor adapters
// live in the openai and anthropic subpackages; WithRetry and
// WithEmbeddingRetry add the bounded retry policy shared by all providers.
//
// MockModel and HashEmbedder are deterministic in-memory implementations for
// tests and offline runs.
package model
