package openai

import (
	"context"
	"fmt"

	"github.com/hupe1980/wikiagent/model"
	"github.com/openai/openai-go"
)

// EmbedderOptions configure the OpenAI embedding adapter.
type EmbedderOptions struct {
	Model      string
	Dimensions int
	APIKey     string
	BaseURL    string
}

// Embedder wraps the OpenAI Embeddings API behind model.Embedder.
type Embedder struct {
	client *openai.Client
	opts   EmbedderOptions
}

// NewEmbedder creates an Embedder using the official client.
func NewEmbedder(optFns ...func(o *EmbedderOptions)) *Embedder {
	opts := EmbedderOptions{
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := openai.NewClient(clientOptions(opts.APIKey, opts.BaseURL)...)
	return &Embedder{client: &client, opts: opts}
}

// Dimensions implements model.Embedder.
func (e *Embedder) Dimensions() int { return e.opts.Dimensions }

// Embed implements model.Embedder. Results are placed by the index the API
// reports, so the output order always matches texts.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      openai.EmbeddingModel(e.opts.Model),
		Dimensions: openai.Int(int64(e.opts.Dimensions)),
	})
	if err != nil {
		return nil, wrapError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

var _ model.Embedder = (*Embedder)(nil)
