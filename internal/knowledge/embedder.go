package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
)

// ErrEmbedding indicates the embedding service failed or returned an
// unusable response. Callers decide whether to retry; see agent retry policy.
var ErrEmbedding = errors.New("embedding service failure")

// Embedder wraps a Genkit ai.Embedder together with its model identity.
// Pinning the model name here lets the index reject searches against
// vectors produced by a different model.
type Embedder struct {
	embedder ai.Embedder
	model    string
}

// NewEmbedder creates an Embedder for the given model.
func NewEmbedder(embedder ai.Embedder, model string) *Embedder {
	return &Embedder{embedder: embedder, model: model}
}

// Model returns the embedding model identity.
func (e *Embedder) Model() string {
	return e.model
}

// EmbedText embeds a single text and returns its vector.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request. The returned slice is
// positionally aligned with the input: vectors[i] embeds texts[i].
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	input := make([]*ai.Document, len(texts))
	for i, text := range texts {
		input[i] = &ai.Document{
			Content: []*ai.Part{ai.NewTextPart(text)},
		}
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrEmbedding, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrEmbedding, i)
		}
		vectors[i] = emb.Embedding
	}

	return vectors, nil
}
