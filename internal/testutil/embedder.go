package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"os"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

func lookupAPIKey() (string, bool) {
	key := os.Getenv("GEMINI_API_KEY")
	return key, key != ""
}

// StaticEmbedder is a deterministic ai.Embedder for tests. Vectors are
// derived from the input text, so identical texts always embed to
// identical vectors and distinct texts almost never collide.
type StaticEmbedder struct {
	// Dimensions is the vector width. Zero means 768.
	Dimensions int
}

// Name implements ai.Embedder.
func (e *StaticEmbedder) Name() string { return "testutil/static" }

// Register implements ai.Embedder. The static embedder is passed around
// directly rather than resolved through a registry.
func (e *StaticEmbedder) Register(r api.Registry) {}

// Embed implements ai.Embedder.
func (e *StaticEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	dims := e.Dimensions
	if dims == 0 {
		dims = 768
	}

	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		var text string
		for _, part := range doc.Content {
			text += part.Text
		}

		seed := sha256.Sum256([]byte(text))
		vec := make([]float32, dims)
		for i := range vec {
			// Cycle through the digest, scaled into [0, 1).
			b := seed[(i*4)%len(seed):]
			vec[i] = float32(binary.BigEndian.Uint32(b)%1000) / 1000
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{Embedding: vec})
	}
	return resp, nil
}
