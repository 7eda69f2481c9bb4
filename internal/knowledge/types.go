package knowledge

import (
	"time"
)

// Document represents an ingested source document.
// The ID is the SHA-256 hex fingerprint of the raw bytes, which makes
// duplicate detection a primary-key lookup.
type Document struct {
	ID         string    // content fingerprint (sha256 hex)
	Filename   string    // original filename at upload time
	Locator    string    // blob store locator, empty until the raw bytes are persisted
	Model      string    // embedding model the chunks were indexed with
	ChunkCount int
	CreatedAt  time.Time
}

// Chunk is one contiguous piece of a document's text.
// Identity is (DocumentID, Ordinal); ordinals preserve source order.
type Chunk struct {
	DocumentID string
	Ordinal    int
	Content    string
}

// Match is a single search result.
type Match struct {
	Chunk      Chunk
	Filename   string  // from the owning document, for citations
	Locator    string  // blob locator of the owning document
	Similarity float64 // cosine similarity (0-1)
}

// SearchOption configures search behavior using the functional options pattern.
type SearchOption func(*searchConfig)

// searchConfig holds internal search configuration.
type searchConfig struct {
	topK    int
	timeout time.Duration
}

// WithTopK sets the maximum number of results to return.
// Default is 3 if not specified.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithTimeout bounds the embedding call and the vector query.
// Default is 10 seconds.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		c.timeout = d
	}
}

// buildSearchConfig applies search options and returns the final configuration.
func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    3,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
