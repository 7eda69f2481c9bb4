package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentx/agentx/internal/knowledge"
)

// RetrievalResult is the outcome of one knowledge base lookup.
// Found is false when no match clears the similarity threshold; that is
// a normal outcome, not an error.
type RetrievalResult struct {
	Matches []knowledge.Match
	Found   bool
}

// SearchIndex is the knowledge store surface retrieval reads from.
type SearchIndex interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Match, error)
}

// Retrieval is the knowledge base lookup tool. It searches the vector
// index and keeps only matches at or above the similarity threshold.
type Retrieval struct {
	index     SearchIndex
	threshold float64
	topK      int
	logger    *slog.Logger
}

// NewRetrieval creates the retrieval tool.
//
// Parameters:
//   - index: vector index to search
//   - threshold: minimum similarity for a match to count, in [0, 1]
//   - topK: number of candidates fetched before threshold filtering
//   - logger: logger for debugging (nil = slog.Default())
func NewRetrieval(index SearchIndex, threshold float64, topK int, logger *slog.Logger) (*Retrieval, error) {
	if index == nil {
		return nil, fmt.Errorf("search index is required")
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("similarity threshold %v outside [0, 1]", threshold)
	}
	if topK < 1 {
		return nil, fmt.Errorf("top-k must be positive, got %d", topK)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrieval{
		index:     index,
		threshold: threshold,
		topK:      topK,
		logger:    logger,
	}, nil
}

// Retrieve looks the query up in the knowledge base. Matches below the
// threshold are dropped; ranked order is preserved for the rest.
func (r *Retrieval) Retrieve(ctx context.Context, query string) (*RetrievalResult, error) {
	matches, err := r.index.Search(ctx, query, knowledge.WithTopK(r.topK))
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}

	filtered := make([]knowledge.Match, 0, len(matches))
	for _, m := range matches {
		if m.Similarity >= r.threshold {
			filtered = append(filtered, m)
		}
	}

	r.logger.Debug("retrieval completed",
		"candidates", len(matches),
		"above_threshold", len(filtered))
	return &RetrievalResult{
		Matches: filtered,
		Found:   len(filtered) > 0,
	}, nil
}
