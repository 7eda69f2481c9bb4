package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/agentx/agentx/internal/knowledge"
)

type mockIndex struct {
	matches []knowledge.Match
	err     error
	queries []string
}

func (m *mockIndex) Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Match, error) {
	m.queries = append(m.queries, query)
	if m.err != nil {
		return nil, m.err
	}
	return m.matches, nil
}

func TestNewRetrievalValidation(t *testing.T) {
	index := &mockIndex{}

	tests := []struct {
		name      string
		index     SearchIndex
		threshold float64
		topK      int
	}{
		{"nil index", nil, 0.7, 3},
		{"negative threshold", index, -0.1, 3},
		{"threshold above one", index, 1.1, 3},
		{"zero topK", index, 0.7, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRetrieval(tt.index, tt.threshold, tt.topK, nil); err == nil {
				t.Error("NewRetrieval() should fail")
			}
		})
	}
}

func TestRetrieveFiltersByThreshold(t *testing.T) {
	index := &mockIndex{
		matches: []knowledge.Match{
			{Chunk: knowledge.Chunk{Content: "strong"}, Similarity: 0.92},
			{Chunk: knowledge.Chunk{Content: "borderline"}, Similarity: 0.70},
			{Chunk: knowledge.Chunk{Content: "weak"}, Similarity: 0.42},
		},
	}
	r, err := NewRetrieval(index, 0.7, 3, nil)
	if err != nil {
		t.Fatalf("NewRetrieval() error: %v", err)
	}

	result, err := r.Retrieve(context.Background(), "query")
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}

	if !result.Found {
		t.Error("found = false with matches above threshold")
	}
	if len(result.Matches) != 2 {
		t.Fatalf("matches = %d, want 2 (threshold is inclusive)", len(result.Matches))
	}
	if result.Matches[0].Chunk.Content != "strong" || result.Matches[1].Chunk.Content != "borderline" {
		t.Error("ranked order not preserved after filtering")
	}
}

func TestRetrieveNoMatchIsNormal(t *testing.T) {
	index := &mockIndex{
		matches: []knowledge.Match{
			{Chunk: knowledge.Chunk{Content: "irrelevant"}, Similarity: 0.3},
		},
	}
	r, err := NewRetrieval(index, 0.7, 3, nil)
	if err != nil {
		t.Fatalf("NewRetrieval() error: %v", err)
	}

	result, err := r.Retrieve(context.Background(), "query")
	if err != nil {
		t.Fatalf("no match must not be an error: %v", err)
	}
	if result.Found {
		t.Error("found = true with all matches below threshold")
	}
	if len(result.Matches) != 0 {
		t.Errorf("matches = %d, want 0", len(result.Matches))
	}
}

func TestRetrieveIndexError(t *testing.T) {
	index := &mockIndex{err: fmt.Errorf("%w: down", knowledge.ErrIndexUnavailable)}
	r, err := NewRetrieval(index, 0.7, 3, nil)
	if err != nil {
		t.Fatalf("NewRetrieval() error: %v", err)
	}

	if _, err := r.Retrieve(context.Background(), "query"); err == nil {
		t.Error("index failure must propagate")
	}
}

func TestFormatRetrievalAnswer(t *testing.T) {
	matches := []knowledge.Match{
		{
			Chunk:    knowledge.Chunk{DocumentID: "doc1", Ordinal: 2, Content: "First fact."},
			Filename: "a.md",
			Locator:  "blobs/do/doc1",
		},
		{
			Chunk:    knowledge.Chunk{DocumentID: "doc2", Ordinal: 0, Content: "Second fact."},
			Filename: "b.md",
		},
	}

	answer, citations := formatRetrievalAnswer(matches)

	if !strings.Contains(answer, "First fact. [1]") || !strings.Contains(answer, "Second fact. [2]") {
		t.Errorf("inline markers missing:\n%s", answer)
	}
	if !strings.Contains(answer, "Sources:") {
		t.Errorf("source list missing:\n%s", answer)
	}

	if len(citations) != 2 {
		t.Fatalf("citations = %d, want 2", len(citations))
	}
	if citations[0].Locator != "blobs/do/doc1" {
		t.Errorf("citation 1 locator = %q, want blob locator", citations[0].Locator)
	}
	// Without a blob locator the citation falls back to document position.
	if citations[1].Locator != "doc2#0" {
		t.Errorf("citation 2 locator = %q, want doc2#0", citations[1].Locator)
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("rate limit exceeded"), true},
		{fmt.Errorf("HTTP 429 Too Many Requests"), true},
		{fmt.Errorf("503 Service Unavailable"), true},
		{fmt.Errorf("connection reset by peer"), true},
		{context.DeadlineExceeded, true},
		{fmt.Errorf("embed query: %w", context.DeadlineExceeded), true},
		{fmt.Errorf("invalid request payload"), false},
		{fmt.Errorf("document not found"), false},
	}
	for _, tt := range tests {
		if got := retryableError(tt.err); got != tt.want {
			t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
