// Package chunker splits extracted document text into overlapping chunks
// sized for the embedding model.
//
// The splitter prefers to cut at natural text boundaries. Separators are
// tried in priority order (paragraph break, line break, sentence end,
// clause, word) and the last occurrence inside the chunk window wins.
// When a window contains none of them, the chunk is hard-cut at the size
// limit. Consecutive chunks share an overlap window so context spanning
// a boundary survives retrieval.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// defaultSeparators in priority order. The trailing empty string is the
// hard-cut fallback: cut exactly at the window edge.
var defaultSeparators = []string{"\n\n", "\n", ". ", ", ", " ", ""}

var (
	// ErrInvalidSize indicates a non-positive chunk size.
	ErrInvalidSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap indicates an overlap that is negative or not
	// smaller than the chunk size.
	ErrInvalidOverlap = errors.New("overlap must be non-negative and smaller than chunk size")
)

// Chunker splits text into overlapping chunks.
// Sizes are measured in runes so multi-byte characters never straddle
// a chunk boundary.
//
// Chunker is safe for concurrent use by multiple goroutines.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// New creates a Chunker with the given window size and overlap, both in runes.
func New(size, overlap int) (*Chunker, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidOverlap, size, overlap)
	}
	return &Chunker{
		size:       size,
		overlap:    overlap,
		separators: defaultSeparators,
	}, nil
}

// Split divides text into chunks of at most the configured size.
//
// Guarantees:
//   - Empty input yields no chunks.
//   - Input no longer than one window yields exactly one chunk, verbatim.
//   - Concatenating the chunks (accounting for the overlap) reproduces the
//     input: no character is lost and order is preserved.
//   - Every chunk is non-empty and at most size runes long.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := c.cutPoint(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))

		// Step back by the overlap, but always make forward progress even
		// when the separator landed inside the overlap window.
		next := cut - c.overlap
		if next <= start {
			next = cut
		}
		start = next
	}

	return chunks
}

// cutPoint returns the rune index to cut at, in (start, end].
// It scans separators by priority and cuts just after the last occurrence
// within the window. The empty-string separator matches unconditionally
// and yields a hard cut at end.
func (c *Chunker) cutPoint(runes []rune, start, end int) int {
	window := string(runes[start:end])

	for _, sep := range c.separators {
		if sep == "" {
			return end
		}
		i := strings.LastIndex(window, sep)
		if i <= 0 {
			// A separator at offset 0 would produce an empty chunk.
			continue
		}
		return start + utf8.RuneCountInString(window[:i+len(sep)])
	}

	return end
}

// Size returns the configured chunk window in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }
