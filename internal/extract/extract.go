// Package extract converts uploaded files into plain text for chunking.
//
// Extraction failures are fatal for the one document being ingested and
// are never retried. The Extractor interface keeps the ingestion pipeline
// open to richer formats (PDF, HTML) without touching pipeline code.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnsupported indicates a file format no extractor can handle.
var ErrUnsupported = errors.New("unsupported file format")

// Error describes why extraction of a specific file failed.
type Error struct {
	Filename string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %q: %s: %v", e.Filename, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %q: %s", e.Filename, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extractor turns raw file bytes into text.
type Extractor interface {
	// Extract returns the text content of the file. The filename carries
	// the format hint (extension).
	Extract(raw []byte, filename string) (string, error)
}

// utf8BOM is stripped from text files that carry it.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Text extracts plain-text family formats. Markdown passes through
// verbatim so chunk boundaries keep the author's structure markers.
type Text struct{}

// NewText creates a plain-text extractor.
func NewText() *Text {
	return &Text{}
}

var textExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
	".log":      true,
}

// Extract validates the file is UTF-8 text and returns it with line
// endings normalized to \n.
func (t *Text) Extract(raw []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !textExtensions[ext] {
		return "", &Error{Filename: filename, Reason: fmt.Sprintf("extension %q", ext), Err: ErrUnsupported}
	}

	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return "", &Error{Filename: filename, Reason: "content is not valid UTF-8"}
	}
	if bytes.IndexByte(raw, 0) >= 0 {
		return "", &Error{Filename: filename, Reason: "content contains NUL bytes"}
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	return text, nil
}
