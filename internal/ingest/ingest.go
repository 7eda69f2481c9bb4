// Package ingest turns uploaded files into searchable knowledge.
//
// Each document moves through fingerprint, duplicate check, extraction,
// chunking, indexing, and raw-file retention. Embedding and indexing are
// atomic per document; blob retention is best-effort and its failure
// degrades the result instead of failing it.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/agentx/agentx/internal/knowledge"
)

// Status is the terminal state of one ingestion.
type Status string

const (
	// StatusIndexed means the document is fully searchable and its raw
	// bytes are retained.
	StatusIndexed Status = "indexed"

	// StatusDuplicate means a document with the same content fingerprint
	// is already indexed. Nothing was re-processed.
	StatusDuplicate Status = "duplicate"

	// StatusIndexedNoBlob means search works but raw-file retention
	// failed, so citations cannot fetch the original file.
	StatusIndexedNoBlob Status = "indexed_no_blob"
)

// Result reports the outcome of one ingestion.
type Result struct {
	Status        Status `json:"status"`
	DocumentID    string `json:"document_id"`
	ChunksCreated int    `json:"chunks_created"`
}

// Chunker splits extracted text into overlapping segments.
type Chunker interface {
	Split(text string) []string
}

// Extractor turns raw file bytes into text.
type Extractor interface {
	Extract(raw []byte, filename string) (string, error)
}

// Index is the knowledge store surface the pipeline writes to.
type Index interface {
	HasDocument(ctx context.Context, fingerprint string) (bool, error)
	IndexDocument(ctx context.Context, doc knowledge.Document, chunks []string) (int, error)
	SetLocator(ctx context.Context, docID, locator string) error
}

// Blobs retains raw files for citation back-reference.
type Blobs interface {
	Save(ctx context.Context, fingerprint string, raw []byte) (string, error)
}

// Pipeline ingests documents. Safe for concurrent use; concurrent
// ingestions of identical content collapse into one execution.
type Pipeline struct {
	chunker   Chunker
	extractor Extractor
	index     Index
	blobs     Blobs
	logger    *slog.Logger

	group singleflight.Group
}

// New creates a Pipeline.
func New(chunker Chunker, extractor Extractor, index Index, blobs Blobs, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:   chunker,
		extractor: extractor,
		index:     index,
		blobs:     blobs,
		logger:    logger,
	}
}

// Fingerprint computes the content identity of raw bytes. Duplicate
// detection keys on this, never on the filename.
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Ingest processes one uploaded file end to end.
//
// Identical content submitted concurrently is processed once; the other
// callers share that execution's result. Re-submitting already indexed
// content returns StatusDuplicate without re-processing.
func (p *Pipeline) Ingest(ctx context.Context, raw []byte, filename string) (*Result, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("ingest %q: empty file", filename)
	}

	fingerprint := Fingerprint(raw)

	v, err, shared := p.group.Do(fingerprint, func() (any, error) {
		// The flight may serve several uploaders; one caller hanging up
		// must not fail the shared execution.
		return p.ingest(context.WithoutCancel(ctx), fingerprint, raw, filename)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		p.logger.Debug("ingest shared with concurrent identical upload",
			"fingerprint", fingerprint)
	}
	return v.(*Result), nil
}

func (p *Pipeline) ingest(ctx context.Context, fingerprint string, raw []byte, filename string) (*Result, error) {
	exists, err := p.index.HasDocument(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("duplicate check for %q: %w", filename, err)
	}
	if exists {
		p.logger.Info("skipping duplicate document",
			"filename", filename, "fingerprint", fingerprint)
		return &Result{Status: StatusDuplicate, DocumentID: fingerprint}, nil
	}

	text, err := p.extractor.Extract(raw, filename)
	if err != nil {
		return nil, fmt.Errorf("ingest %q: %w", filename, err)
	}

	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingest %q: no text content", filename)
	}

	doc := knowledge.Document{
		ID:       fingerprint,
		Filename: filename,
	}
	created, err := p.index.IndexDocument(ctx, doc, chunks)
	if err != nil {
		return nil, fmt.Errorf("ingest %q: %w", filename, err)
	}

	// Retention failure after successful indexing is a degraded success:
	// search works, the original file is just not retrievable.
	locator, err := p.blobs.Save(ctx, fingerprint, raw)
	if err != nil {
		p.logger.Warn("indexed but raw-file retention failed",
			"filename", filename, "fingerprint", fingerprint, "error", err)
		return &Result{
			Status:        StatusIndexedNoBlob,
			DocumentID:    fingerprint,
			ChunksCreated: created,
		}, nil
	}
	if err := p.index.SetLocator(ctx, fingerprint, locator); err != nil {
		p.logger.Warn("blob stored but locator not recorded",
			"fingerprint", fingerprint, "error", err)
		return &Result{
			Status:        StatusIndexedNoBlob,
			DocumentID:    fingerprint,
			ChunksCreated: created,
		}, nil
	}

	p.logger.Info("ingested document",
		"filename", filename,
		"fingerprint", fingerprint,
		"chunks", created)
	return &Result{
		Status:        StatusIndexed,
		DocumentID:    fingerprint,
		ChunksCreated: created,
	}, nil
}
