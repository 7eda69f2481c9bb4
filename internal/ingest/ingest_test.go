package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/agentx/agentx/internal/extract"
	"github.com/agentx/agentx/internal/knowledge"
)

type mockChunker struct{}

func (mockChunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "|")
}

type mockExtractor struct {
	err error
}

func (m *mockExtractor) Extract(raw []byte, filename string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return string(raw), nil
}

type mockIndex struct {
	mu sync.Mutex

	exists     bool
	existsErr  error
	indexErr   error
	locatorErr error

	indexCalls   atomic.Int64
	lastDoc      knowledge.Document
	lastChunks   []string
	lastLocator  string
	locatorCalls int
}

func (m *mockIndex) HasDocument(ctx context.Context, fingerprint string) (bool, error) {
	return m.exists, m.existsErr
}

func (m *mockIndex) IndexDocument(ctx context.Context, doc knowledge.Document, chunks []string) (int, error) {
	m.indexCalls.Add(1)
	m.mu.Lock()
	m.lastDoc = doc
	m.lastChunks = chunks
	m.mu.Unlock()
	if m.indexErr != nil {
		return 0, m.indexErr
	}
	return len(chunks), nil
}

func (m *mockIndex) SetLocator(ctx context.Context, docID, locator string) error {
	m.mu.Lock()
	m.locatorCalls++
	m.lastLocator = locator
	m.mu.Unlock()
	return m.locatorErr
}

type mockBlobs struct {
	err       error
	saveCalls atomic.Int64
}

func (m *mockBlobs) Save(ctx context.Context, fingerprint string, raw []byte) (string, error) {
	m.saveCalls.Add(1)
	if m.err != nil {
		return "", m.err
	}
	return "blobs/" + fingerprint[:2] + "/" + fingerprint, nil
}

func newTestPipeline(index *mockIndex, blobs *mockBlobs, extractor *mockExtractor) *Pipeline {
	return New(mockChunker{}, extractor, index, blobs, nil)
}

func TestIngest(t *testing.T) {
	index := &mockIndex{}
	blobs := &mockBlobs{}
	p := newTestPipeline(index, blobs, &mockExtractor{})

	raw := []byte("chunk a|chunk b|chunk c")
	result, err := p.Ingest(context.Background(), raw, "notes.txt")
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	if result.Status != StatusIndexed {
		t.Errorf("status = %q, want %q", result.Status, StatusIndexed)
	}
	if result.ChunksCreated != 3 {
		t.Errorf("chunks created = %d, want 3", result.ChunksCreated)
	}
	if result.DocumentID != Fingerprint(raw) {
		t.Errorf("document id = %q, want content fingerprint", result.DocumentID)
	}

	if index.lastDoc.Filename != "notes.txt" {
		t.Errorf("indexed filename = %q", index.lastDoc.Filename)
	}
	if len(index.lastChunks) != 3 {
		t.Errorf("indexed %d chunks, want 3", len(index.lastChunks))
	}
	if index.locatorCalls != 1 || index.lastLocator == "" {
		t.Error("blob locator not recorded on the document")
	}
}

func TestIngestDuplicate(t *testing.T) {
	index := &mockIndex{exists: true}
	blobs := &mockBlobs{}
	p := newTestPipeline(index, blobs, &mockExtractor{})

	result, err := p.Ingest(context.Background(), []byte("same bytes"), "renamed.txt")
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	if result.Status != StatusDuplicate {
		t.Errorf("status = %q, want %q", result.Status, StatusDuplicate)
	}
	if result.ChunksCreated != 0 {
		t.Errorf("chunks created = %d, want 0", result.ChunksCreated)
	}
	if index.indexCalls.Load() != 0 {
		t.Error("duplicate must not be re-indexed")
	}
	if blobs.saveCalls.Load() != 0 {
		t.Error("duplicate must not be re-stored")
	}
}

func TestIngestExtractionFailure(t *testing.T) {
	index := &mockIndex{}
	extractErr := &extract.Error{Filename: "img.png", Reason: "extension", Err: extract.ErrUnsupported}
	p := newTestPipeline(index, &mockBlobs{}, &mockExtractor{err: extractErr})

	_, err := p.Ingest(context.Background(), []byte("binary"), "img.png")
	if !errors.Is(err, extract.ErrUnsupported) {
		t.Errorf("Ingest() error = %v, want ErrUnsupported", err)
	}
	if index.indexCalls.Load() != 0 {
		t.Error("extraction failure must not reach the index")
	}
}

func TestIngestIndexFailure(t *testing.T) {
	index := &mockIndex{indexErr: fmt.Errorf("%w: down", knowledge.ErrIndexUnavailable)}
	blobs := &mockBlobs{}
	p := newTestPipeline(index, blobs, &mockExtractor{})

	_, err := p.Ingest(context.Background(), []byte("a|b"), "doc.txt")
	if !errors.Is(err, knowledge.ErrIndexUnavailable) {
		t.Errorf("Ingest() error = %v, want ErrIndexUnavailable", err)
	}
	if blobs.saveCalls.Load() != 0 {
		t.Error("failed ingestion must not retain the raw file")
	}
}

func TestIngestBlobFailureDegrades(t *testing.T) {
	index := &mockIndex{}
	blobs := &mockBlobs{err: fmt.Errorf("disk full")}
	p := newTestPipeline(index, blobs, &mockExtractor{})

	result, err := p.Ingest(context.Background(), []byte("a|b"), "doc.txt")
	if err != nil {
		t.Fatalf("blob failure must degrade, not fail: %v", err)
	}
	if result.Status != StatusIndexedNoBlob {
		t.Errorf("status = %q, want %q", result.Status, StatusIndexedNoBlob)
	}
	if result.ChunksCreated != 2 {
		t.Errorf("chunks created = %d, want 2", result.ChunksCreated)
	}
}

func TestIngestLocatorFailureDegrades(t *testing.T) {
	index := &mockIndex{locatorErr: fmt.Errorf("connection lost")}
	p := newTestPipeline(index, &mockBlobs{}, &mockExtractor{})

	result, err := p.Ingest(context.Background(), []byte("a"), "doc.txt")
	if err != nil {
		t.Fatalf("locator failure must degrade, not fail: %v", err)
	}
	if result.Status != StatusIndexedNoBlob {
		t.Errorf("status = %q, want %q", result.Status, StatusIndexedNoBlob)
	}
}

func TestIngestEmptyFile(t *testing.T) {
	p := newTestPipeline(&mockIndex{}, &mockBlobs{}, &mockExtractor{})

	if _, err := p.Ingest(context.Background(), nil, "empty.txt"); err == nil {
		t.Error("Ingest() of empty file should fail")
	}
}

func TestFingerprintIgnoresFilename(t *testing.T) {
	raw := []byte("identical content")
	if Fingerprint(raw) != Fingerprint([]byte("identical content")) {
		t.Error("same bytes must produce the same fingerprint")
	}
	if Fingerprint(raw) == Fingerprint([]byte("different content")) {
		t.Error("different bytes must produce different fingerprints")
	}
	if len(Fingerprint(raw)) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(Fingerprint(raw)))
	}
}

// ctxAwareIndex fails any operation whose context is already done, the way
// a real pgx query would.
type ctxAwareIndex struct {
	mockIndex
}

func (m *ctxAwareIndex) HasDocument(ctx context.Context, fingerprint string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return m.mockIndex.HasDocument(ctx, fingerprint)
}

func (m *ctxAwareIndex) IndexDocument(ctx context.Context, doc knowledge.Document, chunks []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.mockIndex.IndexDocument(ctx, doc, chunks)
}

func TestIngestSurvivesCallerCancellation(t *testing.T) {
	index := &ctxAwareIndex{}
	p := New(mockChunker{}, &mockExtractor{}, index, &mockBlobs{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The flight may be shared with concurrent identical uploads, so one
	// uploader disconnecting must not poison the execution for the rest.
	result, err := p.Ingest(ctx, []byte("a|b"), "doc.txt")
	if err != nil {
		t.Fatalf("Ingest() with cancelled caller context: %v", err)
	}
	if result.Status != StatusIndexed {
		t.Errorf("status = %q, want %q", result.Status, StatusIndexed)
	}
	if index.indexCalls.Load() != 1 {
		t.Errorf("IndexDocument called %d times, want 1", index.indexCalls.Load())
	}
}

func TestIngestConcurrentIdenticalContent(t *testing.T) {
	defer goleak.VerifyNone(t)

	index := &mockIndex{}
	blobs := &mockBlobs{}
	p := newTestPipeline(index, blobs, &mockExtractor{})

	raw := []byte("shared|content")
	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := p.Ingest(context.Background(), raw, "same.txt")
			if err != nil {
				t.Errorf("concurrent Ingest() error: %v", err)
				return
			}
			results[i] = result
		}()
	}
	wg.Wait()

	// singleflight collapses concurrent identical uploads; later waves
	// may run again but every caller must get a usable result.
	if calls := index.indexCalls.Load(); calls > 8 {
		t.Errorf("IndexDocument called %d times for 8 identical uploads", calls)
	}
	for i, r := range results {
		if r == nil {
			t.Fatalf("result %d missing", i)
		}
		if r.Status != StatusIndexed && r.Status != StatusDuplicate {
			t.Errorf("result %d status = %q", i, r.Status)
		}
	}
}
