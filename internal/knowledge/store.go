package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrIndexUnavailable indicates the vector index could not be reached or
// failed mid-operation. Check with errors.Is().
var ErrIndexUnavailable = errors.New("index unavailable")

// Querier defines the database operations Store needs.
// Following Go convention, the interface is defined by the consumer
// (like io.Reader, http.RoundTripper), so tests can substitute a mock.
type Querier interface {
	InsertDocument(ctx context.Context, arg InsertDocumentParams) error
	UpsertChunk(ctx context.Context, arg UpsertChunkParams) error
	DocumentExists(ctx context.Context, id string) (bool, error)
	SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error)
	UpdateDocumentLocator(ctx context.Context, arg UpdateDocumentLocatorParams) error
	CountChunks(ctx context.Context) (int64, error)
	ListDocuments(ctx context.Context, limit int32) ([]DocumentRow, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Store manages document chunks with vector search over PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	pool     *pgxpool.Pool // transaction support; nil in unit tests
	embedder *Embedder
	logger   *slog.Logger
}

// NewStore creates a Store.
//
// Parameters:
//   - querier: database querier implementing Querier
//   - pool: PostgreSQL connection pool (nil disables transactions, tests only)
//   - embedder: embedder with pinned model identity
//   - logger: logger for debugging (nil = slog.Default())
func NewStore(querier Querier, pool *pgxpool.Pool, embedder *Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:  querier,
		pool:     pool,
		embedder: embedder,
		logger:   logger,
	}
}

// Model returns the embedding model this store indexes with.
func (s *Store) Model() string {
	return s.embedder.Model()
}

// HasDocument reports whether a document with the given content
// fingerprint is already indexed.
func (s *Store) HasDocument(ctx context.Context, fingerprint string) (bool, error) {
	exists, err := s.queries.DocumentExists(ctx, fingerprint)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return exists, nil
}

// IndexDocument embeds the chunks and stores the document with all its
// chunks in a single transaction: either every chunk becomes searchable
// or none does. Returns the number of chunks indexed.
//
// The embedding call happens before the transaction opens so an embedding
// failure never leaves a partial document behind.
func (s *Store) IndexDocument(ctx context.Context, doc Document, chunks []string) (int, error) {
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document %q has no chunks", doc.ID)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding %d chunks for %q: %w", len(chunks), doc.ID, err)
	}

	if s.pool == nil {
		return s.indexNonTransactional(ctx, doc, chunks, vectors)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin transaction: %v", ErrIndexUnavailable, err)
	}
	// Rollback is a no-op after commit; log for debugging only.
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			s.logger.Debug("transaction rollback (may be already committed)", "error", err)
		}
	}()

	txQueries := NewQueries(tx)

	if err := txQueries.InsertDocument(ctx, InsertDocumentParams{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Locator:    doc.Locator,
		Model:      s.embedder.Model(),
		ChunkCount: int32(len(chunks)), // #nosec G115 -- bounded by chunk count of one document
	}); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	for i, content := range chunks {
		embedding := pgvector.NewVector(vectors[i])
		if err := txQueries.UpsertChunk(ctx, UpsertChunkParams{
			DocumentID: doc.ID,
			Ordinal:    int32(i), // #nosec G115 -- loop index bounded by slice length
			Content:    content,
			Embedding:  &embedding,
		}); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", ErrIndexUnavailable, err)
	}

	s.logger.Debug("indexed document",
		"id", doc.ID, "filename", doc.Filename, "chunks", len(chunks))
	return len(chunks), nil
}

// indexNonTransactional indexes without a transaction (for testing with mocks).
// Production code always goes through the transactional path.
func (s *Store) indexNonTransactional(ctx context.Context, doc Document, chunks []string, vectors [][]float32) (int, error) {
	if err := s.queries.InsertDocument(ctx, InsertDocumentParams{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Locator:    doc.Locator,
		Model:      s.embedder.Model(),
		ChunkCount: int32(len(chunks)), // #nosec G115 -- bounded by chunk count of one document
	}); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	for i, content := range chunks {
		embedding := pgvector.NewVector(vectors[i])
		if err := s.queries.UpsertChunk(ctx, UpsertChunkParams{
			DocumentID: doc.ID,
			Ordinal:    int32(i), // #nosec G115 -- loop index bounded by slice length
			Content:    content,
			Embedding:  &embedding,
		}); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
		}
	}

	return len(chunks), nil
}

// SetLocator records the blob locator for an already indexed document.
func (s *Store) SetLocator(ctx context.Context, docID, locator string) error {
	if err := s.queries.UpdateDocumentLocator(ctx, UpdateDocumentLocatorParams{
		ID:      docID,
		Locator: locator,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// Search embeds the query and returns the most similar chunks, ordered by
// similarity with a deterministic tie-break. Results always come from the
// same embedding model the store indexes with.
//
// Example:
//
//	matches, err := store.Search(ctx, "reactor maintenance intervals",
//	    knowledge.WithTopK(3))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Match, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vector, err := s.embedder.EmbedText(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timed out: %w", err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	queryEmbedding := pgvector.NewVector(vector)
	rows, err := s.queries.SearchChunks(queryCtx, SearchChunksParams{
		QueryEmbedding: &queryEmbedding,
		Model:          s.embedder.Model(),
		ResultLimit:    int32(cfg.topK), // #nosec G115 -- topK validated by config
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timed out: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, Match{
			Chunk: Chunk{
				DocumentID: row.DocumentID,
				Ordinal:    int(row.Ordinal),
				Content:    row.Content,
			},
			Filename:   row.Filename,
			Locator:    row.Locator,
			Similarity: row.Similarity,
		})
	}
	return matches, nil
}

// Count returns the number of indexed chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	count, err := s.queries.CountChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	// Overflow protection for 32-bit platforms.
	if count > math.MaxInt {
		return 0, fmt.Errorf("chunk count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// ListDocuments returns indexed documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, limit int32) ([]Document, error) {
	const maxListLimit = 1000
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", maxListLimit, limit)
	}

	rows, err := s.queries.ListDocuments(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc := Document{
			ID:         row.ID,
			Filename:   row.Filename,
			Locator:    row.Locator,
			Model:      row.Model,
			ChunkCount: int(row.ChunkCount),
		}
		if row.CreatedAt.Valid {
			doc.CreatedAt = row.CreatedAt.Time
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Delete removes a document and all its chunks.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if err := s.queries.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	s.logger.Debug("deleted document", "id", docID)
	return nil
}
