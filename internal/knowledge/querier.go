package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// DBTX is the subset of pgx operations the query layer needs.
// Both *pgxpool.Pool and pgx.Tx satisfy it, so the same queries run inside
// and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries executes the SQL for the documents and chunks tables.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries bound to the given connection or transaction.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// InsertDocumentParams holds parameters for InsertDocument.
type InsertDocumentParams struct {
	ID         string
	Filename   string
	Locator    string
	Model      string
	ChunkCount int32
}

const insertDocument = `
INSERT INTO documents (id, filename, locator, embedding_model, chunk_count)
VALUES ($1, $2, $3, $4, $5)
`

// InsertDocument inserts a document row. The caller guarantees the ID is
// new (duplicate detection happens before ingestion starts).
func (q *Queries) InsertDocument(ctx context.Context, arg InsertDocumentParams) error {
	_, err := q.db.Exec(ctx, insertDocument,
		arg.ID, arg.Filename, arg.Locator, arg.Model, arg.ChunkCount)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// UpsertChunkParams holds parameters for UpsertChunk.
type UpsertChunkParams struct {
	DocumentID string
	Ordinal    int32
	Content    string
	Embedding  *pgvector.Vector
}

const upsertChunk = `
INSERT INTO chunks (document_id, ordinal, content, embedding)
VALUES ($1, $2, $3, $4)
ON CONFLICT (document_id, ordinal)
DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding
`

// UpsertChunk inserts or replaces a chunk keyed by (document_id, ordinal).
// Re-indexing the same position replaces stored content and vector, so
// retried ingestion never produces duplicate chunks.
func (q *Queries) UpsertChunk(ctx context.Context, arg UpsertChunkParams) error {
	_, err := q.db.Exec(ctx, upsertChunk,
		arg.DocumentID, arg.Ordinal, arg.Content, arg.Embedding)
	if err != nil {
		return fmt.Errorf("upsert chunk %d of %s: %w", arg.Ordinal, arg.DocumentID, err)
	}
	return nil
}

const documentExists = `
SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)
`

// DocumentExists reports whether a document with the given fingerprint
// is already indexed.
func (q *Queries) DocumentExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := q.db.QueryRow(ctx, documentExists, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check document exists: %w", err)
	}
	return exists, nil
}

// SearchChunksParams holds parameters for SearchChunks.
type SearchChunksParams struct {
	QueryEmbedding *pgvector.Vector
	Model          string
	ResultLimit    int32
}

// SearchChunksRow is one row of the similarity search result.
type SearchChunksRow struct {
	DocumentID string
	Ordinal    int32
	Content    string
	Filename   string
	Locator    string
	Similarity float64
}

// Cosine distance via <=>; similarity = 1 - distance.
// The model filter guarantees query and stored vectors share one embedding
// space. Ties are broken by (document_id, ordinal) for deterministic order.
const searchChunks = `
SELECT c.document_id, c.ordinal, c.content, d.filename, d.locator,
       1 - (c.embedding <=> $1) AS similarity
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE d.embedding_model = $2
ORDER BY similarity DESC, c.document_id, c.ordinal
LIMIT $3
`

// SearchChunks runs a cosine similarity search over all chunks indexed
// with the given model.
func (q *Queries) SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error) {
	rows, err := q.db.Query(ctx, searchChunks,
		arg.QueryEmbedding, arg.Model, arg.ResultLimit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchChunksRow
	for rows.Next() {
		var row SearchChunksRow
		if err := rows.Scan(&row.DocumentID, &row.Ordinal, &row.Content,
			&row.Filename, &row.Locator, &row.Similarity); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

// UpdateDocumentLocatorParams holds parameters for UpdateDocumentLocator.
type UpdateDocumentLocatorParams struct {
	ID      string
	Locator string
}

const updateDocumentLocator = `
UPDATE documents SET locator = $2 WHERE id = $1
`

// UpdateDocumentLocator records the blob locator after the raw bytes are
// persisted. Runs after indexing so a blob failure leaves a searchable
// document with an empty locator.
func (q *Queries) UpdateDocumentLocator(ctx context.Context, arg UpdateDocumentLocatorParams) error {
	_, err := q.db.Exec(ctx, updateDocumentLocator, arg.ID, arg.Locator)
	if err != nil {
		return fmt.Errorf("update document locator: %w", err)
	}
	return nil
}

const countChunks = `
SELECT COUNT(*) FROM chunks
`

// CountChunks returns the total number of indexed chunks.
func (q *Queries) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	if err := q.db.QueryRow(ctx, countChunks).Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// DocumentRow is one row of the document listing.
type DocumentRow struct {
	ID         string
	Filename   string
	Locator    string
	Model      string
	ChunkCount int32
	CreatedAt  pgtype.Timestamptz
}

const listDocuments = `
SELECT id, filename, locator, embedding_model, chunk_count, created_at
FROM documents
ORDER BY created_at DESC
LIMIT $1
`

// ListDocuments returns documents ordered by creation time, newest first.
func (q *Queries) ListDocuments(ctx context.Context, limit int32) ([]DocumentRow, error) {
	rows, err := q.db.Query(ctx, listDocuments, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var results []DocumentRow
	for rows.Next() {
		var row DocumentRow
		if err := rows.Scan(&row.ID, &row.Filename, &row.Locator,
			&row.Model, &row.ChunkCount, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return results, nil
}

const deleteDocument = `
DELETE FROM documents WHERE id = $1
`

// DeleteDocument deletes a document; chunks go with it via ON DELETE CASCADE.
func (q *Queries) DeleteDocument(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, deleteDocument, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
