// Package knowledge implements the vector index: embedding generation and
// similarity search over document chunks stored in PostgreSQL + pgvector.
//
// The package has three layers:
//   - Embedder: wraps a Genkit ai.Embedder, pinning the model identity so
//     stored vectors and query vectors always come from the same space.
//   - Queries: hand-written pgx queries over the documents and chunks tables.
//   - Store: the business API. Indexing a document is atomic (all chunks in
//     one transaction); search filters by embedding model and returns
//     similarity-ordered matches with a stable tie-break.
package knowledge
