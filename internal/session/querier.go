package session

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the subset of pgx behavior the queries need. Both *pgxpool.Pool
// and pgx.Tx satisfy it, so the same queries run inside and outside
// transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries holds the SQL statements for threads and their messages.
type Queries struct {
	db DBTX
}

// NewQueries creates Queries bound to a pool or transaction.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx rebinds the queries to a transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const ensureThread = `
INSERT INTO threads (id)
VALUES ($1)
ON CONFLICT (id) DO NOTHING
`

// EnsureThread creates the thread row if it does not exist. Threads are
// created implicitly on first use.
func (q *Queries) EnsureThread(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, ensureThread, id)
	return err
}

const lockThread = `
SELECT id FROM threads WHERE id = $1 FOR UPDATE
`

// LockThread acquires a row lock on the thread for the duration of the
// surrounding transaction. Serializes sequence number assignment.
func (q *Queries) LockThread(ctx context.Context, id pgtype.UUID) (pgtype.UUID, error) {
	var lockedID pgtype.UUID
	err := q.db.QueryRow(ctx, lockThread, id).Scan(&lockedID)
	return lockedID, err
}

// ThreadRow is the database shape of a thread.
type ThreadRow struct {
	ID           pgtype.UUID
	MessageCount int32
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

const getThread = `
SELECT id, message_count, created_at, updated_at
FROM threads
WHERE id = $1
`

// GetThread retrieves one thread by ID.
func (q *Queries) GetThread(ctx context.Context, id pgtype.UUID) (ThreadRow, error) {
	var row ThreadRow
	err := q.db.QueryRow(ctx, getThread, id).Scan(
		&row.ID, &row.MessageCount, &row.CreatedAt, &row.UpdatedAt)
	return row, err
}

// ListThreadsParams holds pagination for ListThreads.
type ListThreadsParams struct {
	ResultLimit  int32
	ResultOffset int32
}

const listThreads = `
SELECT id, message_count, created_at, updated_at
FROM threads
ORDER BY updated_at DESC
LIMIT $1 OFFSET $2
`

// ListThreads returns threads ordered by most recent activity.
func (q *Queries) ListThreads(ctx context.Context, arg ListThreadsParams) ([]ThreadRow, error) {
	rows, err := q.db.Query(ctx, listThreads, arg.ResultLimit, arg.ResultOffset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []ThreadRow
	for rows.Next() {
		var row ThreadRow
		if err := rows.Scan(&row.ID, &row.MessageCount, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		threads = append(threads, row)
	}
	return threads, rows.Err()
}

const getMaxSequenceNumber = `
SELECT COALESCE(MAX(sequence_number), 0)
FROM thread_messages
WHERE thread_id = $1
`

// GetMaxSequenceNumber returns the highest sequence number in a thread,
// or 0 for an empty thread.
func (q *Queries) GetMaxSequenceNumber(ctx context.Context, threadID pgtype.UUID) (int32, error) {
	var maxSeq int32
	err := q.db.QueryRow(ctx, getMaxSequenceNumber, threadID).Scan(&maxSeq)
	return maxSeq, err
}

// AddMessageParams holds one message insert.
type AddMessageParams struct {
	ThreadID       pgtype.UUID
	Role           string
	Content        string
	ToolUsed       string
	Citations      []byte
	SequenceNumber int32
}

const addMessage = `
INSERT INTO thread_messages (thread_id, role, content, tool_used, citations, sequence_number)
VALUES ($1, $2, $3, $4, $5, $6)
`

// AddMessage inserts one message. Citations is JSONB (nil for none).
func (q *Queries) AddMessage(ctx context.Context, arg AddMessageParams) error {
	_, err := q.db.Exec(ctx, addMessage,
		arg.ThreadID, arg.Role, arg.Content, arg.ToolUsed, arg.Citations, arg.SequenceNumber)
	return err
}

// GetMessagesParams holds pagination for GetMessages.
type GetMessagesParams struct {
	ThreadID     pgtype.UUID
	ResultLimit  int32
	ResultOffset int32
}

// MessageRow is the database shape of a message.
type MessageRow struct {
	ID             pgtype.UUID
	ThreadID       pgtype.UUID
	Role           string
	Content        string
	ToolUsed       string
	Citations      []byte
	SequenceNumber int32
	CreatedAt      pgtype.Timestamptz
}

const getMessages = `
SELECT id, thread_id, role, content, tool_used, citations, sequence_number, created_at
FROM thread_messages
WHERE thread_id = $1
ORDER BY sequence_number ASC
LIMIT $2 OFFSET $3
`

// GetMessages returns a thread's messages in occurrence order.
func (q *Queries) GetMessages(ctx context.Context, arg GetMessagesParams) ([]MessageRow, error) {
	rows, err := q.db.Query(ctx, getMessages, arg.ThreadID, arg.ResultLimit, arg.ResultOffset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []MessageRow
	for rows.Next() {
		var row MessageRow
		if err := rows.Scan(&row.ID, &row.ThreadID, &row.Role, &row.Content,
			&row.ToolUsed, &row.Citations, &row.SequenceNumber, &row.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, row)
	}
	return messages, rows.Err()
}

// UpdateThreadParams holds the post-append thread metadata update.
type UpdateThreadParams struct {
	MessageCount int32
	ThreadID     pgtype.UUID
}

const updateThread = `
UPDATE threads
SET message_count = $1, updated_at = now()
WHERE id = $2
`

// UpdateThread bumps message_count and updated_at after an append.
func (q *Queries) UpdateThread(ctx context.Context, arg UpdateThreadParams) error {
	_, err := q.db.Exec(ctx, updateThread, arg.MessageCount, arg.ThreadID)
	return err
}
