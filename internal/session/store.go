package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier defines the database operations Store needs. Interfaces are
// defined by the consumer, so tests substitute a mock.
type Querier interface {
	EnsureThread(ctx context.Context, id pgtype.UUID) error
	LockThread(ctx context.Context, id pgtype.UUID) (pgtype.UUID, error)
	GetThread(ctx context.Context, id pgtype.UUID) (ThreadRow, error)
	ListThreads(ctx context.Context, arg ListThreadsParams) ([]ThreadRow, error)
	GetMaxSequenceNumber(ctx context.Context, threadID pgtype.UUID) (int32, error)
	AddMessage(ctx context.Context, arg AddMessageParams) error
	GetMessages(ctx context.Context, arg GetMessagesParams) ([]MessageRow, error)
	UpdateThread(ctx context.Context, arg UpdateThreadParams) error
}

// Store manages thread persistence with a PostgreSQL backend.
//
// Store is safe for concurrent use. All state lives in PostgreSQL; thread
// row locking and transaction isolation handle concurrent access.
type Store struct {
	querier Querier
	pool    *pgxpool.Pool
	logger  *slog.Logger
}

// New creates a Store.
//
// Parameters:
//   - querier: database querier implementing Querier
//   - pool: PostgreSQL connection pool (nil disables transactions, tests only)
//   - logger: logger for debugging (nil = slog.Default())
func New(querier Querier, pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		querier: querier,
		pool:    pool,
		logger:  logger,
	}
}

// Append adds messages to a thread in order, creating the thread if it
// does not exist yet. Sequence numbers continue from the thread's current
// maximum. The whole append is one transaction: either every message
// lands or none does.
func (s *Store) Append(ctx context.Context, threadID uuid.UUID, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}
	for i, msg := range messages {
		if msg.Content == "" {
			return fmt.Errorf("%w: message %d", ErrEmptyMessage, i)
		}
	}

	if s.pool == nil {
		return s.appendNonTransactional(ctx, threadID, messages)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback is a no-op after commit; log for debugging only.
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			s.logger.Debug("transaction rollback (may be already committed)", "error", err)
		}
	}()

	txQueries := NewQueries(tx)
	pgID := uuidToPgUUID(threadID)

	// Implicit creation, then a row lock so concurrent appends to the
	// same thread serialize and sequence numbers never collide.
	if err := txQueries.EnsureThread(ctx, pgID); err != nil {
		return fmt.Errorf("ensure thread %s: %w", threadID, err)
	}
	if _, err := txQueries.LockThread(ctx, pgID); err != nil {
		return fmt.Errorf("lock thread %s: %w", threadID, err)
	}

	maxSeq, err := txQueries.GetMaxSequenceNumber(ctx, pgID)
	if err != nil {
		return fmt.Errorf("get max sequence number: %w", err)
	}

	if err := insertMessages(ctx, txQueries, pgID, maxSeq, messages); err != nil {
		return err
	}

	newCount := maxSeq + int32(len(messages)) // #nosec G115 -- len bounded by practical message limits
	if err := txQueries.UpdateThread(ctx, UpdateThreadParams{
		MessageCount: newCount,
		ThreadID:     pgID,
	}); err != nil {
		return fmt.Errorf("update thread metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debug("appended messages", "thread_id", threadID, "count", len(messages))
	return nil
}

// appendNonTransactional appends without a transaction (for testing with
// mocks). Production always goes through the transactional path.
func (s *Store) appendNonTransactional(ctx context.Context, threadID uuid.UUID, messages []*Message) error {
	pgID := uuidToPgUUID(threadID)

	if err := s.querier.EnsureThread(ctx, pgID); err != nil {
		return fmt.Errorf("ensure thread %s: %w", threadID, err)
	}

	maxSeq, err := s.querier.GetMaxSequenceNumber(ctx, pgID)
	if err != nil {
		return fmt.Errorf("get max sequence number: %w", err)
	}

	if err := insertMessages(ctx, s.querier, pgID, maxSeq, messages); err != nil {
		return err
	}

	newCount := maxSeq + int32(len(messages)) // #nosec G115 -- len bounded by practical message limits
	if err := s.querier.UpdateThread(ctx, UpdateThreadParams{
		MessageCount: newCount,
		ThreadID:     pgID,
	}); err != nil {
		return fmt.Errorf("update thread metadata: %w", err)
	}
	return nil
}

// insertMessages writes messages with sequence numbers continuing from
// maxSeq. Shared by the transactional and non-transactional paths.
func insertMessages(ctx context.Context, q Querier, pgID pgtype.UUID, maxSeq int32, messages []*Message) error {
	for i, msg := range messages {
		var citationsJSON []byte
		if len(msg.Citations) > 0 {
			data, err := json.Marshal(msg.Citations)
			if err != nil {
				return fmt.Errorf("marshal citations for message %d: %w", i, err)
			}
			citationsJSON = data
		}

		tool := msg.ToolUsed
		if tool == "" {
			tool = ToolNone
		}

		seqNum := maxSeq + int32(i) + 1 // #nosec G115 -- i is loop index bounded by slice length
		if err := q.AddMessage(ctx, AddMessageParams{
			ThreadID:       pgID,
			Role:           string(msg.Role),
			Content:        msg.Content,
			ToolUsed:       string(tool),
			Citations:      citationsJSON,
			SequenceNumber: seqNum,
		}); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}
	return nil
}

// History returns a thread's messages in occurrence order. The limit is
// normalized with NormalizeHistoryLimit. A thread that does not exist
// yet yields an empty history, not an error: the agent treats a fresh
// thread ID the same as an empty one.
func (s *Store) History(ctx context.Context, threadID uuid.UUID, limit int32) ([]*Message, error) {
	rows, err := s.querier.GetMessages(ctx, GetMessagesParams{
		ThreadID:     uuidToPgUUID(threadID),
		ResultLimit:  NormalizeHistoryLimit(limit),
		ResultOffset: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("get messages for thread %s: %w", threadID, err)
	}

	messages := make([]*Message, 0, len(rows))
	for _, row := range rows {
		msg, err := rowToMessage(row)
		if err != nil {
			s.logger.Warn("skipping malformed message",
				"message_id", pgUUIDToUUID(row.ID), "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Thread retrieves thread metadata. Returns ErrThreadNotFound when the
// thread does not exist.
func (s *Store) Thread(ctx context.Context, threadID uuid.UUID) (*Thread, error) {
	row, err := s.querier.GetThread(ctx, uuidToPgUUID(threadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
		}
		return nil, fmt.Errorf("get thread %s: %w", threadID, err)
	}
	return rowToThread(row), nil
}

// ListThreads lists threads with pagination, most recently active first.
func (s *Store) ListThreads(ctx context.Context, limit, offset int32) ([]*Thread, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.querier.ListThreads(ctx, ListThreadsParams{
		ResultLimit:  limit,
		ResultOffset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	threads := make([]*Thread, 0, len(rows))
	for _, row := range rows {
		threads = append(threads, rowToThread(row))
	}
	return threads, nil
}

func rowToThread(row ThreadRow) *Thread {
	return &Thread{
		ID:           pgUUIDToUUID(row.ID),
		MessageCount: int(row.MessageCount),
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
	}
}

func rowToMessage(row MessageRow) (*Message, error) {
	var citations []Citation
	if len(row.Citations) > 0 {
		if err := json.Unmarshal(row.Citations, &citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
	}

	return &Message{
		ID:             pgUUIDToUUID(row.ID),
		ThreadID:       pgUUIDToUUID(row.ThreadID),
		Role:           Role(row.Role),
		Content:        row.Content,
		ToolUsed:       Tool(row.ToolUsed),
		Citations:      citations,
		SequenceNumber: int(row.SequenceNumber),
		CreatedAt:      row.CreatedAt.Time,
	}, nil
}

// uuidToPgUUID converts uuid.UUID to pgtype.UUID.
func uuidToPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// pgUUIDToUUID converts pgtype.UUID to uuid.UUID.
func pgUUIDToUUID(pgUUID pgtype.UUID) uuid.UUID {
	if !pgUUID.Valid {
		return uuid.Nil
	}
	return pgUUID.Bytes
}
