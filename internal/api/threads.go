package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agentx/agentx/internal/log"
	"github.com/agentx/agentx/internal/session"
)

const defaultThreadListLimit = 50

// ThreadStore reads conversation threads and their messages.
type ThreadStore interface {
	Thread(ctx context.Context, threadID uuid.UUID) (*session.Thread, error)
	ListThreads(ctx context.Context, limit, offset int32) ([]*session.Thread, error)
	History(ctx context.Context, threadID uuid.UUID, limit int32) ([]*session.Message, error)
}

// ThreadsHandler handles conversation history endpoints.
type ThreadsHandler struct {
	store  ThreadStore
	logger log.Logger
}

// NewThreadsHandler creates a threads handler.
func NewThreadsHandler(store ThreadStore, logger log.Logger) *ThreadsHandler {
	return &ThreadsHandler{store: store, logger: logger}
}

// RegisterRoutes registers thread routes on the given mux.
func (h *ThreadsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/threads", h.list)
	mux.HandleFunc("GET /api/v1/threads/{id}/messages", h.messages)
}

// ThreadResponse is one thread in list responses.
type ThreadResponse struct {
	ID           string    `json:"id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MessageResponse is one conversation turn in history responses.
type MessageResponse struct {
	Role           string             `json:"role"`
	Content        string             `json:"content"`
	ToolUsed       string             `json:"tool_used"`
	Citations      []session.Citation `json:"citations"`
	SequenceNumber int                `json:"sequence_number"`
	CreatedAt      time.Time          `json:"created_at"`
}

func (h *ThreadsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := int32(defaultThreadListLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = int32(n)
	}

	threads, err := h.store.ListThreads(r.Context(), limit, 0)
	if err != nil {
		h.logger.Error("thread listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list threads")
		return
	}

	resp := make([]ThreadResponse, 0, len(threads))
	for _, t := range threads {
		resp = append(resp, ThreadResponse{
			ID:           t.ID.String(),
			MessageCount: t.MessageCount,
			CreatedAt:    t.CreatedAt,
			UpdatedAt:    t.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": resp})
}

func (h *ThreadsHandler) messages(w http.ResponseWriter, r *http.Request) {
	threadID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "thread id is not a valid UUID")
		return
	}

	if _, err := h.store.Thread(r.Context(), threadID); err != nil {
		if errors.Is(err, session.ErrThreadNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "thread does not exist")
			return
		}
		h.logger.Error("thread lookup failed", "thread_id", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load thread")
		return
	}

	messages, err := h.store.History(r.Context(), threadID, 0)
	if err != nil {
		h.logger.Error("history load failed", "thread_id", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load messages")
		return
	}

	resp := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		citations := m.Citations
		if citations == nil {
			citations = []session.Citation{}
		}
		resp = append(resp, MessageResponse{
			Role:           string(m.Role),
			Content:        m.Content,
			ToolUsed:       string(m.ToolUsed),
			Citations:      citations,
			SequenceNumber: m.SequenceNumber,
			CreatedAt:      m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": resp})
}
