package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/agentx/agentx/internal/agent"
	"github.com/agentx/agentx/internal/log"
	"github.com/agentx/agentx/internal/session"
)

// maxChatBodyBytes bounds the chat request body.
const maxChatBodyBytes = 64 << 10

// QueryAgent answers one query within a thread.
type QueryAgent interface {
	HandleQuery(ctx context.Context, query string, threadID *uuid.UUID) (*agent.Response, error)
}

// ChatHandler handles the conversational endpoint.
type ChatHandler struct {
	agent  QueryAgent
	logger log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(agent QueryAgent, logger log.Logger) *ChatHandler {
	return &ChatHandler{agent: agent, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat", h.chat)
}

// ChatRequest is the chat request body.
type ChatRequest struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ChatResponse is the chat response body.
type ChatResponse struct {
	Answer    string             `json:"answer"`
	Citations []session.Citation `json:"citations"`
	ThreadID  string             `json:"thread_id"`
	ToolUsed  string             `json:"tool_used"`
}

func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	var threadID *uuid.UUID
	if req.ThreadID != "" {
		id, err := uuid.Parse(req.ThreadID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "thread_id is not a valid UUID")
			return
		}
		threadID = &id
	}

	resp, err := h.agent.HandleQuery(r.Context(), req.Query, threadID)
	if err != nil {
		h.logger.Error("chat query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to handle query")
		return
	}

	citations := resp.Citations
	if citations == nil {
		citations = []session.Citation{}
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Answer:    resp.Answer,
		Citations: citations,
		ThreadID:  resp.ThreadID.String(),
		ToolUsed:  string(resp.ToolUsed),
	})
}
