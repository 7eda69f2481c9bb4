package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx/agentx/internal/log"
	"github.com/agentx/agentx/internal/session"
)

type mockThreadStore struct {
	thread   *session.Thread
	threads  []*session.Thread
	messages []*session.Message

	threadErr error
	listErr   error
	histErr   error
}

func (m *mockThreadStore) Thread(ctx context.Context, threadID uuid.UUID) (*session.Thread, error) {
	if m.threadErr != nil {
		return nil, m.threadErr
	}
	return m.thread, nil
}

func (m *mockThreadStore) ListThreads(ctx context.Context, limit, offset int32) ([]*session.Thread, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.threads, nil
}

func (m *mockThreadStore) History(ctx context.Context, threadID uuid.UUID, limit int32) ([]*session.Message, error) {
	if m.histErr != nil {
		return nil, m.histErr
	}
	return m.messages, nil
}

func newThreadsMux(store ThreadStore) *http.ServeMux {
	mux := http.NewServeMux()
	NewThreadsHandler(store, log.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestListThreadsEndpoint(t *testing.T) {
	store := &mockThreadStore{threads: []*session.Thread{
		{ID: uuid.New(), MessageCount: 4},
		{ID: uuid.New(), MessageCount: 2},
	}}
	mux := newThreadsMux(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/threads", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Threads []ThreadResponse `json:"threads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Threads, 2)
	assert.Equal(t, 4, resp.Threads[0].MessageCount)
}

func TestThreadMessages(t *testing.T) {
	threadID := uuid.New()
	store := &mockThreadStore{
		thread: &session.Thread{ID: threadID, MessageCount: 2},
		messages: []*session.Message{
			{Role: session.RoleUser, Content: "question", ToolUsed: session.ToolNone, SequenceNumber: 1},
			{
				Role: session.RoleAgent, Content: "answer", ToolUsed: session.ToolRAG,
				Citations:      []session.Citation{{Source: "a.md", Locator: "blobs/aa/a"}},
				SequenceNumber: 2,
			},
		},
	}
	mux := newThreadsMux(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/threads/"+threadID.String()+"/messages", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []MessageResponse `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "user", resp.Messages[0].Role)
	assert.Empty(t, resp.Messages[0].Citations)
	assert.Equal(t, "rag", resp.Messages[1].ToolUsed)
	require.Len(t, resp.Messages[1].Citations, 1)
	assert.Equal(t, "a.md", resp.Messages[1].Citations[0].Source)
}

func TestThreadMessagesNotFound(t *testing.T) {
	store := &mockThreadStore{
		threadErr: fmt.Errorf("%w: gone", session.ErrThreadNotFound),
	}
	mux := newThreadsMux(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/threads/"+uuid.NewString()+"/messages", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestThreadMessagesBadID(t *testing.T) {
	mux := newThreadsMux(&mockThreadStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/threads/not-a-uuid/messages", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
