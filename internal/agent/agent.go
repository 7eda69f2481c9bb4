// Package agent implements the conversational decision core.
//
// The policy is fixed by construction: every query goes to the knowledge
// base first, and the web grounding tool runs only when retrieval found
// nothing above the similarity threshold. At most one grounding call per
// turn, never both tools "succeeding" in the same turn. Tool failures
// become degraded answers at this boundary so the caller always receives
// a response.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/agentx/agentx/internal/grounding"
	"github.com/agentx/agentx/internal/session"
)

// Retriever is the knowledge base lookup tool.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*RetrievalResult, error)
}

// Grounder is the web answer tool.
type Grounder interface {
	Search(ctx context.Context, query string) (*grounding.Result, error)
}

// Memory persists conversation turns.
type Memory interface {
	Append(ctx context.Context, threadID uuid.UUID, messages []*session.Message) error
}

// Response is the outcome of one handled query.
type Response struct {
	Answer    string
	Citations []session.Citation
	ThreadID  uuid.UUID
	ToolUsed  session.Tool
}

// Agent dispatches queries to tools and records the exchange.
// Safe for concurrent use.
type Agent struct {
	retriever Retriever
	grounder  Grounder
	memory    Memory
	retry     RetryConfig
	logger    *slog.Logger
}

// New creates an Agent.
//
// Parameters:
//   - retriever: knowledge base tool (required)
//   - grounder: web answer tool (nil disables grounding; no-match queries
//     then get a degraded answer)
//   - memory: conversation store (required)
//   - retry: retry policy for tool calls
//   - logger: logger for debugging (nil = slog.Default())
func New(retriever Retriever, grounder Grounder, memory Memory, retry RetryConfig, logger *slog.Logger) (*Agent, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if memory == nil {
		return nil, fmt.Errorf("memory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		retriever: retriever,
		grounder:  grounder,
		memory:    memory,
		retry:     retry,
		logger:    logger,
	}, nil
}

// HandleQuery answers one user query within a thread.
//
// A nil thread ID starts a new thread with a server-generated UUID. The
// user turn and the agent turn are appended to the thread together; a
// memory failure surfaces as an error because a turn that is not
// recorded never happened as far as the conversation is concerned.
func (a *Agent) HandleQuery(ctx context.Context, query string, threadID *uuid.UUID) (*Response, error) {
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	id := uuid.New()
	if threadID != nil && *threadID != uuid.Nil {
		id = *threadID
	}

	answer, citations, tool := a.answer(ctx, query)

	messages := []*session.Message{
		{Role: session.RoleUser, Content: query},
		{Role: session.RoleAgent, Content: answer, ToolUsed: tool, Citations: citations},
	}
	if err := a.memory.Append(ctx, id, messages); err != nil {
		return nil, fmt.Errorf("record exchange in thread %s: %w", id, err)
	}

	a.logger.Info("handled query",
		"thread_id", id,
		"tool_used", tool,
		"citations", len(citations))
	return &Response{
		Answer:    answer,
		Citations: citations,
		ThreadID:  id,
		ToolUsed:  tool,
	}, nil
}

// answer runs the tool policy: retrieval first, grounding only on a
// clean "not found", degraded text on tool failure.
func (a *Agent) answer(ctx context.Context, query string) (string, []session.Citation, session.Tool) {
	result, err := withRetry(ctx, a.retry, a.logger, "retrieval",
		func(ctx context.Context) (*RetrievalResult, error) {
			return a.retriever.Retrieve(ctx, query)
		})
	if err != nil {
		// A retrieval failure is not "no match": grounding stays off and
		// the user gets a degraded answer.
		a.logger.Warn("retrieval failed, answering degraded", "error", err)
		return degradedRetrievalAnswer, nil, session.ToolNone
	}

	if result.Found {
		answer, citations := formatRetrievalAnswer(result.Matches)
		return answer, citations, session.ToolRAG
	}

	if a.grounder == nil {
		return degradedGroundingAnswer, nil, session.ToolNone
	}

	grounded, err := withRetry(ctx, a.retry, a.logger, "grounding",
		func(ctx context.Context) (*grounding.Result, error) {
			return a.grounder.Search(ctx, query)
		})
	if err != nil {
		a.logger.Warn("grounding failed, answering degraded", "error", err)
		return degradedGroundingAnswer, nil, session.ToolGrounding
	}

	answer, citations := formatGroundingAnswer(grounded)
	return answer, citations, session.ToolGrounding
}
