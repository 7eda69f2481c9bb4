// Package session provides durable conversation history over PostgreSQL.
//
// A thread is an append-only ordered log of messages. Threads are created
// implicitly on first append, survive process restarts, and are never
// deleted by the agent.
//
// The [Store] handles persistence while the agent handles conversation
// logic. [Store.Append] uses SELECT ... FOR UPDATE to lock the thread
// row, preventing race conditions on sequence numbers during concurrent
// writes.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Tool identifies which tool produced an agent answer.
type Tool string

const (
	ToolNone      Tool = "none"
	ToolRAG       Tool = "rag"
	ToolGrounding Tool = "grounding"
)

// Citation points an answer back at its provenance. Source is a
// human-readable name (filename or URL), Locator a machine reference
// (blob locator, chunk position, or URL).
type Citation struct {
	Source  string `json:"source"`
	Locator string `json:"locator,omitempty"`
}

// Thread is a conversation (application-level type).
type Thread struct {
	ID           uuid.UUID
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is one conversation turn (application-level type).
// Citations are stored as JSONB alongside the text content.
type Message struct {
	ID             uuid.UUID
	ThreadID       uuid.UUID
	Role           Role
	Content        string
	ToolUsed       Tool
	Citations      []Citation
	SequenceNumber int
	CreatedAt      time.Time
}
