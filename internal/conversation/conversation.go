// Package conversation persists chat threads and their message transcripts.
//
// Messages are immutable once written and totally ordered within a thread by
// (created_at, id). Every store operation that takes a user ID enforces
// ownership: a conversation owned by someone else is indistinguishable from
// one that does not exist.
package conversation

import (
	"errors"
	"time"

	"github.com/parley-chat/parley/internal/agent"
)

// ErrNotFound indicates the conversation does not exist or is not owned by
// the requesting user.
var ErrNotFound = errors.New("conversation not found")

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Conversation is one chat thread.
type Conversation struct {
	ID            int64          `json:"id"`
	UserID        int64          `json:"-"`
	Title         *string        `json:"title"`
	AgentStrategy string         `json:"agent_strategy"`
	Provider      agent.Provider `json:"provider"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`

	// MessageCount is populated by list queries only.
	MessageCount int64 `json:"message_count"`
}

// Message is one immutable turn in a conversation.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"-"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// History converts messages to the provider-neutral shape consumed by agents.
func History(messages []Message) []agent.Message {
	out := make([]agent.Message, len(messages))
	for i, m := range messages {
		out[i] = agent.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}
