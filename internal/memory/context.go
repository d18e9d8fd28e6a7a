package memory

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation. Sequences are oldest first.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// ConversationContext is the per-request view over message history and
// selected memories. MemorySummary is "" (never absent) when nothing applies.
type ConversationContext struct {
	Messages      []Message `json:"messages" validate:"dive"`
	MemorySummary string    `json:"memory_summary"`
}

// Empty returns a context with no messages and no memories.
func Empty() ConversationContext {
	return ConversationContext{Messages: []Message{}}
}

// ConversationEntry is a single message in the short-term conversation history.
type ConversationEntry struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
