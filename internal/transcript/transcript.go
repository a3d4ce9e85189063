// Package transcript persists conversation turns so that a conversation
// can be inspected or resumed later.
package transcript

import (
	"context"
	"time"

	"zhenghe/internal/core"
)

// RoleCleared marks an entry recording that the conversation was cleared.
// Messages before it are not part of the resumed history.
const RoleCleared = "cleared"

// Entry is one recorded message or clear marker.
type Entry struct {
	ID             string    `json:"id" bson:"_id"`
	ConversationID string    `json:"conversation_id" bson:"conversation_id"`
	// Seq orders entries written in the same batch.
	Seq       int       `json:"seq" bson:"seq"`
	Model     string    `json:"model" bson:"model"`
	Role      string    `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Message returns the entry as a chat message.
func (e *Entry) Message() core.ChatMessage {
	return core.ChatMessage{Role: e.Role, Content: e.Content}
}

// Store persists entries. Implementations must be safe for concurrent use.
type Store interface {
	// Append writes entries; an empty slice is a no-op.
	Append(ctx context.Context, entries []*Entry) error

	// Load returns a conversation's entries ordered by (CreatedAt, Seq).
	// An unknown conversation yields an empty slice.
	Load(ctx context.Context, conversationID string) ([]*Entry, error)

	// Close stops background work. The database itself is owned by the
	// storage layer.
	Close() error
}

// Messages converts the entries after the last clear marker to chat
// messages, preserving order.
func Messages(entries []*Entry) []core.ChatMessage {
	start := 0
	for i, e := range entries {
		if e.Role == RoleCleared {
			start = i + 1
		}
	}
	messages := make([]core.ChatMessage, 0, len(entries)-start)
	for _, e := range entries[start:] {
		messages = append(messages, e.Message())
	}
	return messages
}
