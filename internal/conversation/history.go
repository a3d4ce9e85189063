package conversation

import (
	"sync"

	"zhenghe/internal/core"
)

// History is the ordered record of a conversation. Insertion order is turn
// order; entries are never deduplicated or truncated here.
//
// Every Clear starts a new generation. Writers that must not outlive a
// clear append through AppendAt with the generation they started in.
type History struct {
	mu         sync.RWMutex
	messages   []core.ChatMessage
	generation uint64
}

// NewHistory returns a history seeded with a copy of messages.
func NewHistory(messages ...core.ChatMessage) *History {
	h := &History{}
	h.messages = append(h.messages, messages...)
	return h
}

// Append adds messages to the end of the history and returns the
// generation they were added in.
func (h *History) Append(messages ...core.ChatMessage) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, messages...)
	return h.generation
}

// AppendAt adds messages only if the history has not been cleared since
// generation. It reports whether the messages were added.
func (h *History) AppendAt(generation uint64, messages ...core.ChatMessage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.generation != generation {
		return false
	}
	h.messages = append(h.messages, messages...)
	return true
}

// Generation returns the number of times the history has been cleared.
func (h *History) Generation() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.generation
}

// Snapshot returns a copy of the history that later appends cannot affect.
func (h *History) Snapshot() []core.ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	snapshot := make([]core.ChatMessage, len(h.messages))
	copy(snapshot, h.messages)
	return snapshot
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear empties the history unconditionally and starts a new generation.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
	h.generation++
}
