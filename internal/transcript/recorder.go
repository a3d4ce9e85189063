package transcript

import (
	"context"
	"time"

	"github.com/google/uuid"

	"zhenghe/internal/core"
)

// Recorder turns conversation messages into stored entries. It satisfies
// conversation.Recorder.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record appends messages to conversationID. Messages of one call share a
// timestamp and keep their order through Seq.
func (r *Recorder) Record(ctx context.Context, conversationID, model string, messages ...core.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	createdAt := r.now().UTC()
	entries := make([]*Entry, len(messages))
	for i, m := range messages {
		entries[i] = &Entry{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Seq:            i,
			Model:          model,
			Role:           m.Role,
			Content:        m.Content,
			CreatedAt:      createdAt,
		}
	}
	return r.store.Append(ctx, entries)
}

// RecordClear appends a clear marker, so History resumes after it.
func (r *Recorder) RecordClear(ctx context.Context, conversationID string) error {
	return r.store.Append(ctx, []*Entry{{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           RoleCleared,
		CreatedAt:      r.now().UTC(),
	}})
}

// History loads a conversation as chat messages, ready for
// conversation.WithHistory.
func (r *Recorder) History(ctx context.Context, conversationID string) ([]core.ChatMessage, error) {
	entries, err := r.store.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return Messages(entries), nil
}
