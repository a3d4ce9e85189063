// Package conversation provides the high-level chat API: model listing,
// legacy completions and history-carrying chat turns.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"zhenghe/internal/core"
)

const (
	modelsEndpoint          = "/models"
	chatCompletionsEndpoint = "/chat/completions"

	// DefaultMaxTokens is used when a caller omits an explicit token limit.
	DefaultMaxTokens = 50
)

// ErrInvalidMaxTokens is returned when a caller passes an explicit token
// limit that is not positive.
var ErrInvalidMaxTokens = errors.New("max tokens must be positive")

// Transport issues authenticated JSON requests against the API base URL.
// *llmclient.Client satisfies it.
type Transport interface {
	Get(ctx context.Context, endpoint string, result interface{}) error
	Post(ctx context.Context, endpoint string, body, result interface{}) error
}

// ModelCache stores the models listing between calls. Get returns nil, nil
// on a miss.
type ModelCache interface {
	Get(ctx context.Context) ([]core.Model, error)
	Set(ctx context.Context, models []core.Model) error
}

// Recorder persists the messages added to a conversation by each turn,
// and the points where the conversation was cleared.
type Recorder interface {
	Record(ctx context.Context, conversationID, model string, messages ...core.ChatMessage) error
	RecordClear(ctx context.Context, conversationID string) error
}

// UsageObserver receives token usage reported by the API.
type UsageObserver interface {
	ObserveUsage(model string, usage core.Usage)
}

// Service owns one conversation. It is safe for concurrent use: chat turns
// are serialized so that snapshot, send and append happen as one unit.
type Service struct {
	client           Transport
	history          *History
	defaultMaxTokens atomic.Int64
	conversationID   string

	modelCache ModelCache
	recorder   Recorder
	usage      UsageObserver

	turnMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithDefaultMaxTokens sets the token limit used when callers omit one.
func WithDefaultMaxTokens(n int) Option {
	return func(s *Service) { s.defaultMaxTokens.Store(int64(n)) }
}

// WithHistory seeds the conversation, e.g. when resuming a transcript.
func WithHistory(messages []core.ChatMessage) Option {
	return func(s *Service) { s.history = NewHistory(messages...) }
}

// WithConversationID sets the id under which turns are recorded.
func WithConversationID(id string) Option {
	return func(s *Service) { s.conversationID = id }
}

// WithModelCache makes ListModels read through cache.
func WithModelCache(cache ModelCache) Option {
	return func(s *Service) { s.modelCache = cache }
}

// WithRecorder records every turn. Recording failures are logged only.
func WithRecorder(recorder Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

// WithUsageObserver reports token usage of every chat response.
func WithUsageObserver(observer UsageObserver) Option {
	return func(s *Service) { s.usage = observer }
}

// New creates a Service with an empty history.
func New(client Transport, opts ...Option) *Service {
	s := &Service{
		client:         client,
		history:        NewHistory(),
		conversationID: uuid.NewString(),
	}
	s.defaultMaxTokens.Store(DefaultMaxTokens)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConversationID identifies this conversation in recorded transcripts.
func (s *Service) ConversationID() string {
	return s.conversationID
}

// ListModels returns the models available to the API key.
func (s *Service) ListModels(ctx context.Context) ([]core.Model, error) {
	if s.modelCache != nil {
		models, err := s.modelCache.Get(ctx)
		if err != nil {
			slog.Warn("model cache read failed", "error", err)
		} else if models != nil {
			slog.Debug("models served from cache", "count", len(models))
			return models, nil
		}
	}

	var resp core.ModelsResponse
	if err := s.client.Get(ctx, modelsEndpoint, &resp); err != nil {
		return nil, core.NewAPIError("Failed to fetch models", err)
	}

	if s.modelCache != nil {
		if err := s.modelCache.Set(ctx, resp.Data); err != nil {
			slog.Warn("model cache write failed", "error", err)
		}
	}
	return resp.Data, nil
}

// GenerateCompletion sends a legacy prompt request. It targets the chat
// completions endpoint with a {prompt, max_tokens} body, which the API is
// likely to reject; see DESIGN.md.
func (s *Service) GenerateCompletion(ctx context.Context, prompt string, maxTokens ...int) (*core.CompletionResponse, error) {
	tokens, err := s.resolveMaxTokens(maxTokens)
	if err != nil {
		return nil, err
	}
	req := &core.CompletionRequest{Prompt: prompt, MaxTokens: tokens}

	var resp core.CompletionResponse
	if err := s.client.Post(ctx, chatCompletionsEndpoint, req, &resp); err != nil {
		return nil, core.NewAPIError("Failed to generate completion", err)
	}
	return &resp, nil
}

// SendChatTurn appends message to the history as a user turn, sends the
// whole history to model and appends the assistant reply when the response
// carries one. The user message stays in the history if the call fails.
// If the history is cleared while the request is in flight, the reply is
// not added. The returned response is not validated; use
// ChatResponse.Content to extract the reply.
func (s *Service) SendChatTurn(ctx context.Context, message, model string, maxTokens ...int) (*core.ChatResponse, error) {
	tokens, err := s.resolveMaxTokens(maxTokens)
	if err != nil {
		return nil, err
	}
	ctx, requestID := core.EnsureRequestID(ctx)

	slog.Info("processing chat request", "model", model, "max_tokens", tokens, "request_id", requestID)
	slog.Debug("user message", "content", message)

	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	userMessage := core.ChatMessage{Role: core.RoleUser, Content: message}
	generation := s.history.Append(userMessage)
	added := []core.ChatMessage{userMessage}
	defer func() { s.record(ctx, model, generation, added) }()
	slog.Debug("added user message to history", "history_size", s.history.Len())

	req := core.NewChatRequest(model, s.history.Snapshot(), tokens)
	slog.Debug("created chat request", "request", req.String())

	var resp core.ChatResponse
	if err := s.client.Post(ctx, chatCompletionsEndpoint, req, &resp); err != nil {
		slog.Error("failed to send chat request", "model", model, "request_id", requestID, "error", err)
		return nil, core.NewAPIError("Failed to send chat request", err)
	}

	if reply, ok := resp.AssistantMessage(); ok {
		slog.Debug("received choices", "count", len(resp.Choices))
		if s.history.AppendAt(generation, *reply) {
			added = append(added, *reply)
			slog.Info("added assistant response to history", "history_size", s.history.Len())
		} else {
			slog.Info("history cleared during turn, reply not added", "request_id", requestID)
		}
	}

	if s.usage != nil && resp.Usage != nil {
		s.usage.ObserveUsage(model, *resp.Usage)
	}

	return &resp, nil
}

// Chat runs one turn and returns the validated reply text.
func (s *Service) Chat(ctx context.Context, message, model string, maxTokens ...int) (string, error) {
	resp, err := s.SendChatTurn(ctx, message, model, maxTokens...)
	if err != nil {
		return "", err
	}
	return resp.Content()
}

// History returns a copy of the conversation so far.
func (s *Service) History() []core.ChatMessage {
	return s.history.Snapshot()
}

// ClearHistory empties the conversation. A recorded transcript keeps its
// entries but resumes from this point.
func (s *Service) ClearHistory() {
	s.history.Clear()
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordClear(context.Background(), s.conversationID); err != nil {
		slog.Warn("failed to record history clear", "conversation_id", s.conversationID, "error", err)
	}
}

// DefaultMaxTokens returns the token limit used when callers omit one.
func (s *Service) DefaultMaxTokens() int {
	return int(s.defaultMaxTokens.Load())
}

// SetDefaultMaxTokens changes the token limit used when callers omit one.
func (s *Service) SetDefaultMaxTokens(n int) {
	s.defaultMaxTokens.Store(int64(n))
}

// resolveMaxTokens returns the explicit limit if one was passed, otherwise
// the current default.
func (s *Service) resolveMaxTokens(maxTokens []int) (int, error) {
	if len(maxTokens) == 0 {
		return s.DefaultMaxTokens(), nil
	}
	if maxTokens[0] <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidMaxTokens, maxTokens[0])
	}
	return maxTokens[0], nil
}

// record persists a turn's messages unless the history was cleared while
// the turn ran, so a resumed transcript matches the in-memory history.
func (s *Service) record(ctx context.Context, model string, generation uint64, messages []core.ChatMessage) {
	if s.recorder == nil || len(messages) == 0 {
		return
	}
	if s.history.Generation() != generation {
		slog.Debug("history cleared during turn, not recording", "conversation_id", s.conversationID)
		return
	}
	if err := s.recorder.Record(context.WithoutCancel(ctx), s.conversationID, model, messages...); err != nil {
		slog.Warn("failed to record conversation turn", "conversation_id", s.conversationID, "error", err)
	}
}
