package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zhenghe/internal/core"
)

type fakeSession struct {
	mu        sync.Mutex
	history   []core.ChatMessage
	models    []core.Model
	reply     *core.ChatResponse
	err       error
	maxTokens int
	sent      []string
	sentModel []string
}

func (f *fakeSession) ConversationID() string { return "conv-1" }

func (f *fakeSession) ListModels(context.Context) ([]core.Model, error) { return f.models, f.err }

func (f *fakeSession) SendChatTurn(_ context.Context, message, model string, _ ...int) (*core.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message)
	f.sentModel = append(f.sentModel, model)
	f.history = append(f.history, core.ChatMessage{Role: core.RoleUser, Content: message})
	if f.err != nil {
		return nil, f.err
	}
	if msg, ok := f.reply.AssistantMessage(); ok {
		f.history = append(f.history, *msg)
	}
	return f.reply, nil
}

func (f *fakeSession) History() []core.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.ChatMessage(nil), f.history...)
}

func (f *fakeSession) ClearHistory() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = nil
}

func (f *fakeSession) DefaultMaxTokens() int     { return f.maxTokens }
func (f *fakeSession) SetDefaultMaxTokens(n int) { f.maxTokens = n }

func replyWith(content string) *core.ChatResponse {
	return &core.ChatResponse{Choices: []*core.Choice{{Message: &core.ChatMessage{Role: core.RoleAssistant, Content: content}}}}
}

func runScript(t *testing.T, s session, script string) string {
	t.Helper()
	var out bytes.Buffer
	r := &repl{session: s, model: "deepseek-chat", in: strings.NewReader(script), out: &out}
	require.NoError(t, r.run(context.Background()))
	return out.String()
}

func TestREPL_TurnsAndCommands(t *testing.T) {
	s := &fakeSession{reply: replyWith("Hi there"), maxTokens: 50}

	out := runScript(t, s, "hello\n\n/history\n/tokens 200\n/tokens\n/clear\n/history\n/exit\nignored\n")

	assert.Equal(t, []string{"hello"}, s.sent)
	assert.Contains(t, out, "Hi there\n")
	assert.Contains(t, out, "user: hello\nassistant: Hi there\n")
	assert.Contains(t, out, "default token limit set to 200\n200\n")
	assert.Contains(t, out, "history cleared\n(empty)\n")
	assert.Equal(t, 200, s.maxTokens)
}

func TestREPL_ModelSwitch(t *testing.T) {
	s := &fakeSession{
		reply:  replyWith("ok"),
		models: []core.Model{{ID: "deepseek-chat", OwnedBy: "deepseek"}, {ID: "deepseek-reasoner", OwnedBy: "deepseek"}},
	}

	out := runScript(t, s, "/models\n/model deepseek-reasoner\nquestion\n")

	assert.Contains(t, out, "* deepseek-chat (deepseek)\n")
	assert.Contains(t, out, "  deepseek-reasoner (deepseek)\n")
	assert.Equal(t, []string{"deepseek-reasoner"}, s.sentModel)
}

func TestREPL_ErrorsDoNotStopLoop(t *testing.T) {
	failed := core.NewRequestFailedError("POST", "http://x/chat/completions", 429,
		[]byte(`{"error":{"message":"Rate limit reached"}}`))
	s := &fakeSession{err: core.NewAPIError("Failed to send chat request", failed)}

	out := runScript(t, s, "one\ntwo\n/bogus\n")

	assert.Equal(t, []string{"one", "two"}, s.sent)
	assert.Equal(t, 2, strings.Count(out, "error: Rate limit reached (HTTP 429)"))
	assert.Contains(t, out, "unknown command /bogus")
}

func TestREPL_EmptyReplyIsReported(t *testing.T) {
	s := &fakeSession{reply: &core.ChatResponse{}}

	out := runScript(t, s, "hello\n")

	assert.Contains(t, out, "error: ")
	assert.Len(t, s.history, 1)
}

func TestREPL_InvalidTokens(t *testing.T) {
	s := &fakeSession{maxTokens: 50}

	out := runScript(t, s, "/tokens abc\n/tokens -3\n")

	assert.Equal(t, 2, strings.Count(out, "token limit must be a positive integer"))
	assert.Equal(t, 50, s.maxTokens)
}

func TestREPL_CancelWhileWaitingForInput(t *testing.T) {
	in, w := io.Pipe()
	defer func() { _ = w.Close() }()

	s := &fakeSession{reply: replyWith("Hi there")}
	var out bytes.Buffer
	r := &repl{session: s, model: "deepseek-chat", in: in, out: &out}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.run(ctx) }()

	_, err := io.WriteString(w, "hello\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(s.History()) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after the context was cancelled")
	}
	assert.Equal(t, []string{"hello"}, s.sent)
}

func TestREPL_ReadErrorIsReturned(t *testing.T) {
	in, w := io.Pipe()
	readErr := errors.New("terminal gone")
	require.NoError(t, w.CloseWithError(readErr))

	var out bytes.Buffer
	r := &repl{session: &fakeSession{}, model: "deepseek-chat", in: in, out: &out}

	assert.ErrorIs(t, r.run(context.Background()), readErr)
}
