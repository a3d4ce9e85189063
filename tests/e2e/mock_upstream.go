//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"zhenghe/internal/core"
)

// MockUpstream simulates the chat-completion API.
type MockUpstream struct {
	server       *httptest.Server
	mu           sync.Mutex
	requests     []RecordedRequest
	failNext     bool
	failWithCode int
	failMessage  string
}

// RecordedRequest stores information about a received request.
type RecordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// NewMockUpstream starts a new mock API server.
func NewMockUpstream() *MockUpstream {
	m := &MockUpstream{}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewBuffer(body))

		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: r.Header.Clone(),
			Body:    body,
		})

		if m.failNext {
			m.failNext = false
			code, msg := m.failWithCode, m.failMessage
			m.mu.Unlock()
			w.WriteHeader(code)
			_, _ = fmt.Fprintf(w, `{"error": {"message": %q, "type": "api_error"}}`, msg)
			return
		}
		m.mu.Unlock()

		m.handleRequest(w, r, body)
	}))

	return m
}

func (m *MockUpstream) handleRequest(w http.ResponseWriter, r *http.Request, body []byte) {
	if r.Header.Get("Authorization") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Missing API key", "type": "authentication_error"}}`))
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/chat/completions":
		m.handleChatCompletion(w, body)
	case r.Method == http.MethodGet && r.URL.Path == "/models":
		m.handleListModels(w)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"message": "Not found", "type": "invalid_request_error"}}`))
	}
}

// handleChatCompletion echoes the last message and how many messages it saw,
// system prompt included.
// Legacy prompt bodies get a text reply.
func (m *MockUpstream) handleChatCompletion(w http.ResponseWriter, body []byte) {
	var req struct {
		Model    string             `json:"model"`
		Messages []core.ChatMessage `json:"messages"`
		Prompt   string             `json:"prompt"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "Invalid request body", "type": "invalid_request_error"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if len(req.Messages) == 0 {
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "Completed: " + req.Prompt})
		return
	}

	last := req.Messages[len(req.Messages)-1]
	response := core.ChatResponse{
		ID:      "chatcmpl-test-" + time.Now().Format("20060102150405"),
		Object:  "chat.completion",
		Model:   req.Model,
		Created: time.Now().Unix(),
		Choices: []*core.Choice{{
			Index:        0,
			FinishReason: "stop",
			Message: &core.ChatMessage{
				Role:    core.RoleAssistant,
				Content: fmt.Sprintf("Echo: %s (%d messages)", last.Content, len(req.Messages)),
			},
		}},
		Usage: &core.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
	_ = json.NewEncoder(w).Encode(response)
}

func (m *MockUpstream) handleListModels(w http.ResponseWriter) {
	response := core.ModelsResponse{
		Object: "list",
		Data: []core.Model{
			{ID: "deepseek-chat", Object: "model", OwnedBy: "deepseek"},
			{ID: "deepseek-reasoner", Object: "model", OwnedBy: "deepseek"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// URL returns the server's base URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// FailNext makes the next request fail with the given status and message.
func (m *MockUpstream) FailNext(code int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
	m.failWithCode = code
	m.failMessage = message
}

// Requests returns a copy of the recorded requests.
func (m *MockUpstream) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// ResetRequests clears the recorded requests.
func (m *MockUpstream) ResetRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}
