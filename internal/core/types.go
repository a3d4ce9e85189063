package core

import (
	"encoding/json"
	"fmt"
)

// Chat defaults applied to every ChatRequest before it is sent.
const (
	DefaultChatMaxTokens    = 2048
	DefaultTemperature      = 1.0
	DefaultTopP             = 1.0
	DefaultResponseFormat   = "text"
	DefaultToolChoice       = "none"
	DefaultSystemPrompt     = "You are a helpful assistant"
	RoleSystem              = "system"
	RoleUser                = "user"
	RoleAssistant           = "assistant"
	DefaultFrequencyPenalty = 0.0
	DefaultPresencePenalty  = 0.0
)

// ChatMessage represents a single message in a conversation.
// Role is conventionally system, user or assistant but is not enforced.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (m ChatMessage) String() string {
	return fmt.Sprintf("ChatMessage{role='%s', content='%s'}", m.Role, m.Content)
}

// ResponseFormat selects the output format of a chat completion.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatRequest is the body of POST /chat/completions.
// Every field is serialized, including defaults. The opaque fields are
// passed through untouched and encode as null when unset.
type ChatRequest struct {
	Messages         []ChatMessage   `json:"messages"`
	Model            string          `json:"model"`
	FrequencyPenalty float64         `json:"frequency_penalty"`
	MaxTokens        int             `json:"max_tokens"`
	PresencePenalty  float64         `json:"presence_penalty"`
	ResponseFormat   ResponseFormat  `json:"response_format"`
	Stop             json.RawMessage `json:"stop"`
	Stream           bool            `json:"stream"`
	StreamOptions    json.RawMessage `json:"stream_options"`
	Temperature      float64         `json:"temperature"`
	TopP             float64         `json:"top_p"`
	Tools            json.RawMessage `json:"tools"`
	ToolChoice       string          `json:"tool_choice"`
	Logprobs         bool            `json:"logprobs"`
	TopLogprobs      json.RawMessage `json:"top_logprobs"`
}

// DefaultChatRequest returns a request carrying only the documented defaults.
func DefaultChatRequest() ChatRequest {
	return ChatRequest{
		Messages:         []ChatMessage{},
		FrequencyPenalty: DefaultFrequencyPenalty,
		MaxTokens:        DefaultChatMaxTokens,
		PresencePenalty:  DefaultPresencePenalty,
		ResponseFormat:   ResponseFormat{Type: DefaultResponseFormat},
		Temperature:      DefaultTemperature,
		TopP:             DefaultTopP,
		ToolChoice:       DefaultToolChoice,
	}
}

// NewChatRequest builds a request for model over messages. If messages is
// empty or does not start with a system message, the default system prompt
// is prepended. The caller's slice is never modified.
func NewChatRequest(model string, messages []ChatMessage, maxTokens int) *ChatRequest {
	req := DefaultChatRequest()
	req.Model = model
	req.MaxTokens = maxTokens
	req.Messages = WithSystemPrompt(messages)
	return &req
}

// WithSystemPrompt returns messages led by a system message. When the first
// message is already a system message, messages is returned as-is.
func WithSystemPrompt(messages []ChatMessage) []ChatMessage {
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		return messages
	}
	result := make([]ChatMessage, 0, len(messages)+1)
	result = append(result, ChatMessage{Role: RoleSystem, Content: DefaultSystemPrompt})
	result = append(result, messages...)
	return result
}

// UnmarshalJSON decodes a request on top of the defaults, so fields absent
// from the payload keep their documented values.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type plain ChatRequest
	decoded := plain(DefaultChatRequest())
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = ChatRequest(decoded)
	return nil
}

func (r *ChatRequest) String() string {
	return fmt.Sprintf("ChatRequest{messages=%v, maxTokens=%d, temperature=%v, topP=%v}",
		r.Messages, r.MaxTokens, r.Temperature, r.TopP)
}

// ChatResponse is the body returned by POST /chat/completions.
type ChatResponse struct {
	ID      string    `json:"id"`
	Object  string    `json:"object"`
	Created int64     `json:"created"`
	Model   string    `json:"model"`
	Choices []*Choice `json:"choices"`
	Usage   *Usage    `json:"usage"`
}

// Choice is a single completion choice.
type Choice struct {
	FinishReason string       `json:"finish_reason"`
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message"`
}

// Usage represents token usage information.
type Usage struct {
	CompletionTokens int `json:"completion_tokens"`
	PromptTokens     int `json:"prompt_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AssistantMessage returns the first choice's message if the response has
// one. Unlike Content it does not require the message to be non-empty.
func (r *ChatResponse) AssistantMessage() (*ChatMessage, bool) {
	if r == nil || len(r.Choices) == 0 || r.Choices[0] == nil || r.Choices[0].Message == nil {
		return nil, false
	}
	return r.Choices[0].Message, true
}

// Content extracts the reply text. A response without choices, with a nil
// first choice, a nil message or empty content is a StructuralError.
func (r *ChatResponse) Content() (string, error) {
	if r == nil || len(r.Choices) == 0 {
		return "", NewStructuralError(ErrNoChoices)
	}
	first := r.Choices[0]
	if first == nil {
		return "", NewStructuralError(ErrNilChoice)
	}
	if first.Message == nil {
		return "", NewStructuralError(ErrNilMessage)
	}
	if first.Message.Content == "" {
		return "", NewStructuralError(ErrEmptyContent)
	}
	return first.Message.Content, nil
}

// String formats the response for logs. Extraction failures are rendered
// as a placeholder instead of being propagated.
func (r *ChatResponse) String() string {
	if r == nil {
		return "ChatResponse{<nil>}"
	}
	content, err := r.Content()
	if err != nil {
		content = "<unavailable: " + err.Error() + ">"
	}
	return fmt.Sprintf("ChatResponse{id='%s', object='%s', message='%s'}", r.ID, r.Object, content)
}

// Model is a single entry of the models listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

func (m Model) String() string {
	return fmt.Sprintf("ModelData{id='%s', object='%s', ownedBy='%s'}", m.ID, m.Object, m.OwnedBy)
}

// ModelsResponse is the body returned by GET /models.
type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// CompletionRequest is the legacy prompt-style request body.
type CompletionRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

// CompletionResponse is the legacy prompt-style response body.
type CompletionResponse struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (r *CompletionResponse) String() string {
	return fmt.Sprintf("CompletionResponse{id='%s', text='%s'}", r.ID, r.Text)
}
