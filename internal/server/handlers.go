// Package server exposes a conversation over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"zhenghe/internal/conversation"
	"zhenghe/internal/core"
)

// Conversation is the part of *conversation.Service the handlers use.
type Conversation interface {
	ConversationID() string
	ListModels(ctx context.Context) ([]core.Model, error)
	GenerateCompletion(ctx context.Context, prompt string, maxTokens ...int) (*core.CompletionResponse, error)
	SendChatTurn(ctx context.Context, message, model string, maxTokens ...int) (*core.ChatResponse, error)
	History() []core.ChatMessage
	ClearHistory()
}

// Handler holds the HTTP handlers
type Handler struct {
	conversation Conversation
	defaultModel string
}

// NewHandler creates handlers for conv. defaultModel is used when a chat
// request names no model.
func NewHandler(conv Conversation, defaultModel string) *Handler {
	return &Handler{
		conversation: conv,
		defaultModel: defaultModel,
	}
}

// ChatTurnRequest is the body of POST /v1/chat.
type ChatTurnRequest struct {
	Message   string `json:"message" validate:"required"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens" validate:"gte=0"`
}

// ChatTurnResponse is the body returned by POST /v1/chat.
type ChatTurnResponse struct {
	ConversationID string             `json:"conversation_id"`
	Content        string             `json:"content"`
	Response       *core.ChatResponse `json:"response"`
}

// CompletionRequest is the body of POST /v1/completions.
type CompletionRequest struct {
	Prompt    string `json:"prompt" validate:"required"`
	MaxTokens int    `json:"max_tokens" validate:"gte=0"`
}

// HistoryResponse is the body returned by GET /v1/history.
type HistoryResponse struct {
	ConversationID string             `json:"conversation_id"`
	Messages       []core.ChatMessage `json:"messages"`
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	models, err := h.conversation.ListModels(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	if models == nil {
		models = []core.Model{}
	}
	return c.JSON(http.StatusOK, core.ModelsResponse{Object: "list", Data: models})
}

// Chat handles POST /v1/chat: one turn of the shared conversation.
func (h *Handler) Chat(c echo.Context) error {
	var req ChatTurnRequest
	if err := bindAndValidate(c, &req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}

	model := req.Model
	if model == "" {
		model = h.defaultModel
	}

	resp, err := h.conversation.SendChatTurn(c.Request().Context(), req.Message, model, tokenLimit(req.MaxTokens)...)
	if err != nil {
		return handleError(c, err)
	}

	content, err := resp.Content()
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(http.StatusOK, ChatTurnResponse{
		ConversationID: h.conversation.ConversationID(),
		Content:        content,
		Response:       resp,
	})
}

// Completion handles POST /v1/completions
func (h *Handler) Completion(c echo.Context) error {
	var req CompletionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}

	resp, err := h.conversation.GenerateCompletion(c.Request().Context(), req.Prompt, tokenLimit(req.MaxTokens)...)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// History handles GET /v1/history
func (h *Handler) History(c echo.Context) error {
	return c.JSON(http.StatusOK, HistoryResponse{
		ConversationID: h.conversation.ConversationID(),
		Messages:       h.conversation.History(),
	})
}

// ClearHistory handles DELETE /v1/history
func (h *Handler) ClearHistory(c echo.Context) error {
	h.conversation.ClearHistory()
	return c.NoContent(http.StatusNoContent)
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errors.New("invalid request body")
	}
	return c.Validate(req)
}

// handleError converts service errors to HTTP responses. Upstream failures
// become 502 with the upstream status attached.
func handleError(c echo.Context, err error) error {
	if errors.Is(err, conversation.ErrInvalidMaxTokens) {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}

	var structural *core.StructuralError
	if errors.As(err, &structural) {
		return errorJSON(c, http.StatusBadGateway, "invalid_response", structural.Error())
	}

	var failed *core.RequestFailedError
	if errors.As(err, &failed) {
		if failed.StatusCode == 0 {
			return errorJSON(c, http.StatusBadGateway, "upstream_unavailable", err.Error())
		}
		message := failed.APIMessage()
		if message == "" {
			message = failed.Message
		}
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error": map[string]interface{}{
				"type":            "upstream_error",
				"message":         message,
				"upstream_status": failed.StatusCode,
			},
		})
	}

	slog.Error("unexpected handler error", "error", err)
	return errorJSON(c, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
}

func errorJSON(c echo.Context, status int, errType, message string) error {
	return c.JSON(status, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    errType,
			"message": message,
		},
	})
}

// tokenLimit maps an omitted (zero) max_tokens to no explicit limit, so the
// conversation default applies.
func tokenLimit(maxTokens int) []int {
	if maxTokens <= 0 {
		return nil
	}
	return []int{maxTokens}
}
