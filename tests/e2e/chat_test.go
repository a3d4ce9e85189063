//go:build e2e

package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zhenghe/internal/core"
	"zhenghe/internal/server"
)

func TestChatTurns(t *testing.T) {
	clearHistory(t)
	upstream.ResetRequests()

	var first server.ChatTurnResponse
	decode(t, doRequest(t, http.MethodPost, chatPath, server.ChatTurnRequest{Message: "Hello"}), &first)
	assert.Equal(t, "Echo: Hello (2 messages)", first.Content)
	assert.NotEmpty(t, first.ConversationID)

	var second server.ChatTurnResponse
	decode(t, doRequest(t, http.MethodPost, chatPath, server.ChatTurnRequest{Message: "Again", MaxTokens: 120}), &second)
	assert.Equal(t, "Echo: Again (4 messages)", second.Content)

	requests := upstream.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, "Bearer test-key", requests[1].Headers.Get("Authorization"))

	var sent core.ChatRequest
	require.NoError(t, json.Unmarshal(requests[1].Body, &sent))
	assert.Equal(t, "deepseek-chat", sent.Model)
	assert.Equal(t, 120, sent.MaxTokens)

	var history server.HistoryResponse
	decode(t, doRequest(t, http.MethodGet, historyPath, nil), &history)
	require.Len(t, history.Messages, 4)
	assert.Equal(t, core.RoleUser, history.Messages[0].Role)
	assert.Equal(t, core.RoleAssistant, history.Messages[3].Role)
}

func TestChatUpstreamFailure(t *testing.T) {
	clearHistory(t)
	upstream.FailNext(http.StatusTooManyRequests, "Rate limit reached")

	resp := doRequest(t, http.MethodPost, chatPath, server.ChatTurnRequest{Message: "Hello"})
	defer closeBody(resp)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Rate limit reached")

	var history server.HistoryResponse
	decode(t, doRequest(t, http.MethodGet, historyPath, nil), &history)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "Hello", history.Messages[0].Content)
}

func TestChatValidation(t *testing.T) {
	resp := doRequest(t, http.MethodPost, chatPath, map[string]any{"message": ""})
	closeBody(resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnauthorized(t *testing.T) {
	resp, err := http.Get(serverURL + modelsPath)
	require.NoError(t, err)
	closeBody(resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestModelsAreCached(t *testing.T) {
	upstream.ResetRequests()

	for i := 0; i < 3; i++ {
		var models core.ModelsResponse
		decode(t, doRequest(t, http.MethodGet, modelsPath, nil), &models)
		require.Len(t, models.Data, 2)
		assert.Equal(t, "deepseek-chat", models.Data[0].ID)
	}

	modelCalls := 0
	for _, r := range upstream.Requests() {
		if r.Path == "/models" {
			modelCalls++
		}
	}
	assert.LessOrEqual(t, modelCalls, 1)
}

func TestCompletion(t *testing.T) {
	var resp core.CompletionResponse
	decode(t, doRequest(t, http.MethodPost, completionsPath, server.CompletionRequest{Prompt: "Once upon"}), &resp)
	assert.Equal(t, "Completed: Once upon", resp.Text)
}

func TestMetricsExposed(t *testing.T) {
	resp, err := http.Get(serverURL + metricsPath)
	require.NoError(t, err)
	defer closeBody(resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "zhenghe_api_requests_total")
}
