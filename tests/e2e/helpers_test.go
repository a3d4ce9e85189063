//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	chatPath        = "/v1/chat"
	completionsPath = "/v1/completions"
	historyPath     = "/v1/history"
	modelsPath      = "/v1/models"
	metricsPath     = "/metrics"
)

// doRequest sends an authenticated request with an optional JSON body.
func doRequest(t *testing.T, method, path string, payload interface{}) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+masterKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// decode reads a JSON body into v and closes it.
func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer closeBody(resp)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// clearHistory resets the shared conversation between tests.
func clearHistory(t *testing.T) {
	t.Helper()
	resp := doRequest(t, http.MethodDelete, historyPath, nil)
	closeBody(resp)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}
