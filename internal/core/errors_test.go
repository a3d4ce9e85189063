package core

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestRequestFailedError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *RequestFailedError
		expected string
	}{
		{
			name:     "get failure",
			err:      NewRequestFailedError(http.MethodGet, "https://api/models", http.StatusUnauthorized, []byte(`{"error":"bad key"}`)),
			expected: "GET request failed. Code: 401 - Unauthorized",
		},
		{
			name:     "post failure includes body",
			err:      NewRequestFailedError(http.MethodPost, "https://api/chat/completions", http.StatusTooManyRequests, []byte(`{"error":"rate limited"}`)),
			expected: "POST request failed. Code: 429 - Too Many Requests\nResponse body: {\"error\":\"rate limited\"}",
		},
		{
			name:     "connection failure",
			err:      NewConnectionError(http.MethodGet, "https://api/models", errors.New("connection refused")),
			expected: "GET request failed: failed to send request: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRequestFailedError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewConnectionError(http.MethodPost, "u", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the connection cause")
	}
}

func TestRequestFailedError_APIMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":{"message":"Insufficient Balance","type":"unknown_error"}}`, "Insufficient Balance"},
		{`{"error":"rate limited"}`, "rate limited"},
		{`{"message":"not found"}`, "not found"},
		{`{"error":{"code":42}}`, ""},
		{`<html>bad gateway</html>`, ""},
		{``, ""},
	}

	for _, tt := range tests {
		err := &RequestFailedError{Body: tt.body}
		if got := err.APIMessage(); got != tt.want {
			t.Errorf("APIMessage(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestAPIError(t *testing.T) {
	cause := NewRequestFailedError(http.MethodPost, "u", http.StatusTooManyRequests, []byte(`{"error":"rate limited"}`))
	err := NewAPIError("Failed to send chat request", cause)

	if !strings.HasPrefix(err.Error(), "Failed to send chat request: POST request failed. Code: 429") {
		t.Errorf("Error() = %q", err.Error())
	}

	var transport *RequestFailedError
	if !errors.As(err, &transport) {
		t.Fatal("expected cause to be reachable with errors.As")
	}
	if transport.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", transport.StatusCode)
	}

	if got := NewAPIError("Failed to fetch models", nil).Error(); got != "Failed to fetch models" {
		t.Errorf("Error() without cause = %q", got)
	}
}

func TestStructuralError(t *testing.T) {
	err := NewStructuralError(ErrEmptyContent)
	if err.Error() != ErrEmptyContent.Error() {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrEmptyContent) {
		t.Error("expected errors.Is to match the sentinel")
	}
}
