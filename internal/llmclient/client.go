// Package llmclient provides the authenticated JSON transport for the
// chat-completion API:
// - Bearer authentication and JSON headers
// - Request marshaling/unmarshaling
// - Retries with exponential backoff on connection failures only
// - Uniform failure on non-2xx status or empty body
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"zhenghe/internal/core"
	"zhenghe/internal/httpclient"
)

// Config holds configuration for the API client
type Config struct {
	// ProviderName identifies the provider in logs and metrics
	ProviderName string

	// BaseURL is the API base URL; endpoints are appended verbatim
	BaseURL string

	// APIKey is sent as a bearer token on every request
	APIKey string

	// Retry configuration, applied to connection-level failures only
	MaxRetries     int           // Maximum number of retry attempts (default: 2)
	InitialBackoff time.Duration // Initial backoff duration (default: 250ms)
	MaxBackoff     time.Duration // Maximum backoff duration (default: 2s)
	BackoffFactor  float64       // Backoff multiplier (default: 2.0)

	// Hooks observe every request; both callbacks are optional
	Hooks Hooks
}

// DefaultConfig returns default client configuration
func DefaultConfig(providerName, baseURL, apiKey string) Config {
	return Config{
		ProviderName:   providerName,
		BaseURL:        baseURL,
		APIKey:         apiKey,
		MaxRetries:     2,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2.0,
	}
}

// RequestInfo describes an outgoing request for hooks.
type RequestInfo struct {
	Provider string
	Method   string
	Endpoint string
}

// ResponseInfo describes a finished request for hooks. StatusCode is 0
// when no response was received.
type ResponseInfo struct {
	RequestInfo
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Hooks lets observers (metrics) follow requests without touching control flow.
type Hooks struct {
	OnRequestStart func(ctx context.Context, info RequestInfo)
	OnRequestEnd   func(ctx context.Context, info ResponseInfo)
}

// Client is the HTTP transport for the chat-completion API
type Client struct {
	httpClient *http.Client
	config     Config
}

// New creates a new client using the default HTTP executor
func New(config Config) *Client {
	return NewWithHTTPClient(httpclient.NewDefaultHTTPClient(), config)
}

// NewWithHTTPClient creates a new client with a custom HTTP client.
// If httpClient is nil, http.DefaultClient is used.
func NewWithHTTPClient(httpClient *http.Client, config Config) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		config:     config,
	}
}

// SetBaseURL updates the base URL
func (c *Client) SetBaseURL(url string) {
	c.config.BaseURL = url
}

// BaseURL returns the current base URL
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Request represents an HTTP request to be made
type Request struct {
	Method   string
	Endpoint string
	Body     interface{} // Will be JSON marshaled if not nil
	Headers  map[string]string
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// Get issues GET base+endpoint and decodes the response into result.
func (c *Client) Get(ctx context.Context, endpoint string, result interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Endpoint: endpoint}, result)
}

// Post encodes body as JSON, issues POST base+endpoint and decodes the
// response into result.
func (c *Client) Post(ctx context.Context, endpoint string, body, result interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Endpoint: endpoint, Body: body}, result)
}

// Do executes a request and unmarshals a successful response into result.
// Unknown fields in the response are ignored.
func (c *Client) Do(ctx context.Context, req Request, result interface{}) error {
	resp, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			failure := core.NewRequestFailedError(req.Method, c.url(req), resp.StatusCode, resp.Body)
			failure.Message = "failed to decode response: " + err.Error()
			failure.Err = err
			return failure
		}
	}

	return nil
}

// DoRaw executes a request, retrying connection failures, and returns the
// raw response. Any non-2xx status or an empty body is a
// *core.RequestFailedError; HTTP-level failures are never retried.
func (c *Client) DoRaw(ctx context.Context, req Request) (*Response, error) {
	url := c.url(req)
	info := RequestInfo{Provider: c.config.ProviderName, Method: req.Method, Endpoint: req.Endpoint}

	slog.Debug("preparing request", "method", req.Method, "endpoint", req.Endpoint)
	slog.Info("sending request", "method", req.Method, "url", url)

	if c.config.Hooks.OnRequestStart != nil {
		c.config.Hooks.OnRequestStart(ctx, info)
	}
	start := time.Now()
	resp, err := c.doWithRetries(ctx, req, url)
	if c.config.Hooks.OnRequestEnd != nil {
		end := ResponseInfo{RequestInfo: info, Duration: time.Since(start), Err: err}
		if resp != nil {
			end.StatusCode = resp.StatusCode
		} else {
			var failed *core.RequestFailedError
			if errors.As(err, &failed) {
				end.StatusCode = failed.StatusCode
			}
		}
		c.config.Hooks.OnRequestEnd(ctx, end)
	}
	return resp, err
}

func (c *Client) doWithRetries(ctx context.Context, req Request, url string) (*Response, error) {
	var lastErr error
	maxAttempts := c.config.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			slog.Debug("retrying after connection failure", "url", url, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, core.NewConnectionError(req.Method, url, ctx.Err())
			case <-time.After(backoff):
			}
		}

		resp, err := c.doRequest(ctx, req, url)
		if err != nil {
			var connErr *connectionError
			if !errors.As(err, &connErr) {
				return nil, err
			}
			lastErr = core.NewConnectionError(req.Method, url, connErr.err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		slog.Debug("received response", "url", url, "status", resp.StatusCode)

		if resp.StatusCode < 200 || resp.StatusCode > 299 || len(resp.Body) == 0 {
			failure := core.NewRequestFailedError(req.Method, url, resp.StatusCode, resp.Body)
			slog.Error("request failed", "url", url, "status", resp.StatusCode, "message", failure.Message)
			slog.Debug("error response body", "url", url, "body", failure.Body, "api_message", failure.APIMessage())
			return nil, failure
		}

		slog.Info("request successful", "url", url)
		return resp, nil
	}

	slog.Error("request failed", "url", url, "error", lastErr)
	return nil, lastErr
}

// connectionError marks failures that happened before a response arrived.
type connectionError struct {
	err error
}

func (e *connectionError) Error() string { return e.err.Error() }

func (e *connectionError) Unwrap() error { return e.err }

// doRequest executes a single HTTP request without retries
func (c *Client) doRequest(ctx context.Context, req Request, url string) (*Response, error) {
	httpReq, err := c.buildRequest(ctx, req, url)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &connectionError{err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		failure := core.NewRequestFailedError(req.Method, url, resp.StatusCode, body)
		failure.Message = "failed to read response: " + err.Error()
		failure.Err = err
		return nil, failure
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// buildRequest creates an HTTP request from a Request
func (c *Client) buildRequest(ctx context.Context, req Request, url string) (*http.Request, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &core.RequestFailedError{Method: req.Method, URL: url, Message: "failed to marshal request", Err: err}
		}
		slog.Debug("request payload", "endpoint", req.Endpoint, "body", string(bodyBytes))
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, &core.RequestFailedError{Method: req.Method, URL: url, Message: "failed to create request", Err: err}
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if requestID := core.GetRequestID(ctx); requestID != "" {
		httpReq.Header.Set("X-Client-Request-Id", requestID)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

func (c *Client) url(req Request) string {
	return c.config.BaseURL + req.Endpoint
}

// calculateBackoff calculates the backoff duration for a given attempt
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.config.InitialBackoff) * math.Pow(c.config.BackoffFactor, float64(attempt-1))
	if backoff > float64(c.config.MaxBackoff) {
		backoff = float64(c.config.MaxBackoff)
	}
	return time.Duration(backoff)
}
