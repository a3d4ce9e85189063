// Package observability exports Prometheus metrics for API traffic and
// token usage.
package observability

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"zhenghe/internal/core"
	"zhenghe/internal/llmclient"
)

// Metrics holds the collectors. It satisfies conversation.UsageObserver and
// produces llmclient.Hooks.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	tokens   *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them via promhttp.Handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zhenghe_api_requests_total",
				Help: "Total number of requests sent to the chat-completion API",
			},
			[]string{"provider", "method", "endpoint", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zhenghe_api_request_duration_seconds",
				Help:    "Duration of API requests including retries",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "method", "endpoint"},
		),
		inFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zhenghe_api_requests_in_flight",
				Help: "Number of API requests currently in flight",
			},
			[]string{"provider"},
		),
		tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zhenghe_tokens_total",
				Help: "Tokens reported by the API, by model and kind (prompt or completion)",
			},
			[]string{"model", "kind"},
		),
	}
}

// Hooks returns transport hooks that feed the request collectors.
func (m *Metrics) Hooks() llmclient.Hooks {
	return llmclient.Hooks{
		OnRequestStart: func(_ context.Context, info llmclient.RequestInfo) {
			m.inFlight.WithLabelValues(info.Provider).Inc()
		},
		OnRequestEnd: func(_ context.Context, info llmclient.ResponseInfo) {
			m.inFlight.WithLabelValues(info.Provider).Dec()
			m.requests.WithLabelValues(info.Provider, info.Method, info.Endpoint, statusLabel(info)).Inc()
			m.duration.WithLabelValues(info.Provider, info.Method, info.Endpoint).Observe(info.Duration.Seconds())
		},
	}
}

// ObserveUsage adds the prompt and completion token counts of one response.
func (m *Metrics) ObserveUsage(model string, usage core.Usage) {
	if usage.PromptTokens > 0 {
		m.tokens.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		m.tokens.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
	}
}

// statusLabel is the HTTP status, or "connection_error" when no response
// arrived.
func statusLabel(info llmclient.ResponseInfo) string {
	if info.StatusCode == 0 {
		if info.Err != nil {
			return "connection_error"
		}
		return "unknown"
	}
	return strconv.Itoa(info.StatusCode)
}
