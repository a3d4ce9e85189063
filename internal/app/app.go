// Package app wires configuration into a ready-to-use conversation and its
// supporting infrastructure, and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"zhenghe/config"
	"zhenghe/internal/cache"
	"zhenghe/internal/conversation"
	"zhenghe/internal/httpclient"
	"zhenghe/internal/llmclient"
	"zhenghe/internal/observability"
	"zhenghe/internal/server"
	"zhenghe/internal/transcript"
)

// providerName labels the upstream API in logs and metrics.
const providerName = "deepseek"

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("DEEPSEEK_API_KEY is required")

// App represents the main application with all its dependencies.
type App struct {
	config       *config.Config
	client       *llmclient.Client
	conversation *conversation.Service
	cache        cache.Cache
	transcripts  *transcript.Result
	server       *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Options adjusts how New builds the App.
type Options struct {
	// ConversationID resumes a recorded conversation when transcripts are
	// enabled. Empty starts a new conversation.
	ConversationID string

	// Registerer and Gatherer back the metrics; nil uses the Prometheus
	// default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// New creates an App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app config is required")
	}
	if cfg.API.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	app := &App{config: cfg}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		metrics = observability.NewMetrics(reg)
	}

	app.client = newClient(cfg, metrics)

	convOpts := []conversation.Option{
		conversation.WithDefaultMaxTokens(cfg.API.DefaultMaxTokens),
	}
	if metrics != nil {
		convOpts = append(convOpts, conversation.WithUsageObserver(metrics))
	}

	if cfg.Cache.Enabled {
		modelCache, err := newCache(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize model cache: %w", err)
		}
		app.cache = modelCache
		convOpts = append(convOpts, conversation.WithModelCache(modelCache))
	}

	transcripts, err := transcript.New(ctx, cfg)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize transcripts: %w", err), app.closeCache())
	}
	app.transcripts = transcripts

	if transcripts.Enabled() {
		convOpts = append(convOpts, conversation.WithRecorder(transcripts.Recorder))
		if opts.ConversationID != "" {
			history, err := transcripts.Recorder.History(ctx, opts.ConversationID)
			if err != nil {
				return nil, errors.Join(fmt.Errorf("failed to load conversation %s: %w", opts.ConversationID, err),
					transcripts.Close(), app.closeCache())
			}
			convOpts = append(convOpts, conversation.WithHistory(history))
			slog.Info("resumed conversation", "conversation_id", opts.ConversationID, "messages", len(history))
		}
	} else if opts.ConversationID != "" {
		slog.Warn("transcripts disabled, starting a new conversation", "conversation_id", opts.ConversationID)
	}
	if opts.ConversationID != "" {
		convOpts = append(convOpts, conversation.WithConversationID(opts.ConversationID))
	}

	app.conversation = conversation.New(app.client, convOpts...)

	app.server = server.New(app.conversation, &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		DefaultModel:    cfg.API.Model,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   cfg.Server.BodySizeLimit,
		Gatherer:        opts.Gatherer,
	})

	app.logStartupInfo()
	return app, nil
}

func newClient(cfg *config.Config, metrics *observability.Metrics) *llmclient.Client {
	httpCfg := httpclient.DefaultConfig()
	httpCfg.ConnectTimeout = cfg.HTTP.ConnectTimeoutDuration()
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeoutDuration()
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeoutDuration()

	clientCfg := llmclient.DefaultConfig(providerName, strings.TrimRight(cfg.API.BaseURL, "/"), cfg.API.APIKey)
	clientCfg.MaxRetries = cfg.API.MaxRetries
	if metrics != nil {
		clientCfg.Hooks = metrics.Hooks()
	}
	return llmclient.NewWithHTTPClient(httpclient.NewHTTPClient(&httpCfg), clientCfg)
}

func newCache(cfg *config.Config) (cache.Cache, error) {
	key := cache.Key(cfg.API.BaseURL, cfg.API.APIKey)
	switch cfg.Cache.Type {
	case "redis":
		return cache.NewRedisCache(cache.RedisConfig{
			URL: cfg.Cache.Redis.URL,
			Key: key,
			TTL: cfg.Cache.TTLDuration(),
		})
	default:
		fileName := strings.ReplaceAll(key, ":", "_") + ".json"
		return cache.NewLocalCache(filepath.Join(cfg.Cache.Dir, fileName), cfg.Cache.TTLDuration()), nil
	}
}

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config {
	return a.config
}

// Conversation returns the conversation service.
func (a *App) Conversation() *conversation.Service {
	return a.conversation
}

// Handler returns the HTTP handler without starting a listener.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, then closes transcripts and the cache.
// It is idempotent and aggregates failures of every step.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.transcripts != nil {
		if err := a.transcripts.Close(); err != nil {
			slog.Error("transcript close error", "error", err)
			errs = append(errs, fmt.Errorf("transcripts close: %w", err))
		}
	}

	if err := a.closeCache(); err != nil {
		slog.Error("cache close error", "error", err)
		errs = append(errs, fmt.Errorf("cache close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	slog.Debug("application shutdown complete")
	return nil
}

func (a *App) closeCache() error {
	if a.cache == nil {
		return nil
	}
	err := a.cache.Close()
	a.cache = nil
	return err
}

func (a *App) logStartupInfo() {
	cfg := a.config

	slog.Debug("api configured",
		"base_url", cfg.API.BaseURL,
		"model", cfg.API.Model,
		"default_max_tokens", cfg.API.DefaultMaxTokens,
		"max_retries", cfg.API.MaxRetries,
	)

	if cfg.Cache.Enabled {
		slog.Debug("model cache enabled", "type", cfg.Cache.Type, "ttl", cfg.Cache.TTLDuration())
	}

	if a.transcripts.Enabled() {
		slog.Debug("transcripts enabled",
			"storage_type", cfg.Storage.Type,
			"retention_days", cfg.Transcript.RetentionDays,
			"conversation_id", a.conversation.ConversationID(),
		)
	}
}
