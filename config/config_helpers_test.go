package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestExpandString tests the expandString function with various scenarios
func TestExpandString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "string without placeholders",
			input:    "simple-string",
			envVars:  map[string]string{},
			expected: "simple-string",
		},
		{
			name:     "simple variable expansion",
			input:    "${API_KEY}",
			envVars:  map[string]string{"API_KEY": "sk-12345"},
			expected: "sk-12345",
		},
		{
			name:     "variable in middle of string",
			input:    "prefix-${API_KEY}-suffix",
			envVars:  map[string]string{"API_KEY": "sk-12345"},
			expected: "prefix-sk-12345-suffix",
		},
		{
			name:     "multiple variables",
			input:    "${SCHEME}://${HOST}:${PORT}",
			envVars:  map[string]string{"SCHEME": "https", "HOST": "api.example.com", "PORT": "8080"},
			expected: "https://api.example.com:8080",
		},
		{
			name:     "variable with default value - env var exists",
			input:    "${API_KEY:-default-key}",
			envVars:  map[string]string{"API_KEY": "sk-real-key"},
			expected: "sk-real-key",
		},
		{
			name:     "variable with default value - env var missing",
			input:    "${API_KEY:-default-key}",
			envVars:  map[string]string{},
			expected: "default-key",
		},
		{
			name:     "variable with default value - env var empty",
			input:    "${API_KEY:-default-key}",
			envVars:  map[string]string{"API_KEY": ""},
			expected: "default-key",
		},
		{
			name:     "unresolved variable - no default",
			input:    "${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "${MISSING_VAR}",
		},
		{
			name:     "partially resolved string",
			input:    "${RESOLVED}-${UNRESOLVED}",
			envVars:  map[string]string{"RESOLVED": "value1"},
			expected: "value1-${UNRESOLVED}",
		},
		{
			name:     "mixed resolved and unresolved with defaults",
			input:    "${RESOLVED}:${UNRESOLVED:-fallback}:${MISSING}",
			envVars:  map[string]string{"RESOLVED": "value1"},
			expected: "value1:fallback:${MISSING}",
		},
		{
			name:     "default value with special characters",
			input:    "${API_KEY:-https://api.example.com/v1}",
			envVars:  map[string]string{},
			expected: "https://api.example.com/v1",
		},
		{
			name:     "default value with colon in it",
			input:    "${URL:-http://localhost:8080}",
			envVars:  map[string]string{},
			expected: "http://localhost:8080",
		},
		{
			name:     "complex real-world example",
			input:    "${BASE_URL:-https://api.deepseek.com}/chat/completions",
			envVars:  map[string]string{},
			expected: "https://api.deepseek.com/chat/completions",
		},
		{
			name:     "environment variable set to empty string (no default)",
			input:    "${EMPTY_VAR}",
			envVars:  map[string]string{"EMPTY_VAR": ""},
			expected: "${EMPTY_VAR}",
		},
		{
			name:     "empty default value - env var missing",
			input:    "${OPTIONAL_VAR:-}",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "empty default value - env var set",
			input:    "${OPTIONAL_VAR:-}",
			envVars:  map[string]string{"OPTIONAL_VAR": "actual-value"},
			expected: "actual-value",
		},
		{
			name:     "empty default value - env var empty",
			input:    "${OPTIONAL_VAR:-}",
			envVars:  map[string]string{"OPTIONAL_VAR": ""},
			expected: "",
		},
		{
			name:     "api key pattern - not set should be empty",
			input:    "${DEEPSEEK_API_KEY:-}",
			envVars:  map[string]string{},
			expected: "",
		},
		{
			name:     "api key pattern - set to value",
			input:    "${DEEPSEEK_API_KEY:-}",
			envVars:  map[string]string{"DEEPSEEK_API_KEY": "sk-secret"},
			expected: "sk-secret",
		},
		{
			name:     "multiple placeholders some resolved some not",
			input:    "prefix-${VAR1}-${VAR2}-${VAR3}-suffix",
			envVars:  map[string]string{"VAR1": "a", "VAR3": "c"},
			expected: "prefix-a-${VAR2}-c-suffix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				_ = os.Setenv(k, v)
			}
			defer func() {
				for k := range tt.envVars {
					_ = os.Unsetenv(k)
				}
			}()

			result := expandString(tt.input)
			if result != tt.expected {
				t.Errorf("expandString(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// TestApplyEnvOverrides tests the applyEnvOverrides function
func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "PORT override",
			envVars: map[string]string{"PORT": "3000"},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "3000", cfg.Server.Port)
			},
		},
		{
			name: "API overrides",
			envVars: map[string]string{
				"DEEPSEEK_API_KEY":   "sk-env",
				"DEEPSEEK_BASE_URL":  "http://localhost:9000",
				"DEEPSEEK_MODEL":     "deepseek-reasoner",
				"DEFAULT_MAX_TOKENS": "512",
				"MAX_RETRIES":        "0",
			},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "sk-env", cfg.API.APIKey)
				require.Equal(t, "http://localhost:9000", cfg.API.BaseURL)
				require.Equal(t, "deepseek-reasoner", cfg.API.Model)
				require.Equal(t, 512, cfg.API.DefaultMaxTokens)
				require.Equal(t, 0, cfg.API.MaxRetries)
			},
		},
		{
			name:    "storage overrides",
			envVars: map[string]string{"STORAGE_TYPE": "postgresql", "POSTGRES_URL": "postgres://localhost/test", "POSTGRES_MAX_CONNS": "20"},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "postgresql", cfg.Storage.Type)
				require.Equal(t, "postgres://localhost/test", cfg.Storage.PostgreSQL.URL)
				require.Equal(t, 20, cfg.Storage.PostgreSQL.MaxConns)
			},
		},
		{
			name:    "bool overrides",
			envVars: map[string]string{"METRICS_ENABLED": "false", "CACHE_ENABLED": "1", "TRANSCRIPT_ENABLED": "true"},
			check: func(t *testing.T, cfg *Config) {
				require.False(t, cfg.Metrics.Enabled)
				require.True(t, cfg.Cache.Enabled)
				require.True(t, cfg.Transcript.Enabled)
			},
		},
		{
			name:    "HTTP timeout overrides",
			envVars: map[string]string{"HTTP_CONNECT_TIMEOUT": "5", "HTTP_READ_TIMEOUT": "30", "HTTP_WRITE_TIMEOUT": "15"},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, 5*time.Second, cfg.HTTP.ConnectTimeoutDuration())
				require.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeoutDuration())
				require.Equal(t, 15*time.Second, cfg.HTTP.WriteTimeoutDuration())
			},
		},
		{
			name:    "cache overrides",
			envVars: map[string]string{"CACHE_TYPE": "redis", "REDIS_URL": "redis://localhost:6379", "CACHE_TTL": "60"},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "redis", cfg.Cache.Type)
				require.Equal(t, "redis://localhost:6379", cfg.Cache.Redis.URL)
				require.Equal(t, time.Minute, cfg.Cache.TTLDuration())
			},
		},
		{
			name:    "no env vars set preserves defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				require.Equal(t, "8080", cfg.Server.Port)
				require.Equal(t, "https://api.deepseek.com", cfg.API.BaseURL)
				require.Equal(t, 50, cfg.API.DefaultMaxTokens)
				require.Equal(t, 60, cfg.HTTP.ConnectTimeout)
				require.Equal(t, 90, cfg.HTTP.ReadTimeout)
				require.Equal(t, 60, cfg.HTTP.WriteTimeout)
				require.False(t, cfg.Cache.Enabled)
				require.False(t, cfg.Transcript.Enabled)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := buildDefaultConfig()
			require.NoError(t, applyEnvOverrides(cfg))
			tt.check(t, cfg)
		})
	}
}

func TestApplyEnvOverrides_InvalidValues(t *testing.T) {
	t.Setenv("DEFAULT_MAX_TOKENS", "lots")
	t.Setenv("CACHE_ENABLED", "maybe")

	err := applyEnvOverrides(buildDefaultConfig())
	require.Error(t, err)
	require.Contains(t, err.Error(), "DEFAULT_MAX_TOKENS")
	require.Contains(t, err.Error(), "CACHE_ENABLED")
}
