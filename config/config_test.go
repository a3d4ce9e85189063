package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile_NoFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "deepseek-chat", cfg.API.Model)
	assert.Equal(t, 50, cfg.API.DefaultMaxTokens)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "/metrics", cfg.Metrics.Endpoint)
}

func TestLoadFile_WithDefaults(t *testing.T) {
	content := `
api:
  api_key: "${TEST_KEY_DEFAULTS:-default-key}"
  model: deepseek-reasoner
server:
  port: "${TEST_PORT_DEFAULTS:-9999}"
`

	t.Run("UseDefaultValue", func(t *testing.T) {
		cfg, err := LoadFile(writeConfig(t, content))
		require.NoError(t, err)

		assert.Equal(t, "9999", cfg.Server.Port)
		assert.Equal(t, "default-key", cfg.API.APIKey)
		assert.Equal(t, "deepseek-reasoner", cfg.API.Model)
		assert.Equal(t, "https://api.deepseek.com", cfg.API.BaseURL, "unset keys keep defaults")
	})

	t.Run("OverrideDefaultValue", func(t *testing.T) {
		t.Setenv("TEST_PORT_DEFAULTS", "1111")
		t.Setenv("TEST_KEY_DEFAULTS", "real-key")

		cfg, err := LoadFile(writeConfig(t, content))
		require.NoError(t, err)

		assert.Equal(t, "1111", cfg.Server.Port)
		assert.Equal(t, "real-key", cfg.API.APIKey)
	})
}

func TestLoadFile_EnvBeatsFile(t *testing.T) {
	t.Setenv("DEFAULT_MAX_TOKENS", "256")

	cfg, err := LoadFile(writeConfig(t, "api:\n  default_max_tokens: 100\n"))
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.API.DefaultMaxTokens)
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			content: "api: [unterminated",
			wantErr: "failed to parse config file",
		},
		{
			name:    "non-positive max tokens",
			content: "api:\n  default_max_tokens: 0\n",
			wantErr: "DefaultMaxTokens",
		},
		{
			name:    "unknown log level",
			content: "logging:\n  level: chatty\n",
			wantErr: "Level",
		},
		{
			name:    "unknown storage type",
			content: "storage:\n  type: oracle\n",
			wantErr: "Type",
		},
		{
			name:    "invalid base url",
			content: "api:\n  base_url: not a url\n",
			wantErr: "BaseURL",
		},
		{
			name:    "redis cache without url",
			content: "cache:\n  enabled: true\n  type: redis\n",
			wantErr: "REDIS_URL",
		},
		{
			name:    "postgres transcripts without url",
			content: "transcript:\n  enabled: true\nstorage:\n  type: postgresql\n",
			wantErr: "POSTGRES_URL",
		},
		{
			name:    "bad env integer",
			content: "",
			env:     map[string]string{"HTTP_READ_TIMEOUT": "soon"},
			wantErr: "HTTP_READ_TIMEOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFile(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, writeConfig(t, "server:\n  port: \"7070\"\n"))
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
}
