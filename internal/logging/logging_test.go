package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "INFO", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "warning", want: slog.LevelWarn},
		{input: " error ", want: slog.LevelError},
		{input: "chatty", want: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_TextWithoutTerminalHasNoColor(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "info"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("sending request", "method", "GET")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "sending request")
	assert.Contains(t, out, "method=GET")
	assert.NotContains(t, out, "\x1b[", "no ANSI escapes when not writing to a terminal")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("user message", "content", "Hello")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "user message", record["msg"])
	assert.Equal(t, "Hello", record["content"])
}

func TestNew_FileSink(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "zhenghe.log")

	logger, closer, err := New(Config{Level: "info", Format: "text", File: path, MaxSizeMB: 1}, &buf)
	require.NoError(t, err)

	logger.With("request_id", "abc").Warn("request failed", "status", 429)
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), "request failed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	var record map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "request failed", record["msg"])
	assert.Equal(t, "abc", record["request_id"])
	assert.Equal(t, float64(429), record["status"])
}

func TestNew_Errors(t *testing.T) {
	_, _, err := New(Config{Level: "loud"}, &bytes.Buffer{})
	require.Error(t, err)

	_, _, err = New(Config{Format: "xml"}, &bytes.Buffer{})
	require.Error(t, err)
}
