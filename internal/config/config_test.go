package config

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"CARECHAT_SERVER_URL", "CARECHAT_POLL_INTERVAL", "CARECHAT_SERVER_PORT",
		"CARECHAT_STORE", "LLM_PROVIDER", "RESPONDER_WORKERS", "CARECHAT_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, "http://localhost:8585/query", cfg.ServerURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 8585, cfg.ServerPort)
	assert.Equal(t, ":8585", cfg.ListenAddr())
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, ProviderOllama, cfg.LLMProvider)
	assert.Equal(t, 2, cfg.ResponderWorkers)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CARECHAT_POLL_INTERVAL", "500ms")
	t.Setenv("CARECHAT_SERVER_PORT", "9000")
	t.Setenv("CARECHAT_STORE", "Surreal")
	t.Setenv("LLM_PROVIDER", "BEDROCK")
	t.Setenv("RESPONDER_WORKERS", "4")
	t.Setenv("CARECHAT_LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 9000, cfg.ServerPort)
	assert.Equal(t, StoreSurreal, cfg.Store)
	assert.Equal(t, ProviderBedrock, cfg.LLMProvider)
	assert.Equal(t, 4, cfg.ResponderWorkers)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("CARECHAT_POLL_INTERVAL", "soon")
	t.Setenv("CARECHAT_SERVER_PORT", "eighty")

	cfg := Load()
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 8585, cfg.ServerPort)
}

func TestValidate(t *testing.T) {
	base := Config{Store: StoreMemory, LLMProvider: ProviderNone, ServerPort: 8585, ResponderWorkers: 1}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"store", func(c *Config) { c.Store = "postgres" }},
		{"provider", func(c *Config) { c.LLMProvider = "gemini" }},
		{"port", func(c *Config) { c.ServerPort = 0 }},
		{"workers", func(c *Config) { c.ResponderWorkers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("chatty"))
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("synced", "subject", "42")

	assert.Contains(t, stderr.String(), "msg=synced")
	assert.Contains(t, file.String(), `"msg":"synced"`)
	assert.NotContains(t, stderr.String(), "hidden")
}

func TestSetupLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carechat.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("hello")
	require.NoError(t, cleanup())
	assert.FileExists(t, path)
}

func TestOpenLogFileCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nested", "carechat.log")
	f, err := OpenLogFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.FileExists(t, path)
}

func TestSetupLoggerWithWritersDiscard(t *testing.T) {
	var file bytes.Buffer
	logger := SetupLoggerWithWriters(io.Discard, &file, slog.LevelDebug)
	logger.Debug("tick", "subject", "42")
	assert.Contains(t, file.String(), `"msg":"tick"`)
}
