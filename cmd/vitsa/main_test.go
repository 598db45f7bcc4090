package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/vitsa/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{config.EnvPort, config.EnvAPIKey, config.EnvEndpoint, config.EnvLogLevel} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vitsa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version"}, &out))
	assert.Equal(t, "vitsa "+Version+"\n", out.String())
}

func TestRunValidate(t *testing.T) {
	clearEnv(t)
	missingEnv := filepath.Join(t.TempDir(), "missing.env")

	t.Run("valid", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 8080\nchat:\n  strict_history: true\n")

		var out bytes.Buffer
		require.NoError(t, run(context.Background(), []string{"-config", path, "-env", missingEnv, "-validate"}, &out))
		assert.Equal(t, "Configuration is valid\n", out.String())
	})

	t.Run("invalid", func(t *testing.T) {
		path := writeConfig(t, "logging:\n  level: loud\n")

		err := run(context.Background(), []string{"-config", path, "-env", missingEnv, "-validate"}, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("unknown flag", func(t *testing.T) {
		err := run(context.Background(), []string{"-nope"}, &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestRunServesUntilCancelled(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  port: 0\n  static_dir: \"\"\n  shutdown_timeout: 1s\nlogging:\n  level: error\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"-config", path, "-env", filepath.Join(t.TempDir(), "none.env")}, &bytes.Buffer{})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestBuildHandler(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{name: "metrics disabled", mutate: func(c *config.Config) { c.Metrics.Enabled = false }},
		{name: "circuit breaker", mutate: func(c *config.Config) { c.CircuitBreaker.Enabled = true }},
		{name: "strict history", mutate: func(c *config.Config) { c.Chat.StrictHistory = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Server.StaticDir = ""
			tt.mutate(cfg)

			h, err := buildHandler(cfg, zaptest.NewLogger(t))
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestBuildHandlerRejectsBadBreaker(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CircuitBreaker.Enabled = true
	cfg.CircuitBreaker.FailureThreshold = 0

	_, err := buildHandler(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker")
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		level   zapcore.Level
		wantErr bool
	}{
		{name: "json info", cfg: config.LoggingConfig{Level: "info", Format: "json"}, level: zapcore.InfoLevel},
		{name: "text debug", cfg: config.LoggingConfig{Level: "debug", Format: "text"}, level: zapcore.DebugLevel},
		{name: "warn", cfg: config.LoggingConfig{Level: "warn", Format: "json"}, level: zapcore.WarnLevel},
		{name: "bad level", cfg: config.LoggingConfig{Level: "loud", Format: "json"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := newLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level))
			if tt.level > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.level-1))
			}
		})
	}
}
