package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreLogger(t *testing.T) {
	t.Helper()
	prevLogger, prevLevel := logger, currentLevel
	t.Cleanup(func() {
		logger, currentLevel, logFile = prevLogger, prevLevel, nil
		slog.SetDefault(prevLogger)
	})
}

func TestShutdownLoggerFlushesBufferedRecords(t *testing.T) {
	restoreLogger(t)
	path := filepath.Join(t.TempDir(), "phishguard.log")
	cfg := LoggingConfig{Level: "debug", Format: "json", Outputs: []string{"file"}}
	cfg.File.Path = path
	require.NoError(t, InitLogger(cfg))
	assert.True(t, IsDebugEnabled())

	for i := 0; i < 100; i++ {
		LogError("[ENGINE] Ensemble failed for http://h%d.test: boom", i)
	}
	ShutdownLogger()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 100, strings.Count(string(data), "Ensemble failed"))
	assert.Contains(t, string(data), `"level":"ERROR"`)
}

func TestInitLoggerRejectsBadOutputs(t *testing.T) {
	restoreLogger(t)
	assert.Error(t, InitLogger(LoggingConfig{Outputs: []string{"syslog"}}))
	assert.Error(t, InitLogger(LoggingConfig{Outputs: []string{"file"}}))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel(" debug "))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}
