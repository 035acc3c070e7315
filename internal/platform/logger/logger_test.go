package logger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskconvertai/taskconvert-api/internal/config"
	"github.com/taskconvertai/taskconvert-api/internal/platform/logger"
)

func TestSetupWithWriter(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	t.Run("respects level", func(t *testing.T) {
		buf := &logger.TestLogBuffer{}
		log := logger.SetupWithWriter(config.ServerConfig{LogLevel: "warn"}, buf)

		log.Info("hidden")
		log.Warn("shown", "job_id", "job_1")

		entries, err := buf.GetLogEntries()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "shown", entries[0]["msg"])
		assert.Equal(t, "job_1", entries[0]["job_id"])
		assert.Equal(t, "taskconvert-api", entries[0]["service"])
	})

	t.Run("becomes default", func(t *testing.T) {
		buf := &logger.TestLogBuffer{}
		logger.SetupWithWriter(config.ServerConfig{LogLevel: "debug"}, buf)

		slog.Debug("via default")
		logger.AssertLogContains(t, buf, "via default")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		buf := &logger.TestLogBuffer{}
		log := logger.SetupWithWriter(config.ServerConfig{LogLevel: "verbose"}, buf)

		log.Debug("hidden")
		log.Info("shown")
		assert.Equal(t, 0, buf.CountMessages("hidden"))
		assert.Equal(t, 1, buf.CountMessages("shown"))
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		want  slog.Level
		valid bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{" warn ", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"fatal", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tc := range tests {
		got, ok := logger.ParseLevel(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.valid, ok, tc.in)
	}
}

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	captured, buf := logger.GetTestLogger(t)
	fallback, fallbackBuf := logger.GetTestLogger(t)

	t.Run("no logger in context", func(t *testing.T) {
		assert.Same(t, fallback, logger.FromContextOrDefault(context.Background(), fallback))
		assert.NotNil(t, logger.FromContext(context.Background()))
	})

	t.Run("logger in context", func(t *testing.T) {
		ctx := logger.WithLogger(context.Background(), captured)
		assert.Same(t, captured, logger.FromContextOrDefault(ctx, fallback))
	})

	t.Run("request id attached", func(t *testing.T) {
		ctx := logger.WithLogger(context.Background(), captured)
		ctx = logger.WithRequestID(ctx, "req-1")

		assert.Equal(t, "req-1", logger.RequestIDFromContext(ctx))
		logger.FromContext(ctx).Info("with id")
		logger.AssertLogField(t, buf, "request_id", "req-1")
	})

	t.Run("request id without stored logger", func(t *testing.T) {
		ctx := logger.WithRequestID(context.Background(), "req-2")
		logger.FromContextOrDefault(ctx, fallback).Info("fallback with id")
		logger.AssertLogField(t, fallbackBuf, "request_id", "req-2")
	})
}
