package clilog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/drewfead/clikit/clilog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnit_ParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "none", want: clilog.LevelNone},
		{in: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := clilog.ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, name := range []string{"debug", "info", "warn", "error", "none"} {
		level, err := clilog.ParseLevel(name)
		require.NoError(t, err)
		assert.Equal(t, name, clilog.LevelName(level))
	}
}

func TestUnit_Configure(t *testing.T) {
	t.Run("human to output", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer, err := clilog.Configure(clilog.Options{Level: slog.LevelWarn, Output: &buf})
		require.NoError(t, err)
		defer closer.Close()

		logger.Info("hidden")
		logger.Warn("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "[WARN]")
	})

	t.Run("json to output", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer, err := clilog.Configure(clilog.Options{Format: clilog.FormatJSON, Output: &buf})
		require.NoError(t, err)
		defer closer.Close()

		logger.Info("structured", "count", 2)

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "structured", record["msg"])
		assert.InDelta(t, 2, record["count"], 0)
	})

	t.Run("none silences everything", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer, err := clilog.Configure(clilog.Options{Level: clilog.LevelNone, Output: &buf})
		require.NoError(t, err)
		defer closer.Close()

		logger.Error("nope")
		assert.Empty(t, buf.String())
	})

	t.Run("invalid format", func(t *testing.T) {
		_, closer, err := clilog.Configure(clilog.Options{Format: "xml"})
		require.Error(t, err)
		assert.NotNil(t, closer)
	})

	t.Run("file sink receives json", func(t *testing.T) {
		var buf bytes.Buffer
		path := filepath.Join(t.TempDir(), "logs", "cli.log")
		logger, closer, err := clilog.Configure(clilog.Options{
			Level:    slog.LevelInfo,
			Output:   &buf,
			File:     path,
			Rotation: clilog.Rotation{MaxSizeMB: 1, MaxBackups: 1},
		})
		require.NoError(t, err)

		clilog.ForSource(logger, "executor").Info("to both", "id", "abc")
		require.NoError(t, closer.Close())

		assert.Contains(t, buf.String(), "(executor) to both")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		line := strings.TrimSpace(string(data))
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		assert.Equal(t, "to both", record["msg"])
		assert.Equal(t, "executor", record["source"])
		assert.Equal(t, "abc", record["id"])
	})
}

func TestUnit_ContextLogger(t *testing.T) {
	assert.Same(t, slog.Default(), clilog.FromContext(context.Background()))

	logger := clilog.Discard()
	ctx := clilog.WithLogger(context.Background(), logger)
	assert.Same(t, logger, clilog.FromContext(ctx))
}

func TestUnit_RedactedAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(clilog.HumanFriendlySlogHandler(&buf, nil).WithoutColor())

	logger.Info("options", clilog.RedactedAttrs("options",
		map[string]any{"user": "ada", "token": "s3cr3t"},
		[]string{"token"},
	))

	assert.Contains(t, buf.String(), "options.user=ada")
	assert.Contains(t, buf.String(), "options.token=[REDACTED]")
	assert.NotContains(t, buf.String(), "s3cr3t")
}
