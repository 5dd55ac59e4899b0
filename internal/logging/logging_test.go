package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/veracity/internal/model"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, true, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("assessment complete", "confidence", "HIGH")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "assessment complete", entry["msg"])
	assert.Equal(t, "HIGH", entry["confidence"])
}

func TestNew_FileRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "veracity.log")

	logger, closer, err := New(model.LoggingConfig{Level: "warn", File: path, MaxSizeMB: 1}, false)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("external fact check unavailable", "reason", "network")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "external fact check unavailable")
	assert.NotContains(t, string(data), "dropped")
}

func TestNew_VerboseOverridesLevel(t *testing.T) {
	logger, closer, err := New(model.LoggingConfig{Level: "error"}, true)
	require.NoError(t, err)
	defer closer.Close()

	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New(model.LoggingConfig{Level: "loud"}, false)
	assert.Error(t, err)
}
