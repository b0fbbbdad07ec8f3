package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, logging.ParseLevel(tt.in), tt.in)
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(logging.Config{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Warn("alert escalated", "alert", "a1")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "alert escalated", entry["msg"])
	assert.Equal(t, "a1", entry["alert"])
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(logging.Config{Format: "text"}, &buf)

	logger.Info("trigger finished", "processed", 3)
	assert.Contains(t, buf.String(), "msg=\"trigger finished\"")
	assert.Contains(t, buf.String(), "processed=3")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bdg.log")
	logger, closeFn, err := logging.New(logging.Config{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("written to file")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}
