package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	cases := map[string]slog.Level{
		"error":    slog.LevelError,
		" WARN ":   slog.LevelWarn,
		"warning":  slog.LevelWarn,
		"debug":    slog.LevelDebug,
		"info":     slog.LevelInfo,
		"":         slog.LevelInfo,
		"nonsense": slog.LevelInfo,
	}
	for in, want := range cases {
		require.Equal(t, want, levelFromString(in), in)
	}
}

func TestJSONIsDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "")
	logger.Debug("hidden")
	logger.Info("rank cache refreshed", "ranked", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "rank cache refreshed", entry["msg"])
	require.EqualValues(t, 3, entry["ranked"])
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "debug", "TEXT").Debug("scan", "day", "2026-10-15")
	require.Contains(t, buf.String(), "level=DEBUG")
	require.Contains(t, buf.String(), "day=2026-10-15")
}
