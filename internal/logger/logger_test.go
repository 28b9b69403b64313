package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
	} {
		got, ok := ParseLevel(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}

	_, ok := ParseLevel("chatty")
	require.False(t, ok)
}

func TestTextLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "WARN", "text")
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown", "server", "fileserver:445")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "server=fileserver:445")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "debug", "json")
	require.NoError(t, err)

	l.Debug("exchange", "command", "CREATE")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "exchange", rec["msg"])
	assert.Equal(t, "CREATE", rec["command"])
}

func TestInvalidConfig(t *testing.T) {
	_, err := NewWithWriter(&bytes.Buffer{}, "loud", "text")
	require.Error(t, err)

	_, err = NewWithWriter(&bytes.Buffer{}, "info", "xml")
	require.Error(t, err)
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smbc.log")

	l, closer, err := New(Config{Level: "INFO", Format: "text", Output: path})
	require.NoError(t, err)
	l.Info("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=\"to file\"")
}

func TestFileOutputError(t *testing.T) {
	_, _, err := New(Config{Output: filepath.Join(t.TempDir(), "missing", "smbc.log")})
	require.Error(t, err)
}
