// Package logger builds the slog.Logger used by the smbc command.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

// ParseLevel converts a level name to slog.Level. Unknown names yield
// slog.LevelInfo and false.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger for cfg. The closer releases the log file, if one was
// opened; it is safe to call for stdout and stderr.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)

	switch strings.ToLower(cfg.Output) {
	case "stderr", "":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		w, closer = f, f
	}

	l, err := NewWithWriter(w, cfg.Level, cfg.Format)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return l, closer, nil
}

// NewWithWriter returns a logger writing to w.
// This is primarily useful for testing.
func NewWithWriter(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl := slog.LevelInfo
	if level != "" {
		var ok bool
		if lvl, ok = ParseLevel(level); !ok {
			return nil, fmt.Errorf("unknown log level %q", level)
		}
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}
