package logger

import (
	"io"
	"log/slog"
	"os"
)

// New creates a new slog.Logger instance that writes JSON to os.Stdout.
// If debug is true, the log level is set to Debug. Otherwise, it's set to Info.
func New(debug bool) *slog.Logger {
	return NewWithWriter(os.Stdout, debug)
}

// NewWithWriter creates a new slog.Logger instance with a specific writer.
func NewWithWriter(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})).With("service", "contentmill")
}

// Discard returns a logger that drops every record. Used where a logger is
// required but output is irrelevant.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// KeySuffix returns the last 4 characters of a secret, or the full value if it's shorter.
// Full provider secrets must never reach the logs.
func KeySuffix(secret string) string {
	if len(secret) > 4 {
		return secret[len(secret)-4:]
	}
	return secret
}
