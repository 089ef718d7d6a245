package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values
// return fallback.
func ParseLevel(value string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	default:
		return fallback
	}
}

// New builds a logger writing to w. Terminals get the text handler,
// anything else (files, pipes, CI) gets JSON.
func New(w io.Writer, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// Init installs the default logger. LOG_LEVEL overrides fallback and
// LOG_FILE redirects output away from stderr, which keeps the chat TUI
// readable. The returned function closes the log file, if any.
func Init(fallback slog.Level) (func() error, error) {
	level := ParseLevel(os.Getenv("LOG_LEVEL"), fallback)

	var out io.Writer = os.Stderr
	closeFn := func() error { return nil }
	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out, closeFn = f, f.Close
	}

	slog.SetDefault(New(out, level))
	return closeFn, nil
}
