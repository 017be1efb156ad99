// Package logging provides structured logging for go-workload-monitor.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a structured logger on stderr.
// Format should be "json" or "text". Verbose lowers the level to debug,
// quiet raises it to warn; when both are set verbose wins, although
// config validation rejects that combination before we get here.
func NewLogger(format string, verbose, quiet bool) *slog.Logger {
	return NewLoggerWithWriter(os.Stderr, format, LevelFor(verbose, quiet))
}

// NewLoggerWithWriter creates a logger that writes to a custom writer.
// A nil writer discards.
func NewLoggerWithWriter(w io.Writer, format string, level slog.Level) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location for debug level
		AddSource: level == slog.LevelDebug,
	}
	return slog.New(newHandler(w, format, opts))
}

// LevelFor maps the verbosity toggles onto a slog level.
func LevelFor(verbose, quiet bool) slog.Level {
	switch {
	case verbose:
		return slog.LevelDebug
	case quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	default:
		// Text is the default; this is an interactive tool first.
		return slog.NewTextHandler(w, opts)
	}
}

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
