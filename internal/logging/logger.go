// Package logging provides structured logging for the ffmpegevents module.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// NewLogger creates a new structured logger with the specified format and
// level. Format should be "json", "text", or "auto" (the default): auto
// picks a colorized console handler when stderr is a terminal, and JSON
// otherwise, so local runs stay readable while piped/CI output stays
// machine-parseable.
// Level should be "debug", "info", "warn", or "error".
func NewLogger(format, level string) *slog.Logger {
	return newLogger(os.Stderr, format, level)
}

// NewLoggerWithWriter creates a logger that writes to a custom writer.
// Useful for testing; "auto" format never selects the tint handler here,
// since a non-*os.File writer is never a terminal.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	return newLogger(w, format, level)
}

func newLogger(w io.Writer, format, level string) *slog.Logger {
	logLevel := parseLevel(level)

	switch resolveFormat(w, format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: logLevel == slog.LevelDebug,
		}))
	case "text":
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: logLevel == slog.LevelDebug,
		}))
	default: // "console", via tint
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.Kitchen,
		}))
	}
}

// resolveFormat turns a requested format plus the destination writer into
// a concrete handler choice. "auto" (or an empty string) defers to
// terminal detection; any other value is passed through verbatim.
func resolveFormat(w io.Writer, format string) string {
	format = strings.ToLower(format)
	if format != "" && format != "auto" {
		return format
	}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return "console"
	}
	return "json"
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
