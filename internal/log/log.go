// Package log provides structured logging for go-concierge.
// It wraps slog so every command and server shares one handler setup.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// New builds a logger writing to w. Format "json" selects the JSON
// handler, anything else the text handler.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Init initializes the global logger. Only the first call has effect.
// JSON output is used when format is "json" or GO_ENV is "production".
func Init(level, format string) {
	once.Do(func() {
		if format == "" && os.Getenv("GO_ENV") == "production" {
			format = "json"
		}
		// stdout is reserved for PCM in pipe mode
		logger = New(os.Stderr, level, format)
		slog.SetDefault(logger)
	})
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info", "")
	}
	return logger
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
