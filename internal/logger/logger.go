package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var log *slog.Logger

// Init configures the package-level logger. JSON output goes to stdout so
// log shippers can pick it up without extra plumbing. LOG_LEVEL controls
// verbosity (debug, info, warn, error; default info).
func Init() {
	opts := &slog.HandlerOptions{Level: levelFromEnv()}
	log = slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// New builds a logger from the given handler.
func New(h slog.Handler) *slog.Logger {
	return slog.New(h)
}

// NewJSONHandler wraps slog's JSON handler so callers don't import slog
// just to construct one.
func NewJSONHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewJSONHandler(w, opts)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ensure() *slog.Logger {
	if log == nil {
		Init()
	}
	return log
}

func Info(msg string, args ...any) {
	ensure().Info(msg, args...)
}

func Infof(format string, v ...any) {
	ensure().Info(fmt.Sprintf(format, v...))
}

func Error(msg string, args ...any) {
	ensure().Error(msg, args...)
}

func Errorf(format string, v ...any) {
	ensure().Error(fmt.Sprintf(format, v...))
}

func Debug(msg string, args ...any) {
	ensure().Debug(msg, args...)
}

func Debugf(format string, v ...any) {
	ensure().Debug(fmt.Sprintf(format, v...))
}

func Warn(msg string, args ...any) {
	ensure().Warn(msg, args...)
}

func Fatal(msg string, args ...any) {
	ensure().Error(msg, args...)
	os.Exit(1)
}

func Fatalf(format string, v ...any) {
	ensure().Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

// WithError returns a logger carrying the error as a structured attribute.
func WithError(err error) *slog.Logger {
	return ensure().With("error", err)
}

// WithFields returns a logger carrying the given attributes.
func WithFields(fields map[string]any) *slog.Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return ensure().With(args...)
}
