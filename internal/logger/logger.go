// Package logger holds the component-scoped structured loggers.
package logger

import (
	"io"
	"log"
	"log/slog"
	"os"
)

// Component loggers; replaced by Init.
var (
	Main      *slog.Logger
	Store     *slog.Logger
	Service   *slog.Logger
	HTTP      *slog.Logger
	Scheduler *slog.Logger
	Notify    *slog.Logger
)

func init() {
	Init("text")
}

// Init configures the component loggers. format is "text" or "json".
func Init(format string) {
	InitWriter(os.Stderr, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, format string) {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	base := slog.New(h)
	Main = base.With("component", "main")
	Store = base.With("component", "store")
	Service = base.With("component", "service")
	HTTP = base.With("component", "http")
	Scheduler = base.With("component", "scheduler")
	Notify = base.With("component", "notify")
}

// StdLogger adapts a component logger for libraries that want a *log.Logger.
func StdLogger(l *slog.Logger, level slog.Level) *log.Logger {
	return slog.NewLogLogger(l.Handler(), level)
}

// Fatal logs at error level and exits with code 1.
func Fatal(l *slog.Logger, msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}
