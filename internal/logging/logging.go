package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	tlog "go.temporal.io/sdk/log"
)

// New builds the process logger. format is "json" or "text".
func New(w io.Writer, level, format string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{
		Level:           ParseLevel(level),
		ReportTimestamp: true,
		Formatter:       log.TextFormatter,
	}
	if strings.EqualFold(format, "json") {
		opts.Formatter = log.JSONFormatter
	}
	return log.NewWithOptions(w, opts)
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

func ParseLevel(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Temporal adapts l for the Temporal client and worker.
func Temporal(l *log.Logger) tlog.Logger {
	return tlog.NewStructuredLogger(slog.New(l))
}
