package observability

import (
	"log/slog"
	"os"
)

// process-wide logger, JSON to stdout.
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

func Logger() *slog.Logger {
	return logger
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(name string) *slog.Logger {
	return logger.With("component", name)
}

// SetLogger swaps the process logger, mainly for tests.
func SetLogger(l *slog.Logger) {
	logger = l
}
