package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options select the handler built by New. Zero values mean info-level JSON
// on stdout.
type Options struct {
	// Level is one of debug, info, warn, error. Unrecognised values fall
	// back to info.
	Level string

	// Format is "json" or "text".
	Format string

	// Output is "stdout" or "stderr".
	Output string
}

// New returns a logger configured per opts, with the service name and
// version as default fields.
func New(opts Options, version string) *slog.Logger {
	var output io.Writer
	switch strings.ToLower(opts.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level: parseLevel(opts.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "text":
		handler = slog.NewTextHandler(output, handlerOpts)
	default:
		handler = slog.NewJSONHandler(output, handlerOpts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "latchctl"),
		slog.String("version", version),
	})

	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level, defaulting to info.
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
