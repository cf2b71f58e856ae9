// Package logging builds configured slog loggers for latchctl.
//
// The library itself takes a plain *slog.Logger; this package only exists
// so the CLI can turn config strings (level, format, output) into one.
package logging
