// Package logx provides a small structured logging layer over zerolog.
//
// It exposes a value-type Logger with slog-like Field helpers, and a
// Service that owns sink configuration (console, file, event bus) and
// can swap it at runtime without invalidating existing loggers.
package logx
