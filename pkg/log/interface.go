// Package log provides a structured logging interface for model comparison runs.
//
// Logger is a minimal slog-compatible interface. Two backends ship with the
// package: a zerolog provider (the default, see NewZerologProvider) and a
// log/slog JSON handler (SetupLogger). Components receive a Logger explicitly
// through their options and fall back to GetLoggerWithName when none is given.
//
//	logger := log.GetLoggerWithName("tune").With(log.FamilyKey, "random_forest")
//	logger.Info("grid scored",
//	    log.ConfigsKey, 25,
//	    log.FoldsKey, 10,
//	)

package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key-value pairs. Error accepts an error as its first
// field; it is logged under the "error" key.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates named loggers sharing one output and level.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers created by this provider.
	SetLevel(level Level)
}
