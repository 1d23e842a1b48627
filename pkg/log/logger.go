package log

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// SetupLogger installs a JSON slog handler writing to w as the slog default and
// returns a Logger backed by it. Error values logged under ErrAttrKey get a
// stacktrace attribute (see ErrFmtHandler).
func SetupLogger(w io.Writer, loglevel string) (Logger, error) {
	level, err := ParseLevel(loglevel)
	if err != nil {
		return nil, err
	}
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     slog.Level(level),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr.Key = "severity"
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	}
	handler := WrapByErrFmtHandler(slog.NewJSONHandler(w, &ops))
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return &SlogLogger{logger: logger}, nil
}

// ParseLevel converts "debug", "info", "warn" or "error" to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %q", level)
	}
}

// ToLogLevel is ParseLevel for trusted input; it panics on an unknown level.
func ToLogLevel(level string) Level {
	l, err := ParseLevel(level)
	if err != nil {
		panic(err)
	}
	return l
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// splitError pulls a leading error value out of fields.
func splitError(fields []any) (error, []any) {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			return err, fields[1:]
		}
	}
	return nil, fields
}
