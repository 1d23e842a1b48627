package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	scierrors "github.com/YuminosukeSato/tidytune/pkg/errors"
)

// ZerologLogger implements Logger on top of zerolog.
type ZerologLogger struct {
	logger zerolog.Logger
	level  *levelVar
}

type levelVar struct {
	mu sync.RWMutex
	l  Level
}

func (v *levelVar) get() Level {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.l
}

func (v *levelVar) set(l Level) {
	v.mu.Lock()
	v.l = l
	v.mu.Unlock()
}

func (z *ZerologLogger) Debug(msg string, fields ...any) { z.emit(LevelDebug, msg, fields) }
func (z *ZerologLogger) Info(msg string, fields ...any)  { z.emit(LevelInfo, msg, fields) }
func (z *ZerologLogger) Warn(msg string, fields ...any)  { z.emit(LevelWarn, msg, fields) }
func (z *ZerologLogger) Error(msg string, fields ...any) { z.emit(LevelError, msg, fields) }

// With returns a child logger carrying fields.
func (z *ZerologLogger) With(fields ...any) Logger {
	ctx := z.logger.With()
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Interface(fmt.Sprint(fields[i]), fieldValue(fields[i+1]))
	}
	return &ZerologLogger{logger: ctx.Logger(), level: z.level}
}

// Enabled reports whether level passes the provider's threshold.
func (z *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	return level >= z.level.get()
}

func (z *ZerologLogger) emit(level Level, msg string, fields []any) {
	if level < z.level.get() {
		return
	}
	var e *zerolog.Event
	switch level {
	case LevelDebug:
		e = z.logger.Debug()
	case LevelInfo:
		e = z.logger.Info()
	case LevelWarn:
		e = z.logger.Warn()
	default:
		e = z.logger.Error()
	}
	err, rest := splitError(fields)
	if err != nil {
		e = e.Err(err)
	}
	for i := 0; i+1 < len(rest); i += 2 {
		key := fmt.Sprint(rest[i])
		switch v := rest[i+1].(type) {
		case zerolog.LogObjectMarshaler:
			e = e.Object(key, v)
		case error:
			e = e.AnErr(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}

func fieldValue(v any) any {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}

// ZerologProvider hands out ZerologLoggers that share one writer and level.
type ZerologProvider struct {
	root  zerolog.Logger
	level *levelVar
}

// ProviderOption configures NewZerologProvider.
type ProviderOption func(*providerConfig)

type providerConfig struct {
	out     io.Writer
	console bool
	file    *lumberjack.Logger
}

// WithWriter sets the output writer. Defaults to os.Stderr.
func WithWriter(w io.Writer) ProviderOption {
	return func(c *providerConfig) { c.out = w }
}

// WithConsole switches to zerolog's human-readable console format.
func WithConsole() ProviderOption {
	return func(c *providerConfig) { c.console = true }
}

// WithFile additionally writes JSON logs to a size-rotated file.
func WithFile(filename string) ProviderOption {
	return func(c *providerConfig) {
		filename = strings.TrimSpace(filename)
		if filename == "" {
			return
		}
		c.file = &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    32, // megabytes
			MaxBackups: 8,
			MaxAge:     15, // days
			Compress:   true,
		}
	}
}

// NewZerologProvider creates a provider emitting records at or above level.
func NewZerologProvider(level Level, opts ...ProviderOption) *ZerologProvider {
	cfg := providerConfig{out: os.Stderr}
	for _, opt := range opts {
		opt(&cfg)
	}
	var out io.Writer = cfg.out
	if cfg.console {
		out = zerolog.ConsoleWriter{Out: cfg.out, TimeFormat: time.DateTime}
	}
	if cfg.file != nil {
		out = zerolog.MultiLevelWriter(out, cfg.file)
	}
	return &ZerologProvider{
		root:  zerolog.New(out).With().Timestamp().Logger(),
		level: &levelVar{l: level},
	}
}

// GetLogger implements LoggerProvider.
func (p *ZerologProvider) GetLogger() Logger {
	return &ZerologLogger{logger: p.root, level: p.level}
}

// GetLoggerWithName implements LoggerProvider.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &ZerologLogger{logger: p.root.With().Str(ComponentKey, name).Logger(), level: p.level}
}

// SetLevel implements LoggerProvider.
func (p *ZerologProvider) SetLevel(level Level) {
	p.level.set(level)
}

// ForwardWarnings routes library warnings (errors.Warn) to this provider.
func (p *ZerologProvider) ForwardWarnings() {
	logger := p.GetLoggerWithName("warnings")
	scierrors.SetZerologWarnFunc(func(w error) {
		logger.Warn(w.Error(), ErrorTypeKey, fmt.Sprintf("%T", w))
	})
}

var (
	providerMu      sync.RWMutex
	defaultProvider LoggerProvider = NewZerologProvider(LevelInfo)
)

// SetProvider replaces the process-wide fallback provider.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	defaultProvider = p
}

// GetLogger returns the fallback provider's logger.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return defaultProvider.GetLogger()
}

// GetLoggerWithName returns a named logger from the fallback provider.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return defaultProvider.GetLoggerWithName(name)
}
