package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// TestLogger captures log records in memory as JSON lines.
// It is safe for concurrent use, so it can be handed to the tuning pool.
type TestLogger struct {
	sink   *testSink
	level  Level
	fields map[string]interface{}
}

type testSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewTestLogger creates a TestLogger capturing records at or above level.
//
//	logger := log.NewTestLogger(log.LevelDebug)
//	tune.Grid(ctx, wf, folds, g, tune.Options{Logger: logger})
//	if !logger.ContainsMessage("configuration excluded") { ... }
func NewTestLogger(level Level) *TestLogger {
	return &TestLogger{
		sink:   &testSink{},
		level:  level,
		fields: make(map[string]interface{}),
	}
}

func (t *TestLogger) Debug(msg string, fields ...any) { t.write(LevelDebug, msg, fields) }
func (t *TestLogger) Info(msg string, fields ...any)  { t.write(LevelInfo, msg, fields) }
func (t *TestLogger) Warn(msg string, fields ...any)  { t.write(LevelWarn, msg, fields) }
func (t *TestLogger) Error(msg string, fields ...any) { t.write(LevelError, msg, fields) }

// With implements Logger.With.
func (t *TestLogger) With(fields ...any) Logger {
	newFields := make(map[string]interface{}, len(t.fields)+len(fields)/2)
	for k, v := range t.fields {
		newFields[k] = v
	}
	for i := 0; i+1 < len(fields); i += 2 {
		newFields[fmt.Sprint(fields[i])] = fieldValue(fields[i+1])
	}
	return &TestLogger{sink: t.sink, level: t.level, fields: newFields}
}

// Enabled implements Logger.Enabled.
func (t *TestLogger) Enabled(_ context.Context, level Level) bool {
	return t.level <= level
}

func (t *TestLogger) write(level Level, msg string, fields []any) {
	if level < t.level {
		return
	}
	entry := map[string]interface{}{
		"level":   level.String(),
		"message": msg,
	}
	for k, v := range t.fields {
		entry[k] = v
	}
	err, rest := splitError(fields)
	if err != nil {
		entry[ErrAttrKey] = err.Error()
	}
	for i := 0; i+1 < len(rest); i += 2 {
		entry[fmt.Sprint(rest[i])] = fieldValue(rest[i+1])
	}
	data, mErr := json.Marshal(entry)
	if mErr != nil {
		data, _ = json.Marshal(map[string]interface{}{"level": level.String(), "message": msg, "marshal_error": mErr.Error()})
	}

	t.sink.mu.Lock()
	t.sink.buf.Write(data)
	t.sink.buf.WriteByte('\n')
	t.sink.mu.Unlock()
}

// String returns everything captured so far.
func (t *TestLogger) String() string {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	return t.sink.buf.String()
}

// GetLogEntries parses the captured output into one map per record.
func (t *TestLogger) GetLogEntries() ([]map[string]interface{}, error) {
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(t.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ContainsMessage reports whether any record's text contains message.
func (t *TestLogger) ContainsMessage(message string) bool {
	return strings.Contains(t.String(), message)
}

// ContainsField reports whether some record has key equal to value.
// Numbers come back from JSON as float64.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if v, ok := entry[key]; ok && v == value {
			return true
		}
	}
	return false
}

// Clear drops everything captured so far.
func (t *TestLogger) Clear() {
	t.sink.mu.Lock()
	t.sink.buf.Reset()
	t.sink.mu.Unlock()
}

// TestLoggerProvider implements LoggerProvider over a single TestLogger.
type TestLoggerProvider struct {
	logger *TestLogger
}

// NewTestLoggerProvider creates a provider whose loggers all write to one capture.
func NewTestLoggerProvider(level Level) *TestLoggerProvider {
	return &TestLoggerProvider{logger: NewTestLogger(level)}
}

func (p *TestLoggerProvider) GetLogger() Logger { return p.logger }

func (p *TestLoggerProvider) GetLoggerWithName(name string) Logger {
	return p.logger.With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.SetLevel. Loggers already derived with
// With keep their level.
func (p *TestLoggerProvider) SetLevel(level Level) {
	p.logger.level = level
}

// Captured returns the underlying TestLogger.
func (p *TestLoggerProvider) Captured() *TestLogger {
	return p.logger
}
