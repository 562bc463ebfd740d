package logger

import (
	"sync"

	"github.com/rs/zerolog"
)

// TestLogger is a Logger implementation for tests that captures entries
// instead of writing them
type TestLogger struct {
	mu      sync.Mutex
	entries []Entry
	fields  map[string]interface{}
	nop     *zerolog.Logger
}

// Entry is one captured log record
type Entry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates a new capturing logger
func NewTestLogger() *TestLogger {
	nop := zerolog.Nop()
	return &TestLogger{
		fields: make(map[string]interface{}),
		nop:    &nop,
	}
}

// Entries returns a copy of all captured entries
func (l *TestLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// HasMessage reports whether any entry carries the given message
func (l *TestLogger) HasMessage(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func (l *TestLogger) record(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.entries = append(l.entries, Entry{Level: level, Message: msg, Fields: merged})
}

func (l *TestLogger) Debug(msg string) { l.record("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.record("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.record("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.record("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.record("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.record("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.record("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.record("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.record("ERROR", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	// Chained loggers record through the root so captures stay visible there.
	return &chainedTestLogger{root: l, fields: merged}
}

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *TestLogger) GetZerolog() *zerolog.Logger { return l.nop }

// chainedTestLogger forwards records to the root TestLogger with bound fields
type chainedTestLogger struct {
	root   *TestLogger
	fields map[string]interface{}
}

func (c *chainedTestLogger) merge(fields map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(c.fields)+len(fields))
	for k, v := range c.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

func (c *chainedTestLogger) Debug(msg string) { c.root.record("DEBUG", msg, c.fields) }
func (c *chainedTestLogger) Info(msg string)  { c.root.record("INFO", msg, c.fields) }
func (c *chainedTestLogger) Warn(msg string)  { c.root.record("WARN", msg, c.fields) }
func (c *chainedTestLogger) Error(msg string) { c.root.record("ERROR", msg, c.fields) }
func (c *chainedTestLogger) Fatal(msg string) { c.root.record("FATAL", msg, c.fields) }

func (c *chainedTestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	c.root.record("DEBUG", msg, c.merge(fields))
}

func (c *chainedTestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	c.root.record("INFO", msg, c.merge(fields))
}

func (c *chainedTestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	c.root.record("WARN", msg, c.merge(fields))
}

func (c *chainedTestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	c.root.record("ERROR", msg, c.merge(fields))
}

func (c *chainedTestLogger) WithField(key string, value interface{}) Logger {
	return c.WithFields(map[string]interface{}{key: value})
}

func (c *chainedTestLogger) WithFields(fields map[string]interface{}) Logger {
	return &chainedTestLogger{root: c.root, fields: c.merge(fields)}
}

func (c *chainedTestLogger) WithError(err error) Logger {
	if err == nil {
		return c
	}
	return c.WithField("error", err.Error())
}

func (c *chainedTestLogger) GetZerolog() *zerolog.Logger { return c.root.nop }
