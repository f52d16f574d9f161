package logging

import (
	"context"
	"sync"
)

// Entry is a single record captured by MemoryLogger.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// MemoryLogger keeps log entries in memory. Used by tests to assert on
// degradations that are logged instead of returned.
type MemoryLogger struct {
	base    []Field
	entries *[]Entry
	mu      *sync.Mutex
}

// NewMemoryLogger creates an empty recorder.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{entries: &[]Entry{}, mu: &sync.Mutex{}}
}

func (l *MemoryLogger) record(level, msg string, fields []Field) {
	m := make(map[string]any, len(l.base)+len(fields))
	for _, f := range l.base {
		m[f.Key] = f.Value
	}
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	l.mu.Lock()
	*l.entries = append(*l.entries, Entry{Level: level, Message: msg, Fields: m})
	l.mu.Unlock()
}

func (l *MemoryLogger) Debug(msg string, fields ...Field) { l.record("debug", msg, fields) }
func (l *MemoryLogger) Info(msg string, fields ...Field)  { l.record("info", msg, fields) }
func (l *MemoryLogger) Warn(msg string, fields ...Field)  { l.record("warn", msg, fields) }
func (l *MemoryLogger) Error(msg string, fields ...Field) { l.record("error", msg, fields) }

// With returns a recorder sharing the same entry buffer.
func (l *MemoryLogger) With(fields ...Field) Logger {
	base := append(append([]Field{}, l.base...), fields...)
	return &MemoryLogger{base: base, entries: l.entries, mu: l.mu}
}

func (l *MemoryLogger) WithContext(ctx context.Context) Logger { return l }

// Entries returns a copy of everything recorded so far.
func (l *MemoryLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(*l.entries))
	copy(out, *l.entries)
	return out
}

// Count returns how many entries were recorded at level.
func (l *MemoryLogger) Count(level string) int {
	n := 0
	for _, e := range l.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}
