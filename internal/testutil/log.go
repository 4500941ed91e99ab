// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Record is a captured log record with its attributes flattened to strings.
type Record struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// LogRecorder is a slog.Handler that keeps every record it handles.
// Handlers derived with WithAttrs/WithGroup share the recorded records.
type LogRecorder struct {
	mu      *sync.Mutex
	records *[]Record
	attrs   []slog.Attr
	group   string
	level   slog.Level
}

// NewLogRecorder creates a recorder that captures records at level and above.
func NewLogRecorder(level slog.Level) *LogRecorder {
	return &LogRecorder{
		mu:      &sync.Mutex{},
		records: &[]Record{},
		level:   level,
	}
}

// Logger returns a logger writing to r.
func (r *LogRecorder) Logger() *slog.Logger {
	return slog.New(r)
}

func (r *LogRecorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= r.level
}

func (r *LogRecorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]string)
	for _, a := range r.attrs {
		attrs[a.Key] = a.Value.String()
	}
	rec.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if r.group != "" {
			key = r.group + "." + key
		}
		attrs[key] = a.Value.Resolve().String()
		return true
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	*r.records = append(*r.records, Record{Level: rec.Level, Message: rec.Message, Attrs: attrs})
	return nil
}

func (r *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *r
	clone.attrs = append(append([]slog.Attr(nil), r.attrs...), attrs...)
	return &clone
}

func (r *LogRecorder) WithGroup(name string) slog.Handler {
	clone := *r
	if clone.group != "" {
		name = clone.group + "." + name
	}
	clone.group = name
	return &clone
}

// Records returns a copy of everything recorded so far.
func (r *LogRecorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), *r.records...)
}

// Messages returns the messages of all records at exactly level.
func (r *LogRecorder) Messages(level slog.Level) []string {
	var msgs []string
	for _, rec := range r.Records() {
		if rec.Level == level {
			msgs = append(msgs, rec.Message)
		}
	}
	return msgs
}

// Count returns the number of records at exactly level.
func (r *LogRecorder) Count(level slog.Level) int {
	return len(r.Messages(level))
}

// Contains reports whether any record message contains substr.
func (r *LogRecorder) Contains(substr string) bool {
	for _, rec := range r.Records() {
		if strings.Contains(rec.Message, substr) {
			return true
		}
	}
	return false
}

// Reset drops all recorded records.
func (r *LogRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.records = nil
}

// String renders the records one per line, for failure messages.
func (r *LogRecorder) String() string {
	var b strings.Builder
	for _, rec := range r.Records() {
		fmt.Fprintf(&b, "%s %s %v\n", rec.Level, rec.Message, rec.Attrs)
	}
	return b.String()
}
