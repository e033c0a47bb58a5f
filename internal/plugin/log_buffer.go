package plugin

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEntry represents a single framework log entry.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Plugin    string         `json:"plugin,omitempty"`
	Level     string         `json:"level"` // debug, info, warn, error
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LogBuffer is a ring buffer for framework logs.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	maxSize int
	head    int
	count   int
}

// NewLogBuffer creates a new log buffer with the given max size.
func NewLogBuffer(maxSize int) *LogBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &LogBuffer{
		entries: make([]LogEntry, maxSize),
		maxSize: maxSize,
	}
}

// Add adds a log entry to the buffer.
func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.maxSize
	if b.count < b.maxSize {
		b.count++
	}
}

// Log adds a log entry with the given parameters.
func (b *LogBuffer) Log(plugin, level, message string, fields map[string]any) {
	b.Add(LogEntry{
		Timestamp: time.Now(),
		Plugin:    plugin,
		Level:     level,
		Message:   message,
		Fields:    fields,
	})
}

// GetAll returns all log entries, newest first.
func (b *LogBuffer) GetAll() []LogEntry {
	return b.filter(func(LogEntry) bool { return true })
}

// GetByPlugin returns log entries for a specific plugin, newest first.
func (b *LogBuffer) GetByPlugin(pluginName string) []LogEntry {
	return b.filter(func(e LogEntry) bool { return e.Plugin == pluginName })
}

var levelOrder = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// GetByLevel returns log entries at or above the given level, newest first.
func (b *LogBuffer) GetByLevel(minLevel string) []LogEntry {
	minLevelNum := levelOrder[minLevel]
	return b.filter(func(e LogEntry) bool { return levelOrder[e.Level] >= minLevelNum })
}

// Contains reports whether any entry at level has a message containing text.
func (b *LogBuffer) Contains(level, text string) bool {
	return len(b.filter(func(e LogEntry) bool {
		return e.Level == level && strings.Contains(e.Message, text)
	})) > 0
}

func (b *LogBuffer) filter(keep func(LogEntry) bool) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []LogEntry
	for i := 0; i < b.count; i++ {
		idx := (b.head - 1 - i + b.maxSize) % b.maxSize
		if keep(b.entries[idx]) {
			result = append(result, b.entries[idx])
		}
	}
	return result
}

// GetRecent returns the most recent n entries, newest first.
func (b *LogBuffer) GetRecent(n int) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.count {
		n = b.count
	}

	result := make([]LogEntry, n)
	for i := 0; i < n; i++ {
		idx := (b.head - 1 - i + b.maxSize) % b.maxSize
		result[i] = b.entries[idx]
	}
	return result
}

// Clear removes all entries from the buffer.
func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.head = 0
	b.count = 0
}

// Count returns the number of entries in the buffer.
func (b *LogBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// BufferHandler is a slog.Handler that records every enabled record into a
// LogBuffer, then forwards it to next (if any). The "plugin" attribute is
// lifted into LogEntry.Plugin.
type BufferHandler struct {
	buf    *LogBuffer
	next   slog.Handler
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewBufferHandler creates a handler writing into buf. next may be nil.
func NewBufferHandler(buf *LogBuffer, next slog.Handler, level slog.Leveler) *BufferHandler {
	if level == nil {
		level = slog.LevelDebug
	}
	return &BufferHandler{buf: buf, next: next, level: level}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp: r.Time,
		Level:     levelName(r.Level),
		Message:   r.Message,
	}
	add := func(a slog.Attr) {
		key := a.Key
		if len(h.groups) > 0 {
			key = strings.Join(h.groups, ".") + "." + key
		}
		if key == "plugin" {
			entry.Plugin = a.Value.String()
			return
		}
		if entry.Fields == nil {
			entry.Fields = make(map[string]any)
		}
		entry.Fields[key] = a.Value.Any()
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})
	h.buf.Add(entry)

	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return &clone
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return &clone
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
