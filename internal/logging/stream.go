// Package logging configures slog for the dashboard and keeps a bounded
// in-memory tail of recent entries for the API and live streaming.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Component string         `json:"component,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// RingBuffer stores the most recent log entries.
type RingBuffer struct {
	entries []Entry
	size    int
	head    int
	count   int
	mu      sync.RWMutex

	// Subscribers for live streaming
	subscribers map[chan Entry]bool
	subMu       sync.RWMutex
}

// NewRingBuffer creates a new ring buffer with the specified size.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		entries:     make([]Entry, size),
		size:        size,
		subscribers: make(map[chan Entry]bool),
	}
}

// Add adds a log entry to the ring buffer.
func (rb *RingBuffer) Add(entry Entry) {
	rb.mu.Lock()
	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
	rb.mu.Unlock()

	rb.subMu.RLock()
	for ch := range rb.subscribers {
		select {
		case ch <- entry:
		default:
			// Skip if subscriber can't keep up
		}
	}
	rb.subMu.RUnlock()
}

// GetRecent returns the most recent n entries in chronological order.
func (rb *RingBuffer) GetRecent(n int) []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.count {
		n = rb.count
	}

	result := make([]Entry, n)
	start := (rb.head - n + rb.size) % rb.size
	for i := 0; i < n; i++ {
		result[i] = rb.entries[(start+i)%rb.size]
	}
	return result
}

// Subscribe creates a channel that receives new log entries.
func (rb *RingBuffer) Subscribe() chan Entry {
	ch := make(chan Entry, 100)
	rb.subMu.Lock()
	rb.subscribers[ch] = true
	rb.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscription.
func (rb *RingBuffer) Unsubscribe(ch chan Entry) {
	rb.subMu.Lock()
	delete(rb.subscribers, ch)
	rb.subMu.Unlock()
	close(ch)
}

// StreamHandler is a slog handler that captures logs to a ring buffer
// while delegating to a standard handler for output.
type StreamHandler struct {
	buffer   *RingBuffer
	fallback slog.Handler
	level    slog.Level
	attrs    []slog.Attr
	groups   []string
}

// NewStreamHandler creates a handler that captures logs to the ring buffer.
// Format is "json" or "text".
func NewStreamHandler(buffer *RingBuffer, out io.Writer, level slog.Level, format string) *StreamHandler {
	opts := &slog.HandlerOptions{Level: level}
	var fallback slog.Handler
	if format == "text" {
		fallback = slog.NewTextHandler(out, opts)
	} else {
		fallback = slog.NewJSONHandler(out, opts)
	}
	return &StreamHandler{
		buffer:   buffer,
		fallback: fallback,
		level:    level,
	}
}

// Enabled implements slog.Handler.
func (h *StreamHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler.
func (h *StreamHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	var component string

	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = a.Value.String()
		} else {
			attrs[a.Key] = a.Value.Any()
		}
		return true
	})

	for _, a := range h.attrs {
		if a.Key == "component" {
			component = a.Value.String()
		} else {
			attrs[a.Key] = a.Value.Any()
		}
	}

	h.buffer.Add(Entry{
		Time:      r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
		Component: component,
		Attrs:     attrs,
	})

	return h.fallback.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *StreamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &StreamHandler{
		buffer:   h.buffer,
		fallback: h.fallback.WithAttrs(attrs),
		level:    h.level,
		attrs:    append(h.attrs, attrs...),
		groups:   h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *StreamHandler) WithGroup(name string) slog.Handler {
	return &StreamHandler{
		buffer:   h.buffer,
		fallback: h.fallback.WithGroup(name),
		level:    h.level,
		attrs:    h.attrs,
		groups:   append(h.groups, name),
	}
}

// Global log buffer
var globalBuffer = NewRingBuffer(1000)

// GetLogBuffer returns the global log buffer.
func GetLogBuffer() *RingBuffer {
	return globalBuffer
}

// ParseLevel maps a config level string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs the capturing handler as the process default logger and
// returns it.
func Setup(out io.Writer, level, format string) *slog.Logger {
	handler := NewStreamHandler(globalBuffer, out, ParseLevel(level), format)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
