// Package testutil provides shared helpers for tests.
package testutil

import (
	"context"
	"log/slog"
	"sync"
)

// CaptureHandler is a slog.Handler that records every log record in
// memory so tests can assert on warnings and errors emitted by
// components that report failures through logs rather than returns.
type CaptureHandler struct {
	mu      sync.Mutex
	records []CapturedRecord
}

// CapturedRecord is one captured log line with its attributes flattened.
type CapturedRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// NewCaptureHandler returns an empty capture handler and a logger
// writing to it.
func NewCaptureHandler() (*CaptureHandler, *slog.Logger) {
	h := &CaptureHandler{}
	return h, slog.New(h)
}

// Enabled implements slog.Handler; every level is captured.
func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	h.append(nil, r)
	return nil
}

// WithAttrs implements slog.Handler. Bound attributes are merged into
// every record the child produces, so logger.With fields stay visible
// to assertions.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &captureChild{parent: h, preset: attrs}
}

// WithGroup implements slog.Handler. Groups are flattened; tests assert
// on keys, not nesting.
func (h *CaptureHandler) WithGroup(string) slog.Handler { return h }

func (h *CaptureHandler) append(preset []slog.Attr, r slog.Record) {
	attrs := make(map[string]any, len(preset)+r.NumAttrs())
	for _, a := range preset {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, CapturedRecord{
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	})
}

type captureChild struct {
	parent *CaptureHandler
	preset []slog.Attr
}

func (c *captureChild) Enabled(context.Context, slog.Level) bool { return true }

func (c *captureChild) Handle(_ context.Context, r slog.Record) error {
	c.parent.append(c.preset, r)
	return nil
}

func (c *captureChild) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(c.preset)+len(attrs))
	merged = append(merged, c.preset...)
	merged = append(merged, attrs...)
	return &captureChild{parent: c.parent, preset: merged}
}

func (c *captureChild) WithGroup(string) slog.Handler { return c }

// Records returns a copy of everything captured so far.
func (h *CaptureHandler) Records() []CapturedRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]CapturedRecord, len(h.records))
	copy(out, h.records)
	return out
}

// CountAtLevel returns how many records were captured at exactly level.
func (h *CaptureHandler) CountAtLevel(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

// HasMessage reports whether any captured record at level carries
// message.
func (h *CaptureHandler) HasMessage(level slog.Level, message string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.Level == level && r.Message == message {
			return true
		}
	}
	return false
}

// Reset discards everything captured so far.
func (h *CaptureHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
}
