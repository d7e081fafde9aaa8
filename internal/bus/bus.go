// Package bus implements the store's named-event notification registry:
// a per-owner publish/subscribe table with persistent and one-shot
// listeners, handle-based removal, and per-listener fault isolation.
//
// Each store owns exactly one bus instance; there is no process-wide
// table. The bus is never exposed outside the store.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Listener receives one emitted payload.
type Listener[T any] func(payload T)

// Subscription identifies one registered listener for removal. Listener
// functions are not comparable in Go, so removal goes through the handle
// returned at registration time.
type Subscription struct {
	event string
	id    uint64
}

type entry[T any] struct {
	id        uint64
	fn        Listener[T]
	once      bool
	cancelled atomic.Bool
}

// Bus is a named-event dispatch table with payloads of type T.
// Safe for concurrent use.
type Bus[T any] struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	events map[string][]*entry[T]
}

// New creates an empty bus. A nil logger falls back to slog.Default.
func New[T any](logger *slog.Logger) *Bus[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus[T]{
		logger: logger,
		events: make(map[string][]*entry[T]),
	}
}

// On registers a persistent listener for event and returns its handle.
func (b *Bus[T]) On(event string, fn Listener[T]) Subscription {
	return b.add(event, fn, false)
}

// Once registers a listener that auto-unregisters after its first
// delivery. Removing it via Off before it fires behaves exactly like
// removing a persistent listener.
func (b *Bus[T]) Once(event string, fn Listener[T]) Subscription {
	return b.add(event, fn, true)
}

func (b *Bus[T]) add(event string, fn Listener[T], once bool) Subscription {
	if fn == nil {
		return Subscription{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.events[event] = append(b.events[event], &entry[T]{
		id:   b.nextID,
		fn:   fn,
		once: once,
	})
	return Subscription{event: event, id: b.nextID}
}

// Off removes the listener identified by sub. It reports whether a
// listener was removed; removing twice is a harmless no-op.
func (b *Bus[T]) Off(event string, sub Subscription) bool {
	if sub.id == 0 || sub.event != event {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.events[event]
	for i, e := range entries {
		if e.id == sub.id {
			e.cancelled.Store(true)
			b.events[event] = append(entries[:i:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// OffAll removes every listener registered for event.
func (b *Bus[T]) OffAll(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.events[event] {
		e.cancelled.Store(true)
	}
	delete(b.events, event)
}

// Clear removes every listener for every event.
func (b *Bus[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, entries := range b.events {
		for _, e := range entries {
			e.cancelled.Store(true)
		}
	}
	b.events = make(map[string][]*entry[T])
}

// Emit delivers payload to every listener registered for event at the
// start of the emission. Listeners added during dispatch do not receive
// the in-flight payload; listeners removed during dispatch are skipped.
// One-shot listeners are unregistered before their delivery, so a
// re-entrant emission cannot deliver to them twice.
//
// A panicking listener is recovered and logged; delivery continues to
// the remaining listeners.
func (b *Bus[T]) Emit(event string, payload T) {
	b.mu.Lock()
	entries := b.events[event]
	snapshot := make([]*entry[T], len(entries))
	copy(snapshot, entries)

	kept := entries[:0]
	for _, e := range entries {
		if !e.once {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(b.events, event)
	} else {
		b.events[event] = kept
	}
	b.mu.Unlock()

	for _, e := range snapshot {
		if e.cancelled.Load() {
			continue
		}
		b.invoke(event, e, payload)
	}
}

func (b *Bus[T]) invoke(event string, e *entry[T], payload T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked during dispatch",
				"event", event,
				"listener_id", e.id,
				"panic", r)
		}
	}()
	e.fn(payload)
}

// Count returns the number of listeners currently registered for event.
func (b *Bus[T]) Count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events[event])
}

// CountAll returns the number of listeners registered across all events.
func (b *Bus[T]) CountAll() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, entries := range b.events {
		total += len(entries)
	}
	return total
}
