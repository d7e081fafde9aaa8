package statecell

import (
	"sync"

	"github.com/statecell-io/statecell/val"
)

// Subscribe registers fn to run after every committed transition with
// the previous and next state. The returned function unregisters
// exactly the wrapper created by this call and is idempotent.
//
// Listeners run on the dispatching goroutine, one transition at a time,
// in commit order. A listener may write back into the store: the write
// commits immediately and its notification queues behind the in-flight
// dispatch. A panicking listener is recovered and logged; the remaining
// listeners still run.
func (s *Store) Subscribe(fn func(prev, next val.Value)) func() {
	if fn == nil {
		return func() {}
	}

	sub := s.bus.On(transitionEvent, func(t transition) {
		fn(t.prev, t.next)
	})
	return func() {
		s.bus.Off(transitionEvent, sub)
	}
}

// SubscribeSelector registers fn to run only when the slice of state
// chosen by selector changes. The selector runs against the next state
// of every committed transition; fn fires with the previous and next
// slice only if the two differ under the store's equality predicate.
//
// The previous-slice cache is seeded from the current state when the
// subscription is created and updated only on an actual change, so a
// transition that leaves the slice untouched neither fires fn nor
// shifts the baseline for the next comparison.
//
// The selector must be pure. It runs on the dispatching goroutine; a
// panic inside it is recovered and logged like a listener panic.
func (s *Store) SubscribeSelector(selector func(state val.Value) val.Value, fn func(prevSlice, nextSlice val.Value)) func() {
	if selector == nil || fn == nil {
		return func() {}
	}

	var (
		cacheMu sync.Mutex
		cache   = selector(s.Value())
	)

	sub := s.bus.On(transitionEvent, func(t transition) {
		next := selector(t.next)

		cacheMu.Lock()
		prev := cache
		if s.eq(prev, next) {
			cacheMu.Unlock()
			return
		}
		cache = next
		cacheMu.Unlock()

		fn(prev, next)
	})
	return func() {
		s.bus.Off(transitionEvent, sub)
	}
}
