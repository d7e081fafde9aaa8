package statecell

import (
	"errors"

	"github.com/statecell-io/statecell/val"
)

// transitionEvent is the bus event every committed transition is
// published under.
const transitionEvent = "transition"

// transition is one committed state change as delivered to listeners.
type transition struct {
	seq  int64
	prev val.Value
	next val.Value
}

var (
	errNilPatch            = errors.New("nil patch")
	errRemovedPatch        = errors.New("patch is a removal marker")
	errMarkerBelowTopLevel = errors.New("removal marker below top-level patch fields")
	errMarkerInReplacement = errors.New("removal marker in replacement value")
)

// commit is the terminal stage of the write pipeline: it computes the
// next state, applies the equality gate, stamps the transition with a
// sequence number, and hands it to the dispatch loop.
//
// gated writes commit only if the next state differs from the current
// one under the store predicate. replace forces wholesale replacement
// even for a record patch on record state; Reset is the only caller
// that needs it.
func (s *Store) commit(patch val.Value, gated, replace bool) {
	if s.closed.Load() {
		s.logger.Warn("write dropped", "error", ErrClosed)
		return
	}

	s.mu.Lock()

	prev := s.state
	next, err := s.nextState(patch, replace)
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("write dropped: invalid patch", "error", err, "patch_kind", val.KindOf(patch))
		return
	}

	if gated && s.eq(prev, next) {
		s.mu.Unlock()
		s.logger.Debug("write gated: state unchanged")
		return
	}

	// Bound listener-triggered cascades. Only transitions that actually
	// commit count toward the limit; equality-gated no-ops above cannot
	// prolong a dispatch.
	if s.dispatching.Load() {
		if cerr := s.cascade.check(s.name); cerr != nil {
			s.mu.Unlock()
			s.logger.Error("write dropped: cascade limit exceeded", "error", cerr)
			return
		}
	}

	s.state = next
	seq := s.clock.next()
	s.pending.push(transition{seq: seq, prev: prev, next: next})
	s.mu.Unlock()

	s.logger.Debug("transition committed", "seq", seq)
	s.flush()
}

// nextState computes the state that patch produces against the current
// state, validating marker placement. Record patch onto record state
// merges field-wise unless replace is set; every other combination
// replaces. Called with the store mutex held.
func (s *Store) nextState(patch val.Value, replace bool) (val.Value, error) {
	if patch == nil {
		return nil, errNilPatch
	}
	if _, ok := patch.(val.Removed); ok {
		return nil, errRemovedPatch
	}

	current, stateIsRecord := s.state.(val.Object)
	fields, patchIsRecord := patch.(val.Object)

	if !replace && stateIsRecord && patchIsRecord {
		// Merge path: a marker may appear as a top-level field value,
		// where it deletes the field, but never deeper.
		for _, v := range fields {
			if _, ok := v.(val.Removed); ok {
				continue
			}
			if containsRemoved(v) {
				return nil, errMarkerBelowTopLevel
			}
		}
		return val.Merge(current, fields), nil
	}

	// Replacement path: the patch becomes the state, so no marker may
	// appear anywhere in it.
	if containsRemoved(patch) {
		return nil, errMarkerInReplacement
	}
	return patch, nil
}

// flush drains the pending queue through the bus. Exactly one goroutine
// dispatches at a time: the CompareAndSwap loser returns immediately and
// leaves its transition for the active dispatcher. After draining, the
// dispatcher re-checks the queue so a transition pushed between its last
// pop and releasing the flag is never stranded.
func (s *Store) flush() {
	for {
		if !s.dispatching.CompareAndSwap(false, true) {
			return
		}

		for {
			t, ok := s.pending.pop()
			if !ok {
				break
			}
			s.bus.Emit(transitionEvent, t)
		}

		s.mu.Lock()
		s.cascade.reset()
		s.mu.Unlock()
		s.dispatching.Store(false)

		if s.pending.len() == 0 {
			return
		}
	}
}

// containsRemoved walks v and reports whether a removal marker appears
// anywhere in it.
func containsRemoved(v val.Value) bool {
	switch x := v.(type) {
	case val.Removed:
		return true
	case val.Object:
		for _, field := range x {
			if containsRemoved(field) {
				return true
			}
		}
	case val.Array:
		for _, elem := range x {
			if containsRemoved(elem) {
				return true
			}
		}
	}
	return false
}
