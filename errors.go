package statecell

import (
	"errors"
	"fmt"
)

// ErrClosed reports a write received after Close. The write is dropped;
// the error appears in the store's log output.
var ErrClosed = errors.New("store is closed")

// CascadeLimitError reports that a listener-triggered write cascade
// exceeded the store's limit. The offending write is dropped and the
// store remains in its last committed state; transitions already queued
// are still delivered.
//
// A cascade forms when a listener writes back into the store during
// dispatch: each such write commits and queues another dispatch, and
// with a listener that writes unconditionally the chain never drains.
// The limit bounds commits made while a dispatch is draining.
type CascadeLimitError struct {
	Store string // store name
	Count int    // commits observed during the current dispatch
	Limit int    // configured maximum
}

// Error implements the error interface.
func (e *CascadeLimitError) Error() string {
	return fmt.Sprintf("store %s exceeded cascade limit: %d commits during dispatch > %d limit",
		e.Store, e.Count, e.Limit)
}

// IsCascadeLimitError reports whether err is a CascadeLimitError,
// unwrapping as needed.
func IsCascadeLimitError(err error) bool {
	var ce *CascadeLimitError
	return errors.As(err, &ce)
}

// cascadeGuard counts commits made while a dispatch is draining and
// enforces the configured maximum. The counter resets every time the
// dispatch loop drains the queue to empty.
type cascadeGuard struct {
	limit int
	count int
}

func newCascadeGuard(limit int) *cascadeGuard {
	return &cascadeGuard{limit: limit}
}

// check increments the cascade counter and returns a CascadeLimitError
// once the limit is exceeded. Called with the store mutex held.
func (g *cascadeGuard) check(store string) error {
	g.count++
	if g.count > g.limit {
		return &CascadeLimitError{
			Store: store,
			Count: g.count,
			Limit: g.limit,
		}
	}
	return nil
}

// reset clears the counter once the dispatch queue drains. Called with
// the store mutex held.
func (g *cascadeGuard) reset() {
	g.count = 0
}
