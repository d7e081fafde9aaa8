package journal

import (
	"context"

	"github.com/statecell-io/statecell"
	"github.com/statecell-io/statecell/val"
)

// Middleware returns a store middleware that records every transition
// committed through the gated pipeline under the given store name.
//
// The patch is passed downstream first; only if the state actually
// moved is a row appended, so equality-gated no-ops and writes
// swallowed by downstream middleware leave no trace. Append failures
// are logged and never affect the commit.
func (j *Journal) Middleware(store string) statecell.Middleware {
	return func(next statecell.ApplyFunc, getState statecell.GetStateFunc) statecell.ApplyFunc {
		return func(patch val.Value) {
			before := getState()
			next(patch)
			after := getState()

			if val.Equal(before, after) {
				return
			}
			if _, _, err := j.Append(context.Background(), store, patch, after); err != nil {
				j.logger.Warn("journal append failed", "store", store, "error", err)
			}
		}
	}
}
