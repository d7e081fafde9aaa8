package statecell

import "github.com/statecell-io/statecell/val"

// ApplyFunc commits a patch to the store. The innermost ApplyFunc is the
// store's own commit; middleware wraps it.
type ApplyFunc func(patch val.Value)

// GetStateFunc returns the current state snapshot. Middleware can call it
// before or after invoking next to observe the transition it brackets.
type GetStateFunc func() val.Value

// Middleware wraps the apply chain. It receives the next ApplyFunc in the
// chain and a state accessor, and returns the ApplyFunc that callers of the
// chain will invoke. A middleware may pass the patch through unchanged,
// rewrite it, drop it by not calling next, or emit additional patches.
//
// Middleware runs on the committing goroutine. It must not retain the patch
// value past the call and must not block indefinitely.
type Middleware func(next ApplyFunc, getState GetStateFunc) ApplyFunc

// composeMiddleware builds the apply chain around core. Middleware are
// applied right to left so that the first element of mws is the outermost
// wrapper, matching the order writes flow through them.
func composeMiddleware(core ApplyFunc, getState GetStateFunc, mws []Middleware) ApplyFunc {
	apply := core
	for i := len(mws) - 1; i >= 0; i-- {
		apply = mws[i](apply, getState)
	}
	return apply
}
