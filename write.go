package statecell

import (
	"context"
	"fmt"

	"github.com/statecell-io/statecell/val"
)

// WriteOption adjusts how a single write is processed.
type WriteOption func(*writeConfig)

type writeConfig struct {
	forced bool
}

// Forced makes the write bypass the middleware pipeline and the
// equality gate: the resulting state commits and is emitted even when
// nothing changed. Middleware, a journaling middleware included, never
// observes a forced write.
func Forced() WriteOption {
	return func(c *writeConfig) {
		c.forced = true
	}
}

func newWriteConfig(opts []WriteOption) writeConfig {
	var cfg writeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Set submits patch to the write pipeline. A record patch merges into
// record state field-wise, with a Removed field value deleting that
// field; any other state/patch pairing replaces the state wholesale.
// The commit is equality-gated unless Forced is given.
//
// The patch must not be mutated after the call.
func (s *Store) Set(patch val.Value, opts ...WriteOption) {
	cfg := newWriteConfig(opts)
	token := s.tokens.Generate()
	s.logger.Debug("set", "token", token, "forced", cfg.forced)

	s.submit(patch, cfg)
}

// Update derives a patch synchronously: fn is invoked exactly once with
// the state current at invocation time, and its result enters the write
// pipeline. An error return or a panic inside fn drops the write with a
// warning and no state change.
func (s *Store) Update(fn func(current val.Value) (val.Value, error), opts ...WriteOption) {
	cfg := newWriteConfig(opts)
	token := s.tokens.Generate()
	s.logger.Debug("update", "token", token, "forced", cfg.forced)

	patch, err := runResolver(func() (val.Value, error) {
		return fn(s.Value())
	})
	if err != nil {
		s.logger.Warn("update dropped", "token", token, "error", err)
		return
	}
	s.submit(patch, cfg)
}

// SetAsync derives a patch asynchronously: fn runs on its own goroutine
// with the state captured at invocation time and a context that Close
// cancels. On resolution the patch enters the write pipeline.
//
// Only record resolutions commit; a resolved value of any other kind is
// ignored with a debug log. An error return or a panic drops the write
// with a warning and no state change. There is no per-write
// cancellation and no timeout.
func (s *Store) SetAsync(fn func(ctx context.Context, invoked val.Value) (val.Value, error), opts ...WriteOption) {
	cfg := newWriteConfig(opts)
	token := s.tokens.Generate()

	if s.closed.Load() {
		s.logger.Warn("async write dropped", "token", token, "error", ErrClosed)
		return
	}

	invoked := s.Value()
	s.logger.Debug("async write started", "token", token, "forced", cfg.forced)

	go func() {
		patch, err := runResolver(func() (val.Value, error) {
			return fn(s.ctx, invoked)
		})
		if err != nil {
			s.logger.Warn("async write dropped", "token", token, "error", err)
			return
		}
		if _, ok := patch.(val.Object); !ok {
			s.logger.Debug("async result ignored: not a record",
				"token", token,
				"kind", val.KindOf(patch))
			return
		}
		s.submit(patch, cfg)
	}()
}

// Mutate runs fn against a draft of the current state and commits what
// changed. The draft engine produces a brand-new value; if that value
// equals the current state under the store predicate nothing is
// written, and otherwise the minimal delta between the two states,
// never the full produced state, enters the write pipeline. A panic
// inside fn is recovered and the whole write is dropped with a warning.
//
// With Forced, the produced state replaces the current state
// unconditionally, without the pipeline or the gate.
func (s *Store) Mutate(fn func(d *val.Draft), opts ...WriteOption) {
	cfg := newWriteConfig(opts)
	token := s.tokens.Generate()
	s.logger.Debug("mutate", "token", token, "forced", cfg.forced)

	current := s.Value()
	next, err := runResolver(func() (val.Value, error) {
		return val.Produce(current, fn), nil
	})
	if err != nil {
		s.logger.Warn("mutate dropped", "token", token, "error", err)
		return
	}

	if cfg.forced {
		s.commit(next, false, true)
		return
	}

	if s.eq(current, next) {
		s.logger.Debug("mutate produced no change", "token", token)
		return
	}
	patch, changed := val.Diff(current, next)
	if !changed {
		s.logger.Debug("mutate produced no change", "token", token)
		return
	}
	s.apply(patch)
}

// Reset restores the initial snapshot. The state is unconditionally
// replaced by a fresh copy and unconditionally emitted: Reset bypasses
// both the middleware pipeline and the equality gate, so resetting an
// already-pristine store still notifies subscribers.
func (s *Store) Reset() {
	token := s.tokens.Generate()
	s.logger.Debug("reset", "token", token)

	s.commit(s.InitialValue(), false, true)
}

// ResetTo rebuilds the state around next. A record argument is
// shallow-merged onto a fresh copy of the initial snapshot; a sequence
// or primitive argument becomes the state as-is. The candidate then
// takes the normal equality-gated path through the middleware pipeline,
// expressed as the minimal patch against the current state with deleted
// fields carried as removal markers.
func (s *Store) ResetTo(next val.Value) {
	token := s.tokens.Generate()

	if next == nil {
		s.logger.Warn("reset dropped", "token", token, "error", errNilPatch)
		return
	}
	s.logger.Debug("reset to target", "token", token, "kind", val.KindOf(next))

	candidate := next
	if fields, ok := next.(val.Object); ok {
		if base, ok := s.InitialValue().(val.Object); ok {
			candidate = val.Merge(base, fields)
		}
	}

	current := s.Value()
	patch, changed := val.Diff(current, candidate)
	if !changed {
		s.logger.Debug("reset produced no change", "token", token)
		return
	}
	s.apply(patch)
}

// submit routes a resolved patch into the pipeline, or straight to the
// committer when the write is forced.
func (s *Store) submit(patch val.Value, cfg writeConfig) {
	if s.closed.Load() {
		s.logger.Warn("write dropped", "error", ErrClosed)
		return
	}
	if cfg.forced {
		s.commit(patch, false, false)
		return
	}
	s.apply(patch)
}

// runResolver invokes fn, converting a panic into an error so a failing
// patch resolution never takes down the writer.
func runResolver(fn func() (val.Value, error)) (patch val.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("patch resolution panicked: %v", r)
		}
	}()
	return fn()
}
