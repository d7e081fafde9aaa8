// Package statecell implements an observable state container.
//
// A Store owns a single state value (a record, sequence, or primitive
// from package val), accepts writes as patches flowing through a
// middleware pipeline, deduplicates commits under a pluggable equality
// predicate, and notifies subscribers after every committed transition.
// Record patches merge field-wise into record state, with an explicit
// removal marker for deletions; every other state/patch combination
// replaces the state wholesale.
//
// Writes come in three shapes plus a draft: Set applies a ready-made
// patch, Update derives one synchronously from the current state,
// SetAsync resolves one on its own goroutine, and Mutate records edits
// made to a draft of the state and commits the minimal delta.
//
// All methods are safe for concurrent use. Commits serialize through an
// internal mutex; notifications dispatch in commit order and run to
// completion before the next transition is delivered.
package statecell

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/statecell-io/statecell/internal/bus"
	"github.com/statecell-io/statecell/val"
)

// DefaultMaxCascade is the default bound on commits made while a
// notification dispatch is draining. It stops a listener that writes
// back into the store unconditionally from cascading forever.
const DefaultMaxCascade = 1000

// EqualityFn decides whether two states are the same for gating
// purposes. The store uses one predicate uniformly: for write
// deduplication, for selector slice comparison, and for Dirty.
type EqualityFn func(a, b val.Value) bool

// Store is an observable state container.
//
// Thread-safety model:
//   - every exported method is safe from any goroutine
//   - commits serialize through the store mutex
//   - notifications for one transition finish before the next begins
//
// Values returned by reads and passed to listeners are shared with the
// store and must not be mutated. Use val.Clone for a private copy.
type Store struct {
	name       string
	logger     *slog.Logger
	eq         EqualityFn
	tokens     TokenGenerator
	clock      *clock
	middleware []Middleware
	apply      ApplyFunc

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	mu      sync.Mutex
	state   val.Value
	initial val.Value

	bus         *bus.Bus[transition]
	pending     *transitionQueue
	dispatching atomic.Bool
	cascade     *cascadeGuard
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithName sets the store name carried in log output. Defaults
// to "statecell".
func WithName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.name = name
		}
	}
}

// WithEquality replaces the store's equality predicate. The default is
// val.Equal, full structural comparison.
func WithEquality(eq EqualityFn) Option {
	return func(s *Store) {
		if eq != nil {
			s.eq = eq
		}
	}
}

// WithMiddleware appends middleware to the write pipeline. The first
// middleware passed (across all WithMiddleware options, in order)
// intercepts writes first.
func WithMiddleware(mws ...Middleware) Option {
	return func(s *Store) {
		s.middleware = append(s.middleware, mws...)
	}
}

// WithLogger sets the store's logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTokenGenerator replaces the write token source. Defaults to
// UUIDv7Generator; tests use FixedTokenGenerator for stable output.
func WithTokenGenerator(gen TokenGenerator) Option {
	return func(s *Store) {
		if gen != nil {
			s.tokens = gen
		}
	}
}

// WithMaxCascade sets the bound on commits made while a dispatch is
// draining. Defaults to DefaultMaxCascade.
func WithMaxCascade(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.cascade = newCascadeGuard(limit)
		}
	}
}

// WithStartSeq starts transition numbering after seq, so a store
// rebuilt from a journal continues where the journal left off.
func WithStartSeq(seq int64) Option {
	return func(s *Store) {
		if seq > 0 {
			s.clock = newClockAt(seq)
		}
	}
}

// New creates a store holding a deep copy of initial.
//
// The initial snapshot is fixed for the store's lifetime: Reset and
// Dirty compare against it, and it is never mutated afterward.
//
// New panics if initial is nil or contains a removal marker; markers
// are legal only inside patches.
func New(initial val.Value, opts ...Option) *Store {
	if initial == nil {
		panic("statecell: nil initial state")
	}
	if containsRemoved(initial) {
		panic("statecell: initial state contains a removal marker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		name:    "statecell",
		logger:  slog.Default(),
		eq:      val.Equal,
		tokens:  UUIDv7Generator{},
		clock:   newClock(),
		ctx:     ctx,
		cancel:  cancel,
		state:   val.Clone(initial),
		initial: val.Clone(initial),
		pending: newTransitionQueue(),
		cascade: newCascadeGuard(DefaultMaxCascade),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("store", s.name)
	s.bus = bus.New[transition](s.logger)

	core := func(patch val.Value) {
		s.commit(patch, true, false)
	}
	s.apply = composeMiddleware(core, s.Value, s.middleware)

	return s
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

// Value returns the current state. The returned value is shared with
// the store and must not be mutated.
func (s *Store) Value() val.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Field returns one field of record state. It reports false, with no
// side effects, when the key is absent or the state is not a record.
func (s *Store) Field(key string) (val.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.state.(val.Object)
	if !ok {
		return nil, false
	}
	return obj.Get(key)
}

// InitialValue returns a deep copy of the initial snapshot.
func (s *Store) InitialValue() val.Value {
	return val.Clone(s.initial)
}

// Dirty reports whether the current state differs from the initial
// snapshot under the store's equality predicate.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	current := s.state
	s.mu.Unlock()

	return !s.eq(current, s.initial)
}

// Seq returns the sequence number of the last committed transition,
// or 0 if nothing has committed yet.
func (s *Store) Seq() int64 {
	return s.clock.current()
}

// SubscriberCount returns the number of listener wrappers currently
// registered, counting whole-state and selector subscriptions alike.
func (s *Store) SubscriberCount() int {
	return s.bus.CountAll()
}

// Close marks the store closed and cancels the context handed to
// in-flight async resolvers. Later writes are dropped with a warning;
// reads remain valid. Close is idempotent.
func (s *Store) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	s.logger.Info("store closed", "seq", s.Seq())
}
