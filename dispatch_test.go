package statecell

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statecell-io/statecell/internal/testutil"
	"github.com/statecell-io/statecell/val"
)

func TestDispatch_NotificationsFollowCommitOrder(t *testing.T) {
	s := newTestStore(t, val.Object{"n": val.Int(0)})
	rec := newRecorder()
	s.Subscribe(rec.listen)

	for i := 1; i <= 5; i++ {
		s.Set(val.Object{"n": val.Int(i)})
	}

	calls := rec.calls()
	require.Len(t, calls, 5)
	for i, c := range calls {
		assert.Equal(t, val.Int(i), field(t, c.prev, "n"))
		assert.Equal(t, val.Int(i+1), field(t, c.next, "n"))
	}
}

func TestDispatch_ReentrantWriteQueuesBehindInFlight(t *testing.T) {
	s := newTestStore(t, val.Object{"phase": val.String("start")})
	rec := newRecorder()

	var once sync.Once
	s.Subscribe(func(prev, next val.Value) {
		once.Do(func() {
			// Committed immediately, notified after the in-flight
			// dispatch finishes.
			s.Set(val.Object{"phase": val.String("cascade")})
		})
	})
	s.Subscribe(rec.listen)

	s.Set(val.Object{"phase": val.String("first")})

	calls := rec.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, val.String("first"), field(t, calls[0].next, "phase"))
	assert.Equal(t, val.String("first"), field(t, calls[1].prev, "phase"))
	assert.Equal(t, val.String("cascade"), field(t, calls[1].next, "phase"))

	assert.Equal(t, val.String("cascade"), field(t, s.Value(), "phase"))
}

func TestDispatch_ListenerSeesCommittedState(t *testing.T) {
	s := newTestStore(t, val.Object{"n": val.Int(0)})

	var mismatch bool
	s.Subscribe(func(prev, next val.Value) {
		// By the time a notification runs, the store has already moved
		// at least as far as this transition's next state.
		cur := field(t, s.Value(), "n").(val.Int)
		if cur < field(t, next, "n").(val.Int) {
			mismatch = true
		}
	})

	for i := 1; i <= 3; i++ {
		s.Set(val.Object{"n": val.Int(i)})
	}
	assert.False(t, mismatch)
}

func TestDispatch_CascadeLimitDropsRunawayWrite(t *testing.T) {
	h, logger := testutil.NewCaptureHandler()
	s := New(val.Object{"n": val.Int(0)},
		WithLogger(logger),
		WithTokenGenerator(NewFixedTokenGenerator()),
		WithMaxCascade(5))
	t.Cleanup(s.Close)

	s.Subscribe(func(prev, next val.Value) {
		n := next.(val.Object)["n"].(val.Int)
		s.Set(val.Object{"n": n + 1})
	})

	s.Set(val.Object{"n": val.Int(1)})

	// The seed write commits outside the dispatch; five cascaded writes
	// fit the limit; the sixth is dropped and the chain stops.
	assert.Equal(t, val.Int(6), field(t, s.Value(), "n"))
	assert.Equal(t, 1, h.CountAtLevel(slog.LevelError))
	assert.True(t, h.HasMessage(slog.LevelError, "write dropped: cascade limit exceeded"))

	// The store is usable afterwards; a fresh dispatch gets a fresh
	// cascade budget, so the chain again runs seed plus five.
	h.Reset()
	s.Set(val.Object{"n": val.Int(100)})
	assert.Equal(t, val.Int(105), field(t, s.Value(), "n"))
	assert.Equal(t, 1, h.CountAtLevel(slog.LevelError))
}

func TestDispatch_CascadeErrorIsTyped(t *testing.T) {
	err := &CascadeLimitError{Store: "cart", Count: 11, Limit: 10}
	assert.True(t, IsCascadeLimitError(err))
	assert.False(t, IsCascadeLimitError(ErrClosed))
	assert.Contains(t, err.Error(), "cart")
	assert.Contains(t, err.Error(), "11")
}

func TestDispatch_GatedReentrantWriteTerminates(t *testing.T) {
	// A listener writing the same value back must not cascade: the gate
	// absorbs it and the dispatch drains normally.
	s := newTestStore(t, val.Object{"n": val.Int(0)})
	rec := newRecorder()
	s.Subscribe(func(prev, next val.Value) {
		s.Set(val.Object{"n": next.(val.Object)["n"]})
	})
	s.Subscribe(rec.listen)

	s.Set(val.Object{"n": val.Int(1)})

	assert.Equal(t, 1, rec.count())
	assert.Equal(t, int64(1), s.Seq())
}

func TestDispatch_ConcurrentWritersAllDelivered(t *testing.T) {
	s := newTestStore(t, val.Object{"a": val.Int(0), "b": val.Int(0)})
	rec := newRecorder()
	s.Subscribe(rec.listen)

	const perWriter = 25
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= perWriter; i++ {
			s.Set(val.Object{"a": val.Int(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 1; i <= perWriter; i++ {
			s.Set(val.Object{"b": val.Int(i)})
		}
	}()
	wg.Wait()

	// Every commit is eventually delivered exactly once, regardless of
	// which goroutine ended up draining the queue.
	assert.Eventually(t, func() bool {
		return int64(rec.count()) == s.Seq()
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(2*perWriter), s.Seq())
	assert.Equal(t, val.Int(perWriter), field(t, s.Value(), "a"))
	assert.Equal(t, val.Int(perWriter), field(t, s.Value(), "b"))

	// Per-field monotonic order is preserved even under interleaving.
	lastA, lastB := int64(-1), int64(-1)
	for _, c := range rec.calls() {
		a := int64(field(t, c.next, "a").(val.Int))
		b := int64(field(t, c.next, "b").(val.Int))
		require.GreaterOrEqual(t, a, lastA)
		require.GreaterOrEqual(t, b, lastB)
		lastA, lastB = a, b
	}
}
