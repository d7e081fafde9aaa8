package journal

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/statecell-io/statecell"
	"github.com/statecell-io/statecell/val"
)

func newJournaledStore(t *testing.T, j *Journal, name string, initial val.Value, extra ...statecell.Middleware) *statecell.Store {
	t.Helper()
	mws := append([]statecell.Middleware{j.Middleware(name)}, extra...)
	s := statecell.New(initial,
		statecell.WithName(name),
		statecell.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		statecell.WithMiddleware(mws...),
	)
	t.Cleanup(s.Close)
	return s
}

func countRows(t *testing.T, j *Journal, store string) int {
	t.Helper()
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM transitions WHERE store = ?`, store).Scan(&n)
	if err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	return n
}

func TestMiddleware_RecordsPipelineWrites(t *testing.T) {
	j := openTestJournal(t)
	s := newJournaledStore(t, j, "cart", val.Object{})

	s.Set(val.Object{"a": val.Int(1)})
	s.Set(val.Object{"b": val.Int(2)})

	if n := countRows(t, j, "cart"); n != 2 {
		t.Fatalf("row count = %d, expected 2", n)
	}

	// A write gated out by the equality check leaves the state
	// untouched, so the middleware records nothing.
	s.Set(val.Object{"b": val.Int(2)})

	if n := countRows(t, j, "cart"); n != 2 {
		t.Errorf("row count after gated write = %d, expected 2", n)
	}

	entries, err := j.Entries(context.Background(), "cart")
	if err != nil {
		t.Fatalf("Entries() failed: %v", err)
	}
	if !val.Equal(entries[1].Patch, val.Object{"b": val.Int(2)}) {
		t.Errorf("recorded patch = %v", entries[1].Patch)
	}
	if !val.Equal(entries[1].State, val.Object{"a": val.Int(1), "b": val.Int(2)}) {
		t.Errorf("recorded state = %v", entries[1].State)
	}
}

func TestMiddleware_ForcedWriteEscapesJournal(t *testing.T) {
	j := openTestJournal(t)
	s := newJournaledStore(t, j, "cart", val.Object{})

	s.Set(val.Object{"a": val.Int(1)})
	s.Set(val.Object{"a": val.Int(2)}, statecell.Forced())
	s.Set(val.Object{"b": val.Int(3)})

	// The forced write bypasses the pipeline, so only the two
	// pipeline writes reach the journal.
	if n := countRows(t, j, "cart"); n != 2 {
		t.Fatalf("row count = %d, expected 2", n)
	}

	// Replay exposes the gap: folding the recorded patches cannot
	// reproduce the state the second row observed.
	result, err := j.Replay(context.Background(), "cart")
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if result.Divergence == nil {
		t.Fatal("expected divergence, got none")
	}
	if result.Divergence.Seq != 2 {
		t.Errorf("divergence seq = %d, expected 2", result.Divergence.Seq)
	}
	if !val.Equal(result.FinalState, val.Object{"a": val.Int(2), "b": val.Int(3)}) {
		t.Errorf("final state = %v", result.FinalState)
	}
}

func TestMiddleware_ResetEscapesJournal(t *testing.T) {
	j := openTestJournal(t)
	s := newJournaledStore(t, j, "cart", val.Object{})

	s.Set(val.Object{"a": val.Int(1)})
	s.Reset()
	s.Set(val.Object{"b": val.Int(2)})

	if n := countRows(t, j, "cart"); n != 2 {
		t.Fatalf("row count = %d, expected 2", n)
	}

	result, err := j.Replay(context.Background(), "cart")
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if result.Divergence == nil {
		t.Fatal("expected divergence, got none")
	}
	if !val.Equal(result.FinalState, val.Object{"b": val.Int(2)}) {
		t.Errorf("final state = %v", result.FinalState)
	}
}

func TestMiddleware_SwallowedWriteNotRecorded(t *testing.T) {
	j := openTestJournal(t)
	swallow := func(next statecell.ApplyFunc, getState statecell.GetStateFunc) statecell.ApplyFunc {
		return func(patch val.Value) {}
	}
	s := newJournaledStore(t, j, "cart", val.Object{}, swallow)

	s.Set(val.Object{"a": val.Int(1)})

	if !val.Equal(s.Value(), val.Object{}) {
		t.Fatalf("state = %v, expected the write to be swallowed", s.Value())
	}
	if n := countRows(t, j, "cart"); n != 0 {
		t.Errorf("row count = %d, expected 0", n)
	}
}

func TestMiddleware_RebuildFromJournal(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	first := newJournaledStore(t, j, "cart", val.Object{})
	first.Set(val.Object{"a": val.Int(1)})
	first.Set(val.Object{"b": val.Int(2)})
	first.Close()

	result, err := j.Replay(ctx, "cart")
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if result.Divergence != nil {
		t.Fatalf("unexpected divergence: %v", result.Divergence)
	}

	second := statecell.New(result.FinalState,
		statecell.WithName("cart"),
		statecell.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		statecell.WithMiddleware(j.Middleware("cart")),
		statecell.WithStartSeq(result.LastSeq),
	)
	t.Cleanup(second.Close)

	if !val.Equal(second.Value(), val.Object{"a": val.Int(1), "b": val.Int(2)}) {
		t.Fatalf("rebuilt state = %v", second.Value())
	}

	second.Set(val.Object{"c": val.Int(3)})

	if got := second.Seq(); got != result.LastSeq+1 {
		t.Errorf("seq after rebuild write = %d, expected %d", got, result.LastSeq+1)
	}

	after, err := j.Replay(ctx, "cart")
	if err != nil {
		t.Fatalf("Replay() after rebuild failed: %v", err)
	}
	if after.Divergence != nil {
		t.Fatalf("unexpected divergence after rebuild: %v", after.Divergence)
	}
	if after.Entries != 3 {
		t.Errorf("entries = %d, expected 3", after.Entries)
	}
	if !val.Equal(after.FinalState, val.Object{"a": val.Int(1), "b": val.Int(2), "c": val.Int(3)}) {
		t.Errorf("final state = %v", after.FinalState)
	}
}
