package journal

import (
	"context"
	"testing"

	"github.com/statecell-io/statecell/val"
)

func TestReplay_RebuildsFinalState(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	mustAppend(t, j, "cart",
		val.Object{"a": val.Int(1)},
		val.Object{"a": val.Int(1)})
	mustAppend(t, j, "cart",
		val.Object{"b": val.Int(2)},
		val.Object{"a": val.Int(1), "b": val.Int(2)})
	mustAppend(t, j, "cart",
		val.Object{"a": val.Removed{}},
		val.Object{"b": val.Int(2)})

	result, err := j.Replay(ctx, "cart")
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}

	if result.Divergence != nil {
		t.Fatalf("unexpected divergence: %v", result.Divergence)
	}
	if result.Entries != 3 {
		t.Errorf("entries = %d, expected 3", result.Entries)
	}
	if result.LastSeq != 3 {
		t.Errorf("last seq = %d, expected 3", result.LastSeq)
	}
	if !val.Equal(result.FinalState, val.Object{"b": val.Int(2)}) {
		t.Errorf("final state = %v", result.FinalState)
	}
	if result.FinalHash != val.MustStateHash(val.Object{"b": val.Int(2)}) {
		t.Errorf("final hash mismatch: %s", result.FinalHash)
	}
}

func TestReplay_ReplacementFold(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	// Primitive states replay by replacement, not by merge.
	mustAppend(t, j, "counter", val.Int(1), val.Int(1))
	mustAppend(t, j, "counter", val.Int(5), val.Int(5))

	result, err := j.Replay(ctx, "counter")
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if result.Divergence != nil {
		t.Fatalf("unexpected divergence: %v", result.Divergence)
	}
	if !val.Equal(result.FinalState, val.Int(5)) {
		t.Errorf("final state = %v, expected 5", result.FinalState)
	}
}

func TestReplay_EmptyJournal(t *testing.T) {
	j := openTestJournal(t)

	result, err := j.Replay(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}
	if result.Entries != 0 {
		t.Errorf("entries = %d, expected 0", result.Entries)
	}
	if result.FinalState != nil {
		t.Errorf("final state = %v, expected nil", result.FinalState)
	}
}

func TestReplay_DetectsDivergence(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	mustAppend(t, j, "cart",
		val.Object{"a": val.Int(1)},
		val.Object{"a": val.Int(1)})

	// Recorded state contains a change the recorded patch cannot
	// explain, as a pipeline-bypassing write would leave behind.
	mustAppend(t, j, "cart",
		val.Object{"b": val.Int(2)},
		val.Object{"a": val.Int(99), "b": val.Int(2)})

	result, err := j.Replay(ctx, "cart")
	if err != nil {
		t.Fatalf("Replay() failed: %v", err)
	}

	if result.Divergence == nil {
		t.Fatal("expected divergence, got none")
	}
	if result.Divergence.Seq != 2 {
		t.Errorf("divergence seq = %d, expected 2", result.Divergence.Seq)
	}

	recorded := val.MustStateHash(val.Object{"a": val.Int(99), "b": val.Int(2)})
	computed := val.MustStateHash(val.Object{"a": val.Int(1), "b": val.Int(2)})
	if result.Divergence.RecordedHash != recorded {
		t.Errorf("recorded hash = %s, expected %s", result.Divergence.RecordedHash, recorded)
	}
	if result.Divergence.ComputedHash != computed {
		t.Errorf("computed hash = %s, expected %s", result.Divergence.ComputedHash, computed)
	}

	// The final state resyncs to the last recorded row.
	if !val.Equal(result.FinalState, val.Object{"a": val.Int(99), "b": val.Int(2)}) {
		t.Errorf("final state = %v", result.FinalState)
	}
}
