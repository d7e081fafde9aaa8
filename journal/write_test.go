package journal

import (
	"context"
	"math"
	"testing"

	"github.com/statecell-io/statecell/val"
)

func TestAppend_AssignsSequentialSeqs(t *testing.T) {
	j := openTestJournal(t)

	s1 := mustAppend(t, j, "cart", val.Object{"a": val.Int(1)}, val.Object{"a": val.Int(1)})
	s2 := mustAppend(t, j, "cart", val.Object{"a": val.Int(2)}, val.Object{"a": val.Int(2)})

	if s1 != 1 || s2 != 2 {
		t.Errorf("seqs = %d, %d; expected 1, 2", s1, s2)
	}
}

func TestAppend_HashGateSkipsUnchangedState(t *testing.T) {
	j := openTestJournal(t)
	state := val.Object{"a": val.Int(1)}

	mustAppend(t, j, "cart", val.Object{"a": val.Int(1)}, state)

	_, appended, err := j.Append(context.Background(), "cart", val.Object{"a": val.Int(1)}, state)
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if appended {
		t.Error("append with unchanged state hash was not gated")
	}

	entries, err := j.Entries(context.Background(), "cart")
	if err != nil {
		t.Fatalf("Entries() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, expected 1", len(entries))
	}
}

func TestAppend_HashGateIsPerStore(t *testing.T) {
	j := openTestJournal(t)
	state := val.Object{"a": val.Int(1)}

	mustAppend(t, j, "cart", val.Object{"a": val.Int(1)}, state)

	// The same state under another store name is that store's first row.
	mustAppend(t, j, "profile", val.Object{"a": val.Int(1)}, state)
}

func TestAppend_StoresCanonicalJSON(t *testing.T) {
	j := openTestJournal(t)

	patch := val.Object{"b": val.Int(1), "a": val.Int(2)}
	state := val.Object{"b": val.Int(1), "a": val.Int(2), "z": val.String("s")}
	mustAppend(t, j, "cart", patch, state)

	var patchJSON, stateJSON string
	err := j.db.QueryRow(`SELECT patch, state FROM transitions WHERE seq = 1`).
		Scan(&patchJSON, &stateJSON)
	if err != nil {
		t.Fatalf("query row failed: %v", err)
	}

	if patchJSON != `{"a":2,"b":1}` {
		t.Errorf("patch column = %s, expected canonical key order", patchJSON)
	}
	if stateJSON != `{"a":2,"b":1,"z":"s"}` {
		t.Errorf("state column = %s, expected canonical key order", stateJSON)
	}
}

func TestAppend_RejectsNonFiniteFloats(t *testing.T) {
	j := openTestJournal(t)

	state := val.Object{"x": val.Float(math.NaN())}
	_, _, err := j.Append(context.Background(), "cart", val.Object{}, state)
	if err == nil {
		t.Fatal("expected error for NaN state, got nil")
	}
}
