package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/statecell-io/statecell/val"
)

// openTestJournal opens a journal on a temp database with silent logs.
func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

// mustAppend appends a transition and fails the test on error or gate.
func mustAppend(t *testing.T, j *Journal, store string, patch, state val.Value) int64 {
	t.Helper()

	seq, appended, err := j.Append(context.Background(), store, patch, state)
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if !appended {
		t.Fatalf("Append() was gated, expected a new row")
	}
	return seq
}
