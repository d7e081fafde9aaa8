package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/statecell-io/statecell/val"
)

// Append records one transition for store: the patch that produced it
// and the state it committed, serialized canonically.
//
// Appends are hash-gated: when state hashes identically to the last
// recorded state for this store, nothing is written and appended is
// false. The journal therefore holds exactly the deduplicated
// transition sequence even if a caller offers the same state twice.
func (j *Journal) Append(ctx context.Context, store string, patch, state val.Value) (seq int64, appended bool, err error) {
	patchJSON, err := val.MarshalCanonical(patch)
	if err != nil {
		return 0, false, fmt.Errorf("append transition: marshal patch: %w", err)
	}
	stateJSON, err := val.MarshalCanonical(state)
	if err != nil {
		return 0, false, fmt.Errorf("append transition: marshal state: %w", err)
	}
	stateHash, err := val.StateHash(state)
	if err != nil {
		return 0, false, fmt.Errorf("append transition: hash state: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	var lastHash string
	row := j.db.QueryRowContext(ctx, `
		SELECT state_hash FROM transitions
		WHERE store = ?
		ORDER BY seq DESC LIMIT 1
	`, store)
	switch err := row.Scan(&lastHash); {
	case err == nil:
		if lastHash == stateHash {
			return 0, false, nil
		}
	case errors.Is(err, sql.ErrNoRows):
		// First transition for this store.
	default:
		return 0, false, fmt.Errorf("append transition: read last hash: %w", err)
	}

	seq = j.nextSeq + 1
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO transitions (seq, store, patch, state, state_hash)
		VALUES (?, ?, ?, ?, ?)
	`, seq, store, string(patchJSON), string(stateJSON), stateHash)
	if err != nil {
		return 0, false, fmt.Errorf("append transition: %w", err)
	}

	j.nextSeq = seq
	return seq, true, nil
}
