package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/statecell-io/statecell/val"
)

// Entry is one recorded transition, with patch and state decoded back
// into values.
type Entry struct {
	Seq       int64
	Store     string
	Patch     val.Value
	State     val.Value
	StateHash string
	CreatedAt string
}

// Entries returns every transition recorded for store in seq order.
// Returns an empty slice, not nil, when the store has no rows.
func (j *Journal) Entries(ctx context.Context, store string) ([]Entry, error) {
	return j.EntriesSince(ctx, store, 0, 0)
}

// EntriesSince returns transitions for store with seq greater than
// sinceSeq, in seq order, capped at limit rows when limit is positive.
func (j *Journal) EntriesSince(ctx context.Context, store string, sinceSeq int64, limit int) ([]Entry, error) {
	query := `
		SELECT seq, store, patch, state, state_hash, created_at
		FROM transitions
		WHERE store = ? AND seq > ?
		ORDER BY seq ASC
	`
	args := []any{store, sinceSeq}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return entries, nil
}

// LastSeq returns the highest seq recorded for store, or 0 when the
// store has no rows. A store rebuilt from the journal passes this to
// WithStartSeq so its numbering continues where the journal ends.
func (j *Journal) LastSeq(ctx context.Context, store string) (int64, error) {
	var seq int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM transitions WHERE store = ?
	`, store).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq, nil
}

// Stores returns the distinct store names present in the journal,
// ordered by name.
func (j *Journal) Stores(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT DISTINCT store FROM transitions ORDER BY store ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan store name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stores: %w", err)
	}
	return names, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e         Entry
		patchJSON string
		stateJSON string
	)
	if err := rows.Scan(&e.Seq, &e.Store, &patchJSON, &stateJSON, &e.StateHash, &e.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("scan transition: %w", err)
	}

	patch, err := val.UnmarshalValue([]byte(patchJSON))
	if err != nil {
		return Entry{}, fmt.Errorf("decode patch at seq %d: %w", e.Seq, err)
	}
	state, err := val.UnmarshalValue([]byte(stateJSON))
	if err != nil {
		return Entry{}, fmt.Errorf("decode state at seq %d: %w", e.Seq, err)
	}
	e.Patch = patch
	e.State = state
	return e, nil
}
