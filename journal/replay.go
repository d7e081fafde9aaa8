package journal

import (
	"context"
	"fmt"

	"github.com/statecell-io/statecell/val"
)

// ReplayResult is the outcome of rebuilding a store from its journal.
type ReplayResult struct {
	Store      string
	Entries    int
	LastSeq    int64
	FinalState val.Value // nil when the journal holds no rows for the store
	FinalHash  string
	Divergence *Divergence // nil when every recorded hash was reproduced
}

// Divergence pinpoints the first recorded transition whose state could
// not be reproduced by folding the recorded patches. The usual cause is
// a write that legally bypassed the pipeline between two journaled
// transitions, such as a forced write or a no-argument reset.
type Divergence struct {
	Seq          int64
	RecordedHash string
	ComputedHash string
}

func (d *Divergence) String() string {
	return fmt.Sprintf("seq %d: recorded state hash %s, replay computed %s",
		d.Seq, d.RecordedHash, d.ComputedHash)
}

// Replay folds the recorded patches for store over the first recorded
// state and verifies every recorded state hash along the way.
//
// On the first divergence, verification stops and the final state is
// taken from the last recorded row, which is the state the journal
// actually observed. An empty journal yields a result with zero entries
// and a nil final state.
func (j *Journal) Replay(ctx context.Context, store string) (*ReplayResult, error) {
	entries, err := j.Entries(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", store, err)
	}

	result := &ReplayResult{Store: store, Entries: len(entries)}
	if len(entries) == 0 {
		return result, nil
	}

	state := entries[0].State
	for i, e := range entries {
		if i > 0 {
			state = fold(state, e.Patch)
		}
		computed, err := val.StateHash(state)
		if err != nil {
			return nil, fmt.Errorf("replay %s: hash at seq %d: %w", store, e.Seq, err)
		}
		if computed != e.StateHash {
			result.Divergence = &Divergence{
				Seq:          e.Seq,
				RecordedHash: e.StateHash,
				ComputedHash: computed,
			}
			break
		}
	}

	last := entries[len(entries)-1]
	result.LastSeq = last.Seq
	result.FinalState = last.State
	result.FinalHash = last.StateHash
	return result, nil
}

// fold applies one recorded patch the way the store's committer does:
// record patch onto record state merges field-wise, everything else
// replaces.
func fold(state, patch val.Value) val.Value {
	base, stateIsRecord := state.(val.Object)
	fields, patchIsRecord := patch.(val.Object)
	if stateIsRecord && patchIsRecord {
		return val.Merge(base, fields)
	}
	return patch
}
