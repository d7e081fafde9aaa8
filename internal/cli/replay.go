package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/statecell-io/statecell/journal"
	"github.com/statecell-io/statecell/val"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Journal string
	Store   string // optional - single store only
	Verify  bool
}

// ReplayStoreResult holds the replay outcome for a single store.
type ReplayStoreResult struct {
	Store      string          `json:"store"`
	Entries    int             `json:"entries"`
	LastSeq    int64           `json:"last_seq"`
	FinalHash  string          `json:"final_hash,omitempty"`
	FinalState json.RawMessage `json:"final_state,omitempty"`
	Divergence *DivergenceInfo `json:"divergence,omitempty"`
}

// DivergenceInfo reports the first transition whose recorded state the
// replay could not reproduce.
type DivergenceInfo struct {
	Seq          int64  `json:"seq"`
	RecordedHash string `json:"recorded_hash"`
	ComputedHash string `json:"computed_hash"`
}

// ReplaySummary holds the overall replay result.
type ReplaySummary struct {
	Stores       []ReplayStoreResult `json:"stores"`
	TotalStores  int                 `json:"total_stores"`
	AllConverged bool                `json:"all_converged"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions, cfg Config) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild store state from the journal",
		Long: `Rebuild state by folding the journaled patches for each store and
print the final state, last sequence number and state hash.

With --verify, every recorded state hash is checked along the way and
the first divergence is reported. A divergence usually means a write
legally bypassed the pipeline between two journaled transitions, such
as a forced write or a no-argument reset.

Exit codes:
  0 - Replay succeeded (and converged, when verifying)
  1 - Verification found a divergence
  2 - Command error (journal not found, etc.)

Examples:
  statecell replay --journal ./statecell.db
  statecell replay --journal ./statecell.db --store cart
  statecell replay --journal ./statecell.db --verify --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", cfg.Journal.Path, "path to the journal database")
	cmd.Flags().StringVar(&opts.Store, "store", cfg.Journal.Store, "replay a single store only")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "verify recorded state hashes and report the first divergence")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	if opts.Journal == "" {
		return NewExitError(ExitCommandError, "journal path is required (--journal flag or config)")
	}

	ctx := commandContext(cmd)

	j, err := journal.Open(opts.Journal, journal.WithLogger(newLogger(opts.RootOptions, cmd)))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	var stores []string
	if opts.Store != "" {
		stores = []string{opts.Store}
	} else {
		stores, err = j.Stores(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list stores", err)
		}
	}

	if len(stores) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(cmd, ReplaySummary{
				Stores:       []ReplayStoreResult{},
				AllConverged: true,
			}, opts.Verify)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No stores found in journal.")
		return nil
	}

	summary := ReplaySummary{
		Stores:       make([]ReplayStoreResult, 0, len(stores)),
		TotalStores:  len(stores),
		AllConverged: true,
	}

	for _, name := range stores {
		storeResult, err := replayStore(ctx, j, name)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay store %s", name), err)
		}

		summary.Stores = append(summary.Stores, storeResult)
		if storeResult.Divergence != nil {
			summary.AllConverged = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, summary, opts.Verify)
	}

	return outputReplayText(cmd, summary, opts)
}

// replayStore rebuilds one store and converts the outcome for output.
func replayStore(ctx context.Context, j *journal.Journal, name string) (ReplayStoreResult, error) {
	rr, err := j.Replay(ctx, name)
	if err != nil {
		return ReplayStoreResult{}, err
	}

	storeResult := ReplayStoreResult{
		Store:     name,
		Entries:   rr.Entries,
		LastSeq:   rr.LastSeq,
		FinalHash: rr.FinalHash,
	}

	if rr.FinalState != nil {
		data, err := val.MarshalCanonical(rr.FinalState)
		if err != nil {
			return ReplayStoreResult{}, fmt.Errorf("render final state: %w", err)
		}
		storeResult.FinalState = data
	}

	if rr.Divergence != nil {
		storeResult.Divergence = &DivergenceInfo{
			Seq:          rr.Divergence.Seq,
			RecordedHash: rr.Divergence.RecordedHash,
			ComputedHash: rr.Divergence.ComputedHash,
		}
	}

	return storeResult, nil
}

// outputReplayJSON outputs the replay summary as JSON.
func outputReplayJSON(cmd *cobra.Command, summary ReplaySummary, verify bool) error {
	response := CLIResponse{
		Status: "ok",
		Data:   summary,
	}

	failed := verify && !summary.AllConverged
	if failed {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DIVERGENCE",
			Message: "replay diverged from recorded state",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if failed {
		return NewExitError(ExitFailure, "replay diverged from recorded state")
	}
	return nil
}

// outputReplayText outputs the replay summary as text.
func outputReplayText(cmd *cobra.Command, summary ReplaySummary, opts *ReplayOptions) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d store(s)\n", summary.TotalStores)
	fmt.Fprintln(w)

	for _, storeResult := range summary.Stores {
		status := "✓"
		if opts.Verify && storeResult.Divergence != nil {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Store: %s\n", status, storeResult.Store)
		fmt.Fprintf(w, "  Entries: %d, last seq %d\n", storeResult.Entries, storeResult.LastSeq)
		if storeResult.FinalHash != "" {
			fmt.Fprintf(w, "  Final hash: %s\n", storeResult.FinalHash)
		}
		if opts.Verbose && storeResult.FinalState != nil {
			fmt.Fprintf(w, "  Final state: %s\n", storeResult.FinalState)
		}

		if opts.Verify && storeResult.Divergence != nil {
			d := storeResult.Divergence
			fmt.Fprintf(w, "  Divergence at seq %d: recorded %s, computed %s\n",
				d.Seq, d.RecordedHash, d.ComputedHash)
		}
		fmt.Fprintln(w)
	}

	if !opts.Verify {
		return nil
	}

	if summary.AllConverged {
		fmt.Fprintln(w, "✓ All stores converged")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay diverged from recorded state")
	return NewExitError(ExitFailure, "replay diverged from recorded state")
}
