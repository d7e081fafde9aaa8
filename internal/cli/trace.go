package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/statecell-io/statecell/journal"
	"github.com/statecell-io/statecell/val"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal  string
	Store    string
	SinceSeq int64
	Limit    int
}

// TimelineEntry is one journaled transition prepared for output.
type TimelineEntry struct {
	Seq       int64           `json:"seq"`
	Patch     json.RawMessage `json:"patch"`
	State     json.RawMessage `json:"state,omitempty"`
	StateHash string          `json:"state_hash"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// TraceResult holds the timeline for one store.
type TraceResult struct {
	Store    string          `json:"store"`
	Timeline []TimelineEntry `json:"timeline"`
	Total    int             `json:"total"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions, cfg Config) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the transition timeline for a store",
		Long: `Print the journaled transitions for a store in sequence order.

Each line shows the sequence number, the patch that entered the
pipeline, and the resulting state hash. Use --since-seq to resume from
a known point and --limit to cap the number of rows.

Examples:
  statecell trace --journal ./statecell.db --store cart
  statecell trace --journal ./statecell.db --store cart --since-seq 40 --limit 20
  statecell trace --journal ./statecell.db --store cart --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", cfg.Journal.Path, "path to the journal database")
	cmd.Flags().StringVar(&opts.Store, "store", cfg.Journal.Store, "store to trace")
	cmd.Flags().Int64Var(&opts.SinceSeq, "since-seq", 0, "only transitions with seq greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of transitions to print (0 = all)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	if opts.Journal == "" {
		return NewExitError(ExitCommandError, "journal path is required (--journal flag or config)")
	}
	if opts.Store == "" {
		return NewExitError(ExitCommandError, "store name is required (--store flag or config)")
	}
	if opts.SinceSeq < 0 {
		return NewExitError(ExitCommandError, "--since-seq must be non-negative")
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must be non-negative")
	}

	ctx := commandContext(cmd)

	j, err := journal.Open(opts.Journal, journal.WithLogger(newLogger(opts.RootOptions, cmd)))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	entries, err := j.EntriesSince(ctx, opts.Store, opts.SinceSeq, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read transitions", err)
	}

	result := TraceResult{
		Store:    opts.Store,
		Timeline: make([]TimelineEntry, 0, len(entries)),
		Total:    len(entries),
	}
	for _, e := range entries {
		timelineEntry, err := convertEntry(e)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to render seq %d", e.Seq), err)
		}
		result.Timeline = append(result.Timeline, timelineEntry)
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}

	return outputTraceText(cmd, result, opts.Verbose)
}

// convertEntry renders one journal entry's values as canonical JSON.
func convertEntry(e journal.Entry) (TimelineEntry, error) {
	patch, err := val.MarshalCanonical(e.Patch)
	if err != nil {
		return TimelineEntry{}, fmt.Errorf("render patch: %w", err)
	}
	state, err := val.MarshalCanonical(e.State)
	if err != nil {
		return TimelineEntry{}, fmt.Errorf("render state: %w", err)
	}
	return TimelineEntry{
		Seq:       e.Seq,
		Patch:     patch,
		State:     state,
		StateHash: e.StateHash,
		CreatedAt: e.CreatedAt,
	}, nil
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if len(result.Timeline) == 0 {
		fmt.Fprintf(w, "No transitions found for store: %s\n", result.Store)
		return nil
	}

	fmt.Fprintf(w, "Trace for store: %s\n", result.Store)
	fmt.Fprintln(w)

	for _, entry := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %s\n", entry.Seq, entry.Patch)
		if verbose {
			fmt.Fprintf(w, "       State: %s\n", entry.State)
			fmt.Fprintf(w, "       Hash:  %s\n", entry.StateHash)
			if entry.CreatedAt != "" {
				fmt.Fprintf(w, "       At:    %s\n", entry.CreatedAt)
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d transition(s)\n", result.Total)
	return nil
}
