package scenario

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/statecell-io/statecell"
	"github.com/statecell-io/statecell/def"
	"github.com/statecell-io/statecell/val"
)

// TraceEvent records one observed transition or watched-field change.
type TraceEvent struct {
	Seq   int64     // transition ordinal within the run, starting at 1
	Step  int       // 1-based index of the step behind the event
	Op    string    // OpSet, OpForced, OpRemove, OpReset, or OpWatch
	Field string    // watched field name, watch events only
	Patch val.Value // pipeline patch behind the transition, when one exists
	Prev  val.Value // watched slice before the change, watch events only
	Next  val.Value // watched slice after the change, watch events only
	State val.Value // committed state, transition events only
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass indicates every expectation held.
	Pass bool

	// Trace lists transitions and watched-field changes in observed
	// order.
	Trace []TraceEvent

	// Failures holds one message per failed expectation. Empty when
	// Pass is true.
	Failures []string

	// FinalState is the store state after the last step.
	FinalState val.Value
}

// AddFailure records a failed expectation and marks the result failed.
func (r *Result) AddFailure(msg string) {
	r.Failures = append(r.Failures, msg)
	r.Pass = false
}

// Runner executes scenarios against freshly built stores. Every run
// builds its own store with a discard logger and fixed write tokens, so
// runs are isolated and traces reproducible.
type Runner struct {
	logger *slog.Logger
}

// NewRunner returns a Runner with logging suppressed.
func NewRunner() *Runner {
	return &Runner{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Run executes a scenario with a fresh Runner.
func Run(scenario *Scenario) (*Result, error) {
	return NewRunner().Run(scenario)
}

// Run builds the store, wires the instrumented middleware and the
// subscriptions, applies every step in order, and evaluates the
// scenario's expectations.
//
// The returned error covers infrastructure problems such as a bad
// definition file or an unconvertible step value. Failed expectations
// land in Result.Failures instead.
func (r *Runner) Run(scenario *Scenario) (*Result, error) {
	seed, name, err := storeSeed(&scenario.Store, scenario.Name)
	if err != nil {
		return nil, err
	}

	result := &Result{Pass: true, Trace: []TraceEvent{}}
	run := &runState{result: result}

	st := statecell.New(seed,
		statecell.WithName(name),
		statecell.WithLogger(r.logger),
		statecell.WithTokenGenerator(statecell.NewFixedTokenGenerator()),
		statecell.WithMiddleware(run.record),
	)
	defer st.Close()

	unsubscribe := st.Subscribe(run.onTransition)
	defer unsubscribe()

	for _, field := range scenario.Watch {
		off := st.SubscribeSelector(fieldSelector(field), run.onWatch(field))
		defer off()
	}

	for i := range scenario.Steps {
		run.step = i + 1
		run.pendingPatch = nil
		if err := runStep(st, run, &scenario.Steps[i]); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	result.FinalState = st.Value()
	evaluateExpect(scenario, run, st, result)

	return result, nil
}

// runState carries the observation state for one run. Steps, commits,
// and notifications all happen on the runner's goroutine, so no locking
// is needed.
type runState struct {
	result       *Result
	step         int
	op           string
	seq          int64
	pendingPatch val.Value
	patches      []val.Value
}

// record is the instrumented middleware. It notes every patch entering
// the pipeline, then forwards it unchanged.
func (run *runState) record(next statecell.ApplyFunc, getState statecell.GetStateFunc) statecell.ApplyFunc {
	return func(patch val.Value) {
		run.patches = append(run.patches, patch)
		run.pendingPatch = patch
		next(patch)
	}
}

func (run *runState) onTransition(_, next val.Value) {
	run.seq++
	run.result.Trace = append(run.result.Trace, TraceEvent{
		Seq:   run.seq,
		Step:  run.step,
		Op:    run.op,
		Patch: run.pendingPatch,
		State: next,
	})
	run.pendingPatch = nil
}

func (run *runState) onWatch(field string) func(prev, next val.Value) {
	return func(prev, next val.Value) {
		run.result.Trace = append(run.result.Trace, TraceEvent{
			Seq:   run.seq,
			Step:  run.step,
			Op:    OpWatch,
			Field: field,
			Prev:  prev,
			Next:  next,
		})
	}
}

// runStep applies one step's operation to the store.
func runStep(st *statecell.Store, run *runState, step *Step) error {
	op, err := step.op()
	if err != nil {
		return err
	}
	run.op = op

	switch op {
	case OpSet:
		patch, err := nodeToValue(step.Set)
		if err != nil {
			return fmt.Errorf("set: %w", err)
		}
		st.Set(patch)

	case OpForced:
		patch, err := nodeToValue(step.Forced)
		if err != nil {
			return fmt.Errorf("forced: %w", err)
		}
		st.Set(patch, statecell.Forced())

	case OpRemove:
		keys, err := decodeRemoveKeys(step.Remove)
		if err != nil {
			return err
		}
		patch := make(val.Object, len(keys))
		for _, k := range keys {
			patch[k] = val.Removed{}
		}
		st.Set(patch)

	case OpReset:
		if isNull(step.Reset) {
			st.Reset()
			return nil
		}
		target, err := nodeToValue(step.Reset)
		if err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		st.ResetTo(target)
	}

	return nil
}

// storeSeed resolves the initial state and store name from the store
// configuration.
func storeSeed(cfg *StoreConfig, fallbackName string) (val.Value, string, error) {
	if cfg.Def != "" {
		spec, err := compileDefFile(cfg.Def, cfg.Name)
		if err != nil {
			return nil, "", err
		}
		name := cfg.Name
		if name == "" {
			name = spec.Name
		}
		return spec.Initial, name, nil
	}

	seed, err := nodeToValue(cfg.Initial)
	if err != nil {
		return nil, "", fmt.Errorf("store.initial: %w", err)
	}
	name := cfg.Name
	if name == "" {
		name = fallbackName
	}
	return seed, name, nil
}

// compileDefFile compiles one definition file and selects the store
// entry matching name, or the only entry when name is empty.
func compileDefFile(path, name string) (*def.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definition file: %w", err)
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compiling %s: %w", path, err)
	}

	storesVal := v.LookupPath(cue.ParsePath("store"))
	if !storesVal.Exists() {
		return nil, fmt.Errorf("%s: no store definitions found", path)
	}

	if name != "" {
		entry := storesVal.LookupPath(cue.ParsePath(name))
		if !entry.Exists() {
			return nil, fmt.Errorf("%s: store %q not defined", path, name)
		}
		return def.Compile(name, entry)
	}

	iter, err := storesVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("%s: iterating stores: %w", path, err)
	}

	var (
		label string
		entry cue.Value
		count int
	)
	for iter.Next() {
		count++
		if count > 1 {
			return nil, fmt.Errorf("%s: multiple stores defined, store.name is required", path)
		}
		label = iter.Label()
		entry = iter.Value()
	}
	if count == 0 {
		return nil, fmt.Errorf("%s: no store definitions found", path)
	}
	return def.Compile(label, entry)
}

// fieldSelector projects one top-level field, yielding Null when the
// field is absent or the state is not a record.
func fieldSelector(name string) func(val.Value) val.Value {
	return func(state val.Value) val.Value {
		if fields, ok := state.(val.Object); ok {
			if v, ok := fields[name]; ok {
				return v
			}
		}
		return val.Null{}
	}
}

// nodeToValue converts a decoded YAML node to a Value. The reserved
// removal-marker object converts to the marker itself, so patches can
// spell removals directly.
func nodeToValue(n yaml.Node) (val.Value, error) {
	var raw any
	if err := n.Decode(&raw); err != nil {
		return nil, err
	}
	return val.FromGo(raw)
}
