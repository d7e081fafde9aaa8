package scenario

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/statecell-io/statecell/val"
)

// TraceSnapshot is the canonical-JSON projection of a run's trace, used
// for golden comparisons.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
}

// toValue builds the Value form of the snapshot. Event fields that do
// not apply to the event kind are left out entirely, keeping golden
// files free of nulls.
func (s *TraceSnapshot) toValue() val.Value {
	events := make(val.Array, len(s.Trace))
	for i, ev := range s.Trace {
		fields := val.Object{
			"seq":  val.Int(ev.Seq),
			"step": val.Int(ev.Step),
			"op":   val.String(ev.Op),
		}
		if ev.Field != "" {
			fields["field"] = val.String(ev.Field)
		}
		if ev.Patch != nil {
			fields["patch"] = ev.Patch
		}
		if ev.Prev != nil {
			fields["prev"] = ev.Prev
		}
		if ev.Next != nil {
			fields["next"] = ev.Next
		}
		if ev.State != nil {
			fields["state"] = ev.State
		}
		events[i] = fields
	}
	return val.Object{
		"scenario": val.String(s.ScenarioName),
		"trace":    events,
	}
}

// MarshalCanonical renders the snapshot as canonical JSON. Equal traces
// produce identical bytes.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return val.MarshalCanonical(s.toValue())
}

// RunGolden loads the scenario at path, runs it, and compares the trace
// snapshot against the golden file named after the scenario. Passing a
// nil Goldie uses the default layout, testdata/golden with a .golden
// suffix.
func RunGolden(t *testing.T, path string, g *goldie.Goldie) (*Result, error) {
	t.Helper()

	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, err
	}

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	snapshot := &TraceSnapshot{ScenarioName: scenario.Name, Trace: result.Trace}
	traceJSON, err := snapshot.MarshalCanonical()
	if err != nil {
		return nil, err
	}

	if g == nil {
		g = goldie.New(t,
			goldie.WithFixtureDir("testdata/golden"),
			goldie.WithNameSuffix(".golden"),
		)
	}
	g.Assert(t, scenario.Name, traceJSON)

	return result, nil
}
