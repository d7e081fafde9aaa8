package scenario

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/statecell-io/statecell"
	"github.com/statecell-io/statecell/val"
)

// AssertionError describes one failed expectation.
type AssertionError struct {
	Kind     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s\n  expected: %s\n  actual: %s",
		e.Kind, e.Expected, e.Actual)
}

// evaluateExpect checks every declared expectation and records failures
// on the result.
func evaluateExpect(scenario *Scenario, run *runState, st *statecell.Store, result *Result) {
	expect := &scenario.Expect

	if isSet(expect.Final) {
		want, err := nodeToValue(expect.Final)
		if err != nil {
			result.AddFailure(fmt.Sprintf("expect.final: %v", err))
		} else if !val.Equal(want, result.FinalState) {
			result.AddFailure((&AssertionError{
				Kind:     "final",
				Expected: renderValue(want),
				Actual:   renderValue(result.FinalState),
			}).Error())
		}
	}

	if expect.Transitions != nil {
		got := 0
		for _, ev := range result.Trace {
			if ev.Op != OpWatch {
				got++
			}
		}
		if got != *expect.Transitions {
			result.AddFailure((&AssertionError{
				Kind:     "transitions",
				Expected: fmt.Sprintf("%d", *expect.Transitions),
				Actual:   fmt.Sprintf("%d", got),
			}).Error())
		}
	}

	if expect.Dirty != nil {
		if got := st.Dirty(); got != *expect.Dirty {
			result.AddFailure((&AssertionError{
				Kind:     "dirty",
				Expected: fmt.Sprintf("%t", *expect.Dirty),
				Actual:   fmt.Sprintf("%t", got),
			}).Error())
		}
	}

	if expect.Subscribers != nil {
		if got := st.SubscriberCount(); got != *expect.Subscribers {
			result.AddFailure((&AssertionError{
				Kind:     "subscribers",
				Expected: fmt.Sprintf("%d", *expect.Subscribers),
				Actual:   fmt.Sprintf("%d", got),
			}).Error())
		}
	}

	if expect.Patches != nil {
		evaluatePatches(expect.Patches, run.patches, result)
	}
}

// evaluatePatches compares the declared patch list against every patch
// the pipeline observed, in order.
func evaluatePatches(expected []yaml.Node, observed []val.Value, result *Result) {
	want := make([]val.Value, len(expected))
	for i, n := range expected {
		v, err := nodeToValue(n)
		if err != nil {
			result.AddFailure(fmt.Sprintf("expect.patches[%d]: %v", i, err))
			return
		}
		want[i] = v
	}

	if len(want) != len(observed) {
		result.AddFailure((&AssertionError{
			Kind:     "patches",
			Expected: renderValues(want),
			Actual:   renderValues(observed),
		}).Error())
		return
	}

	for i := range want {
		if !val.Equal(want[i], observed[i]) {
			result.AddFailure((&AssertionError{
				Kind:     fmt.Sprintf("patches[%d]", i),
				Expected: renderValue(want[i]),
				Actual:   renderValue(observed[i]),
			}).Error())
		}
	}
}

func renderValue(v val.Value) string {
	if v == nil {
		return "<none>"
	}
	data, err := val.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<unrenderable: %v>", err)
	}
	return string(data)
}

func renderValues(vs []val.Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = renderValue(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
