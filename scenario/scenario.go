// Package scenario runs YAML-driven, deterministic exercises of a
// store: build the store, apply a scripted sequence of writes, record
// every transition and watched-field change, then check the run against
// the scenario's expectations. Traces serialize to canonical JSON so
// golden comparisons are byte-stable.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one scripted store exercise.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description"`

	// Store configures the store under test.
	Store StoreConfig `yaml:"store"`

	// Watch lists field names observed through selector subscriptions.
	// Each change of a watched field is recorded as a trace event.
	Watch []string `yaml:"watch,omitempty"`

	// Steps is the ordered write script. Each step carries exactly one
	// operation.
	Steps []Step `yaml:"steps"`

	// Expect holds the expectations checked after the script runs.
	Expect Expect `yaml:"expect"`
}

// StoreConfig seeds the store under test. Exactly one of Initial or Def
// must be set.
type StoreConfig struct {
	// Name is the store name used in logs and traces. Defaults to the
	// definition name when Def is set, else to the scenario name.
	Name string `yaml:"name,omitempty"`

	// Initial is an inline initial state.
	Initial yaml.Node `yaml:"initial,omitempty"`

	// Def is the path to a CUE definition file, resolved relative to
	// the scenario file by LoadScenario.
	Def string `yaml:"def,omitempty"`
}

// Step is a single write operation. Exactly one of the fields must be
// set.
type Step struct {
	// Set applies a gated write with the given value as the patch.
	Set yaml.Node `yaml:"set,omitempty"`

	// Forced applies an ungated write that bypasses middleware and
	// equality gating.
	Forced yaml.Node `yaml:"forced,omitempty"`

	// Remove deletes the named top-level fields via removal markers.
	Remove yaml.Node `yaml:"remove,omitempty"`

	// Reset restores the initial state when null, or applies a targeted
	// reset toward the given value.
	Reset yaml.Node `yaml:"reset,omitempty"`
}

// Expect holds post-run expectations. At least one must be set.
type Expect struct {
	// Final is the expected final state, compared structurally.
	Final yaml.Node `yaml:"final,omitempty"`

	// Transitions is the expected number of committed transitions.
	Transitions *int `yaml:"transitions,omitempty"`

	// Dirty is the expected divergence from the initial state.
	Dirty *bool `yaml:"dirty,omitempty"`

	// Subscribers is matched against the store's subscriber count at
	// the end of the run. The runner itself holds one whole-state
	// subscription plus one per watched field.
	Subscribers *int `yaml:"subscribers,omitempty"`

	// Patches is the ordered list of every patch the middleware
	// pipeline observed, including writes later gated out. Forced
	// writes and plain resets bypass the pipeline and do not appear.
	Patches []yaml.Node `yaml:"patches,omitempty"`
}

// Trace event operation names.
const (
	OpSet    = "set"
	OpForced = "forced"
	OpRemove = "remove"
	OpReset  = "reset"
	OpWatch  = "watch"
)

// ParseScenario parses and validates scenario YAML. Unknown fields are
// rejected so typos fail loudly.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenario reads and parses a scenario YAML file. A relative
// store.def path is resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Store.Def != "" && !filepath.IsAbs(scenario.Store.Def) {
		scenario.Store.Def = filepath.Join(filepath.Dir(path), scenario.Store.Def)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if err := validateStoreConfig(&s.Store); err != nil {
		return err
	}

	for i, field := range s.Watch {
		if field == "" {
			return fmt.Errorf("watch[%d]: field name must be non-empty", i)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i := range s.Steps {
		if _, err := s.Steps[i].op(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if err := validateStep(&s.Steps[i]); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	if !hasExpectations(&s.Expect) {
		return fmt.Errorf("expect must set at least one of final, transitions, dirty, subscribers, patches")
	}
	if s.Expect.Transitions != nil && *s.Expect.Transitions < 0 {
		return fmt.Errorf("expect.transitions must be non-negative")
	}
	if s.Expect.Subscribers != nil && *s.Expect.Subscribers < 0 {
		return fmt.Errorf("expect.subscribers must be non-negative")
	}

	return nil
}

func validateStoreConfig(cfg *StoreConfig) error {
	hasInitial := isSet(cfg.Initial) && !isNull(cfg.Initial)
	hasDef := cfg.Def != ""

	switch {
	case !hasInitial && !hasDef:
		return fmt.Errorf("store: initial or def is required")
	case hasInitial && hasDef:
		return fmt.Errorf("store: initial and def are mutually exclusive")
	}

	if hasDef {
		if _, err := os.Stat(cfg.Def); os.IsNotExist(err) {
			return fmt.Errorf("store: definition file not found: %s", cfg.Def)
		}
	}

	return nil
}

func validateStep(step *Step) error {
	if isSet(step.Set) && isNull(step.Set) {
		return fmt.Errorf("set value must not be null")
	}
	if isSet(step.Forced) && isNull(step.Forced) {
		return fmt.Errorf("forced value must not be null")
	}

	if isSet(step.Remove) {
		keys, err := decodeRemoveKeys(step.Remove)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return fmt.Errorf("remove list must be non-empty")
		}
		for i, k := range keys {
			if k == "" {
				return fmt.Errorf("remove[%d]: key must be non-empty", i)
			}
		}
	}

	return nil
}

// op names the single operation a step carries.
func (s *Step) op() (string, error) {
	var ops []string
	if isSet(s.Set) {
		ops = append(ops, OpSet)
	}
	if isSet(s.Forced) {
		ops = append(ops, OpForced)
	}
	if isSet(s.Remove) {
		ops = append(ops, OpRemove)
	}
	if isSet(s.Reset) {
		ops = append(ops, OpReset)
	}

	switch len(ops) {
	case 1:
		return ops[0], nil
	case 0:
		return "", fmt.Errorf("exactly one of set, forced, remove, reset is required")
	default:
		return "", fmt.Errorf("exactly one operation allowed, found %v", ops)
	}
}

func hasExpectations(e *Expect) bool {
	return isSet(e.Final) ||
		e.Transitions != nil ||
		e.Dirty != nil ||
		e.Subscribers != nil ||
		len(e.Patches) > 0
}

// isSet reports whether a YAML field was present, including an explicit
// null.
func isSet(n yaml.Node) bool {
	return n.Kind != 0
}

// isNull reports whether a YAML field was an explicit null.
func isNull(n yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

func decodeRemoveKeys(n yaml.Node) ([]string, error) {
	var keys []string
	if err := n.Decode(&keys); err != nil {
		return nil, fmt.Errorf("remove must be a list of field names: %w", err)
	}
	return keys, nil
}
