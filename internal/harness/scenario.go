package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in scenarios.
const (
	BackendVector = "vector"
	BackendGraph  = "graph"
)

// Scenario is one compilation conformance case: a statement, the backend
// it targets, optional runtime arguments and the assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend is "vector" or "graph".
	Backend string `yaml:"backend"`

	// Statement is the statement document in the queryir YAML form.
	Statement yaml.Node `yaml:"statement"`

	// Args are the runtime arguments, by parameter position. Graph
	// scenarios render the Cypher text with them.
	Args []any `yaml:"args,omitempty"`

	// Assertions validate the compiled output.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion checks one property of the compiled output.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind is the expected vector request kind (request_kind).
	Kind string `yaml:"kind,omitempty"`

	// Fields is a subset of the explained vector request (request_contains).
	// Values compare by canonical JSON, so 1 and 1.0 are equal.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Text is the expected skeleton or rendered Cypher (skeleton, cypher).
	Text string `yaml:"text,omitempty"`

	// Code and Construct describe an expected compile error (error).
	// An empty Construct matches any construct.
	Code      string `yaml:"code,omitempty"`
	Construct string `yaml:"construct,omitempty"`
}

// Assertion type constants.
const (
	AssertRequestKind     = "request_kind"
	AssertRequestContains = "request_contains"
	AssertSkeleton        = "skeleton"
	AssertCypher          = "cypher"
	AssertError           = "error"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so that typos do not silently skip checks.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
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

// LoadDir loads every *.yaml and *.yml scenario under dir, sorted by path.
func LoadDir(dir string) ([]*Scenario, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ext := filepath.Ext(path); !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	names := make(map[string]string, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if prev, dup := names[s.Name]; dup {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", path, s.Name, prev)
		}
		names[s.Name] = path
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Backend != BackendVector && s.Backend != BackendGraph {
		return fmt.Errorf("backend must be %q or %q, got %q", BackendVector, BackendGraph, s.Backend)
	}
	if s.Statement.Kind == 0 {
		return fmt.Errorf("statement is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, s.Backend, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, backend string, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRequestKind, AssertRequestContains:
		if backend != BackendVector {
			return fmt.Errorf("assertions[%d]: %s applies to the vector backend only", index, a.Type)
		}
		if a.Type == AssertRequestKind && a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for request_kind", index)
		}
		if a.Type == AssertRequestContains && len(a.Fields) == 0 {
			return fmt.Errorf("assertions[%d]: fields is required for request_contains", index)
		}
	case AssertSkeleton, AssertCypher:
		if backend != BackendGraph {
			return fmt.Errorf("assertions[%d]: %s applies to the graph backend only", index, a.Type)
		}
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
