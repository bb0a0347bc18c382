package harness

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// evaluateAssertions returns one message per failed assertion.
func evaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		if a.Type == AssertError {
			err = assertError(result, a)
		} else if result.Err != nil {
			err = &AssertionError{Type: a.Type, Expected: "successful compilation", Actual: result.Err.Error()}
		} else {
			switch a.Type {
			case AssertRequestKind:
				err = assertRequestKind(result, a)
			case AssertRequestContains:
				err = assertRequestContains(result, a)
			case AssertSkeleton:
				err = assertText(a.Type, a.Text, result.Skeleton)
			case AssertCypher:
				if result.RenderError != "" {
					err = &AssertionError{Type: a.Type, Expected: a.Text, Actual: "render failed: " + result.RenderError}
				} else {
					err = assertText(a.Type, a.Text, result.Cypher)
				}
			default:
				err = fmt.Errorf("unknown assertion type %q", a.Type)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertError(result *Result, a Assertion) error {
	want := a.Code
	if a.Construct != "" {
		want += ": " + a.Construct
	}
	if result.Err == nil {
		return &AssertionError{Type: a.Type, Expected: want, Actual: "compiled successfully"}
	}

	fe, ok := failure.As(result.Err)
	if !ok {
		return &AssertionError{Type: a.Type, Expected: want, Actual: result.Err.Error()}
	}
	if string(fe.Code) != a.Code || (a.Construct != "" && fe.Construct != a.Construct) {
		return &AssertionError{Type: a.Type, Expected: want, Actual: fe.Error()}
	}
	return nil
}

func assertRequestKind(result *Result, a Assertion) error {
	if got, _ := result.Request["kind"].(string); got != a.Kind {
		return &AssertionError{Type: a.Type, Expected: a.Kind, Actual: got}
	}
	return nil
}

// assertRequestContains checks that every expected field is present in the
// explained request with an equal canonical encoding.
func assertRequestContains(result *Result, a Assertion) error {
	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var mismatches []string
	for _, k := range keys {
		actual, ok := result.Request[k]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: missing", k))
			continue
		}
		equal, want, got, err := canonicalEqual(a.Fields[k], actual)
		if err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
		if !equal {
			mismatches = append(mismatches, fmt.Sprintf("%s: want %s, got %s", k, want, got))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     a.Type,
			Expected: "request fields " + strings.Join(keys, ", "),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

func canonicalEqual(expected, actual any) (bool, string, string, error) {
	want, err := ir.MarshalCanonical(expected)
	if err != nil {
		return false, "", "", fmt.Errorf("expected value: %w", err)
	}
	got, err := ir.MarshalCanonical(actual)
	if err != nil {
		return false, "", "", fmt.Errorf("actual value: %w", err)
	}
	return bytes.Equal(want, got), string(want), string(got), nil
}

func assertText(typ, want, got string) error {
	if strings.TrimSpace(want) != got {
		return &AssertionError{Type: typ, Expected: want, Actual: got}
	}
	return nil
}
