package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sqlbridge/internal/ir"
)

// GoldenDir holds one canonical snapshot per scenario, named after it.
const GoldenDir = "testdata/golden"

// RunWithGolden runs scenario with the default compiler options and checks
// its snapshot against GoldenDir. Regenerate with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden checks result's canonical snapshot against the golden file
// for name.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot, err := ir.MarshalCanonical(result.Snapshot)
	if err != nil {
		return err
	}
	goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	).Assert(t, name, snapshot)
	return nil
}
