// Package harness runs compilation scenarios: YAML files that pair a
// statement with the request or Cypher text it must compile to.
//
// Scenarios never touch a live backend. Vector scenarios compare the
// explained request; graph scenarios compare the template skeleton and the
// text rendered with the scenario's arguments. Generated primary keys come
// from a sequence seeded with the scenario name, so runs are reproducible
// and their snapshots can be compared against golden files.
package harness

import (
	"github.com/rs/zerolog/log"

	"github.com/roach88/sqlbridge/internal/compiler"
	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/querygraph"
	"github.com/roach88/sqlbridge/internal/queryir"
	"github.com/roach88/sqlbridge/internal/request"
	"github.com/roach88/sqlbridge/internal/testutil"
)

// Harness runs scenarios with one compiler configuration.
type Harness struct {
	compiler *compiler.Compiler
}

// New creates a harness using opts for vector compilation.
func New(opts compiler.Options) *Harness {
	return &Harness{compiler: compiler.New(opts)}
}

// Run executes scenario with the default compiler options.
func Run(scenario *Scenario) (*Result, error) {
	return New(compiler.DefaultOptions()).Run(scenario)
}

// Run compiles the scenario's statement and evaluates its assertions.
// The returned error reports a malformed statement document; compile
// failures are outcomes and land in the result.
func (h *Harness) Run(scenario *Scenario) (*Result, error) {
	stmt, err := queryir.DecodeNode(&scenario.Statement)
	if err != nil {
		return nil, err
	}

	result := NewResult(scenario)
	switch scenario.Backend {
	case BackendVector:
		req, err := h.compiler.Compile(stmt)
		if err != nil {
			result.setError(err)
		} else {
			result.Request = request.Explain(req)
			result.Snapshot["request"] = result.Request
		}
	case BackendGraph:
		h.runGraph(scenario, stmt, result)
	}

	for _, msg := range evaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	log.Debug().
		Str("scenario", scenario.Name).
		Str("backend", scenario.Backend).
		Bool("pass", result.Pass).
		Msg("scenario finished")
	return result, nil
}

func (h *Harness) runGraph(scenario *Scenario, stmt queryir.Statement, result *Result) {
	tpl, err := querygraph.Compile(stmt)
	if err != nil {
		result.setError(err)
		return
	}
	result.Skeleton = tpl.Skeleton()
	result.Snapshot["skeleton"] = result.Skeleton
	result.Snapshot["mutation"] = tpl.Mutation.String()
	if len(tpl.Columns) > 0 {
		cols := make([]any, len(tpl.Columns))
		for i, c := range tpl.Columns {
			cols[i] = c
		}
		result.Snapshot["columns"] = cols
	}

	rendered, err := querygraph.Render(tpl, scenario.Args, testutil.NewSequenceGenerator(scenario.Name))
	if err != nil {
		// Scenarios without arguments only pin the skeleton.
		result.RenderError = err.Error()
		return
	}
	result.Cypher = rendered.Text
	result.Snapshot["cypher"] = rendered.Text
}

func (r *Result) setError(err error) {
	r.Err = err
	outcome := map[string]any{"message": err.Error()}
	if fe, ok := failure.As(err); ok {
		outcome = map[string]any{"code": string(fe.Code), "construct": fe.Construct}
	}
	r.Snapshot["error"] = outcome
}
