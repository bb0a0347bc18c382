package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: lookup
description: id equality reads by primary key
backend: vector
statement:
  select:
    from: [docs]
    projection: [{expr: {column: id}}]
    where: {eq: [{column: id}, {param: 0}]}
assertions:
  - {type: request_kind, kind: query}
`

const failingScenario = `name: wrong_kind
description: expects a search where a query is produced
backend: vector
statement:
  select:
    from: [docs]
    projection: [{expr: {column: id}}]
assertions:
  - {type: request_kind, kind: search}
`

const graphScenario = `name: graph_lookup
description: renders an id lookup
backend: graph
statement:
  select:
    from: [docs]
    projection: [{expr: {column: id}}]
    where: {eq: [{column: id}, {param: 0}]}
args: [5]
assertions:
  - {type: cypher, text: "MATCH (n:docs {id: 5}) RETURN n.id AS id"}
`

func TestTestCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommand_EmptyDir(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_AllPass(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lookup.yaml", passingScenario)
	writeFile(t, dir, "nested/graph_lookup.yml", graphScenario)
	writeFile(t, dir, "README.md", "not a scenario")

	out, err := execute(t, "test", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ lookup")
	assert.Contains(t, out, "✓ graph_lookup")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTestCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lookup.yaml", passingScenario)
	writeFile(t, dir, "wrong_kind.yaml", failingScenario)
	writeFile(t, dir, "broken.yaml", "name: broken\n")

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_kind")
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "Test Summary: 1 passed, 2 failed, 3 total")
}

func TestTestCommand_Filter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lookup.yaml", passingScenario)
	writeFile(t, dir, "wrong_kind.yaml", failingScenario)

	out, err := execute(t, "test", dir, "--filter", "look*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	_, err = execute(t, "test", dir, "--filter", "[")
	require.Error(t, err)
}

func TestTestCommand_Golden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "graph_lookup.yaml", graphScenario)
	goldenPath := filepath.Join(dir, "golden", "graph_lookup.golden")

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ graph_lookup (golden updated)")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Equal(t,
		`{"backend":"graph","columns":["id"],"cypher":"MATCH (n:docs {id: 5}) RETURN n.id AS id","mutation":"read","scenario":"graph_lookup","skeleton":"MATCH (n:docs {id: $1}) RETURN n.id AS id"}`,
		string(golden))

	out, err = execute(t, "test", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ graph_lookup")

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"stale":true}`), 0644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "snapshot does not match golden file")
}

func TestTestCommand_RepositoryScenarios(t *testing.T) {
	dir := filepath.Join("..", "harness", "testdata", "scenarios")
	golden := filepath.Join("..", "harness", "testdata", "golden")

	out, err := execute(t, "test", dir, "--golden", golden)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lookup.yaml", passingScenario)
	writeFile(t, dir, "wrong_kind.yaml", failingScenario)

	out, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "lookup", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
	assert.NotEmpty(t, resp.Data.Scenarios[1].Errors)
}
