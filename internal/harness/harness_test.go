package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlbridge/internal/compiler"
)

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	return s
}

func TestScenarios(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
		})
	}
}

func TestScenarios_Golden(t *testing.T) {
	for _, name := range []string{
		"search_ordered_by_distance",
		"graph_point_lookup",
		"graph_insert_generated",
	} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
		})
	}
}

func TestRun_FailedAssertions(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "wrong request kind",
			doc: `
name: n
description: d
backend: vector
statement:
  select:
    from: [docs]
    projection: [{expr: {column: id}}]
assertions:
  - {type: request_kind, kind: search}
`,
			wantErr: "Expected: search",
		},
		{
			name: "field mismatch",
			doc: `
name: n
description: d
backend: vector
statement:
  select:
    from: [docs]
    projection: [{expr: {column: id}}]
    limit: 5
assertions:
  - type: request_contains
    fields: {limit: 6, collection: docs}
`,
			wantErr: "limit: want 6, got 5",
		},
		{
			name: "missing field",
			doc: `
name: n
description: d
backend: vector
statement:
  select:
    from: [docs]
    projection: [{expr: {column: id}}]
assertions:
  - type: request_contains
    fields: {topK: 10}
`,
			wantErr: "topK: missing",
		},
		{
			name: "expected error but compiled",
			doc: `
name: n
description: d
backend: vector
statement:
  select:
    from: [docs]
    projection: [{expr: {column: id}}]
assertions:
  - {type: error, code: UNSUPPORTED}
`,
			wantErr: "compiled successfully",
		},
		{
			name: "compile error fails other assertions",
			doc: `
name: n
description: d
backend: vector
statement:
  select:
    distinct: true
    from: [docs]
    projection: [{expr: {column: id}}]
assertions:
  - {type: request_kind, kind: query}
`,
			wantErr: "successful compilation",
		},
		{
			name: "wrong construct",
			doc: `
name: n
description: d
backend: vector
statement:
  select:
    distinct: true
    from: [docs]
    projection: [{expr: {column: id}}]
assertions:
  - {type: error, code: UNSUPPORTED, construct: CTE}
`,
			wantErr: "Expected: UNSUPPORTED: CTE",
		},
		{
			name: "cypher without args",
			doc: `
name: n
description: d
backend: graph
statement:
  select:
    from: [docs]
    projection: [{expr: {column: id}}]
    where: {eq: [{column: id}, {param: 0}]}
assertions:
  - {type: cypher, text: "MATCH (n:docs {id: 1}) RETURN n.id AS id"}
`,
			wantErr: "render failed",
		},
		{
			name: "skeleton mismatch",
			doc: `
name: n
description: d
backend: graph
statement:
  select:
    from: [docs]
    projection: [{expr: {column: id}}]
assertions:
  - {type: skeleton, text: "MATCH (n:docs) RETURN n"}
`,
			wantErr: "Actual: MATCH (n:docs) RETURN n.id AS id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(mustParse(t, tt.doc))
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.wantErr)
		})
	}
}

func TestRun_SkeletonOnlyGraphScenario(t *testing.T) {
	s := mustParse(t, `
name: skeleton_only
description: parameters stay markers when no args are given
backend: graph
statement:
  select:
    from: [docs]
    projection: [{expr: {column: id}}]
    where: {eq: [{column: id}, {param: 0}]}
assertions:
  - {type: skeleton, text: "MATCH (n:docs {id: $1}) RETURN n.id AS id"}
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
	assert.NotEmpty(t, result.RenderError)
	assert.Empty(t, result.Cypher)
	assert.NotContains(t, result.Snapshot, "cypher")
}

func TestRun_ErrorSnapshot(t *testing.T) {
	s := mustParse(t, `
name: distinct
description: d
backend: vector
statement:
  select:
    distinct: true
    from: [docs]
    projection: [{expr: {column: id}}]
assertions:
  - {type: error, code: UNSUPPORTED, construct: DISTINCT}
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Equal(t, map[string]any{"code": "UNSUPPORTED", "construct": "DISTINCT"}, result.Snapshot["error"])
	assert.Nil(t, result.Request)
}

func TestRun_MalformedStatement(t *testing.T) {
	s := mustParse(t, `
name: bad
description: d
backend: vector
statement: {merge: {table: docs}}
assertions:
  - {type: request_kind, kind: query}
`)
	_, err := Run(s)
	require.Error(t, err)
}

func TestHarness_CompilerOptions(t *testing.T) {
	s := mustParse(t, `
name: unbounded_search
description: a search without LIMIT uses the configured top-K
backend: vector
statement:
  select:
    from: [docs]
    projection: [{expr: {column: id}}]
    order_by:
      - {expr: {func: cosine_distance, args: [{column: embedding}, {param: 0}]}}
assertions:
  - type: request_contains
    fields: {topK: 25}
`)
	result, err := New(compiler.Options{MaxTopK: 25}).Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)

	result, err = Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "topK: want 25, got 16384")
}
