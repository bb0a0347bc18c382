package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/queryir"
)

func TestScopeOf(t *testing.T) {
	docs := queryir.TableRef{Name: "docs", Alias: "d", PrimaryKey: "id"}
	unnest := queryir.TableRef{Name: "unnest", Alias: "u", Virtual: true}

	t.Run("virtual tables are skipped", func(t *testing.T) {
		sel := &queryir.Select{
			From: []queryir.TableRef{unnest, docs},
			Joins: []queryir.Join{{
				Kind:  queryir.JoinInner,
				Table: queryir.TableRef{Name: "tags", Virtual: true},
				On:    queryir.AllOf(queryir.Eq(queryir.C("tags.doc"), queryir.C("d.id"))),
			}},
		}
		scope, err := ScopeOf(sel)
		require.NoError(t, err)
		assert.Equal(t, docs, scope.Root)
	})

	tests := []struct {
		name      string
		sel       *queryir.Select
		construct string
	}{
		{"no root", &queryir.Select{From: []queryir.TableRef{unnest}}, "SELECT without a collection"},
		{"joined root", &queryir.Select{
			From:  []queryir.TableRef{docs},
			Joins: []queryir.Join{{Kind: queryir.JoinInner, Table: queryir.TableRef{Name: "users"}, On: queryir.Eq(queryir.C("users.id"), queryir.C("d.owner"))}},
		}, "2 table roots"},
		{"cross join", &queryir.Select{
			From:  []queryir.TableRef{docs},
			Joins: []queryir.Join{{Kind: queryir.JoinCross, Table: queryir.TableRef{Name: "users"}}},
		}, "2 table roots"},
		{"theta join", &queryir.Select{
			From:  []queryir.TableRef{docs},
			Joins: []queryir.Join{{Kind: queryir.JoinInner, Table: unnest, On: queryir.Cmp(queryir.OpGt, queryir.C("u.x"), queryir.C("d.x"))}},
		}, "non-equi INNER JOIN"},
		{"derived table", &queryir.Select{From: []queryir.TableRef{{Name: "sub", Subquery: &queryir.Select{}}}}, "derived table"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ScopeOf(tt.sel)
			fe, ok := failure.As(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.construct, fe.Construct)
		})
	}
}

func TestScopeOwns(t *testing.T) {
	scope := Scope{Root: queryir.TableRef{Name: "docs", Alias: "d"}}

	assert.True(t, scope.Owns(queryir.C("title")))
	assert.True(t, scope.Owns(queryir.C("d.title")))
	assert.True(t, scope.Owns(queryir.C("docs.title")))
	assert.False(t, scope.Owns(queryir.C("u.title")))
}

func TestTargetScope(t *testing.T) {
	scope, err := TargetScope("DELETE", queryir.TableRef{Name: "docs"})
	require.NoError(t, err)
	assert.Equal(t, "docs", scope.Root.Name)

	_, err = TargetScope("UPDATE", queryir.TableRef{Name: "f", Virtual: true})
	assert.True(t, failure.IsUnsupported(err))
	assert.EqualError(t, err, "UNSUPPORTED: UPDATE into virtual table")
}
