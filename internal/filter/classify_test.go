package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/queryir"
)

// recordingSink absorbs comparisons over dist(...) calls.
type recordingSink struct {
	absorbed []queryir.Expr
}

func (s *recordingSink) Match(e queryir.Expr) bool {
	var subject queryir.Expr
	switch n := e.(type) {
	case *queryir.Comparison:
		subject = n.Left
	case *queryir.Between:
		subject = n.Expr
	default:
		return false
	}
	f, ok := subject.(*queryir.Func)
	return ok && f.Name == "dist"
}

func (s *recordingSink) Absorb(e queryir.Expr) error {
	s.absorbed = append(s.absorbed, e)
	return nil
}

var docs = Scope{Root: queryir.TableRef{Name: "docs", Alias: "d", PrimaryKey: "id"}}

func dist() queryir.Expr { return queryir.Call("dist", queryir.C("v"), queryir.P(9)) }

func TestClassifyIDPredicates(t *testing.T) {
	tests := []struct {
		name  string
		where queryir.Expr
		ids   []ir.Value
		array bool
	}{
		{"equality", queryir.Eq(queryir.C("id"), queryir.P(0)), []ir.Value{ir.Param(0)}, false},
		{"reversed equality", queryir.Eq(queryir.L(7), queryir.C("d.id")), []ir.Value{ir.Int(7)}, false},
		{"in list", &queryir.InList{Expr: queryir.C("id"), List: []queryir.Expr{queryir.P(0), queryir.P(1)}}, []ir.Value{ir.Param(0), ir.Param(1)}, false},
		{"any param", &queryir.ArrayMember{Expr: queryir.C("id"), Array: queryir.P(0)}, []ir.Value{ir.Param(0)}, true},
		{"any literal", &queryir.ArrayMember{Expr: queryir.C("id"), Array: queryir.L([]string{"a", "b"})}, []ir.Value{ir.String("a"), ir.String("b")}, false},
		{"nested conjunct", queryir.AllOf(queryir.AllOf(queryir.Eq(queryir.C("id"), queryir.P(0)))), []ir.Value{ir.Param(0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.where, docs, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.ids, got.IDs)
			assert.Equal(t, tt.array, got.IDArray)
			assert.Nil(t, got.Residual)
		})
	}
}

func TestClassifyKeepsNonIDPredicatesInResidual(t *testing.T) {
	tests := []struct {
		name  string
		where queryir.Expr
	}{
		{"under or", queryir.AnyOf(queryir.Eq(queryir.C("id"), queryir.P(0)), queryir.Eq(queryir.C("a"), queryir.P(1)))},
		{"not in", &queryir.InList{Expr: queryir.C("id"), List: []queryir.Expr{queryir.P(0)}, Negated: true}},
		{"other table", queryir.Eq(queryir.C("t.id"), queryir.P(0))},
		{"column value", queryir.Eq(queryir.C("id"), queryir.C("parent_id"))},
		{"range", queryir.Cmp(queryir.OpGt, queryir.C("id"), queryir.P(0))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.where, docs, nil)
			require.NoError(t, err)
			assert.Nil(t, got.IDs)
			assert.NotNil(t, got.Residual)
		})
	}
}

func TestClassifyOnlyFirstIDPredicateIsLookup(t *testing.T) {
	where := queryir.AllOf(queryir.Eq(queryir.C("id"), queryir.P(0)), &queryir.InList{Expr: queryir.C("id"), List: []queryir.Expr{queryir.P(1), queryir.P(2)}})

	got, err := Classify(where, docs, nil)

	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.Param(0)}, got.IDs)
	assert.Equal(t, &queryir.InList{Expr: queryir.C("id"), List: []queryir.Expr{queryir.P(1), queryir.P(2)}}, got.Residual)
}

func TestClassifyRejectsUnusableIDs(t *testing.T) {
	_, err := Classify(queryir.Eq(queryir.C("id"), queryir.L(1.5)), docs, nil)
	assert.True(t, failure.IsInvalidID(err))

	_, err = Classify(&queryir.ArrayMember{Expr: queryir.C("id"), Array: queryir.L("x")}, docs, nil)
	assert.True(t, failure.IsInvalidID(err))
}

func TestClassifyAbsorbsDistancePredicates(t *testing.T) {
	sink := &recordingSink{}
	bound := queryir.Cmp(queryir.OpLt, dist(), queryir.L(3))
	where := queryir.AllOf(queryir.Eq(queryir.C("status"), queryir.P(0)), bound)

	got, err := Classify(where, docs, sink)

	require.NoError(t, err)
	assert.Equal(t, []queryir.Expr{bound}, sink.absorbed)
	assert.Equal(t, queryir.Eq(queryir.C("status"), queryir.P(0)), got.Residual)
}

func TestClassifyStripsTrueInEitherOrder(t *testing.T) {
	for _, where := range []queryir.Expr{
		queryir.AllOf(queryir.Cmp(queryir.OpLt, dist(), queryir.L(3)), queryir.Eq(queryir.C("a"), queryir.P(0))),
		queryir.AllOf(queryir.Eq(queryir.C("a"), queryir.P(0)), queryir.Cmp(queryir.OpLt, dist(), queryir.L(3))),
		queryir.AllOf(queryir.AllOf(queryir.Cmp(queryir.OpLt, dist(), queryir.L(3)), queryir.Eq(queryir.C("a"), queryir.P(0)))),
	} {
		got, err := Classify(where, docs, &recordingSink{})
		require.NoError(t, err)
		assert.Equal(t, queryir.Eq(queryir.C("a"), queryir.P(0)), got.Residual)
	}
}

func TestClassifyDistanceOnlyLeavesNoFilter(t *testing.T) {
	got, err := Classify(&queryir.Between{Expr: dist(), Low: queryir.L(0), High: queryir.L(5)}, docs, &recordingSink{})

	require.NoError(t, err)
	assert.Nil(t, got.Residual)
	assert.False(t, got.False)
}

func TestClassifyRejectsDistanceUnderOrAndNot(t *testing.T) {
	sink := &recordingSink{}

	_, err := Classify(queryir.AnyOf(queryir.Eq(queryir.C("a"), queryir.P(0)), queryir.Cmp(queryir.OpLt, dist(), queryir.L(3))), docs, sink)
	require.Error(t, err)
	assert.True(t, failure.IsUnsupported(err))
	assert.Contains(t, err.Error(), "distance predicate under OR")

	_, err = Classify(&queryir.Not{Expr: queryir.Cmp(queryir.OpLt, dist(), queryir.L(3))}, docs, sink)
	assert.Contains(t, err.Error(), "distance predicate under NOT")
	assert.Empty(t, sink.absorbed)
}

func TestClassifyStaticPredicates(t *testing.T) {
	got, err := Classify(queryir.AllOf(queryir.Eq(queryir.C("a"), queryir.P(0)), &queryir.InList{Expr: queryir.C("b"), List: []queryir.Expr{}}), docs, nil)
	require.NoError(t, err)
	assert.True(t, got.False)

	got, err = Classify(&queryir.InList{Expr: queryir.C("b"), List: []queryir.Expr{}, Negated: true}, docs, nil)
	require.NoError(t, err)
	assert.False(t, got.False)
	assert.Nil(t, got.Residual)
}

func TestSimplify(t *testing.T) {
	tests := []struct {
		name string
		in   queryir.Expr
		want queryir.Expr
	}{
		{"and strips true", queryir.AllOf(queryir.L(true), queryir.C("a")), queryir.C("a")},
		{"and with false", queryir.AllOf(queryir.C("a"), queryir.L(false)), queryir.L(false)},
		{"or with true", queryir.AnyOf(queryir.C("a"), queryir.L(true)), queryir.L(true)},
		{"or strips false", queryir.AnyOf(queryir.L(false), queryir.C("a"), queryir.C("b")), queryir.AnyOf(queryir.C("a"), queryir.C("b"))},
		{"not true", &queryir.Not{Expr: queryir.AllOf(queryir.L(true))}, queryir.L(false)},
		{"flattens", queryir.AllOf(queryir.C("a"), queryir.AllOf(queryir.C("b"), queryir.C("c"))), queryir.AllOf(queryir.C("a"), queryir.C("b"), queryir.C("c"))},
		{"empty and", queryir.AllOf(), queryir.L(true)},
		{"nested or collapse", queryir.AllOf(queryir.C("a"), queryir.AnyOf(queryir.C("b"), &queryir.Not{Expr: queryir.L(false)})), queryir.C("a")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Simplify(tt.in))
		})
	}
}
