package vsearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/filter"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/queryir"
	"github.com/roach88/sqlbridge/internal/request"
)

var docs = filter.Scope{Root: queryir.TableRef{Name: "docs", Alias: "d", PrimaryKey: "id"}}

func l2(field string, pos int) queryir.Expr {
	return queryir.Call("euclidean_distance", queryir.C(field), queryir.P(pos))
}

func cosine(field string, pos int) queryir.Expr {
	return queryir.Call("cosine_distance", queryir.C(field), queryir.P(pos))
}

func TestRecognize(t *testing.T) {
	x := New(docs)

	tests := []struct {
		name string
		expr queryir.Expr
		want Call
	}{
		{"param vector", l2("v", 0), Call{Kind: request.Euclidean, Field: "v", Vector: ir.Param(0)}},
		{"swapped arguments", queryir.Call("cosine_similarity", queryir.P(1), queryir.C("d.v")), Call{Kind: request.Cosine, Field: "v", Vector: ir.Param(1)}},
		{"literal vector", queryir.Call("IP_Distance", queryir.C("v"), queryir.L([]float32{1, 0})), Call{Kind: request.InnerProduct, Field: "v", Vector: ir.Vector{1, 0}}},
		{"hamming", queryir.Call("HAMMING_DISTANCE", queryir.C("bits"), queryir.P(0)), Call{Kind: request.Hamming, Field: "bits", Vector: ir.Param(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := x.Recognize(tt.expr)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok, err := x.Recognize(queryir.Call("upper", queryir.C("a")))
	assert.False(t, ok)
	assert.NoError(t, err)

	_, ok, err = x.Recognize(queryir.Call("l2_distance", queryir.C("v"), queryir.C("w")))
	assert.True(t, ok)
	assert.True(t, failure.IsUnsupported(err))

	_, _, err = x.Recognize(queryir.Call("l2_distance", queryir.C("t.v"), queryir.P(0)))
	assert.True(t, failure.IsUnsupported(err))

	_, _, err = x.Recognize(queryir.Call("l2_distance", queryir.C("v"), queryir.L("text")))
	assert.True(t, failure.IsUnsupported(err))
}

func TestAbsorbBounds(t *testing.T) {
	tests := []struct {
		name string
		pred queryir.Expr
		want map[string]ir.Value
	}{
		{"eq", queryir.Eq(l2("v", 0), queryir.L(2)), map[string]ir.Value{"radius": ir.Int(2), "range_filter": ir.Int(2)}},
		{"not distinct", queryir.Cmp(queryir.OpNotDistinct, l2("v", 0), queryir.P(1)), map[string]ir.Value{"radius": ir.Param(1), "range_filter": ir.Param(1)}},
		{"gt", queryir.Cmp(queryir.OpGt, l2("v", 0), queryir.L(1)), map[string]ir.Value{"radius": ir.Int(1)}},
		{"ge", queryir.Cmp(queryir.OpGe, l2("v", 0), queryir.L(1)), map[string]ir.Value{"radius": ir.Int(1)}},
		{"lt", queryir.Cmp(queryir.OpLt, l2("v", 0), queryir.L(3)), map[string]ir.Value{"range_filter": ir.Int(3)}},
		{"le", queryir.Cmp(queryir.OpLe, l2("v", 0), queryir.L(3)), map[string]ir.Value{"range_filter": ir.Int(3)}},
		{"flipped", queryir.Cmp(queryir.OpLt, queryir.L(3), l2("v", 0)), map[string]ir.Value{"radius": ir.Int(3)}},
		{"between", &queryir.Between{Expr: l2("v", 0), Low: queryir.L(0), High: queryir.L(5)}, map[string]ir.Value{"radius": ir.Int(0), "range_filter": ir.Int(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := New(docs)
			require.True(t, x.Match(tt.pred))
			require.NoError(t, x.Absorb(tt.pred))
			require.Len(t, x.Components(), 1)
			assert.Equal(t, tt.want, x.Components()[0].Params)
		})
	}
}

func TestAbsorbRejections(t *testing.T) {
	tests := []struct {
		name      string
		preds     []queryir.Expr
		construct string
	}{
		{"ne", []queryir.Expr{queryir.Cmp(queryir.OpNe, l2("v", 0), queryir.L(1))}, "<> on distance"},
		{"distinct", []queryir.Expr{queryir.Cmp(queryir.OpDistinct, l2("v", 0), queryir.L(1))}, "IS DISTINCT FROM on distance"},
		{"not between", []queryir.Expr{&queryir.Between{Expr: l2("v", 0), Low: queryir.L(0), High: queryir.L(1), Negated: true}}, "NOT BETWEEN on distance"},
		{"column bound", []queryir.Expr{queryir.Cmp(queryir.OpLt, l2("v", 0), queryir.C("limit"))}, "distance bound limit"},
		{"second bound", []queryir.Expr{
			queryir.Cmp(queryir.OpLt, l2("v", 0), queryir.L(3)),
			queryir.Cmp(queryir.OpLe, l2("v", 0), queryir.L(4)),
		}, "second range_filter bound on v"},
		{"mixed metrics", []queryir.Expr{
			queryir.Cmp(queryir.OpLt, l2("v", 0), queryir.L(3)),
			queryir.Cmp(queryir.OpGt, cosine("v", 0), queryir.L(0)),
		}, "mixed distance metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := New(docs)
			var err error
			for _, p := range tt.preds {
				if err = x.Absorb(p); err != nil {
					break
				}
			}
			require.Error(t, err)
			fe, ok := failure.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.construct, fe.Construct)
		})
	}
}

func TestSameParameterFoldsIntoOneComponent(t *testing.T) {
	x := New(docs)

	out, err := x.Project([]queryir.Projection{{Expr: queryir.C("id")}, {Expr: cosine("embedding", 0)}})
	require.NoError(t, err)
	require.NoError(t, x.OrderBy([]queryir.SortSpec{{Expr: cosine("embedding", 0), Direction: queryir.Desc}}, nil))

	require.Len(t, x.Components(), 1)
	assert.Equal(t, "embedding", x.Components()[0].Field)
	assert.Equal(t, []string{"id"}, out.Fields)
	assert.Equal(t, []request.Column{
		{Label: "id", Field: "id"},
		{Label: "distance", Field: request.DistanceField},
	}, out.Columns)
}

func TestDistinctPairsOpenComponents(t *testing.T) {
	x := New(docs)

	require.NoError(t, x.Absorb(queryir.Cmp(queryir.OpLt, l2("a", 0), queryir.L(1))))
	require.NoError(t, x.Absorb(queryir.Cmp(queryir.OpLt, l2("b", 1), queryir.L(1))))
	require.NoError(t, x.Absorb(queryir.Cmp(queryir.OpGt, l2("a", 0), queryir.L(0))))

	comps := x.Components()
	require.Len(t, comps, 2)
	assert.Equal(t, "a", comps[0].Field)
	assert.Equal(t, "b", comps[1].Field)
	assert.Len(t, comps[0].Params, 2)
}

func TestOrderBy(t *testing.T) {
	proj := []queryir.Projection{{Expr: l2("v", 0), Alias: "score"}}

	tests := []struct {
		name      string
		specs     []queryir.SortSpec
		construct string
	}{
		{"natural l2", []queryir.SortSpec{{Expr: l2("v", 0), Direction: queryir.Asc}}, ""},
		{"alias", []queryir.SortSpec{{Expr: queryir.C("score")}}, ""},
		{"wrong direction", []queryir.SortSpec{{Expr: l2("v", 0), Direction: queryir.Desc}}, "ORDER BY euclidean DESC"},
		{"cosine ascending", []queryir.SortSpec{{Expr: cosine("v", 0), Direction: queryir.Asc}}, "ORDER BY cosine ASC"},
		{"column", []queryir.SortSpec{{Expr: queryir.C("title")}}, "ORDER BY title"},
		{"two keys", []queryir.SortSpec{{Expr: l2("v", 0)}, {Expr: queryir.C("id")}}, "ORDER BY with more than one key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(docs).OrderBy(tt.specs, proj)
			if tt.construct == "" {
				assert.NoError(t, err)
				return
			}
			fe, ok := failure.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.construct, fe.Construct)
		})
	}
}

func TestProjectCountAndRejections(t *testing.T) {
	out, err := New(docs).Project([]queryir.Projection{{Expr: &queryir.Func{Name: "COUNT", Star: true}, Alias: "n"}})
	require.NoError(t, err)
	assert.True(t, out.Count)
	assert.Equal(t, []string{CountField}, out.Fields)
	assert.Equal(t, []request.Column{{Label: "n", Field: CountField}}, out.Columns)

	_, err = New(docs).Project([]queryir.Projection{{Expr: queryir.Call("upper", queryir.C("a"))}})
	assert.True(t, failure.IsUnsupported(err))

	_, err = New(docs).Project([]queryir.Projection{{Expr: queryir.C("t.a")}})
	assert.True(t, failure.IsUnsupported(err))
}

func TestRanker(t *testing.T) {
	_, err := Ranker(nil, 2)
	require.Error(t, err)
	assert.Equal(t, "UNSUPPORTED: hybrid search without ranking strategy", err.Error())

	r, err := Ranker(&queryir.Ranking{Kind: queryir.RankRRF, K: 60}, 2)
	require.NoError(t, err)
	assert.Equal(t, request.RRF{K: 60}, r)

	r, err = Ranker(&queryir.Ranking{Kind: queryir.RankWeighted, Weights: []float64{0.3, 0.7}}, 2)
	require.NoError(t, err)
	assert.Equal(t, request.Weighted{Weights: []float64{0.3, 0.7}}, r)

	_, err = Ranker(&queryir.Ranking{Kind: queryir.RankWeighted, Weights: []float64{1}}, 2)
	assert.True(t, failure.IsUnsupported(err))
}

func TestSearchOfCopiesParams(t *testing.T) {
	comp := &Component{Kind: request.Cosine, Field: "v", Vector: ir.Param(0), Params: map[string]ir.Value{"radius": ir.Int(1)}}

	s := SearchOf(comp, "docs", ir.Int(10))
	s.Params["radius"] = ir.Int(2)

	assert.Equal(t, ir.Int(1), comp.Params["radius"])
	assert.Equal(t, request.Cosine, s.Metric)
	assert.Equal(t, "v", s.AnnsField)
}
