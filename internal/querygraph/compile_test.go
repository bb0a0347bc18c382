package querygraph

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/queryir"
	"github.com/roach88/sqlbridge/internal/request"
)

var docs = queryir.TableRef{Name: "docs", PrimaryKey: "id"}

func col(name string) queryir.Projection { return queryir.Projection{Expr: queryir.C(name)} }

func selectDocs(where queryir.Expr, proj ...queryir.Projection) *queryir.Select {
	if len(proj) == 0 {
		proj = []queryir.Projection{col("id")}
	}
	return &queryir.Select{Projection: proj, From: []queryir.TableRef{docs}, Where: where}
}

func l2(field string, pos int) queryir.Expr {
	return queryir.Call("euclidean_distance", queryir.C(field), queryir.P(pos))
}

func TestCompile_Skeletons(t *testing.T) {
	tests := []struct {
		name     string
		stmt     queryir.Statement
		want     string
		mutation request.Mutation
	}{
		{
			name:     "point lookup",
			stmt:     selectDocs(queryir.Eq(queryir.C("id"), queryir.P(0)), col("id"), col("title")),
			want:     "MATCH (n:docs {id: $1}) RETURN n.id AS id, n.title AS title",
			mutation: request.MutationNone,
		},
		{
			name: "id list with filter and paging",
			stmt: func() queryir.Statement {
				s := selectDocs(queryir.AllOf(
					&queryir.InList{Expr: queryir.C("id"), List: []queryir.Expr{queryir.P(0), queryir.P(1)}},
					queryir.Eq(queryir.C("status"), queryir.L("open")),
				))
				s.OrderBy = []queryir.SortSpec{{Expr: queryir.C("created"), Direction: queryir.Desc}}
				s.Offset = queryir.L(5)
				s.Limit = queryir.P(2)
				return s
			}(),
			want: `MATCH (n:docs) WHERE n.id IN [$1, $2] AND n.status = "open" RETURN n.id AS id ORDER BY n.created DESC SKIP 5 LIMIT $3`,
		},
		{
			name: "array id parameter",
			stmt: selectDocs(&queryir.ArrayMember{Expr: queryir.C("id"), Array: queryir.P(0)}),
			want: "MATCH (n:docs) WHERE n.id IN $1 RETURN n.id AS id",
		},
		{
			name: "disjunction and null test",
			stmt: selectDocs(queryir.AnyOf(
				&queryir.IsNull{Expr: queryir.C("owner")},
				&queryir.Between{Expr: queryir.C("rank"), Low: queryir.L(1), High: queryir.L(3), Negated: true},
			)),
			want: "MATCH (n:docs) WHERE (n.owner IS NULL OR NOT (n.rank >= 1 AND n.rank <= 3)) RETURN n.id AS id",
		},
		{
			name: "like",
			stmt: selectDocs(&queryir.Like{Expr: queryir.C("title"), Pattern: queryir.P(0), Negated: true}),
			want: "MATCH (n:docs) WHERE NOT n.title =~ like($1) RETURN n.id AS id",
		},
		{
			name: "quoted names",
			stmt: selectDocs(nil, queryir.Projection{Expr: queryir.C("first name"), Alias: "first name"}),
			want: "MATCH (n:docs) RETURN n.`first name` AS `first name`",
		},
		{
			name: "count",
			stmt: selectDocs(queryir.Cmp(queryir.OpGt, queryir.C("n"), queryir.L(2)), queryir.Projection{Expr: &queryir.Func{Name: "COUNT", Star: true}}),
			want: "MATCH (n:docs) WHERE n.n > 2 RETURN count(n) AS count",
		},
		{
			name: "update",
			stmt: &queryir.Update{
				Table: docs,
				Set:   []queryir.Assignment{{Column: "title", Value: queryir.P(0)}, {Column: "views", Value: &queryir.Arithmetic{Op: queryir.OpAdd, Left: queryir.C("views"), Right: queryir.L(1)}}},
				Where: queryir.Eq(queryir.C("id"), queryir.P(1)),
			},
			want:     "MATCH (n:docs {id: $2}) SET n.title = $1, n.views = (n.views + 1) RETURN count(n) AS updated",
			mutation: request.MutationSet,
		},
		{
			name:     "delete",
			stmt:     &queryir.Delete{Table: docs, Where: queryir.Eq(queryir.C("status"), queryir.L("x"))},
			want:     `MATCH (n:docs) WHERE n.status = "x" DELETE n`,
			mutation: request.MutationDelete,
		},
		{
			name:     "statically false delete",
			stmt:     &queryir.Delete{Table: docs, Where: &queryir.InList{Expr: queryir.C("owner")}},
			want:     "MATCH (n:docs) WHERE false DELETE n",
			mutation: request.MutationDelete,
		},
		{
			name: "insert with own keys",
			stmt: &queryir.Insert{
				Table:   docs,
				Columns: []string{"id", "title"},
				Rows:    [][]queryir.Expr{{queryir.P(0), queryir.P(1)}},
			},
			want:     "CREATE (n0:docs {id: $1, title: $2})",
			mutation: request.MutationCreate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, err := Compile(tt.stmt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tpl.Skeleton())
			assert.Equal(t, "docs", tpl.Label)
			assert.Equal(t, tt.mutation, tpl.Mutation)
		})
	}
}

func TestCompile_Golden(t *testing.T) {
	distance := selectDocs(
		queryir.Cmp(queryir.OpLt, l2("embedding", 0), queryir.L(0.5)),
		col("id"),
		queryir.Projection{Expr: l2("embedding", 0), Alias: "score"},
	)
	distance.OrderBy = []queryir.SortSpec{{Expr: queryir.C("score")}}
	distance.Limit = queryir.L(3)

	insert := &queryir.Insert{
		Table:   docs,
		Columns: []string{"title", "embedding"},
		Rows: [][]queryir.Expr{
			{queryir.P(0), queryir.P(1)},
			{queryir.L("b"), queryir.P(2)},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for name, stmt := range map[string]queryir.Statement{
		"graph_distance_search": distance,
		"graph_insert_generated": insert,
	} {
		t.Run(name, func(t *testing.T) {
			tpl, err := Compile(stmt)
			require.NoError(t, err)
			g.Assert(t, name, []byte(tpl.Skeleton()))
		})
	}
}

func TestCompile_Columns(t *testing.T) {
	stmt := selectDocs(nil, col("id"), queryir.Projection{Expr: l2("v", 0)}, queryir.Projection{Expr: queryir.C("title"), Alias: "t"})
	tpl, err := Compile(stmt)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "distance", "t"}, tpl.Columns)
	assert.Equal(t, []int{0}, tpl.Params())
}

func TestCompile_Unsupported(t *testing.T) {
	withSelect := func(mut func(*queryir.Select)) *queryir.Select {
		s := selectDocs(nil)
		mut(s)
		return s
	}

	tests := []struct {
		name      string
		stmt      queryir.Statement
		construct string
	}{
		{"group by", withSelect(func(s *queryir.Select) { s.GroupBy = []queryir.Expr{queryir.C("a")} }), "GROUP BY"},
		{"distinct", withSelect(func(s *queryir.Select) { s.Distinct = true }), "DISTINCT"},
		{"lock", withSelect(func(s *queryir.Select) { s.Lock = queryir.LockPessimisticRead }), "lock mode PESSIMISTIC_READ"},
		{"two roots", withSelect(func(s *queryir.Select) { s.From = append(s.From, queryir.TableRef{Name: "users"}) }), "2 table roots"},
		{"ilike", selectDocs(&queryir.Like{Expr: queryir.C("a"), Pattern: queryir.L("x"), CaseInsensitive: true}), "case-insensitive LIKE"},
		{"hamming", selectDocs(nil, queryir.Projection{Expr: queryir.Call("hamming_distance", queryir.C("bits"), queryir.P(0))}), "hamming distance in graph"},
		{"scalar function", selectDocs(queryir.Eq(queryir.Call("lower", queryir.C("a")), queryir.L("x"))), "function lower"},
		{"distinct from", selectDocs(queryir.Cmp(queryir.OpDistinct, queryir.C("a"), queryir.L(1))), "IS DISTINCT FROM"},
		{"exists", selectDocs(&queryir.Exists{Query: selectDocs(nil)}), "EXISTS"},
		{"unrestricted delete", &queryir.Delete{Table: docs}, "unrestricted DELETE"},
		{"update of key", &queryir.Update{Table: docs, Set: []queryir.Assignment{{Column: "id", Value: queryir.L(1)}}}, "UPDATE of primary key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.stmt)
			fe, ok := failure.As(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, failure.CodeUnsupported, fe.Code)
			assert.Equal(t, tt.construct, fe.Construct)
		})
	}
}
