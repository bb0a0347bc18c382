// Package querygraph compiles relational statements into Cypher templates
// for a property-graph store.
//
// A table is a node label and a row is a node bound to the variable n:
//
//	SELECT a FROM T WHERE id = ?   →  MATCH (n:T {id: $1}) RETURN n.a AS a
//	INSERT INTO T (a) VALUES (?)   →  CREATE (n0:T {id: $new, a: $1})
//	UPDATE T SET a = ? WHERE ...   →  MATCH (n:T) WHERE ... SET n.a = $1 RETURN count(n) AS updated
//	DELETE FROM T WHERE ...        →  MATCH (n:T) WHERE ... DELETE n
//
// The graph protocol path has no out-of-band parameter channel, so values
// stay as fragments of a request.Template and are inlined as literals by
// Render right before execution.
package querygraph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/filter"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/queryir"
	"github.com/roach88/sqlbridge/internal/request"
)

// node is the variable every statement binds the row node to.
const node = "n"

// UpdatedColumn is the column an UPDATE template returns the matched-node
// count in.
const UpdatedColumn = "updated"

// Compile compiles one statement into a Cypher template.
//
// Structurally malformed statements fail with a plain error. Constructs the
// graph store cannot express fail with failure.Unsupported.
func Compile(stmt queryir.Statement) (*request.Template, error) {
	if v := queryir.Validate(stmt); !v.Valid {
		return nil, fmt.Errorf("invalid statement: %s", strings.Join(v.Problems, "; "))
	}

	var (
		tpl *request.Template
		err error
	)
	switch s := stmt.(type) {
	case *queryir.Select:
		tpl, err = compileSelect(s)
	case *queryir.Insert:
		tpl, err = compileInsert(s)
	case *queryir.Update:
		tpl, err = compileUpdate(s)
	case *queryir.Delete:
		tpl, err = compileDelete(s)
	default:
		return nil, failure.Unsupportedf("statement %T", stmt)
	}
	if err != nil {
		log.Debug().Str("statement", queryir.KindName(stmt)).Err(err).Msg("graph compile rejected")
		return nil, err
	}

	log.Debug().
		Str("statement", queryir.KindName(stmt)).
		Str("label", tpl.Label).
		Str("mutation", tpl.Mutation.String()).
		Msg("graph statement compiled")
	return tpl, nil
}

func checkSelect(sel *queryir.Select) error {
	switch {
	case len(sel.With) > 0:
		return failure.Unsupported("CTE")
	case sel.Distinct:
		return failure.Unsupported("DISTINCT")
	case len(sel.GroupBy) > 0:
		return failure.Unsupported("GROUP BY")
	case sel.Having != nil:
		return failure.Unsupported("HAVING")
	case sel.Lock.Blocking():
		return failure.Unsupportedf("lock mode %s", sel.Lock)
	case sel.Ranking != nil:
		return failure.Unsupported("hybrid ranking")
	}
	return nil
}

func compileSelect(sel *queryir.Select) (*request.Template, error) {
	if err := checkSelect(sel); err != nil {
		return nil, err
	}
	scope, err := filter.ScopeOf(sel)
	if err != nil {
		return nil, err
	}

	w := newWriter(scope)
	if err := w.match(sel.Where); err != nil {
		return nil, err
	}

	w.b.Text(" RETURN ")
	columns := make([]string, len(sel.Projection))
	for i, p := range sel.Projection {
		if i > 0 {
			w.b.Text(", ")
		}
		name, err := w.projection(p)
		if err != nil {
			return nil, err
		}
		columns[i] = name
	}

	if len(sel.OrderBy) > 0 {
		w.b.Text(" ORDER BY ")
		for i, spec := range sel.OrderBy {
			if i > 0 {
				w.b.Text(", ")
			}
			if err := w.orderKey(spec.Expr, sel.Projection); err != nil {
				return nil, err
			}
			w.b.Text(" " + spec.Direction.String())
		}
	}
	if err := w.paging(" SKIP ", sel.Offset); err != nil {
		return nil, err
	}
	if err := w.paging(" LIMIT ", sel.Limit); err != nil {
		return nil, err
	}

	return &request.Template{
		Label:     scope.Root.Name,
		Fragments: w.b.Fragments(),
		Columns:   columns,
		Mutation:  request.MutationNone,
	}, nil
}

func compileInsert(ins *queryir.Insert) (*request.Template, error) {
	scope, err := filter.TargetScope("INSERT", ins.Table)
	if err != nil {
		return nil, err
	}
	pk := scope.Root.PrimaryKey
	generate := pk != "" && !slices.Contains(ins.Columns, pk)

	w := newWriter(scope)
	w.b.Text("CREATE ")
	for i, row := range ins.Rows {
		if i > 0 {
			w.b.Text(", ")
		}
		w.b.Text(fmt.Sprintf("(%s%d:%s {", node, i, label(scope.Root.Name)))
		if generate {
			w.b.Text(property(pk) + ": ").GeneratedID(i)
			if len(row) > 0 {
				w.b.Text(", ")
			}
		}
		for j, e := range row {
			if j > 0 {
				w.b.Text(", ")
			}
			v, ok := filter.ForeignValue(e)
			if !ok {
				return nil, failure.Unsupportedf("INSERT value %s", queryir.Describe(e))
			}
			w.b.Text(property(ins.Columns[j]) + ": ").Value(v)
		}
		w.b.Text("})")
	}

	return &request.Template{
		Label:     scope.Root.Name,
		Fragments: w.b.Fragments(),
		Mutation:  request.MutationCreate,
	}, nil
}

func compileUpdate(upd *queryir.Update) (*request.Template, error) {
	scope, err := filter.TargetScope("UPDATE", upd.Table)
	if err != nil {
		return nil, err
	}
	for _, a := range upd.Set {
		if a.Column == scope.Root.PrimaryKey {
			return nil, failure.Unsupported("UPDATE of primary key")
		}
	}

	w := newWriter(scope)
	if err := w.match(upd.Where); err != nil {
		return nil, err
	}
	w.b.Text(" SET ")
	for i, a := range upd.Set {
		if i > 0 {
			w.b.Text(", ")
		}
		w.b.Text(node + "." + property(a.Column) + " = ")
		if err := w.expr(a.Value); err != nil {
			return nil, err
		}
	}
	// Property counters count properties, so matched nodes are counted here.
	w.b.Text(" RETURN count(" + node + ") AS " + UpdatedColumn)

	return &request.Template{
		Label:     scope.Root.Name,
		Fragments: w.b.Fragments(),
		Mutation:  request.MutationSet,
	}, nil
}

func compileDelete(del *queryir.Delete) (*request.Template, error) {
	scope, err := filter.TargetScope("DELETE", del.Table)
	if err != nil {
		return nil, err
	}
	if del.Where == nil {
		return nil, failure.Unsupported("unrestricted DELETE")
	}

	w := newWriter(scope)
	if err := w.match(del.Where); err != nil {
		return nil, err
	}
	w.b.Text(" DELETE " + node)

	return &request.Template{
		Label:     scope.Root.Name,
		Fragments: w.b.Fragments(),
		Mutation:  request.MutationDelete,
	}, nil
}

// paging writes a SKIP or LIMIT clause.
func (w *writer) paging(keyword string, e queryir.Expr) error {
	if e == nil {
		return nil
	}
	v, ok := filter.ForeignValue(e)
	if !ok {
		return failure.Unsupportedf("%s %s", strings.TrimSpace(keyword), queryir.Describe(e))
	}
	switch v.(type) {
	case ir.Int, ir.ParamRef:
	default:
		return failure.Unsupportedf("%s %s", strings.TrimSpace(keyword), queryir.Describe(e))
	}
	w.b.Text(keyword).Value(v)
	return nil
}
