package querygraph

import (
	"strings"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/filter"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/queryir"
	"github.com/roach88/sqlbridge/internal/request"
	"github.com/roach88/sqlbridge/internal/vsearch"
)

var cypherOps = map[queryir.CompareOp]string{
	queryir.OpEq: "=",
	queryir.OpNe: "<>",
	queryir.OpLt: "<",
	queryir.OpLe: "<=",
	queryir.OpGt: ">",
	queryir.OpGe: ">=",
}

// vectorFuncs maps distance kinds to FalkorDB vector functions.
var vectorFuncs = map[request.Distance]string{
	request.Euclidean: "vec.euclideanDistance",
	request.Cosine:    "vec.cosineDistance",
}

// writer renders one statement into template fragments.
type writer struct {
	scope filter.Scope
	b     request.TemplateBuilder
	vec   *vsearch.Extractor
}

func newWriter(scope filter.Scope) *writer {
	return &writer{scope: scope, vec: vsearch.New(scope)}
}

// match writes the MATCH pattern and WHERE clause. A single id becomes a
// property-map pattern; an id list becomes an IN test.
func (w *writer) match(where queryir.Expr) error {
	class, err := filter.Classify(where, w.scope, nil)
	if err != nil {
		return err
	}
	pk := w.scope.Root.PrimaryKey

	w.b.Text("MATCH (" + node + ":" + label(w.scope.Root.Name))
	inline := len(class.IDs) == 1 && !class.IDArray
	if inline {
		w.b.Text(" {" + property(pk) + ": ").Value(class.IDs[0]).Text("}")
	}
	w.b.Text(")")

	if class.False {
		w.b.Text(" WHERE false")
		return nil
	}

	var conds []func() error
	if len(class.IDs) > 0 && !inline {
		conds = append(conds, func() error {
			w.b.Text(node + "." + property(pk) + " IN ")
			if class.IDArray {
				w.b.Value(class.IDs[0])
				return nil
			}
			w.list(class.IDs)
			return nil
		})
	}
	if class.Residual != nil {
		conds = append(conds, func() error { return w.predicate(class.Residual) })
	}
	for i, cond := range conds {
		if i == 0 {
			w.b.Text(" WHERE ")
		} else {
			w.b.Text(" AND ")
		}
		if err := cond(); err != nil {
			return err
		}
	}
	return nil
}

// predicate writes a top-level residual; its conjunction needs no parens.
func (w *writer) predicate(e queryir.Expr) error {
	if a, ok := e.(*queryir.And); ok {
		return w.joined(a.Terms, " AND ")
	}
	return w.expr(e)
}

func (w *writer) list(values []ir.Value) {
	w.b.Text("[")
	for i, v := range values {
		if i > 0 {
			w.b.Text(", ")
		}
		w.b.Value(v)
	}
	w.b.Text("]")
}

// projection writes one RETURN item and returns its column name.
func (w *writer) projection(p queryir.Projection) (string, error) {
	name := p.Alias
	switch e := p.Expr.(type) {
	case *queryir.Column:
		if name == "" {
			name = e.Name
		}
		if err := w.column(e); err != nil {
			return "", err
		}
	case *queryir.Func:
		if e.Star && strings.EqualFold(e.Name, "count") {
			if name == "" {
				name = "count"
			}
			w.b.Text("count(" + node + ")")
			break
		}
		if name == "" {
			name = "distance"
		}
		ok, err := w.distance(e)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", failure.Unsupportedf("projection %s", queryir.Describe(e))
		}
	default:
		return "", failure.Unsupportedf("projection %s", queryir.Describe(p.Expr))
	}
	w.b.Text(" AS " + property(name))
	return name, nil
}

// orderKey writes a sort key. A bare name matching a projection alias sorts
// by that RETURN item.
func (w *writer) orderKey(e queryir.Expr, projection []queryir.Projection) error {
	if c, ok := e.(*queryir.Column); ok && c.Table == "" {
		for _, p := range projection {
			if p.Alias == c.Name {
				w.b.Text(property(c.Name))
				return nil
			}
		}
	}
	return w.expr(e)
}

func (w *writer) joined(terms []queryir.Expr, sep string) error {
	for i, t := range terms {
		if i > 0 {
			w.b.Text(sep)
		}
		if err := w.expr(t); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) expr(e queryir.Expr) error {
	switch n := e.(type) {
	case *queryir.Column:
		return w.column(n)
	case *queryir.Literal:
		w.b.Value(n.Value)
		return nil
	case *queryir.Param:
		w.b.Value(ir.Param(n.Position))
		return nil
	case *queryir.Comparison:
		return w.comparison(n)
	case *queryir.Between:
		if n.Negated {
			w.b.Text("NOT ")
		}
		w.b.Text("(")
		if err := w.binary(n.Expr, " >= ", n.Low); err != nil {
			return err
		}
		w.b.Text(" AND ")
		if err := w.binary(n.Expr, " <= ", n.High); err != nil {
			return err
		}
		w.b.Text(")")
		return nil
	case *queryir.InList:
		return w.inList(n)
	case *queryir.ArrayMember:
		v, ok := filter.ForeignValue(n.Array)
		if !ok {
			return failure.Unsupportedf("ANY over %s", queryir.Describe(n.Array))
		}
		if n.Negated {
			w.b.Text("NOT ")
		}
		if err := w.expr(n.Expr); err != nil {
			return err
		}
		w.b.Text(" IN ").Value(v)
		return nil
	case *queryir.Like:
		return w.like(n)
	case *queryir.IsNull:
		if err := w.expr(n.Expr); err != nil {
			return err
		}
		if n.Negated {
			w.b.Text(" IS NOT NULL")
		} else {
			w.b.Text(" IS NULL")
		}
		return nil
	case *queryir.And:
		w.b.Text("(")
		if err := w.joined(n.Terms, " AND "); err != nil {
			return err
		}
		w.b.Text(")")
		return nil
	case *queryir.Or:
		w.b.Text("(")
		if err := w.joined(n.Terms, " OR "); err != nil {
			return err
		}
		w.b.Text(")")
		return nil
	case *queryir.Not:
		w.b.Text("NOT (")
		if err := w.expr(n.Expr); err != nil {
			return err
		}
		w.b.Text(")")
		return nil
	case *queryir.Func:
		ok, err := w.distance(n)
		if err != nil {
			return err
		}
		if !ok {
			return failure.Unsupportedf("function %s", n.Name)
		}
		return nil
	case *queryir.Arithmetic:
		w.b.Text("(")
		if err := w.binary(n.Left, " "+n.Op.String()+" ", n.Right); err != nil {
			return err
		}
		w.b.Text(")")
		return nil
	case *queryir.Negate:
		w.b.Text("-(")
		if err := w.expr(n.Expr); err != nil {
			return err
		}
		w.b.Text(")")
		return nil
	case *queryir.Tuple:
		return failure.Unsupported("row value")
	case *queryir.Subquery:
		return failure.Unsupported("subquery")
	case *queryir.Exists:
		return failure.Unsupported("EXISTS")
	case *queryir.Case:
		return failure.Unsupported("CASE")
	default:
		return failure.Unsupportedf("expression %T", e)
	}
}

func (w *writer) binary(left queryir.Expr, op string, right queryir.Expr) error {
	if err := w.expr(left); err != nil {
		return err
	}
	w.b.Text(op)
	return w.expr(right)
}

func (w *writer) column(c *queryir.Column) error {
	if !w.scope.Owns(c) {
		return failure.Unsupportedf("column of joined table %s", c.Table)
	}
	w.b.Text(node + "." + property(c.Name))
	return nil
}

func (w *writer) comparison(n *queryir.Comparison) error {
	op, ok := cypherOps[n.Op]
	if !ok {
		return failure.Unsupported(n.Op.String())
	}
	return w.binary(n.Left, " "+op+" ", n.Right)
}

func (w *writer) inList(n *queryir.InList) error {
	values := make([]ir.Value, len(n.List))
	for i, item := range n.List {
		v, ok := filter.ForeignValue(item)
		if !ok {
			return failure.Unsupportedf("IN element %s", queryir.Describe(item))
		}
		values[i] = v
	}
	if n.Negated {
		w.b.Text("NOT ")
	}
	if err := w.expr(n.Expr); err != nil {
		return err
	}
	w.b.Text(" IN ")
	w.list(values)
	return nil
}

// like writes a LIKE test as a regular-expression match. The pattern is
// converted when the template is rendered.
func (w *writer) like(n *queryir.Like) error {
	if n.CaseInsensitive {
		return failure.Unsupported("case-insensitive LIKE")
	}
	if n.Escape != nil {
		return failure.Unsupported("LIKE ESCAPE")
	}
	pattern, ok := filter.ForeignValue(n.Pattern)
	if !ok {
		return failure.Unsupportedf("LIKE pattern %s", queryir.Describe(n.Pattern))
	}
	if n.Negated {
		w.b.Text("NOT ")
	}
	if err := w.expr(n.Expr); err != nil {
		return err
	}
	w.b.Text(" =~ ").Like(pattern)
	return nil
}

// distance writes a vector distance call. It reports false when fn is not
// a distance function.
func (w *writer) distance(fn *queryir.Func) (bool, error) {
	call, ok, err := w.vec.Recognize(fn)
	if !ok || err != nil {
		return ok, err
	}
	name, ok := vectorFuncs[call.Kind]
	if !ok {
		return true, failure.Unsupportedf("%s distance in graph", call.Kind)
	}
	w.b.Text(name + "(" + node + "." + property(call.Field) + ", ").Vector(call.Vector).Text(")")
	return true, nil
}

// property quotes a property or alias name unless it is a plain identifier.
func property(name string) string {
	if isIdent(name) {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func label(name string) string {
	return property(name)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
