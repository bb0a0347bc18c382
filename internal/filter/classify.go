// Package filter classifies WHERE predicates and renders the generic
// remainder in the vector store's boolean expression syntax.
//
// Classification runs in three steps over the predicate tree:
//
//  1. Distance predicates (comparisons or BETWEENs over a distance function
//     call) are handed to a DistanceSink and replaced by a constant true.
//  2. The tree is simplified: true conjuncts and false disjuncts are
//     stripped, constant connectives collapse, and empty IN-lists resolve
//     statically.
//  3. A primary-key predicate among the top-level conjuncts becomes the id
//     list of a point lookup.
//
// What remains is the residual filter, rendered by a Renderer with named
// {pN} placeholders.
package filter

import (
	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/queryir"
)

// DistanceSink absorbs distance predicates as search bounds.
type DistanceSink interface {
	// Match reports whether e is a predicate over a distance expression.
	Match(e queryir.Expr) bool

	// Absorb records e as a search bound.
	Absorb(e queryir.Expr) error
}

// Classification is the outcome of Classify.
type Classification struct {
	// IDs holds the primary-key values of an id predicate, nil when none.
	IDs []ir.Value

	// IDExpr is the id predicate the ids came from.
	IDExpr queryir.Expr

	// IDArray is set when IDs holds one array-valued parameter
	// (pk = ANY(?)) whose elements are the ids.
	IDArray bool

	// Residual is the predicate left to render; nil when statically true.
	Residual queryir.Expr

	// False is set when the predicate is statically false.
	False bool
}

// Classify splits where into id predicate, distance predicates and residual
// filter. A nil sink leaves distance predicates in the residual.
func Classify(where queryir.Expr, scope Scope, sink DistanceSink) (Classification, error) {
	if where == nil {
		return Classification{}, nil
	}

	rewritten, err := absorbDistances(where, sink, "")
	if err != nil {
		return Classification{}, err
	}

	simplified := Simplify(rewritten)
	if v, ok := constBool(simplified); ok {
		return Classification{False: !v}, nil
	}

	conjuncts := flattenAnd(simplified)
	var out Classification
	rest := make([]queryir.Expr, 0, len(conjuncts))
	for _, c := range conjuncts {
		if out.IDs == nil {
			ids, ok, err := idValues(c, scope)
			if err != nil {
				return Classification{}, err
			}
			if ok {
				out.IDs = ids
				out.IDExpr = c
				_, member := c.(*queryir.ArrayMember)
				out.IDArray = member && ir.IsParam(ids[0])
				continue
			}
		}
		rest = append(rest, c)
	}

	switch len(rest) {
	case 0:
	case 1:
		out.Residual = rest[0]
	default:
		out.Residual = &queryir.And{Terms: rest}
	}
	return out, nil
}

// absorbDistances replaces every distance predicate with true. under names
// the enclosing connective that makes absorption unsound: under OR the
// stripped disjunct would widen the search to every row, and under NOT the
// bound would invert, so both are rejected rather than approximated.
func absorbDistances(e queryir.Expr, sink DistanceSink, under string) (queryir.Expr, error) {
	if sink == nil {
		return e, nil
	}
	if sink.Match(e) {
		if under != "" {
			return nil, failure.Unsupportedf("distance predicate under %s", under)
		}
		if err := sink.Absorb(e); err != nil {
			return nil, err
		}
		return trueLit(), nil
	}

	switch n := e.(type) {
	case *queryir.And:
		terms := make([]queryir.Expr, len(n.Terms))
		for i, t := range n.Terms {
			r, err := absorbDistances(t, sink, under)
			if err != nil {
				return nil, err
			}
			terms[i] = r
		}
		return &queryir.And{Terms: terms}, nil
	case *queryir.Or:
		terms := make([]queryir.Expr, len(n.Terms))
		for i, t := range n.Terms {
			r, err := absorbDistances(t, sink, "OR")
			if err != nil {
				return nil, err
			}
			terms[i] = r
		}
		return &queryir.Or{Terms: terms}, nil
	case *queryir.Not:
		inner, err := absorbDistances(n.Expr, sink, "NOT")
		if err != nil {
			return nil, err
		}
		return &queryir.Not{Expr: inner}, nil
	default:
		return e, nil
	}
}

// Simplify folds constant booleans and empty IN-lists. The input is not
// modified.
func Simplify(e queryir.Expr) queryir.Expr {
	switch n := e.(type) {
	case *queryir.And:
		terms := make([]queryir.Expr, 0, len(n.Terms))
		for _, t := range n.Terms {
			s := Simplify(t)
			if v, ok := constBool(s); ok {
				if !v {
					return falseLit()
				}
				continue
			}
			if inner, ok := s.(*queryir.And); ok {
				terms = append(terms, inner.Terms...)
				continue
			}
			terms = append(terms, s)
		}
		return collapse(terms, trueLit(), func(ts []queryir.Expr) queryir.Expr { return &queryir.And{Terms: ts} })
	case *queryir.Or:
		terms := make([]queryir.Expr, 0, len(n.Terms))
		for _, t := range n.Terms {
			s := Simplify(t)
			if v, ok := constBool(s); ok {
				if v {
					return trueLit()
				}
				continue
			}
			if inner, ok := s.(*queryir.Or); ok {
				terms = append(terms, inner.Terms...)
				continue
			}
			terms = append(terms, s)
		}
		return collapse(terms, falseLit(), func(ts []queryir.Expr) queryir.Expr { return &queryir.Or{Terms: ts} })
	case *queryir.Not:
		s := Simplify(n.Expr)
		if v, ok := constBool(s); ok {
			return boolLit(!v)
		}
		return &queryir.Not{Expr: s}
	case *queryir.InList:
		if len(n.List) == 0 {
			return boolLit(n.Negated)
		}
		return e
	default:
		return e
	}
}

func collapse(terms []queryir.Expr, empty queryir.Expr, join func([]queryir.Expr) queryir.Expr) queryir.Expr {
	switch len(terms) {
	case 0:
		return empty
	case 1:
		return terms[0]
	default:
		return join(terms)
	}
}

func flattenAnd(e queryir.Expr) []queryir.Expr {
	if a, ok := e.(*queryir.And); ok {
		var out []queryir.Expr
		for _, t := range a.Terms {
			out = append(out, flattenAnd(t)...)
		}
		return out
	}
	return []queryir.Expr{e}
}

// idValues recognizes pk = v, v = pk, pk IN (...) and pk = ANY(array).
func idValues(e queryir.Expr, scope Scope) ([]ir.Value, bool, error) {
	pk := scope.Root.PrimaryKey
	if pk == "" {
		return nil, false, nil
	}
	isPK := func(x queryir.Expr) bool {
		c, ok := x.(*queryir.Column)
		return ok && c.Name == pk && scope.Owns(c)
	}

	switch n := e.(type) {
	case *queryir.Comparison:
		if n.Op != queryir.OpEq && n.Op != queryir.OpNotDistinct {
			return nil, false, nil
		}
		var other queryir.Expr
		switch {
		case isPK(n.Left):
			other = n.Right
		case isPK(n.Right):
			other = n.Left
		default:
			return nil, false, nil
		}
		v, ok := ForeignValue(other)
		if !ok {
			return nil, false, nil
		}
		if err := checkID(v, e); err != nil {
			return nil, false, err
		}
		return []ir.Value{v}, true, nil
	case *queryir.InList:
		if n.Negated || !isPK(n.Expr) {
			return nil, false, nil
		}
		ids := make([]ir.Value, 0, len(n.List))
		for _, item := range n.List {
			v, ok := ForeignValue(item)
			if !ok {
				return nil, false, nil
			}
			if err := checkID(v, e); err != nil {
				return nil, false, err
			}
			ids = append(ids, v)
		}
		return ids, true, nil
	case *queryir.ArrayMember:
		if n.Negated || !isPK(n.Expr) {
			return nil, false, nil
		}
		v, ok := ForeignValue(n.Array)
		if !ok {
			return nil, false, nil
		}
		switch arr := v.(type) {
		case ir.ParamRef:
			return []ir.Value{arr}, true, nil
		case ir.Array:
			for _, id := range arr {
				if err := checkID(id, e); err != nil {
					return nil, false, err
				}
			}
			return []ir.Value(arr), true, nil
		default:
			return nil, false, failure.InvalidID(queryir.Describe(e))
		}
	default:
		return nil, false, nil
	}
}

// checkID rejects literal id values the backend cannot key on.
func checkID(v ir.Value, pred queryir.Expr) error {
	switch v.(type) {
	case ir.ParamRef, ir.Int, ir.String:
		return nil
	default:
		return failure.InvalidID(queryir.Describe(pred))
	}
}

// ForeignValue extracts the foreign value of a literal or parameter node.
func ForeignValue(e queryir.Expr) (ir.Value, bool) {
	switch n := e.(type) {
	case *queryir.Literal:
		return n.Value, true
	case *queryir.Param:
		return ir.Param(n.Position), true
	default:
		return nil, false
	}
}

func constBool(e queryir.Expr) (bool, bool) {
	l, ok := e.(*queryir.Literal)
	if !ok {
		return false, false
	}
	b, ok := l.Value.(ir.Bool)
	return bool(b), ok
}

func boolLit(v bool) *queryir.Literal { return &queryir.Literal{Value: ir.Bool(v)} }
func trueLit() *queryir.Literal       { return boolLit(true) }
func falseLit() *queryir.Literal      { return boolLit(false) }
