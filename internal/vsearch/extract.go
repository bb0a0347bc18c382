// Package vsearch recognizes vector distance expressions in a statement and
// turns them into ANN search components.
//
// A component is one (field, query vector) pair. Every occurrence of the same
// pair, in the projection, a WHERE bound or the ORDER BY key, folds into the
// same component; pairs are compared by identity (parameter position or
// canonical literal text), never by runtime value. A second pair opens a
// second component, and the statement becomes a hybrid search.
package vsearch

import (
	"golang.org/x/text/cases"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/filter"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/queryir"
	"github.com/roach88/sqlbridge/internal/request"
)

var distanceFuncs = map[string]request.Distance{
	"cosine_distance":    request.Cosine,
	"cosine_similarity":  request.Cosine,
	"euclidean_distance": request.Euclidean,
	"l2_distance":        request.Euclidean,
	"inner_product":      request.InnerProduct,
	"ip_distance":        request.InnerProduct,
	"hamming_distance":   request.Hamming,
}

var fold = cases.Fold()

// Call is a recognized distance function call.
type Call struct {
	Kind   request.Distance
	Field  string
	Vector ir.Value
}

func (c Call) key() string {
	return c.Field + "|" + ir.IdentityKey(c.Vector)
}

// Component is one ANN search over a field and query vector.
type Component struct {
	Kind      request.Distance
	Field     string
	Vector    ir.Value
	Params    map[string]ir.Value
}

// Extractor accumulates search components during one compile call.
//
// Extractor implements filter.DistanceSink.
type Extractor struct {
	scope      filter.Scope
	components []*Component
	byKey      map[string]*Component
}

var _ filter.DistanceSink = (*Extractor)(nil)

// New creates an extractor for statements over scope's root table.
func New(scope filter.Scope) *Extractor {
	return &Extractor{scope: scope, byKey: map[string]*Component{}}
}

// Components returns the components in discovery order.
func (x *Extractor) Components() []*Component {
	return x.components
}

// Recognize reports whether e is a distance function call and extracts it.
// A distance function with unusable arguments is an error rather than a
// miss, so it cannot fall through into a scalar filter.
func (x *Extractor) Recognize(e queryir.Expr) (Call, bool, error) {
	fn, ok := e.(*queryir.Func)
	if !ok {
		return Call{}, false, nil
	}
	kind, ok := distanceFuncs[fold.String(fn.Name)]
	if !ok {
		return Call{}, false, nil
	}
	if fn.Star || len(fn.Args) != 2 {
		return Call{}, true, failure.Unsupportedf("%s with %d arguments", fn.Name, len(fn.Args))
	}

	col, vecExpr := fn.Args[0], fn.Args[1]
	if _, isCol := col.(*queryir.Column); !isCol {
		col, vecExpr = vecExpr, col
	}
	c, isCol := col.(*queryir.Column)
	if !isCol {
		return Call{}, true, failure.Unsupportedf("%s without a vector column", fn.Name)
	}
	if !x.scope.Owns(c) {
		return Call{}, true, failure.Unsupportedf("%s over joined table %s", fn.Name, c.Table)
	}
	vec, ok := filter.ForeignValue(vecExpr)
	if !ok {
		return Call{}, true, failure.Unsupportedf("%s query vector %s", fn.Name, queryir.Describe(vecExpr))
	}
	switch vec.(type) {
	case ir.ParamRef, ir.Vector:
	default:
		return Call{}, true, failure.Unsupportedf("%s query vector %s", fn.Name, queryir.Describe(vecExpr))
	}
	return Call{Kind: kind, Field: c.Name, Vector: vec}, true, nil
}

// Use returns the component for call, creating it on first sight.
func (x *Extractor) Use(call Call) (*Component, error) {
	if comp, ok := x.byKey[call.key()]; ok {
		if comp.Kind != call.Kind {
			return nil, failure.Unsupported("mixed distance metrics")
		}
		return comp, nil
	}
	comp := &Component{Kind: call.Kind, Field: call.Field, Vector: call.Vector}
	x.byKey[call.key()] = comp
	x.components = append(x.components, comp)
	return comp, nil
}

// Match reports whether e is a comparison or BETWEEN over a distance call.
func (x *Extractor) Match(e queryir.Expr) bool {
	switch n := e.(type) {
	case *queryir.Comparison:
		return x.isDistance(n.Left) || x.isDistance(n.Right)
	case *queryir.Between:
		return x.isDistance(n.Expr)
	default:
		return false
	}
}

func (x *Extractor) isDistance(e queryir.Expr) bool {
	_, ok, _ := x.Recognize(e)
	return ok
}

// Absorb records a distance predicate as radius/range_filter bounds.
//
//	=, IS NOT DISTINCT FROM  radius and range_filter
//	>, >=                    radius
//	<, <=                    range_filter
//	BETWEEN lo AND hi        radius=lo, range_filter=hi
func (x *Extractor) Absorb(e queryir.Expr) error {
	switch n := e.(type) {
	case *queryir.Comparison:
		op, dist, bound := n.Op, n.Left, n.Right
		if !x.isDistance(dist) {
			op, dist, bound = op.Flip(), n.Right, n.Left
		}
		comp, err := x.component(dist)
		if err != nil {
			return err
		}
		v, ok := filter.ForeignValue(bound)
		if !ok {
			return failure.Unsupportedf("distance bound %s", queryir.Describe(bound))
		}
		switch op {
		case queryir.OpEq, queryir.OpNotDistinct:
			if err := comp.setBound(request.ParamRadius, v); err != nil {
				return err
			}
			return comp.setBound(request.ParamRangeFilter, v)
		case queryir.OpGt, queryir.OpGe:
			return comp.setBound(request.ParamRadius, v)
		case queryir.OpLt, queryir.OpLe:
			return comp.setBound(request.ParamRangeFilter, v)
		default:
			return failure.Unsupportedf("%s on distance", op)
		}
	case *queryir.Between:
		if n.Negated {
			return failure.Unsupported("NOT BETWEEN on distance")
		}
		comp, err := x.component(n.Expr)
		if err != nil {
			return err
		}
		low, lok := filter.ForeignValue(n.Low)
		high, hok := filter.ForeignValue(n.High)
		if !lok || !hok {
			return failure.Unsupportedf("distance bound %s", queryir.Describe(n))
		}
		if err := comp.setBound(request.ParamRadius, low); err != nil {
			return err
		}
		return comp.setBound(request.ParamRangeFilter, high)
	default:
		return failure.Unsupportedf("distance predicate %T", e)
	}
}

func (x *Extractor) component(e queryir.Expr) (*Component, error) {
	call, ok, err := x.Recognize(e)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, failure.Unsupportedf("distance predicate %s", queryir.Describe(e))
	}
	return x.Use(call)
}

func (c *Component) setBound(key string, v ir.Value) error {
	if c.Params == nil {
		c.Params = map[string]ir.Value{}
	}
	if _, dup := c.Params[key]; dup {
		return failure.Unsupportedf("second %s bound on %s", key, c.Field)
	}
	c.Params[key] = v
	return nil
}

// OrderBy validates the sort keys. The only accepted ordering is a single
// distance expression in its metric's natural direction; a column naming a
// projected distance alias counts as that expression.
func (x *Extractor) OrderBy(specs []queryir.SortSpec, projection []queryir.Projection) error {
	if len(specs) == 0 {
		return nil
	}
	if len(specs) > 1 {
		return failure.Unsupported("ORDER BY with more than one key")
	}
	spec := specs[0]
	expr := resolveAlias(spec.Expr, projection)

	call, ok, err := x.Recognize(expr)
	if err != nil {
		return err
	}
	if !ok {
		return failure.Unsupportedf("ORDER BY %s", queryir.Describe(spec.Expr))
	}
	natural := queryir.Asc
	if call.Kind.Descending() {
		natural = queryir.Desc
	}
	if spec.Direction != natural {
		return failure.Unsupportedf("ORDER BY %s %s", call.Kind, spec.Direction)
	}
	_, err = x.Use(call)
	return err
}

func resolveAlias(e queryir.Expr, projection []queryir.Projection) queryir.Expr {
	col, ok := e.(*queryir.Column)
	if !ok || col.Table != "" {
		return e
	}
	for _, p := range projection {
		if p.Alias == col.Name {
			return p.Expr
		}
	}
	return e
}
