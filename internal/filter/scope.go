package filter

import (
	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/queryir"
)

// Scope describes the sole table root predicates are evaluated against.
type Scope struct {
	Root queryir.TableRef
}

// Owns reports whether a column reference belongs to the root table.
func (s Scope) Owns(c *queryir.Column) bool {
	return c.Table == "" || c.Table == s.Root.Binding() || c.Table == s.Root.Name
}

// ScopeOf resolves the single non-virtual table of a SELECT. Virtual tables
// may join it only through equi-joins and contribute nothing to the request.
func ScopeOf(sel *queryir.Select) (Scope, error) {
	var roots []queryir.TableRef
	for _, t := range sel.From {
		if t.Subquery != nil {
			return Scope{}, failure.Unsupported("derived table")
		}
		if !t.Virtual {
			roots = append(roots, t)
		}
	}
	for _, j := range sel.Joins {
		if j.Table.Subquery != nil {
			return Scope{}, failure.Unsupported("derived table")
		}
		if j.On != nil && !isEquiJoin(j.On) {
			return Scope{}, failure.Unsupportedf("non-equi %s", j.Kind)
		}
		if !j.Table.Virtual {
			roots = append(roots, j.Table)
		}
	}
	switch len(roots) {
	case 0:
		return Scope{}, failure.Unsupported("SELECT without a collection")
	case 1:
		return Scope{Root: roots[0]}, nil
	default:
		return Scope{}, failure.Unsupportedf("%d table roots", len(roots))
	}
}

// TargetScope checks the table of a mutation. kind is the statement keyword.
func TargetScope(kind string, t queryir.TableRef) (Scope, error) {
	if t.Subquery != nil {
		return Scope{}, failure.Unsupportedf("%s into derived table", kind)
	}
	if t.Virtual {
		return Scope{}, failure.Unsupportedf("%s into virtual table", kind)
	}
	return Scope{Root: t}, nil
}

func isEquiJoin(on queryir.Expr) bool {
	switch n := on.(type) {
	case *queryir.Comparison:
		_, lc := n.Left.(*queryir.Column)
		_, rc := n.Right.(*queryir.Column)
		return n.Op == queryir.OpEq && lc && rc
	case *queryir.And:
		for _, t := range n.Terms {
			if !isEquiJoin(t) {
				return false
			}
		}
		return len(n.Terms) > 0
	default:
		return false
	}
}
