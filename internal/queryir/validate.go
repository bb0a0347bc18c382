package queryir

import (
	"fmt"
	"slices"
)

// ValidationResult contains the structural analysis of a statement.
//
// Validation is independent of any backend: a valid statement may still be
// rejected as Unsupported by a compiler. Validate only catches trees that no
// planner should ever produce (missing operands, empty table names, ragged
// INSERT rows, negative parameter positions).
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems lists every structural defect found, in traversal order.
	Problems []string

	// Params lists the distinct parameter positions referenced, ascending.
	Params []int
}

// Validate checks a statement tree for structural defects.
//
// Validate is a pure function with no side effects. It walks the whole tree
// and reports every problem rather than stopping at the first one, so the CLI
// can show a complete list.
func Validate(stmt Statement) ValidationResult {
	v := &validator{
		problems: []string{},
		params:   map[int]bool{},
	}
	v.validateStatement(stmt)

	params := make([]int, 0, len(v.params))
	for p := range v.params {
		params = append(params, p)
	}
	slices.Sort(params)

	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
		Params:   params,
	}
}

// Params returns the distinct parameter positions a statement references,
// ascending.
func Params(stmt Statement) []int {
	return Validate(stmt).Params
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
	params   map[int]bool
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateStatement(s Statement) {
	switch stmt := s.(type) {
	case nil:
		v.addProblem("nil statement")
	case *Select:
		v.validateSelect(stmt)
	case *Insert:
		v.validateTable("INSERT target", stmt.Table)
		if len(stmt.Columns) == 0 {
			v.addProblem("INSERT without columns")
		}
		if len(stmt.Rows) == 0 {
			v.addProblem("INSERT without rows")
		}
		seen := map[string]bool{}
		for _, c := range stmt.Columns {
			if seen[c] {
				v.addProblem("INSERT column %q listed twice", c)
			}
			seen[c] = true
		}
		for i, row := range stmt.Rows {
			if len(row) != len(stmt.Columns) {
				v.addProblem("INSERT row %d has %d values for %d columns", i, len(row), len(stmt.Columns))
			}
			for _, e := range row {
				v.validateExpr(e, "INSERT value")
			}
		}
	case *Update:
		v.validateTable("UPDATE target", stmt.Table)
		if len(stmt.Set) == 0 {
			v.addProblem("UPDATE without assignments")
		}
		for _, a := range stmt.Set {
			if a.Column == "" {
				v.addProblem("UPDATE assignment without column")
			}
			v.validateExpr(a.Value, "UPDATE assignment")
		}
		v.validateOptional(stmt.Where, "UPDATE WHERE")
	case *Delete:
		v.validateTable("DELETE target", stmt.Table)
		v.validateOptional(stmt.Where, "DELETE WHERE")
	default:
		v.addProblem("unknown statement type %T", s)
	}
}

func (v *validator) validateSelect(sel *Select) {
	if sel == nil {
		v.addProblem("nil SELECT")
		return
	}
	for _, cte := range sel.With {
		if cte.Name == "" {
			v.addProblem("CTE without name")
		}
		v.validateStatement(cte.Query)
	}
	if len(sel.From) == 0 {
		v.addProblem("SELECT without FROM")
	}
	for _, t := range sel.From {
		v.validateTable("FROM", t)
	}
	for _, j := range sel.Joins {
		v.validateTable("JOIN", j.Table)
		if j.Kind != JoinCross && j.On == nil {
			v.addProblem("%s %s without ON", j.Kind, j.Table.Name)
		}
		v.validateOptional(j.On, "JOIN ON")
	}
	if len(sel.Projection) == 0 {
		v.addProblem("SELECT without projection")
	}
	for _, p := range sel.Projection {
		v.validateExpr(p.Expr, "projection")
	}
	v.validateOptional(sel.Where, "WHERE")
	for _, g := range sel.GroupBy {
		v.validateExpr(g, "GROUP BY")
	}
	v.validateOptional(sel.Having, "HAVING")
	for _, o := range sel.OrderBy {
		v.validateExpr(o.Expr, "ORDER BY")
	}
	v.validateOptional(sel.Offset, "OFFSET")
	v.validateOptional(sel.Limit, "LIMIT")
	if r := sel.Ranking; r != nil {
		switch r.Kind {
		case RankRRF:
			if r.K <= 0 {
				v.addProblem("RRF ranking requires k > 0, got %d", r.K)
			}
		case RankWeighted:
			if len(r.Weights) == 0 {
				v.addProblem("weighted ranking without weights")
			}
		default:
			v.addProblem("unknown ranking kind %d", r.Kind)
		}
	}
}

func (v *validator) validateTable(where string, t TableRef) {
	if t.Subquery != nil {
		v.validateSelect(t.Subquery)
		return
	}
	if t.Name == "" {
		v.addProblem("%s table without name", where)
	}
}

func (v *validator) validateOptional(e Expr, where string) {
	if e != nil {
		v.validateExpr(e, where)
	}
}

// validateExpr recursively validates a required expression.
func (v *validator) validateExpr(e Expr, where string) {
	switch n := e.(type) {
	case nil:
		v.addProblem("%s: missing expression", where)
	case *Column:
		if n.Name == "" {
			v.addProblem("%s: column without name", where)
		}
	case *Literal:
		if n.Value == nil {
			v.addProblem("%s: literal without value", where)
		}
	case *Param:
		if n.Position < 0 {
			v.addProblem("%s: negative parameter position %d", where, n.Position)
			return
		}
		v.params[n.Position] = true
	case *Comparison:
		v.validateExpr(n.Left, where)
		v.validateExpr(n.Right, where)
	case *Between:
		v.validateExpr(n.Expr, where)
		v.validateExpr(n.Low, where)
		v.validateExpr(n.High, where)
	case *InList:
		v.validateExpr(n.Expr, where)
		arity := tupleArity(n.Expr)
		for _, item := range n.List {
			v.validateExpr(item, where)
			if a := tupleArity(item); a != arity {
				v.addProblem("%s: IN element arity %d does not match %d", where, a, arity)
			}
		}
	case *ArrayMember:
		v.validateExpr(n.Expr, where)
		v.validateExpr(n.Array, where)
	case *Like:
		v.validateExpr(n.Expr, where)
		v.validateExpr(n.Pattern, where)
		v.validateOptional(n.Escape, where)
	case *IsNull:
		v.validateExpr(n.Expr, where)
	case *And:
		for _, t := range n.Terms {
			v.validateExpr(t, where)
		}
	case *Or:
		for _, t := range n.Terms {
			v.validateExpr(t, where)
		}
	case *Not:
		v.validateExpr(n.Expr, where)
	case *Func:
		if n.Name == "" {
			v.addProblem("%s: function without name", where)
		}
		for _, a := range n.Args {
			v.validateExpr(a, where)
		}
	case *Arithmetic:
		v.validateExpr(n.Left, where)
		v.validateExpr(n.Right, where)
	case *Negate:
		v.validateExpr(n.Expr, where)
	case *Tuple:
		if len(n.Elems) == 0 {
			v.addProblem("%s: empty tuple", where)
		}
		for _, el := range n.Elems {
			v.validateExpr(el, where)
		}
	case *Subquery:
		v.validateSelect(n.Query)
	case *Exists:
		v.validateSelect(n.Query)
	case *Case:
		v.validateOptional(n.Operand, where)
		if len(n.When) == 0 {
			v.addProblem("%s: CASE without WHEN", where)
		}
		for _, w := range n.When {
			v.validateExpr(w.When, where)
			v.validateExpr(w.Then, where)
		}
		v.validateOptional(n.Else, where)
	default:
		v.addProblem("%s: unknown expression type %T", where, e)
	}
}

func tupleArity(e Expr) int {
	if t, ok := e.(*Tuple); ok {
		return len(t.Elems)
	}
	return 1
}
