package filter

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/queryir"
)

// Options tunes IN-list rendering.
type Options struct {
	// PadInLists pads IN-list arrays to the next power of two by repeating
	// the last element, which bounds the number of distinct filter shapes.
	PadInLists bool

	// MaxInList splits longer IN-lists into OR-ed chunks. Zero disables
	// chunking.
	MaxInList int
}

// Placeholders allocates {pN} names for filter values.
//
// Names are 1-based and allocated in first-use order. A parameter position
// that is bound twice reuses its first name.
type Placeholders struct {
	byParam map[int]string
	values  map[string]ir.Value
	next    int
}

// NewPlaceholders creates an empty allocator.
func NewPlaceholders() *Placeholders {
	return &Placeholders{byParam: map[int]string{}, values: map[string]ir.Value{}}
}

// Bind allocates or reuses a placeholder for v and returns its {name} text.
func (p *Placeholders) Bind(v ir.Value) string {
	if ref, ok := v.(ir.ParamRef); ok {
		if name, seen := p.byParam[ref.Position]; seen {
			return "{" + name + "}"
		}
		name := p.allocate(v)
		p.byParam[ref.Position] = name
		return "{" + name + "}"
	}
	return "{" + p.allocate(v) + "}"
}

func (p *Placeholders) allocate(v ir.Value) string {
	p.next++
	name := "p" + strconv.Itoa(p.next)
	p.values[name] = v
	return name
}

// Values returns a copy of the template map, nil when nothing was bound.
func (p *Placeholders) Values() map[string]ir.Value {
	if len(p.values) == 0 {
		return nil
	}
	out := make(map[string]ir.Value, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// allowedFuncs lists the backend filter functions passed through by name.
var allowedFuncs = map[string]bool{
	"array_contains":     true,
	"array_contains_all": true,
	"array_contains_any": true,
	"array_length":       true,
	"json_contains":      true,
	"json_contains_all":  true,
	"json_contains_any":  true,
}

var filterOps = map[queryir.CompareOp]string{
	queryir.OpEq: "==",
	queryir.OpNe: "!=",
	queryir.OpLt: "<",
	queryir.OpLe: "<=",
	queryir.OpGt: ">",
	queryir.OpGe: ">=",
}

// Renderer renders predicates in the vector store's boolean expression
// syntax.
type Renderer struct {
	scope Scope
	opts  Options
	ph    *Placeholders
}

// NewRenderer creates a renderer binding values into ph.
func NewRenderer(scope Scope, opts Options, ph *Placeholders) *Renderer {
	return &Renderer{scope: scope, opts: opts, ph: ph}
}

// Render renders a classified residual. Top-level conjunctions are not
// parenthesized.
func (r *Renderer) Render(e queryir.Expr) (string, error) {
	if e == nil {
		return "", nil
	}
	if v, ok := constBool(e); ok {
		if v {
			return "", nil
		}
		return "false", nil
	}
	if a, ok := e.(*queryir.And); ok {
		return r.joined(a.Terms, " and ")
	}
	return r.expr(e)
}

// IDFilter renders an id list as a primary-key filter. Search calls take no
// id list, so ids fold into the filter instead. array marks a single
// array-valued id, as produced by pk = ANY(?).
func (r *Renderer) IDFilter(ids []ir.Value, array bool) string {
	pk := r.scope.Root.PrimaryKey
	switch {
	case array:
		return pk + " in " + r.ph.Bind(ids[0])
	case len(ids) == 1:
		return pk + " == " + r.ph.Bind(ids[0])
	default:
		return pk + " in " + r.ph.Bind(ir.Array(ids))
	}
}

// And joins rendered filters with "and", skipping empty ones. Rendered
// disjunctions are always parenthesized, so no regrouping is needed.
func And(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " and ")
}

func (r *Renderer) joined(terms []queryir.Expr, sep string) (string, error) {
	parts := make([]string, len(terms))
	for i, t := range terms {
		s, err := r.expr(t)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, sep), nil
}

func (r *Renderer) expr(e queryir.Expr) (string, error) {
	switch n := e.(type) {
	case *queryir.Column:
		return r.column(n)
	case *queryir.Literal:
		if _, isNull := n.Value.(ir.Null); isNull {
			return "", failure.Unsupported("NULL literal in filter")
		}
		return r.ph.Bind(n.Value), nil
	case *queryir.Param:
		return r.ph.Bind(ir.Param(n.Position)), nil
	case *queryir.Comparison:
		return r.comparison(n)
	case *queryir.Between:
		return r.between(n)
	case *queryir.InList:
		return r.inList(n)
	case *queryir.ArrayMember:
		subject, err := r.expr(n.Expr)
		if err != nil {
			return "", err
		}
		v, ok := ForeignValue(n.Array)
		if !ok {
			return "", failure.Unsupportedf("ANY over %s", queryir.Describe(n.Array))
		}
		op := " in "
		if n.Negated {
			op = " not in "
		}
		return subject + op + r.ph.Bind(v), nil
	case *queryir.Like:
		return r.like(n)
	case *queryir.IsNull:
		subject, err := r.expr(n.Expr)
		if err != nil {
			return "", err
		}
		if n.Negated {
			return subject + " is not null", nil
		}
		return subject + " is null", nil
	case *queryir.And:
		s, err := r.joined(n.Terms, " and ")
		if err != nil {
			return "", err
		}
		return "(" + s + ")", nil
	case *queryir.Or:
		s, err := r.joined(n.Terms, " or ")
		if err != nil {
			return "", err
		}
		return "(" + s + ")", nil
	case *queryir.Not:
		inner, err := r.expr(n.Expr)
		if err != nil {
			return "", err
		}
		return "not (" + inner + ")", nil
	case *queryir.Func:
		return r.function(n)
	case *queryir.Arithmetic:
		left, err := r.expr(n.Left)
		if err != nil {
			return "", err
		}
		right, err := r.expr(n.Right)
		if err != nil {
			return "", err
		}
		return "(" + left + " " + n.Op.String() + " " + right + ")", nil
	case *queryir.Negate:
		inner, err := r.expr(n.Expr)
		if err != nil {
			return "", err
		}
		return "-(" + inner + ")", nil
	case *queryir.Tuple:
		return "", failure.Unsupported("row value outside comparison")
	case *queryir.Subquery:
		return "", failure.Unsupported("subquery")
	case *queryir.Exists:
		return "", failure.Unsupported("EXISTS")
	case *queryir.Case:
		return "", failure.Unsupported("CASE")
	default:
		return "", failure.Unsupportedf("expression %T", e)
	}
}

func (r *Renderer) column(c *queryir.Column) (string, error) {
	if !r.scope.Owns(c) {
		return "", failure.Unsupportedf("column of joined table %s", c.Table)
	}
	return c.Name, nil
}

func (r *Renderer) comparison(n *queryir.Comparison) (string, error) {
	lt, lTuple := n.Left.(*queryir.Tuple)
	rt, rTuple := n.Right.(*queryir.Tuple)
	if lTuple || rTuple {
		if !lTuple || !rTuple || len(lt.Elems) != len(rt.Elems) {
			return "", failure.Unsupportedf("row value comparison %s", queryir.Describe(n))
		}
		return r.tupleEquality(n.Op, lt.Elems, rt.Elems)
	}

	op, ok := filterOps[n.Op]
	if !ok {
		return "", failure.Unsupported(n.Op.String())
	}
	left, err := r.expr(n.Left)
	if err != nil {
		return "", err
	}
	right, err := r.expr(n.Right)
	if err != nil {
		return "", err
	}
	return left + " " + op + " " + right, nil
}

// tupleEquality emulates (a, b) = (x, y) as a == x and b == y, and the <>
// form as its disjunctive negation.
func (r *Renderer) tupleEquality(op queryir.CompareOp, left, right []queryir.Expr) (string, error) {
	var elemOp queryir.CompareOp
	var sep string
	switch op {
	case queryir.OpEq:
		elemOp, sep = queryir.OpEq, " and "
	case queryir.OpNe:
		elemOp, sep = queryir.OpNe, " or "
	default:
		return "", failure.Unsupportedf("row value comparison %s", op)
	}
	parts := make([]string, len(left))
	for i := range left {
		s, err := r.comparison(&queryir.Comparison{Op: elemOp, Left: left[i], Right: right[i]})
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (r *Renderer) between(n *queryir.Between) (string, error) {
	subject, err := r.expr(n.Expr)
	if err != nil {
		return "", err
	}
	low, err := r.expr(n.Low)
	if err != nil {
		return "", err
	}
	high, err := r.expr(n.High)
	if err != nil {
		return "", err
	}
	if n.Negated {
		return "(" + subject + " < " + low + " or " + subject + " > " + high + ")", nil
	}
	return "(" + subject + " >= " + low + " and " + subject + " <= " + high + ")", nil
}

func (r *Renderer) inList(n *queryir.InList) (string, error) {
	if len(n.List) == 0 {
		if n.Negated {
			return "", nil
		}
		return "false", nil
	}
	if t, ok := n.Expr.(*queryir.Tuple); ok {
		return r.tupleIn(t, n)
	}

	subject, err := r.expr(n.Expr)
	if err != nil {
		return "", err
	}
	values := make(ir.Array, 0, len(n.List))
	for _, item := range n.List {
		v, ok := ForeignValue(item)
		if !ok {
			return "", failure.Unsupportedf("IN element %s", queryir.Describe(item))
		}
		values = append(values, v)
	}

	op, join := " in ", " or "
	if n.Negated {
		op, join = " not in ", " and "
	}
	chunks := r.chunk(values)
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = subject + op + r.ph.Bind(c)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, join) + ")", nil
}

// tupleIn emulates (a, b) IN ((x, y), ...) as a disjunction of element-wise
// equalities.
func (r *Renderer) tupleIn(subject *queryir.Tuple, n *queryir.InList) (string, error) {
	parts := make([]string, len(n.List))
	for i, item := range n.List {
		row, ok := item.(*queryir.Tuple)
		if !ok || len(row.Elems) != len(subject.Elems) {
			return "", failure.Unsupportedf("IN element %s", queryir.Describe(item))
		}
		s, err := r.tupleEquality(queryir.OpEq, subject.Elems, row.Elems)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	joined := "(" + strings.Join(parts, " or ") + ")"
	if n.Negated {
		return "not " + joined, nil
	}
	return joined, nil
}

// chunk pads and splits an IN-list per Options.
func (r *Renderer) chunk(values ir.Array) []ir.Array {
	if r.opts.PadInLists && len(values) > 1 {
		target := 1 << bits.Len(uint(len(values)-1))
		if r.opts.MaxInList > 0 && target > r.opts.MaxInList {
			target = len(values)
		}
		last := values[len(values)-1]
		for len(values) < target {
			values = append(values, last)
		}
	}
	size := r.opts.MaxInList
	if size <= 0 || len(values) <= size {
		return []ir.Array{values}
	}
	var out []ir.Array
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		out = append(out, values[start:end])
	}
	return out
}

func (r *Renderer) like(n *queryir.Like) (string, error) {
	if n.CaseInsensitive {
		return "", failure.Unsupported("case-insensitive LIKE")
	}
	if n.Escape != nil {
		return "", failure.Unsupported("LIKE ESCAPE")
	}
	subject, err := r.expr(n.Expr)
	if err != nil {
		return "", err
	}
	pattern, err := r.expr(n.Pattern)
	if err != nil {
		return "", err
	}
	s := subject + " like " + pattern
	if n.Negated {
		return "not (" + s + ")", nil
	}
	return s, nil
}

func (r *Renderer) function(n *queryir.Func) (string, error) {
	name := strings.ToLower(n.Name)
	if n.Star || !allowedFuncs[name] {
		return "", failure.Unsupportedf("function %s in filter", n.Name)
	}
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		s, err := r.expr(a)
		if err != nil {
			return "", err
		}
		args[i] = s
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", ")), nil
}
