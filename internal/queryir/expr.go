package queryir

import "github.com/roach88/sqlbridge/internal/ir"

// Expr represents a scalar or boolean expression node.
//
// This is a sealed interface - only the pointer types below implement it.
// Node kinds:
//   - Leaves: Column, Literal, Param
//   - Predicates: Comparison, Between, InList, ArrayMember, Like, IsNull
//   - Connectives: And, Or, Not
//   - Scalars: Func, Arithmetic, Negate, Tuple, Case
//   - Nested queries: Subquery, Exists
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Column references a column, optionally qualified by table binding.
type Column struct {
	Table string
	Name  string
}

func (*Column) exprNode() {}

// Literal is a compile-time constant.
type Literal struct {
	Value ir.Value
}

func (*Literal) exprNode() {}

// Param references the runtime argument at Position.
type Param struct {
	Position int
}

func (*Param) exprNode() {}

// CompareOp is a binary comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpDistinct    // IS DISTINCT FROM
	OpNotDistinct // IS NOT DISTINCT FROM
)

var compareOpSQL = [...]string{"=", "<>", "<", "<=", ">", ">=", "IS DISTINCT FROM", "IS NOT DISTINCT FROM"}

func (op CompareOp) String() string {
	if int(op) < len(compareOpSQL) {
		return compareOpSQL[op]
	}
	return "?op"
}

// Flip returns the operator that holds when the operands are swapped.
func (op CompareOp) Flip() CompareOp {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	default:
		return op
	}
}

// Comparison is Left <op> Right.
type Comparison struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

func (*Comparison) exprNode() {}

// Between is Expr [NOT] BETWEEN Low AND High.
type Between struct {
	Expr    Expr
	Low     Expr
	High    Expr
	Negated bool
}

func (*Between) exprNode() {}

// InList is Expr [NOT] IN (List...). Expr may be a Tuple, in which case
// every list element is a Tuple of the same arity.
type InList struct {
	Expr    Expr
	List    []Expr
	Negated bool
}

func (*InList) exprNode() {}

// ArrayMember is Expr [<>] = ANY(Array): membership in an array value.
type ArrayMember struct {
	Expr    Expr
	Array   Expr
	Negated bool
}

func (*ArrayMember) exprNode() {}

// Like is Expr [NOT] [I]LIKE Pattern [ESCAPE Escape].
type Like struct {
	Expr            Expr
	Pattern         Expr
	Escape          Expr
	CaseInsensitive bool
	Negated         bool
}

func (*Like) exprNode() {}

// IsNull is Expr IS [NOT] NULL.
type IsNull struct {
	Expr    Expr
	Negated bool
}

func (*IsNull) exprNode() {}

// And is a conjunction. Empty Terms means true.
type And struct {
	Terms []Expr
}

func (*And) exprNode() {}

// Or is a disjunction. Empty Terms means false.
type Or struct {
	Terms []Expr
}

func (*Or) exprNode() {}

// Not negates Expr.
type Not struct {
	Expr Expr
}

func (*Not) exprNode() {}

// Func is a function call. Star marks count(*)-style calls.
type Func struct {
	Name string
	Args []Expr
	Star bool
}

func (*Func) exprNode() {}

// ArithOp is a binary arithmetic operator.
type ArithOp int

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
)

var arithOpSQL = [...]string{"+", "-", "*", "/", "%"}

func (op ArithOp) String() string {
	if int(op) < len(arithOpSQL) {
		return arithOpSQL[op]
	}
	return "?op"
}

// Arithmetic is Left <op> Right.
type Arithmetic struct {
	Op    ArithOp
	Left  Expr
	Right Expr
}

func (*Arithmetic) exprNode() {}

// Negate is unary minus.
type Negate struct {
	Expr Expr
}

func (*Negate) exprNode() {}

// Tuple is a row value constructor (a, b, ...).
type Tuple struct {
	Elems []Expr
}

func (*Tuple) exprNode() {}

// Subquery is a scalar or IN-list subquery.
type Subquery struct {
	Query *Select
}

func (*Subquery) exprNode() {}

// Exists is [NOT] EXISTS (Query).
type Exists struct {
	Query   *Select
	Negated bool
}

func (*Exists) exprNode() {}

// WhenClause is one CASE branch.
type WhenClause struct {
	When Expr
	Then Expr
}

// Case is a searched or simple CASE expression.
type Case struct {
	Operand Expr // nil for searched CASE
	When    []WhenClause
	Else    Expr
}

func (*Case) exprNode() {}

// C builds a column reference. "t.col" is split into table and column.
func C(name string) *Column {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return &Column{Table: name[:i], Name: name[i+1:]}
		}
	}
	return &Column{Name: name}
}

// P builds a parameter reference.
func P(position int) *Param {
	return &Param{Position: position}
}

// L builds a literal from a Go value. It panics on unsupported types and is
// intended for tests and static construction.
func L(v any) *Literal {
	val, err := ir.Literal(v)
	if err != nil {
		panic(err)
	}
	return &Literal{Value: val}
}

// Cmp builds a comparison.
func Cmp(op CompareOp, left, right Expr) *Comparison {
	return &Comparison{Op: op, Left: left, Right: right}
}

// Eq builds an equality comparison.
func Eq(left, right Expr) *Comparison {
	return Cmp(OpEq, left, right)
}

// AllOf builds a conjunction.
func AllOf(terms ...Expr) *And {
	return &And{Terms: terms}
}

// AnyOf builds a disjunction.
func AnyOf(terms ...Expr) *Or {
	return &Or{Terms: terms}
}

// Call builds a function call.
func Call(name string, args ...Expr) *Func {
	return &Func{Name: name, Args: args}
}
