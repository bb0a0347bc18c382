package queryir

// Statement represents one relational statement.
//
// This is a sealed interface - only *Select, *Insert, *Update and *Delete
// implement it.
type Statement interface {
	statementNode() // Marker method - seals interface to this package
}

// TableRef references a table in FROM, a JOIN, or a mutation target.
type TableRef struct {
	Name       string // Collection or label name
	Alias      string // Alias used by qualified column references
	PrimaryKey string // Primary-key column name
	Virtual    bool   // Table-valued function or unnested collection, not backend data
	Subquery   *Select
}

// Binding returns the name qualified column references use for this table.
func (t TableRef) Binding() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// JoinKind enumerates relational join kinds.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
)

func (k JoinKind) String() string {
	switch k {
	case JoinInner:
		return "INNER JOIN"
	case JoinLeft:
		return "LEFT JOIN"
	case JoinRight:
		return "RIGHT JOIN"
	case JoinFull:
		return "FULL JOIN"
	case JoinCross:
		return "CROSS JOIN"
	default:
		return "JOIN"
	}
}

// Join attaches a table to the FROM clause.
type Join struct {
	Kind  JoinKind
	Table TableRef
	On    Expr // nil for CROSS JOIN
}

// Projection is one SELECT list item.
type Projection struct {
	Expr  Expr
	Alias string
}

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// SortSpec is one ORDER BY key.
type SortSpec struct {
	Expr      Expr
	Direction Direction
}

// CTE is a WITH clause entry.
type CTE struct {
	Name  string
	Query *Select
}

// LockMode is the row lock requested by the statement.
type LockMode int

const (
	LockNone LockMode = iota
	LockOptimistic
	LockPessimisticRead
	LockPessimisticWrite
)

// Blocking reports whether the lock mode needs the backend to hold row locks.
func (m LockMode) Blocking() bool {
	return m == LockPessimisticRead || m == LockPessimisticWrite
}

func (m LockMode) String() string {
	switch m {
	case LockOptimistic:
		return "OPTIMISTIC"
	case LockPessimisticRead:
		return "PESSIMISTIC_READ"
	case LockPessimisticWrite:
		return "PESSIMISTIC_WRITE"
	default:
		return "NONE"
	}
}

// RankingKind selects how hybrid search rankings are fused.
type RankingKind int

const (
	RankRRF RankingKind = iota
	RankWeighted
)

// Ranking is the fusion strategy the planner attaches to a statement that
// may compile to a hybrid search.
type Ranking struct {
	Kind    RankingKind
	K       int       // RRF smoothing constant
	Weights []float64 // Weighted: one weight per search, in discovery order
}

// Select is a query statement.
//
// Semantics:
//
//	[WITH ...] SELECT [DISTINCT] <projection> FROM <from> [JOIN ...]
//	[WHERE <where>] [GROUP BY ...] [HAVING ...] [ORDER BY ...]
//	[OFFSET <offset>] [LIMIT <limit>] [FOR UPDATE]
type Select struct {
	With       []CTE
	Distinct   bool
	Projection []Projection
	From       []TableRef
	Joins      []Join
	Where      Expr
	GroupBy    []Expr
	Having     Expr
	OrderBy    []SortSpec
	Offset     Expr // nil = no offset
	Limit      Expr // nil = no limit
	Lock       LockMode
	Ranking    *Ranking // nil = no hybrid ranking supplied
}

func (*Select) statementNode() {}

// Insert is an INSERT ... VALUES statement.
type Insert struct {
	Table   TableRef
	Columns []string
	Rows    [][]Expr // one Expr per column per row
}

func (*Insert) statementNode() {}

// Assignment is one SET column = value binding.
type Assignment struct {
	Column string
	Value  Expr
}

// Update is an UPDATE statement.
type Update struct {
	Table TableRef
	Set   []Assignment
	Where Expr
}

func (*Update) statementNode() {}

// Delete is a DELETE statement.
type Delete struct {
	Table TableRef
	Where Expr
}

func (*Delete) statementNode() {}

// KindName returns the SQL keyword of a statement.
func KindName(s Statement) string {
	switch s.(type) {
	case *Select:
		return "SELECT"
	case *Insert:
		return "INSERT"
	case *Update:
		return "UPDATE"
	case *Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}
