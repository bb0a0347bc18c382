package queryir

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sqlbridge/internal/ir"
)

// DefaultPrimaryKey is the primary-key column assumed for tables decoded
// without an explicit pk.
const DefaultPrimaryKey = "id"

// DecodeYAML decodes one statement document.
//
// The document is a mapping with exactly one of the keys select, insert,
// update or delete:
//
//	select:
//	  from: [{table: docs, pk: id}]
//	  projection:
//	    - {expr: {column: id}}
//	    - {expr: {func: cosine_distance, args: [{column: embedding}, {param: 0}]}, as: score}
//	  where: {eq: [{column: status}, {param: 1}]}
//	  order_by: [{expr: {column: score}, dir: desc}]
//	  limit: 10
//
// Expressions are single-key mappings (column, param, literal, eq, ne, lt,
// le, gt, ge, distinct, not_distinct, between, not_between, in, not_in, any,
// not_any, like, not_like, ilike, not_ilike, is_null, is_not_null, and, or,
// not, func, add, sub, mul, div, mod, neg, tuple, subquery, exists,
// not_exists, case). A bare scalar or sequence is a literal.
func DecodeYAML(data []byte) (Statement, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse statement: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty statement document")
	}
	return DecodeNode(doc.Content[0])
}

// DecodeNode decodes a statement from an already-parsed YAML node. Scenario
// files embed statements and decode them through this entry point.
func DecodeNode(node *yaml.Node) (Statement, error) {
	key, body, err := singleKey(node)
	if err != nil {
		return nil, fmt.Errorf("statement: %w", err)
	}
	switch key {
	case "select":
		return decodeSelect(body)
	case "insert":
		return decodeInsert(body)
	case "update":
		return decodeUpdate(body)
	case "delete":
		return decodeDelete(body)
	default:
		return nil, nodeErr(node, "unknown statement kind %q", key)
	}
}

// DecodeExprYAML decodes a single expression document.
func DecodeExprYAML(data []byte) (Expr, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse expression: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty expression document")
	}
	return decodeExpr(doc.Content[0])
}

func nodeErr(n *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("line %d: %s", n.Line, fmt.Sprintf(format, args...))
}

func singleKey(n *yaml.Node) (string, *yaml.Node, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return "", nil, nodeErr(n, "expected a mapping with exactly one key")
	}
	return n.Content[0].Value, n.Content[1], nil
}

// fields returns the key/value pairs of a mapping node.
func fields(n *yaml.Node) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, nodeErr(n, "expected a mapping")
	}
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out[n.Content[i].Value] = n.Content[i+1]
	}
	return out, nil
}

func checkKeys(n *yaml.Node, f map[string]*yaml.Node, allowed ...string) error {
	for k := range f {
		found := false
		for _, a := range allowed {
			if a == k {
				found = true
				break
			}
		}
		if !found {
			return nodeErr(n, "unknown key %q", k)
		}
	}
	return nil
}

func seq(n *yaml.Node) ([]*yaml.Node, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, nodeErr(n, "expected a sequence")
	}
	return n.Content, nil
}

func decodeSelect(n *yaml.Node) (*Select, error) {
	f, err := fields(n)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(n, f, "with", "distinct", "projection", "from", "joins", "where",
		"group_by", "having", "order_by", "offset", "limit", "lock", "ranking"); err != nil {
		return nil, err
	}

	sel := &Select{}
	if v, ok := f["with"]; ok {
		items, err := seq(v)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			cf, err := fields(item)
			if err != nil {
				return nil, err
			}
			cte := CTE{}
			if name, ok := cf["name"]; ok {
				cte.Name = name.Value
			}
			if q, ok := cf["query"]; ok {
				if cte.Query, err = decodeSelect(q); err != nil {
					return nil, err
				}
			}
			sel.With = append(sel.With, cte)
		}
	}
	if v, ok := f["distinct"]; ok {
		if err := v.Decode(&sel.Distinct); err != nil {
			return nil, nodeErr(v, "distinct: %v", err)
		}
	}
	if v, ok := f["projection"]; ok {
		items, err := seq(v)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			p, err := decodeProjection(item)
			if err != nil {
				return nil, err
			}
			sel.Projection = append(sel.Projection, p)
		}
	}
	if v, ok := f["from"]; ok {
		items, err := seq(v)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			t, err := decodeTable(item)
			if err != nil {
				return nil, err
			}
			sel.From = append(sel.From, t)
		}
	}
	if v, ok := f["joins"]; ok {
		items, err := seq(v)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			j, err := decodeJoin(item)
			if err != nil {
				return nil, err
			}
			sel.Joins = append(sel.Joins, j)
		}
	}
	if sel.Where, err = optionalExpr(f, "where"); err != nil {
		return nil, err
	}
	if v, ok := f["group_by"]; ok {
		if sel.GroupBy, err = decodeExprList(v); err != nil {
			return nil, err
		}
	}
	if sel.Having, err = optionalExpr(f, "having"); err != nil {
		return nil, err
	}
	if v, ok := f["order_by"]; ok {
		items, err := seq(v)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			s, err := decodeSort(item)
			if err != nil {
				return nil, err
			}
			sel.OrderBy = append(sel.OrderBy, s)
		}
	}
	if sel.Offset, err = optionalExpr(f, "offset"); err != nil {
		return nil, err
	}
	if sel.Limit, err = optionalExpr(f, "limit"); err != nil {
		return nil, err
	}
	if v, ok := f["lock"]; ok {
		if sel.Lock, err = decodeLock(v); err != nil {
			return nil, err
		}
	}
	if v, ok := f["ranking"]; ok {
		if sel.Ranking, err = decodeRanking(v); err != nil {
			return nil, err
		}
	}
	return sel, nil
}

func decodeProjection(n *yaml.Node) (Projection, error) {
	f, err := fields(n)
	if err != nil {
		return Projection{}, err
	}
	if err := checkKeys(n, f, "expr", "as"); err != nil {
		return Projection{}, err
	}
	p := Projection{}
	if p.Expr, err = optionalExpr(f, "expr"); err != nil {
		return Projection{}, err
	}
	if as, ok := f["as"]; ok {
		p.Alias = as.Value
	}
	return p, nil
}

// decodeTable accepts either a bare table name or a mapping.
func decodeTable(n *yaml.Node) (TableRef, error) {
	if n.Kind == yaml.ScalarNode {
		return TableRef{Name: n.Value, PrimaryKey: DefaultPrimaryKey}, nil
	}
	f, err := fields(n)
	if err != nil {
		return TableRef{}, err
	}
	if err := checkKeys(n, f, "table", "as", "pk", "virtual", "subquery"); err != nil {
		return TableRef{}, err
	}
	t := TableRef{PrimaryKey: DefaultPrimaryKey}
	if v, ok := f["table"]; ok {
		t.Name = v.Value
	}
	if v, ok := f["as"]; ok {
		t.Alias = v.Value
	}
	if v, ok := f["pk"]; ok {
		t.PrimaryKey = v.Value
	}
	if v, ok := f["virtual"]; ok {
		if err := v.Decode(&t.Virtual); err != nil {
			return TableRef{}, nodeErr(v, "virtual: %v", err)
		}
	}
	if v, ok := f["subquery"]; ok {
		if t.Subquery, err = decodeSelect(v); err != nil {
			return TableRef{}, err
		}
	}
	return t, nil
}

var joinKinds = map[string]JoinKind{
	"inner": JoinInner,
	"left":  JoinLeft,
	"right": JoinRight,
	"full":  JoinFull,
	"cross": JoinCross,
}

func decodeJoin(n *yaml.Node) (Join, error) {
	f, err := fields(n)
	if err != nil {
		return Join{}, err
	}
	if err := checkKeys(n, f, "kind", "table", "on"); err != nil {
		return Join{}, err
	}
	j := Join{Kind: JoinInner}
	if v, ok := f["kind"]; ok {
		kind, known := joinKinds[strings.ToLower(v.Value)]
		if !known {
			return Join{}, nodeErr(v, "unknown join kind %q", v.Value)
		}
		j.Kind = kind
	}
	tbl, ok := f["table"]
	if !ok {
		return Join{}, nodeErr(n, "join without table")
	}
	if j.Table, err = decodeTable(tbl); err != nil {
		return Join{}, err
	}
	if j.On, err = optionalExpr(f, "on"); err != nil {
		return Join{}, err
	}
	return j, nil
}

func decodeSort(n *yaml.Node) (SortSpec, error) {
	f, err := fields(n)
	if err != nil {
		return SortSpec{}, err
	}
	if err := checkKeys(n, f, "expr", "dir"); err != nil {
		return SortSpec{}, err
	}
	s := SortSpec{}
	if s.Expr, err = optionalExpr(f, "expr"); err != nil {
		return SortSpec{}, err
	}
	if v, ok := f["dir"]; ok {
		switch strings.ToLower(v.Value) {
		case "asc":
			s.Direction = Asc
		case "desc":
			s.Direction = Desc
		default:
			return SortSpec{}, nodeErr(v, "unknown sort direction %q", v.Value)
		}
	}
	return s, nil
}

func decodeLock(n *yaml.Node) (LockMode, error) {
	switch strings.ToLower(n.Value) {
	case "", "none":
		return LockNone, nil
	case "optimistic":
		return LockOptimistic, nil
	case "pessimistic_read", "for_share":
		return LockPessimisticRead, nil
	case "pessimistic_write", "for_update":
		return LockPessimisticWrite, nil
	default:
		return LockNone, nodeErr(n, "unknown lock mode %q", n.Value)
	}
}

// decodeRanking accepts {rrf: k} or {weighted: [w1, w2, ...]}.
func decodeRanking(n *yaml.Node) (*Ranking, error) {
	key, body, err := singleKey(n)
	if err != nil {
		return nil, err
	}
	switch key {
	case "rrf":
		r := &Ranking{Kind: RankRRF}
		if err := body.Decode(&r.K); err != nil {
			return nil, nodeErr(body, "rrf: %v", err)
		}
		return r, nil
	case "weighted":
		r := &Ranking{Kind: RankWeighted}
		if err := body.Decode(&r.Weights); err != nil {
			return nil, nodeErr(body, "weighted: %v", err)
		}
		return r, nil
	default:
		return nil, nodeErr(n, "unknown ranking %q", key)
	}
}

func decodeInsert(n *yaml.Node) (*Insert, error) {
	f, err := fields(n)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(n, f, "table", "columns", "rows"); err != nil {
		return nil, err
	}
	ins := &Insert{}
	if v, ok := f["table"]; ok {
		if ins.Table, err = decodeTable(v); err != nil {
			return nil, err
		}
	}
	if v, ok := f["columns"]; ok {
		if err := v.Decode(&ins.Columns); err != nil {
			return nil, nodeErr(v, "columns: %v", err)
		}
	}
	if v, ok := f["rows"]; ok {
		rows, err := seq(v)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			row, err := decodeExprList(r)
			if err != nil {
				return nil, err
			}
			ins.Rows = append(ins.Rows, row)
		}
	}
	return ins, nil
}

func decodeUpdate(n *yaml.Node) (*Update, error) {
	f, err := fields(n)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(n, f, "table", "set", "where"); err != nil {
		return nil, err
	}
	upd := &Update{}
	if v, ok := f["table"]; ok {
		if upd.Table, err = decodeTable(v); err != nil {
			return nil, err
		}
	}
	if v, ok := f["set"]; ok {
		items, err := seq(v)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			af, err := fields(item)
			if err != nil {
				return nil, err
			}
			if err := checkKeys(item, af, "column", "value"); err != nil {
				return nil, err
			}
			a := Assignment{}
			if c, ok := af["column"]; ok {
				a.Column = c.Value
			}
			if a.Value, err = optionalExpr(af, "value"); err != nil {
				return nil, err
			}
			upd.Set = append(upd.Set, a)
		}
	}
	if upd.Where, err = optionalExpr(f, "where"); err != nil {
		return nil, err
	}
	return upd, nil
}

func decodeDelete(n *yaml.Node) (*Delete, error) {
	f, err := fields(n)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(n, f, "table", "where"); err != nil {
		return nil, err
	}
	del := &Delete{}
	if v, ok := f["table"]; ok {
		if del.Table, err = decodeTable(v); err != nil {
			return nil, err
		}
	}
	if del.Where, err = optionalExpr(f, "where"); err != nil {
		return nil, err
	}
	return del, nil
}

func optionalExpr(f map[string]*yaml.Node, key string) (Expr, error) {
	v, ok := f[key]
	if !ok {
		return nil, nil
	}
	return decodeExpr(v)
}

func decodeExprList(n *yaml.Node) ([]Expr, error) {
	items, err := seq(n)
	if err != nil {
		return nil, err
	}
	out := make([]Expr, 0, len(items))
	for _, item := range items {
		e, err := decodeExpr(item)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// decodeOperands decodes a sequence of exactly want expressions.
func decodeOperands(n *yaml.Node, op string, want ...int) ([]Expr, error) {
	list, err := decodeExprList(n)
	if err != nil {
		return nil, err
	}
	for _, w := range want {
		if len(list) == w {
			return list, nil
		}
	}
	return nil, nodeErr(n, "%s expects %v operands, got %d", op, want, len(list))
}

var compareOps = map[string]CompareOp{
	"eq":           OpEq,
	"ne":           OpNe,
	"lt":           OpLt,
	"le":           OpLe,
	"gt":           OpGt,
	"ge":           OpGe,
	"distinct":     OpDistinct,
	"not_distinct": OpNotDistinct,
}

var arithOps = map[string]ArithOp{
	"add": OpAdd,
	"sub": OpSub,
	"mul": OpMul,
	"div": OpDiv,
	"mod": OpMod,
}

func decodeExpr(n *yaml.Node) (Expr, error) {
	switch n.Kind {
	case yaml.ScalarNode, yaml.SequenceNode:
		return decodeLiteral(n)
	case yaml.AliasNode:
		return decodeExpr(n.Alias)
	case yaml.MappingNode:
	default:
		return nil, nodeErr(n, "unexpected expression node")
	}

	// func is the one multi-key form: {func: name, args: [...], star: true}.
	if f, err := fields(n); err == nil {
		if name, ok := f["func"]; ok {
			return decodeFunc(n, name.Value, f)
		}
		if c, ok := f["case"]; ok && len(f) == 1 {
			return decodeCase(c)
		}
	}

	key, body, err := singleKey(n)
	if err != nil {
		return nil, err
	}

	if op, ok := compareOps[key]; ok {
		args, err := decodeOperands(body, key, 2)
		if err != nil {
			return nil, err
		}
		return Cmp(op, args[0], args[1]), nil
	}
	if op, ok := arithOps[key]; ok {
		args, err := decodeOperands(body, key, 2)
		if err != nil {
			return nil, err
		}
		return &Arithmetic{Op: op, Left: args[0], Right: args[1]}, nil
	}

	switch key {
	case "column":
		if body.Kind != yaml.ScalarNode || body.Value == "" {
			return nil, nodeErr(body, "column expects a name")
		}
		return C(body.Value), nil
	case "param":
		var pos int
		if err := body.Decode(&pos); err != nil {
			return nil, nodeErr(body, "param: %v", err)
		}
		return P(pos), nil
	case "literal":
		return decodeLiteral(body)
	case "between", "not_between":
		args, err := decodeOperands(body, key, 3)
		if err != nil {
			return nil, err
		}
		return &Between{Expr: args[0], Low: args[1], High: args[2], Negated: key == "not_between"}, nil
	case "in", "not_in":
		items, err := seq(body)
		if err != nil {
			return nil, err
		}
		if len(items) != 2 {
			return nil, nodeErr(body, "%s expects [expr, [items...]]", key)
		}
		subject, err := decodeExpr(items[0])
		if err != nil {
			return nil, err
		}
		list, err := decodeExprList(items[1])
		if err != nil {
			return nil, err
		}
		return &InList{Expr: subject, List: list, Negated: key == "not_in"}, nil
	case "any", "not_any":
		args, err := decodeOperands(body, key, 2)
		if err != nil {
			return nil, err
		}
		return &ArrayMember{Expr: args[0], Array: args[1], Negated: key == "not_any"}, nil
	case "like", "not_like", "ilike", "not_ilike":
		args, err := decodeOperands(body, key, 2, 3)
		if err != nil {
			return nil, err
		}
		l := &Like{
			Expr:            args[0],
			Pattern:         args[1],
			CaseInsensitive: strings.HasSuffix(key, "ilike"),
			Negated:         strings.HasPrefix(key, "not_"),
		}
		if len(args) == 3 {
			l.Escape = args[2]
		}
		return l, nil
	case "is_null", "is_not_null":
		e, err := decodeExpr(body)
		if err != nil {
			return nil, err
		}
		return &IsNull{Expr: e, Negated: key == "is_not_null"}, nil
	case "and":
		terms, err := decodeExprList(body)
		if err != nil {
			return nil, err
		}
		return &And{Terms: terms}, nil
	case "or":
		terms, err := decodeExprList(body)
		if err != nil {
			return nil, err
		}
		return &Or{Terms: terms}, nil
	case "not":
		e, err := decodeExpr(body)
		if err != nil {
			return nil, err
		}
		return &Not{Expr: e}, nil
	case "neg":
		e, err := decodeExpr(body)
		if err != nil {
			return nil, err
		}
		return &Negate{Expr: e}, nil
	case "tuple":
		elems, err := decodeExprList(body)
		if err != nil {
			return nil, err
		}
		return &Tuple{Elems: elems}, nil
	case "subquery":
		q, err := decodeSelect(body)
		if err != nil {
			return nil, err
		}
		return &Subquery{Query: q}, nil
	case "exists", "not_exists":
		q, err := decodeSelect(body)
		if err != nil {
			return nil, err
		}
		return &Exists{Query: q, Negated: key == "not_exists"}, nil
	default:
		return nil, nodeErr(n, "unknown expression %q", key)
	}
}

func decodeFunc(n *yaml.Node, name string, f map[string]*yaml.Node) (Expr, error) {
	if err := checkKeys(n, f, "func", "args", "star"); err != nil {
		return nil, err
	}
	fn := &Func{Name: name}
	if v, ok := f["args"]; ok {
		args, err := decodeExprList(v)
		if err != nil {
			return nil, err
		}
		fn.Args = args
	}
	if v, ok := f["star"]; ok {
		if err := v.Decode(&fn.Star); err != nil {
			return nil, nodeErr(v, "star: %v", err)
		}
	}
	return fn, nil
}

func decodeCase(n *yaml.Node) (Expr, error) {
	f, err := fields(n)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(n, f, "operand", "when", "else"); err != nil {
		return nil, err
	}
	c := &Case{}
	if c.Operand, err = optionalExpr(f, "operand"); err != nil {
		return nil, err
	}
	if v, ok := f["when"]; ok {
		items, err := seq(v)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			wf, err := fields(item)
			if err != nil {
				return nil, err
			}
			w := WhenClause{}
			if w.When, err = optionalExpr(wf, "when"); err != nil {
				return nil, err
			}
			if w.Then, err = optionalExpr(wf, "then"); err != nil {
				return nil, err
			}
			c.When = append(c.When, w)
		}
	}
	if c.Else, err = optionalExpr(f, "else"); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeLiteral(n *yaml.Node) (Expr, error) {
	var raw any
	if err := n.Decode(&raw); err != nil {
		return nil, nodeErr(n, "literal: %v", err)
	}
	v, err := ir.Literal(raw)
	if err != nil {
		return nil, nodeErr(n, "literal: %v", err)
	}
	return &Literal{Value: v}, nil
}
