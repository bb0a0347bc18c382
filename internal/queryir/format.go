package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/sqlbridge/internal/ir"
)

// Describe renders an expression as compact SQL text. It names constructs in
// error messages and CLI output; it is not an executable SQL renderer.
func Describe(e Expr) string {
	var b strings.Builder
	describe(&b, e)
	return b.String()
}

func describe(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Column:
		if n.Table != "" {
			b.WriteString(n.Table)
			b.WriteByte('.')
		}
		b.WriteString(n.Name)
	case *Literal:
		text, err := ir.MarshalCanonical(n.Value)
		if err != nil {
			fmt.Fprintf(b, "%v", n.Value)
			return
		}
		b.Write(text)
	case *Param:
		fmt.Fprintf(b, "?%d", n.Position+1)
	case *Comparison:
		describe(b, n.Left)
		fmt.Fprintf(b, " %s ", n.Op)
		describe(b, n.Right)
	case *Between:
		describe(b, n.Expr)
		if n.Negated {
			b.WriteString(" NOT")
		}
		b.WriteString(" BETWEEN ")
		describe(b, n.Low)
		b.WriteString(" AND ")
		describe(b, n.High)
	case *InList:
		describe(b, n.Expr)
		if n.Negated {
			b.WriteString(" NOT")
		}
		b.WriteString(" IN (")
		describeList(b, n.List)
		b.WriteByte(')')
	case *ArrayMember:
		describe(b, n.Expr)
		if n.Negated {
			b.WriteString(" <> ALL(")
		} else {
			b.WriteString(" = ANY(")
		}
		describe(b, n.Array)
		b.WriteByte(')')
	case *Like:
		describe(b, n.Expr)
		if n.Negated {
			b.WriteString(" NOT")
		}
		if n.CaseInsensitive {
			b.WriteString(" ILIKE ")
		} else {
			b.WriteString(" LIKE ")
		}
		describe(b, n.Pattern)
		if n.Escape != nil {
			b.WriteString(" ESCAPE ")
			describe(b, n.Escape)
		}
	case *IsNull:
		describe(b, n.Expr)
		if n.Negated {
			b.WriteString(" IS NOT NULL")
		} else {
			b.WriteString(" IS NULL")
		}
	case *And:
		describeJoined(b, n.Terms, " AND ", "TRUE")
	case *Or:
		describeJoined(b, n.Terms, " OR ", "FALSE")
	case *Not:
		b.WriteString("NOT (")
		describe(b, n.Expr)
		b.WriteByte(')')
	case *Func:
		b.WriteString(n.Name)
		b.WriteByte('(')
		if n.Star {
			b.WriteByte('*')
		} else {
			describeList(b, n.Args)
		}
		b.WriteByte(')')
	case *Arithmetic:
		b.WriteByte('(')
		describe(b, n.Left)
		fmt.Fprintf(b, " %s ", n.Op)
		describe(b, n.Right)
		b.WriteByte(')')
	case *Negate:
		b.WriteByte('-')
		describe(b, n.Expr)
	case *Tuple:
		b.WriteByte('(')
		describeList(b, n.Elems)
		b.WriteByte(')')
	case *Subquery:
		b.WriteString("(SELECT ...)")
	case *Exists:
		if n.Negated {
			b.WriteString("NOT ")
		}
		b.WriteString("EXISTS (SELECT ...)")
	case *Case:
		b.WriteString("CASE ... END")
	default:
		fmt.Fprintf(b, "<%T>", e)
	}
}

func describeList(b *strings.Builder, list []Expr) {
	for i, e := range list {
		if i > 0 {
			b.WriteString(", ")
		}
		describe(b, e)
	}
}

func describeJoined(b *strings.Builder, terms []Expr, sep, empty string) {
	if len(terms) == 0 {
		b.WriteString(empty)
		return
	}
	b.WriteByte('(')
	for i, t := range terms {
		if i > 0 {
			b.WriteString(sep)
		}
		describe(b, t)
	}
	b.WriteByte(')')
}
