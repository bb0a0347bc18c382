package querygraph

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/request"
)

// Rendered is an executable Cypher statement.
type Rendered struct {
	Text string

	// GeneratedIDs holds the primary keys generated for inserted rows, in
	// row order.
	GeneratedIDs []ir.Value
}

// Render binds args into tpl and inlines every value as a Cypher literal.
// Generated primary keys come from gen.
func Render(tpl *request.Template, args []any, gen IDGenerator) (Rendered, error) {
	var (
		b   strings.Builder
		out Rendered
	)
	for _, f := range tpl.Fragments {
		switch frag := f.(type) {
		case request.Text:
			b.WriteString(string(frag))
		case request.ValueRef:
			v, err := ir.Resolve(frag.Value, args)
			if err != nil {
				return Rendered{}, err
			}
			if err := writeLiteral(&b, v); err != nil {
				return Rendered{}, err
			}
		case request.VectorRef:
			v, err := ir.Resolve(frag.Vector, args)
			if err != nil {
				return Rendered{}, err
			}
			vec, err := ir.AsVector(v)
			if err != nil {
				return Rendered{}, fmt.Errorf("query vector: %w", err)
			}
			if err := writeLiteral(&b, vec); err != nil {
				return Rendered{}, err
			}
		case request.LikeRef:
			v, err := ir.Resolve(frag.Pattern, args)
			if err != nil {
				return Rendered{}, err
			}
			if err := writeLikePattern(&b, v); err != nil {
				return Rendered{}, err
			}
		case request.GeneratedID:
			if gen == nil {
				return Rendered{}, fmt.Errorf("row %d needs a generated id but no generator is set", frag.Row)
			}
			id := ir.String(gen.Generate())
			out.GeneratedIDs = append(out.GeneratedIDs, id)
			writeString(&b, string(id))
		default:
			return Rendered{}, fmt.Errorf("unknown template fragment %T", f)
		}
	}
	out.Text = b.String()
	return out, nil
}

func writeLiteral(b *strings.Builder, v ir.Value) error {
	switch val := v.(type) {
	case ir.Null:
		b.WriteString("null")
	case ir.String:
		writeString(b, string(val))
	case ir.Int:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case ir.Float:
		return writeFloat(b, float64(val), 64)
	case ir.Bool:
		b.WriteString(strconv.FormatBool(bool(val)))
	case ir.Vector:
		b.WriteString("vecf32([")
		for i, f := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := writeFloat(b, float64(f), 32); err != nil {
				return err
			}
		}
		b.WriteString("])")
	case ir.Array:
		b.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := writeLiteral(b, elem); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case ir.ParamRef:
		return fmt.Errorf("unresolved parameter %d", val.Position)
	default:
		return fmt.Errorf("cannot inline %T", v)
	}
	return nil
}

// writeFloat keeps a decimal point so the graph store types the value as a
// float.
func writeFloat(b *strings.Builder, f float64, bits int) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("cannot inline non-finite float %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	b.WriteString(s)
	return nil
}

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func writeString(b *strings.Builder, s string) {
	b.WriteByte('\'')
	stringEscaper.WriteString(b, s)
	b.WriteByte('\'')
}

func writeLikePattern(b *strings.Builder, v ir.Value) error {
	switch p := v.(type) {
	case ir.Null:
		b.WriteString("null")
		return nil
	case ir.String:
		writeString(b, LikeToRegex(string(p)))
		return nil
	default:
		return fmt.Errorf("LIKE pattern must be a string, got %s", v.Kind())
	}
}

// LikeToRegex converts a SQL LIKE pattern into an anchored regular
// expression: % matches any run of characters and _ exactly one.
func LikeToRegex(pattern string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return b.String()
}
