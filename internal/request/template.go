package request

import (
	"strconv"
	"strings"

	"github.com/roach88/sqlbridge/internal/ir"
)

// Mutation classifies what a graph Template changes.
type Mutation int

const (
	MutationNone Mutation = iota
	MutationCreate
	MutationSet
	MutationDelete
)

func (m Mutation) String() string {
	switch m {
	case MutationCreate:
		return "create"
	case MutationSet:
		return "set"
	case MutationDelete:
		return "delete"
	default:
		return "read"
	}
}

// Fragment is one piece of a graph Template.
//
// This is a sealed interface - only Text, ValueRef, VectorRef, LikeRef and
// GeneratedID implement it.
type Fragment interface {
	fragmentNode()
}

// Text is literal statement text.
type Text string

func (Text) fragmentNode() {}

// ValueRef is a value inlined as a literal at render time.
type ValueRef struct {
	Value ir.Value
}

func (ValueRef) fragmentNode() {}

// VectorRef is a query vector, always inlined as vecf32([...]) whatever
// numeric list the argument turns out to be.
type VectorRef struct {
	Vector ir.Value
}

func (VectorRef) fragmentNode() {}

// LikeRef is a SQL LIKE pattern inlined as an anchored regular expression at
// render time. The pattern is usually a parameter, so the conversion cannot
// happen at compile time.
type LikeRef struct {
	Pattern ir.Value
}

func (LikeRef) fragmentNode() {}

// GeneratedID is a primary key the executor generates at render time for an
// inserted row that supplied none.
type GeneratedID struct {
	Row int
}

func (GeneratedID) fragmentNode() {}

// Template is a compiled graph statement.
type Template struct {
	Label     string
	Fragments []Fragment
	Columns   []string // RETURN aliases, in order
	Mutation  Mutation
}

// Params returns every parameter position referenced by the template, in
// encounter order.
func (t *Template) Params() []int {
	var out []int
	for _, f := range t.Fragments {
		switch frag := f.(type) {
		case ValueRef:
			out = append(out, ir.ParamPositions(frag.Value)...)
		case VectorRef:
			out = append(out, ir.ParamPositions(frag.Vector)...)
		case LikeRef:
			out = append(out, ir.ParamPositions(frag.Pattern)...)
		}
	}
	return out
}

// Skeleton returns the template text with $N markers in place of values.
// It is stable across argument bindings and used for logging and golden
// files.
func (t *Template) Skeleton() string {
	var b strings.Builder
	for _, f := range t.Fragments {
		switch frag := f.(type) {
		case Text:
			b.WriteString(string(frag))
		case ValueRef:
			b.WriteString(valueMarker(frag.Value))
		case VectorRef:
			b.WriteString(valueMarker(frag.Vector))
		case LikeRef:
			b.WriteString("like(")
			b.WriteString(valueMarker(frag.Pattern))
			b.WriteByte(')')
		case GeneratedID:
			b.WriteString("$new")
		}
	}
	return b.String()
}

func valueMarker(v ir.Value) string {
	if p, ok := v.(ir.ParamRef); ok {
		return "$" + strconv.Itoa(p.Position+1)
	}
	text, err := ir.MarshalCanonical(v)
	if err != nil {
		return "?"
	}
	return string(text)
}

// TemplateBuilder accumulates fragments, merging adjacent text.
type TemplateBuilder struct {
	frags []Fragment
	text  strings.Builder
}

// Text appends literal text.
func (b *TemplateBuilder) Text(s string) *TemplateBuilder {
	b.text.WriteString(s)
	return b
}

// Value appends an inlined value.
func (b *TemplateBuilder) Value(v ir.Value) *TemplateBuilder {
	b.flush()
	b.frags = append(b.frags, ValueRef{Value: v})
	return b
}

// Vector appends an inlined query vector.
func (b *TemplateBuilder) Vector(v ir.Value) *TemplateBuilder {
	b.flush()
	b.frags = append(b.frags, VectorRef{Vector: v})
	return b
}

// Like appends an inlined LIKE pattern.
func (b *TemplateBuilder) Like(v ir.Value) *TemplateBuilder {
	b.flush()
	b.frags = append(b.frags, LikeRef{Pattern: v})
	return b
}

// GeneratedID appends a generated primary key slot for row.
func (b *TemplateBuilder) GeneratedID(row int) *TemplateBuilder {
	b.flush()
	b.frags = append(b.frags, GeneratedID{Row: row})
	return b
}

// Fragments returns the accumulated fragments.
func (b *TemplateBuilder) Fragments() []Fragment {
	b.flush()
	out := make([]Fragment, len(b.frags))
	copy(out, b.frags)
	return out
}

func (b *TemplateBuilder) flush() {
	if b.text.Len() > 0 {
		b.frags = append(b.frags, Text(b.text.String()))
		b.text.Reset()
	}
}
