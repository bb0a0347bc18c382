package ir

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a sealed interface representing a foreign value.
// Only the literal types below and ParamRef implement it.
type Value interface {
	foreignValue() // Sealed - only these types implement it
	Kind() Kind
}

// Kind tags the concrete shape of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindVector
	KindArray
	KindParam
)

var kindNames = [...]string{"null", "string", "int", "float", "bool", "vector", "array", "param"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Null is the SQL NULL literal.
type Null struct{}

func (Null) foreignValue() {}
func (Null) Kind() Kind    { return KindNull }

// String is a character literal.
type String string

func (String) foreignValue() {}
func (String) Kind() Kind    { return KindString }

// Int is an integral literal.
type Int int64

func (Int) foreignValue() {}
func (Int) Kind() Kind    { return KindInt }

// Float is a floating point literal.
type Float float64

func (Float) foreignValue() {}
func (Float) Kind() Kind    { return KindFloat }

// Bool is a boolean literal.
type Bool bool

func (Bool) foreignValue() {}
func (Bool) Kind() Kind    { return KindBool }

// Vector is a dense float vector literal (query vectors, embeddings).
type Vector []float32

func (Vector) foreignValue() {}
func (Vector) Kind() Kind    { return KindVector }

// Array is a list literal (IN-list payloads, array columns).
type Array []Value

func (Array) foreignValue() {}
func (Array) Kind() Kind    { return KindArray }

// ParamRef references the runtime argument at Position (0-based).
type ParamRef struct {
	Position int
}

func (ParamRef) foreignValue() {}
func (ParamRef) Kind() Kind    { return KindParam }

// Param creates a ParamRef for the given argument position.
func Param(position int) ParamRef {
	return ParamRef{Position: position}
}

// IsParam reports whether v is a runtime parameter reference.
func IsParam(v Value) bool {
	_, ok := v.(ParamRef)
	return ok
}

// Literal converts a Go value into a literal Value.
// Accepts the shapes produced by YAML/JSON decoding and by database drivers.
func Literal(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("uint64 %d overflows int64", val)
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case []float32:
		return Vector(val), nil
	case []float64:
		vec := make(Vector, len(val))
		for i, f := range val {
			vec[i] = float32(f)
		}
		return vec, nil
	case []string:
		arr := make(Array, len(val))
		for i, s := range val {
			arr[i] = String(s)
		}
		return arr, nil
	case []int64:
		arr := make(Array, len(val))
		for i, n := range val {
			arr[i] = Int(n)
		}
		return arr, nil
	case []any:
		return literalList(val)
	default:
		return nil, fmt.Errorf("unsupported literal type: %T", v)
	}
}

// literalList converts a decoded list. A non-empty list of numbers becomes a
// Vector so that query vectors survive YAML/JSON decoding; anything else
// becomes an Array.
func literalList(list []any) (Value, error) {
	if vec, ok := numericVector(list); ok {
		return vec, nil
	}
	arr := make(Array, len(list))
	for i, elem := range list {
		v, err := Literal(elem)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		arr[i] = v
	}
	return arr, nil
}

func numericVector(list []any) (Vector, bool) {
	if len(list) == 0 {
		return nil, false
	}
	sawFloat := false
	vec := make(Vector, len(list))
	for i, elem := range list {
		switch n := elem.(type) {
		case float64:
			vec[i] = float32(n)
			sawFloat = true
		case float32:
			vec[i] = n
			sawFloat = true
		case int:
			vec[i] = float32(n)
		case int64:
			vec[i] = float32(n)
		default:
			return nil, false
		}
	}
	// A list of plain integers is an id list, not an embedding.
	return vec, sawFloat
}

// Resolve substitutes a ParamRef with the matching runtime argument.
// Literals are returned unchanged; arrays are resolved element-wise.
func Resolve(v Value, args []any) (Value, error) {
	switch val := v.(type) {
	case ParamRef:
		if val.Position < 0 || val.Position >= len(args) {
			return nil, fmt.Errorf("no argument bound for parameter %d (%d supplied)", val.Position, len(args))
		}
		lit, err := Literal(args[val.Position])
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", val.Position, err)
		}
		return lit, nil
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			r, err := Resolve(elem, args)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// AsVector returns a resolved value as an embedding. Integer and mixed
// numeric arrays are widened, so [1, 0, 0] and [1.0, 0.0, 0.0] agree.
func AsVector(v Value) (Vector, error) {
	switch val := v.(type) {
	case Vector:
		return val, nil
	case Array:
		out := make(Vector, len(val))
		for i, elem := range val {
			switch n := elem.(type) {
			case Int:
				out[i] = float32(n)
			case Float:
				out[i] = float32(n)
			default:
				return nil, fmt.Errorf("vector element %d is %s", i, elem.Kind())
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a vector, got %s", v.Kind())
	}
}

// Native converts a literal Value to its plain Go form for wire encoding.
// ParamRefs must be resolved first.
func Native(v Value) (any, error) {
	switch val := v.(type) {
	case Null:
		return nil, nil
	case String:
		return string(val), nil
	case Int:
		return int64(val), nil
	case Float:
		return float64(val), nil
	case Bool:
		return bool(val), nil
	case Vector:
		return []float32(val), nil
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			n, err := Native(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case ParamRef:
		return nil, fmt.Errorf("unresolved parameter %d", val.Position)
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// IdentityKey returns a stable identity for v: the parameter position for a
// ParamRef, the canonical literal text otherwise. Two occurrences of the same
// parameter share a key even though their runtime value is unknown.
func IdentityKey(v Value) string {
	if p, ok := v.(ParamRef); ok {
		return "param:" + strconv.Itoa(p.Position)
	}
	text, err := MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("literal:%T:%v", v, v)
	}
	return "literal:" + string(text)
}

// ParamPositions returns every ParamRef position reachable from v in
// encounter order.
func ParamPositions(v Value) []int {
	switch val := v.(type) {
	case ParamRef:
		return []int{val.Position}
	case Array:
		var out []int
		for _, elem := range val {
			out = append(out, ParamPositions(elem)...)
		}
		return out
	default:
		return nil
	}
}
