package vectorstore

import (
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/roach88/sqlbridge/internal/ir"
)

// fieldTypes maps schema type names to SDK field types.
var fieldTypes = map[string]entity.FieldType{
	"Bool":        entity.FieldTypeBool,
	"Int8":        entity.FieldTypeInt8,
	"Int16":       entity.FieldTypeInt16,
	"Int32":       entity.FieldTypeInt32,
	"Int64":       entity.FieldTypeInt64,
	"Float":       entity.FieldTypeFloat,
	"Double":      entity.FieldTypeDouble,
	"VarChar":     entity.FieldTypeVarChar,
	"JSON":        entity.FieldTypeJSON,
	"Array":       entity.FieldTypeArray,
	"FloatVector": entity.FieldTypeFloatVector,
}

// ParseFieldType resolves a schema type name.
func ParseFieldType(name string) (entity.FieldType, error) {
	ft, ok := fieldTypes[name]
	if !ok {
		return entity.FieldTypeNone, fmt.Errorf("unsupported field type %q", name)
	}
	return ft, nil
}

// widen converts a float32 to the float64 with the same shortest decimal
// form, so a stored 0.12 reads back as 0.12.
func widen(f float32) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
	if err != nil {
		return float64(f)
	}
	return v
}

type nullable interface {
	IsNull(int) (bool, error)
}

// cell reads row i of col. The column's field type decides the shape, so a
// float vector is always an ir.Vector whatever its element values.
func cell(col column.Column, i int) (ir.Value, error) {
	if n, ok := col.(nullable); ok {
		if null, err := n.IsNull(i); err == nil && null {
			return ir.Null{}, nil
		}
	}

	switch col.Type() {
	case entity.FieldTypeBool:
		b, err := col.GetAsBool(i)
		if err != nil {
			return nil, err
		}
		return ir.Bool(b), nil
	case entity.FieldTypeInt8, entity.FieldTypeInt16, entity.FieldTypeInt32, entity.FieldTypeInt64:
		n, err := col.GetAsInt64(i)
		if err != nil {
			return nil, err
		}
		return ir.Int(n), nil
	case entity.FieldTypeFloat:
		raw, err := col.Get(i)
		if err != nil {
			return nil, err
		}
		f, ok := raw.(float32)
		if !ok {
			return nil, fmt.Errorf("float column holds %T", raw)
		}
		return ir.Float(widen(f)), nil
	case entity.FieldTypeDouble:
		f, err := col.GetAsDouble(i)
		if err != nil {
			return nil, err
		}
		return ir.Float(f), nil
	case entity.FieldTypeVarChar, entity.FieldTypeString:
		s, err := col.GetAsString(i)
		if err != nil {
			return nil, err
		}
		return ir.String(s), nil
	case entity.FieldTypeJSON:
		raw, err := col.Get(i)
		if err != nil {
			return nil, err
		}
		text, ok := raw.([]byte)
		if !ok {
			return nil, fmt.Errorf("json column holds %T", raw)
		}
		return ir.String(text), nil
	case entity.FieldTypeFloatVector:
		raw, err := col.Get(i)
		if err != nil {
			return nil, err
		}
		vec, ok := raw.(entity.FloatVector)
		if !ok {
			return nil, fmt.Errorf("float vector column holds %T", raw)
		}
		return append(ir.Vector(nil), vec...), nil
	case entity.FieldTypeArray:
		raw, err := col.Get(i)
		if err != nil {
			return nil, err
		}
		return arrayCell(raw)
	default:
		return nil, fmt.Errorf("unsupported column type %s", col.Type())
	}
}

func arrayCell(raw any) (ir.Value, error) {
	switch elems := raw.(type) {
	case []bool:
		return arrayOf(elems, func(b bool) ir.Value { return ir.Bool(b) }), nil
	case []int8:
		return arrayOf(elems, func(n int8) ir.Value { return ir.Int(n) }), nil
	case []int16:
		return arrayOf(elems, func(n int16) ir.Value { return ir.Int(n) }), nil
	case []int32:
		return arrayOf(elems, func(n int32) ir.Value { return ir.Int(n) }), nil
	case []int64:
		return arrayOf(elems, func(n int64) ir.Value { return ir.Int(n) }), nil
	case []float32:
		return arrayOf(elems, func(f float32) ir.Value { return ir.Float(widen(f)) }), nil
	case []float64:
		return arrayOf(elems, func(f float64) ir.Value { return ir.Float(f) }), nil
	case []string:
		return arrayOf(elems, func(s string) ir.Value { return ir.String(s) }), nil
	default:
		return nil, fmt.Errorf("unsupported array cell %T", raw)
	}
}

func arrayOf[T any](elems []T, conv func(T) ir.Value) ir.Array {
	out := make(ir.Array, len(elems))
	for i, e := range elems {
		out[i] = conv(e)
	}
	return out
}

// idColumn builds a primary key column from resolved ids. Ids must all be
// integers or all strings.
func idColumn(field string, ids []ir.Value) (column.Column, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty id list")
	}
	switch ids[0].(type) {
	case ir.Int:
		out := make([]int64, len(ids))
		for i, v := range ids {
			n, ok := v.(ir.Int)
			if !ok {
				return nil, fmt.Errorf("id %d is %s, want int", i, v.Kind())
			}
			out[i] = int64(n)
		}
		return column.NewColumnInt64(field, out), nil
	case ir.String:
		out := make([]string, len(ids))
		for i, v := range ids {
			s, ok := v.(ir.String)
			if !ok {
				return nil, fmt.Errorf("id %d is %s, want string", i, v.Kind())
			}
			out[i] = string(s)
		}
		return column.NewColumnVarChar(field, out), nil
	default:
		return nil, fmt.Errorf("id is %s, want int or string", ids[0].Kind())
	}
}

// buildColumn encodes one field's resolved values as a typed column.
func buildColumn(f *entity.Field, values []ir.Value) (column.Column, error) {
	for i, v := range values {
		if _, ok := v.(ir.Null); ok {
			return nil, fmt.Errorf("row %d: null for field %s", i, f.Name)
		}
	}

	switch f.DataType {
	case entity.FieldTypeBool:
		data, err := convertAll(values, asBool)
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnBool(f.Name, data), nil
	case entity.FieldTypeInt8:
		data, err := convertAll(values, intOf[int8](math.MinInt8, math.MaxInt8))
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnInt8(f.Name, data), nil
	case entity.FieldTypeInt16:
		data, err := convertAll(values, intOf[int16](math.MinInt16, math.MaxInt16))
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnInt16(f.Name, data), nil
	case entity.FieldTypeInt32:
		data, err := convertAll(values, intOf[int32](math.MinInt32, math.MaxInt32))
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnInt32(f.Name, data), nil
	case entity.FieldTypeInt64:
		data, err := convertAll(values, intOf[int64](math.MinInt64, math.MaxInt64))
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnInt64(f.Name, data), nil
	case entity.FieldTypeFloat:
		data, err := convertAll(values, asFloat32)
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnFloat(f.Name, data), nil
	case entity.FieldTypeDouble:
		data, err := convertAll(values, asFloat64)
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnDouble(f.Name, data), nil
	case entity.FieldTypeVarChar, entity.FieldTypeString:
		data, err := convertAll(values, asString)
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnVarChar(f.Name, data), nil
	case entity.FieldTypeJSON:
		data, err := convertAll(values, asJSON)
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnJSONBytes(f.Name, data), nil
	case entity.FieldTypeFloatVector:
		dim, err := strconv.Atoi(f.TypeParams[entity.TypeParamDim])
		if err != nil {
			return nil, fmt.Errorf("field %s: dim %q: %w", f.Name, f.TypeParams[entity.TypeParamDim], err)
		}
		data, err := convertAll(values, func(v ir.Value) ([]float32, error) {
			vec, err := ir.AsVector(v)
			if err != nil {
				return nil, err
			}
			if len(vec) != dim {
				return nil, fmt.Errorf("vector has %d dimensions, want %d", len(vec), dim)
			}
			return []float32(vec), nil
		})
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnFloatVector(f.Name, dim, data), nil
	case entity.FieldTypeArray:
		return arrayColumn(f, values)
	default:
		return nil, fmt.Errorf("field %s: unsupported type %s", f.Name, f.DataType)
	}
}

func arrayColumn(f *entity.Field, values []ir.Value) (column.Column, error) {
	switch f.ElementType {
	case entity.FieldTypeBool:
		data, err := convertAll(values, elementsOf(asBool))
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnBoolArray(f.Name, data), nil
	case entity.FieldTypeInt32:
		data, err := convertAll(values, elementsOf(intOf[int32](math.MinInt32, math.MaxInt32)))
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnInt32Array(f.Name, data), nil
	case entity.FieldTypeInt64:
		data, err := convertAll(values, elementsOf(intOf[int64](math.MinInt64, math.MaxInt64)))
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnInt64Array(f.Name, data), nil
	case entity.FieldTypeFloat:
		data, err := convertAll(values, elementsOf(asFloat32))
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnFloatArray(f.Name, data), nil
	case entity.FieldTypeDouble:
		data, err := convertAll(values, elementsOf(asFloat64))
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnDoubleArray(f.Name, data), nil
	case entity.FieldTypeVarChar:
		data, err := convertAll(values, elementsOf(asString))
		if err != nil {
			return nil, fieldErr(f, err)
		}
		return column.NewColumnVarCharArray(f.Name, data), nil
	default:
		return nil, fmt.Errorf("field %s: unsupported array element type %s", f.Name, f.ElementType)
	}
}

func fieldErr(f *entity.Field, err error) error {
	return fmt.Errorf("field %s: %w", f.Name, err)
}

func convertAll[T any](values []ir.Value, conv func(ir.Value) (T, error)) ([]T, error) {
	out := make([]T, len(values))
	for i, v := range values {
		t, err := conv(v)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// elementsOf lifts an element conversion to array values. Vectors count as
// float arrays.
func elementsOf[T any](conv func(ir.Value) (T, error)) func(ir.Value) ([]T, error) {
	return func(v ir.Value) ([]T, error) {
		if vec, ok := v.(ir.Vector); ok {
			v = vectorArray(vec)
		}
		arr, ok := v.(ir.Array)
		if !ok {
			return nil, fmt.Errorf("got %s, want array", v.Kind())
		}
		out := make([]T, len(arr))
		for i, elem := range arr {
			t, err := conv(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = t
		}
		return out, nil
	}
}

func vectorArray(vec ir.Vector) ir.Array {
	return arrayOf([]float32(vec), func(f float32) ir.Value { return ir.Float(widen(f)) })
}

func asBool(v ir.Value) (bool, error) {
	b, ok := v.(ir.Bool)
	if !ok {
		return false, fmt.Errorf("got %s, want bool", v.Kind())
	}
	return bool(b), nil
}

type integer interface {
	~int8 | ~int16 | ~int32 | ~int64
}

func intOf[T integer](lo, hi int64) func(ir.Value) (T, error) {
	return func(v ir.Value) (T, error) {
		n, ok := v.(ir.Int)
		if !ok {
			return 0, fmt.Errorf("got %s, want int", v.Kind())
		}
		if int64(n) < lo || int64(n) > hi {
			return 0, fmt.Errorf("%d out of range", int64(n))
		}
		return T(n), nil
	}
}

func asFloat64(v ir.Value) (float64, error) {
	switch n := v.(type) {
	case ir.Float:
		return float64(n), nil
	case ir.Int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("got %s, want float", v.Kind())
	}
}

func asFloat32(v ir.Value) (float32, error) {
	f, err := asFloat64(v)
	return float32(f), err
}

func asString(v ir.Value) (string, error) {
	s, ok := v.(ir.String)
	if !ok {
		return "", fmt.Errorf("got %s, want string", v.Kind())
	}
	return string(s), nil
}

// asJSON accepts JSON text, or any other literal encoded as JSON.
func asJSON(v ir.Value) ([]byte, error) {
	if s, ok := v.(ir.String); ok && json.Valid([]byte(s)) {
		return []byte(s), nil
	}
	n, err := ir.Native(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(n)
}
