package vectorstore

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/request"
)

// binder substitutes runtime arguments into request values.
type binder struct {
	args []any
}

func badArgument(format string, args ...any) error {
	return failure.Backend(Backend, failure.KindBadArgument, fmt.Errorf(format, args...))
}

func (b binder) resolve(v ir.Value) (ir.Value, error) {
	resolved, err := ir.Resolve(v, b.args)
	if err != nil {
		return nil, failure.Backend(Backend, failure.KindBadArgument, err)
	}
	return resolved, nil
}

func (b binder) resolveAll(vs []ir.Value) ([]ir.Value, error) {
	out := make([]ir.Value, len(vs))
	for i, v := range vs {
		r, err := b.resolve(v)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// templateValue converts a literal into a filter template parameter.
// Homogeneous lists keep their element type.
func templateValue(v ir.Value) (any, error) {
	arr, ok := v.(ir.Array)
	if !ok || len(arr) == 0 {
		if _, null := v.(ir.Null); null {
			return nil, fmt.Errorf("null template parameter")
		}
		return ir.Native(v)
	}
	switch arr[0].(type) {
	case ir.Int:
		if out, err := convertAll(arr, intOf[int64](math.MinInt64, math.MaxInt64)); err == nil {
			return out, nil
		}
	case ir.Float:
		if out, err := convertAll(arr, asFloat64); err == nil {
			return out, nil
		}
	case ir.String:
		if out, err := convertAll(arr, asString); err == nil {
			return out, nil
		}
	case ir.Bool:
		if out, err := convertAll(arr, asBool); err == nil {
			return out, nil
		}
	}
	return ir.Native(v)
}

func (b binder) template(tpl map[string]ir.Value) (map[string]any, error) {
	if len(tpl) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(tpl))
	for name, v := range tpl {
		resolved, err := b.resolve(v)
		if err != nil {
			return nil, err
		}
		tv, err := templateValue(resolved)
		if err != nil {
			return nil, badArgument("filter parameter %s: %v", name, err)
		}
		out[name] = tv
	}
	return out, nil
}

// vector binds a query vector. Integer arrays are accepted and widened.
func (b binder) vector(v ir.Value) ([]float32, error) {
	resolved, err := b.resolve(v)
	if err != nil {
		return nil, err
	}
	vec, err := ir.AsVector(resolved)
	if err != nil {
		return nil, badArgument("query vector: %v", err)
	}
	return []float32(vec), nil
}

// count binds a limit or offset; nil yields Unbounded.
func (b binder) count(v ir.Value, what string) (int, error) {
	if v == nil {
		return Unbounded, nil
	}
	resolved, err := b.resolve(v)
	if err != nil {
		return 0, err
	}
	n, ok := resolved.(ir.Int)
	if !ok || n < 0 || int64(n) > int64(^uint32(0)>>1) {
		return 0, badArgument("%s must be a non-negative integer, got %v", what, resolved)
	}
	return int(n), nil
}

func (b binder) getCall(q *request.Query) (GetCall, error) {
	ids, err := b.resolveAll(q.IDs)
	if err != nil {
		return GetCall{}, err
	}
	col, err := idColumn(q.PrimaryKey, ids)
	if err != nil {
		return GetCall{}, badArgument("%v", err)
	}
	return GetCall{Collection: q.Collection, IDs: col, OutputFields: q.OutputFields}, nil
}

func (b binder) queryCall(q *request.Query) (QueryCall, error) {
	call := QueryCall{Collection: q.Collection, Filter: q.Filter, OutputFields: q.OutputFields}
	var err error
	if call.Params, err = b.template(q.Template); err != nil {
		return QueryCall{}, err
	}
	if call.Limit, err = b.count(q.Limit, "limit"); err != nil {
		return QueryCall{}, err
	}
	if call.Offset, err = b.count(q.Offset, "offset"); err != nil {
		return QueryCall{}, err
	}
	return call, nil
}

func (b binder) searchCall(s *request.Search) (SearchCall, error) {
	vec, err := b.vector(s.Vector)
	if err != nil {
		return SearchCall{}, err
	}
	call := SearchCall{
		Collection:   s.Collection,
		AnnsField:    s.AnnsField,
		Vector:       vec,
		Metric:       entity.MetricType(s.Metric.Metric()),
		Filter:       s.Filter,
		GroupBy:      s.GroupingField,
		OutputFields: s.OutputFields,
	}
	if call.Limit, err = b.count(s.TopK, "top_k"); err != nil {
		return SearchCall{}, err
	}
	if call.Limit == Unbounded {
		return SearchCall{}, badArgument("search without top_k")
	}
	if call.Offset, err = b.count(s.Offset, "offset"); err != nil {
		return SearchCall{}, err
	}
	if call.Params, err = b.template(s.Template); err != nil {
		return SearchCall{}, err
	}
	if len(s.Params) > 0 {
		call.SearchParams = make(map[string]string, len(s.Params))
		for name, v := range s.Params {
			resolved, err := b.resolve(v)
			if err != nil {
				return SearchCall{}, err
			}
			f, err := asFloat64(resolved)
			if err != nil {
				return SearchCall{}, badArgument("search parameter %s: %v", name, err)
			}
			call.SearchParams[name] = strconv.FormatFloat(f, 'g', -1, 64)
		}
	}
	return call, nil
}

// hybridCall binds h. The offset is returned apart: the server ranks a
// page of limit+offset and the executor drops the leading rows.
func (b binder) hybridCall(h *request.HybridSearch) (HybridCall, int, error) {
	call := HybridCall{Collection: h.Collection, OutputFields: h.OutputFields}
	for i, s := range h.Searches {
		sub, err := b.searchCall(s)
		if err != nil {
			return HybridCall{}, 0, fmt.Errorf("search %d: %w", i, err)
		}
		call.Searches = append(call.Searches, sub)
	}

	switch r := h.Ranker.(type) {
	case request.RRF:
		call.RRFK = float64(r.K)
	case request.Weighted:
		if len(r.Weights) != len(h.Searches) {
			return HybridCall{}, 0, badArgument("%d weights for %d searches", len(r.Weights), len(h.Searches))
		}
		call.Weights = r.Weights
	default:
		return HybridCall{}, 0, badArgument("hybrid search without ranker")
	}

	limit, err := b.count(h.TopK, "top_k")
	if err != nil {
		return HybridCall{}, 0, err
	}
	if limit == Unbounded {
		return HybridCall{}, 0, badArgument("hybrid search without top_k")
	}
	offset, err := b.count(h.Offset, "offset")
	if err != nil {
		return HybridCall{}, 0, err
	}
	if offset == Unbounded {
		offset = 0
	}
	call.Limit = limit + offset
	return call, offset, nil
}

// writeCall encodes rows as one typed column per field, shaped by schema.
func (b binder) writeCall(schema *entity.Schema, collection string, fields []string, rows [][]ir.Value) (WriteCall, error) {
	byName := make(map[string]*entity.Field, len(schema.Fields))
	for _, f := range schema.Fields {
		byName[f.Name] = f
	}

	call := WriteCall{Collection: collection, Columns: make([]column.Column, len(fields))}
	for j, name := range fields {
		f, ok := byName[name]
		if !ok {
			return WriteCall{}, failure.Backend(Backend, failure.KindConstraintViolation,
				fmt.Errorf("collection %s has no field %s", collection, name))
		}
		values := make([]ir.Value, len(rows))
		for i, row := range rows {
			if len(row) != len(fields) {
				return WriteCall{}, badArgument("row %d has %d values for %d fields", i, len(row), len(fields))
			}
			v, err := b.resolve(row[j])
			if err != nil {
				return WriteCall{}, err
			}
			values[i] = v
		}
		col, err := buildColumn(f, values)
		if err != nil {
			return WriteCall{}, failure.Backend(Backend, failure.KindConstraintViolation, err)
		}
		call.Columns[j] = col
	}
	return call, nil
}

// deleteCall binds d. Deletes take no template parameters, so the filter's
// placeholders are replaced by literals.
func (b binder) deleteCall(d *request.Delete) (DeleteCall, error) {
	call := DeleteCall{Collection: d.Collection, PrimaryKey: d.PrimaryKey}
	if len(d.IDs) > 0 {
		ids, err := b.resolveAll(d.IDs)
		if err != nil {
			return DeleteCall{}, err
		}
		if call.IDs, err = idColumn(d.PrimaryKey, ids); err != nil {
			return DeleteCall{}, badArgument("%v", err)
		}
		return call, nil
	}
	if d.Filter == "" {
		return DeleteCall{}, badArgument("delete without ids or filter")
	}
	values := make(map[string]ir.Value, len(d.Template))
	for name, v := range d.Template {
		resolved, err := b.resolve(v)
		if err != nil {
			return DeleteCall{}, err
		}
		values[name] = resolved
	}
	expr, err := InlineFilter(d.Filter, values)
	if err != nil {
		return DeleteCall{}, badArgument("delete filter: %v", err)
	}
	call.Filter = expr
	return call, nil
}

// InlineFilter replaces each {name} placeholder of a filter expression with
// the literal form of values[name]. Quoted strings are copied unchanged.
func InlineFilter(expr string, values map[string]ir.Value) (string, error) {
	var b strings.Builder
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch c {
		case '"', '\'':
			end := closingQuote(expr, i)
			if end < 0 {
				return "", fmt.Errorf("unterminated string at %d", i)
			}
			b.WriteString(expr[i : end+1])
			i = end
		case '{':
			end := strings.IndexByte(expr[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder at %d", i)
			}
			name := expr[i+1 : i+end]
			v, ok := values[name]
			if !ok {
				return "", fmt.Errorf("no value for placeholder %s", name)
			}
			if err := writeExprLiteral(&b, v); err != nil {
				return "", fmt.Errorf("placeholder %s: %w", name, err)
			}
			i += end
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func closingQuote(expr string, open int) int {
	q := expr[open]
	for i := open + 1; i < len(expr); i++ {
		switch expr[i] {
		case '\\':
			i++
		case q:
			return i
		}
	}
	return -1
}

func writeExprLiteral(b *strings.Builder, v ir.Value) error {
	switch val := v.(type) {
	case ir.String:
		b.WriteString(strconv.Quote(string(val)))
	case ir.Int:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case ir.Float:
		b.WriteString(strconv.FormatFloat(float64(val), 'g', -1, 64))
	case ir.Bool:
		b.WriteString(strconv.FormatBool(bool(val)))
	case ir.Vector:
		return writeExprLiteral(b, vectorArray(val))
	case ir.Array:
		b.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := writeExprLiteral(b, elem); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	default:
		return fmt.Errorf("cannot inline %s", v.Kind())
	}
	return nil
}

// schemaOf converts a declarative schema into an SDK schema.
func schemaOf(c *request.CreateCollection) (*entity.Schema, error) {
	schema := entity.NewSchema().WithName(c.Collection).WithAutoID(c.Schema.AutoID)
	for _, fs := range c.Schema.Fields {
		ft, err := ParseFieldType(fs.DataType)
		if err != nil {
			return nil, badArgument("field %s: %v", fs.Name, err)
		}
		f := entity.NewField().WithName(fs.Name).WithDataType(ft)
		if fs.Primary {
			f = f.WithIsPrimaryKey(true).WithIsAutoID(c.Schema.AutoID)
		}
		if fs.Nullable {
			f = f.WithNullable(true)
		}
		if fs.Dim > 0 {
			f = f.WithDim(int64(fs.Dim))
		}
		if fs.MaxLength > 0 {
			f = f.WithMaxLength(int64(fs.MaxLength))
		}
		if ft == entity.FieldTypeArray {
			et, err := ParseFieldType(fs.ElementType)
			if err != nil {
				return nil, badArgument("field %s element: %v", fs.Name, err)
			}
			f = f.WithElementType(et).WithMaxCapacity(defaultArrayCapacity)
		}
		schema = schema.WithField(f)
	}
	return schema, nil
}

// defaultArrayCapacity is the largest capacity the server allows.
const defaultArrayCapacity = 4096

func indexCalls(specs []request.IndexSpec) []IndexCall {
	out := make([]IndexCall, len(specs))
	for i, idx := range specs {
		out[i] = IndexCall{
			Field:     idx.Field,
			Metric:    entity.MetricType(idx.Metric.Metric()),
			IndexType: idx.IndexType,
		}
	}
	return out
}
