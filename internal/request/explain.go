package request

import (
	"fmt"
	"slices"

	"github.com/roach88/sqlbridge/internal/ir"
)

// Explain converts a request into a plain tree of maps and lists that
// ir.MarshalCanonical accepts. Unset optional fields are omitted, so the
// output is stable for golden files and fingerprints.
func Explain(r Request) map[string]any {
	out := map[string]any{
		"kind":       r.Kind().String(),
		"collection": r.CollectionName(),
	}
	switch req := r.(type) {
	case *Query:
		putValues(out, "ids", req.IDs)
		putFilter(out, req.Filter, req.Template)
		putStrings(out, "outputFields", req.OutputFields)
		putColumns(out, req.Columns)
		putValue(out, "offset", req.Offset)
		putValue(out, "limit", req.Limit)
	case *Search:
		explainSearch(out, req)
	case *HybridSearch:
		subs := make([]any, len(req.Searches))
		for i, s := range req.Searches {
			sub := map[string]any{}
			explainSearch(sub, s)
			subs[i] = sub
		}
		out["searches"] = subs
		out["ranker"] = explainRanker(req.Ranker)
		putValue(out, "topK", req.TopK)
		putValue(out, "offset", req.Offset)
		putStrings(out, "outputFields", req.OutputFields)
		putColumns(out, req.Columns)
	case *Insert:
		out["fields"] = slices.Clone(req.Fields)
		out["rows"] = explainRows(req.Rows)
	case *Upsert:
		out["fields"] = slices.Clone(req.Fields)
		out["rows"] = explainRows(req.Rows)
	case *Delete:
		putValues(out, "ids", req.IDs)
		putFilter(out, req.Filter, req.Template)
	case *CreateCollection:
		fields := make([]any, len(req.Schema.Fields))
		for i, f := range req.Schema.Fields {
			fields[i] = map[string]any{"name": f.Name, "type": f.DataType, "primary": f.Primary}
		}
		out["fields"] = fields
	case *DropCollection:
	}
	return out
}

func explainSearch(out map[string]any, s *Search) {
	out["annsField"] = s.AnnsField
	out["metric"] = s.Metric.Metric()
	putValue(out, "vector", s.Vector)
	putValue(out, "topK", s.TopK)
	putValue(out, "offset", s.Offset)
	if len(s.Params) > 0 {
		out["params"] = valueMap(s.Params)
	}
	if s.GroupingField != "" {
		out["groupingField"] = s.GroupingField
	}
	putFilter(out, s.Filter, s.Template)
	putStrings(out, "outputFields", s.OutputFields)
	putColumns(out, s.Columns)
}

func explainRanker(r Ranker) map[string]any {
	switch rk := r.(type) {
	case RRF:
		return map[string]any{"strategy": "rrf", "k": rk.K}
	case Weighted:
		weights := make([]any, len(rk.Weights))
		for i, w := range rk.Weights {
			weights[i] = w
		}
		return map[string]any{"strategy": "weighted", "weights": weights}
	default:
		return map[string]any{"strategy": fmt.Sprintf("%T", r)}
	}
}

func explainRows(rows [][]ir.Value) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		out[i] = vals
	}
	return out
}

func putFilter(out map[string]any, filter string, tmpl map[string]ir.Value) {
	if filter == "" {
		return
	}
	out["filter"] = filter
	if len(tmpl) > 0 {
		out["template"] = valueMap(tmpl)
	}
}

func putValue(out map[string]any, key string, v ir.Value) {
	if v != nil {
		out[key] = v
	}
}

func putValues(out map[string]any, key string, vs []ir.Value) {
	if len(vs) == 0 {
		return
	}
	list := make([]any, len(vs))
	for i, v := range vs {
		list[i] = v
	}
	out[key] = list
}

func putStrings(out map[string]any, key string, ss []string) {
	if len(ss) > 0 {
		out[key] = slices.Clone(ss)
	}
}

func putColumns(out map[string]any, cols []Column) {
	if len(cols) == 0 {
		return
	}
	list := make([]any, len(cols))
	for i, c := range cols {
		list[i] = map[string]any{"label": c.Label, "field": c.Field}
	}
	out["columns"] = list
}

func valueMap(m map[string]ir.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Params returns every parameter position a request references, in a
// deterministic order: ids, vectors, template values by placeholder name,
// search bounds, paging, then rows.
func Params(r Request) []int {
	var out []int
	add := func(v ir.Value) {
		if v != nil {
			out = append(out, ir.ParamPositions(v)...)
		}
	}
	addMap := func(m map[string]ir.Value) {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			add(m[k])
		}
	}
	addSearch := func(s *Search) {
		add(s.Vector)
		addMap(s.Template)
		addMap(s.Params)
		add(s.TopK)
		add(s.Offset)
	}

	switch req := r.(type) {
	case *Query:
		for _, id := range req.IDs {
			add(id)
		}
		addMap(req.Template)
		add(req.Offset)
		add(req.Limit)
	case *Search:
		addSearch(req)
	case *HybridSearch:
		for _, s := range req.Searches {
			addSearch(s)
		}
		add(req.TopK)
		add(req.Offset)
	case *Insert:
		for _, row := range req.Rows {
			for _, v := range row {
				add(v)
			}
		}
	case *Upsert:
		for _, row := range req.Rows {
			for _, v := range row {
				add(v)
			}
		}
	case *Delete:
		for _, id := range req.IDs {
			add(id)
		}
		addMap(req.Template)
	}
	return out
}

// Fingerprint returns a content hash of the request, stable across runs.
func Fingerprint(r Request) (string, error) {
	return ir.Fingerprint(ir.DomainRequest, Explain(r))
}
