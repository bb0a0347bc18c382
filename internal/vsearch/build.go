package vsearch

import (
	"slices"
	"strings"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/queryir"
	"github.com/roach88/sqlbridge/internal/request"
)

// CountField is the backend output field for count(*).
const CountField = "count(*)"

// Outputs is the row layout collected from a projection.
type Outputs struct {
	// Fields are the concrete backend fields to request, deduplicated.
	Fields []string

	// Columns is the result layout, including distance markers.
	Columns []request.Column

	// Count is set when count(*) is projected.
	Count bool
}

// Project collects output fields from the projection. Distance expressions
// register their component and add a distance marker column.
func (x *Extractor) Project(items []queryir.Projection) (Outputs, error) {
	var out Outputs
	addField := func(f string) {
		if !slices.Contains(out.Fields, f) {
			out.Fields = append(out.Fields, f)
		}
	}

	for _, p := range items {
		switch e := p.Expr.(type) {
		case *queryir.Column:
			if !x.scope.Owns(e) {
				return Outputs{}, failure.Unsupportedf("column of joined table %s", e.Table)
			}
			addField(e.Name)
			out.Columns = append(out.Columns, request.Column{Label: label(p, e.Name), Field: e.Name})
		case *queryir.Func:
			if e.Star && strings.EqualFold(e.Name, "count") {
				out.Count = true
				addField(CountField)
				out.Columns = append(out.Columns, request.Column{Label: label(p, CountField), Field: CountField})
				continue
			}
			call, ok, err := x.Recognize(e)
			if err != nil {
				return Outputs{}, err
			}
			if !ok {
				return Outputs{}, failure.Unsupportedf("projection %s", queryir.Describe(e))
			}
			if _, err := x.Use(call); err != nil {
				return Outputs{}, err
			}
			out.Columns = append(out.Columns, request.Column{Label: label(p, "distance"), Field: request.DistanceField})
		default:
			return Outputs{}, failure.Unsupportedf("projection %s", queryir.Describe(p.Expr))
		}
	}
	return out, nil
}

func label(p queryir.Projection, fallback string) string {
	if p.Alias != "" {
		return p.Alias
	}
	return fallback
}

// SearchOf builds the search request of one component. The shared filter
// and paging are supplied by the caller.
func SearchOf(comp *Component, collection string, topK ir.Value) *request.Search {
	s := &request.Search{
		Collection: collection,
		AnnsField:  comp.Field,
		Vector:     comp.Vector,
		Metric:     comp.Kind,
		TopK:       topK,
	}
	if len(comp.Params) > 0 {
		s.Params = make(map[string]ir.Value, len(comp.Params))
		for k, v := range comp.Params {
			s.Params[k] = v
		}
	}
	return s
}

// Ranker converts the statement's ranking hint. Fusing more than one search
// without an explicit strategy is an error, never a default.
func Ranker(r *queryir.Ranking, searches int) (request.Ranker, error) {
	if r == nil {
		return nil, failure.Unsupported("hybrid search without ranking strategy")
	}
	switch r.Kind {
	case queryir.RankRRF:
		return request.RRF{K: r.K}, nil
	case queryir.RankWeighted:
		if len(r.Weights) != searches {
			return nil, failure.Unsupportedf("weighted ranking with %d weights for %d searches", len(r.Weights), searches)
		}
		return request.Weighted{Weights: slices.Clone(r.Weights)}, nil
	default:
		return nil, failure.Unsupportedf("ranking kind %d", r.Kind)
	}
}
