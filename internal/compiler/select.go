package compiler

import (
	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/filter"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/queryir"
	"github.com/roach88/sqlbridge/internal/request"
	"github.com/roach88/sqlbridge/internal/vsearch"
)

// shape is the request kind a SELECT compiles to. Values only grow.
type shape int

const (
	shapeQuery shape = iota
	shapeSearch
	shapeHybrid
)

// selectBuilder holds the mutable state of one SELECT compilation.
type selectBuilder struct {
	opts    Options
	sel     *queryir.Select
	scope   filter.Scope
	extract *vsearch.Extractor
	shape   shape

	outputs  vsearch.Outputs
	class    filter.Classification
	limit    ir.Value
	offset   ir.Value
	grouping string
}

// promote raises the request shape to match the components found so far.
func (b *selectBuilder) promote() {
	var want shape
	switch n := len(b.extract.Components()); {
	case n == 0:
		want = shapeQuery
	case n == 1:
		want = shapeSearch
	default:
		want = shapeHybrid
	}
	if want > b.shape {
		b.shape = want
	}
}

func (c *Compiler) compileSelect(sel *queryir.Select) (request.Request, error) {
	if err := checkSelect(sel); err != nil {
		return nil, err
	}
	scope, err := filter.ScopeOf(sel)
	if err != nil {
		return nil, err
	}

	b := &selectBuilder{
		opts:    c.opts,
		sel:     sel,
		scope:   scope,
		extract: vsearch.New(scope),
	}

	if b.outputs, err = b.extract.Project(sel.Projection); err != nil {
		return nil, err
	}
	b.promote()

	if b.class, err = filter.Classify(sel.Where, scope, b.extract); err != nil {
		return nil, err
	}
	b.promote()

	if err := b.extract.OrderBy(sel.OrderBy, sel.Projection); err != nil {
		return nil, err
	}
	b.promote()

	if b.limit, err = pagingValue("LIMIT", sel.Limit); err != nil {
		return nil, err
	}
	if b.offset, err = pagingValue("OFFSET", sel.Offset); err != nil {
		return nil, err
	}
	if err := b.groupBy(); err != nil {
		return nil, err
	}
	if b.outputs.Count && b.shape != shapeQuery {
		return nil, failure.Unsupported("count(*) with vector search")
	}

	return b.finish()
}

// checkSelect rejects constructs the vector store has no equivalent for.
func checkSelect(sel *queryir.Select) error {
	switch {
	case len(sel.With) > 0:
		return failure.Unsupported("CTE")
	case sel.Distinct:
		return failure.Unsupported("DISTINCT")
	case sel.Having != nil:
		return failure.Unsupported("HAVING")
	case len(sel.GroupBy) > 1:
		return failure.Unsupported("GROUP BY with more than one expression")
	case sel.Lock.Blocking():
		return failure.Unsupportedf("lock mode %s", sel.Lock)
	}
	return nil
}

func (b *selectBuilder) groupBy() error {
	if len(b.sel.GroupBy) == 0 {
		return nil
	}
	col, ok := b.sel.GroupBy[0].(*queryir.Column)
	if !ok {
		return failure.Unsupportedf("GROUP BY %s", queryir.Describe(b.sel.GroupBy[0]))
	}
	if b.shape != shapeSearch {
		return failure.Unsupported("GROUP BY outside a single vector search")
	}
	b.grouping = col.Name
	return nil
}

// filterText renders the residual predicate with any ids folded in front.
func (b *selectBuilder) filterText() (string, map[string]ir.Value, error) {
	if b.class.False {
		return "false", nil, nil
	}
	ph := filter.NewPlaceholders()
	r := filter.NewRenderer(b.scope, b.opts.Filter, ph)

	var ids string
	if len(b.class.IDs) > 0 {
		ids = r.IDFilter(b.class.IDs, b.class.IDArray)
	}
	residual, err := r.Render(b.class.Residual)
	if err != nil {
		return "", nil, err
	}
	return filter.And(ids, residual), ph.Values(), nil
}

func (b *selectBuilder) finish() (request.Request, error) {
	collection := b.scope.Root.Name
	switch b.shape {
	case shapeQuery:
		return b.finishQuery(collection)
	case shapeSearch:
		text, tmpl, err := b.filterText()
		if err != nil {
			return nil, err
		}
		topK, err := b.topK()
		if err != nil {
			return nil, err
		}
		s := vsearch.SearchOf(b.extract.Components()[0], collection, topK)
		s.Offset = b.offset
		s.GroupingField = b.grouping
		s.Filter, s.Template = text, tmpl
		s.OutputFields = b.outputs.Fields
		s.Columns = b.outputs.Columns
		return s, nil
	default:
		return b.finishHybrid(collection)
	}
}

func (b *selectBuilder) finishQuery(collection string) (request.Request, error) {
	q := &request.Query{
		Collection:   collection,
		PrimaryKey:   b.scope.Root.PrimaryKey,
		OutputFields: b.outputs.Fields,
		Columns:      b.outputs.Columns,
		Offset:       b.offset,
		Limit:        b.limit,
	}
	// A point lookup carries ids alone; anything else needs them in the filter.
	lookup := len(b.class.IDs) > 0 && b.class.Residual == nil && !b.class.False &&
		b.limit == nil && b.offset == nil && !b.outputs.Count
	if lookup {
		q.IDs = b.class.IDs
		return q, nil
	}
	text, tmpl, err := b.filterText()
	if err != nil {
		return nil, err
	}
	q.Filter, q.Template = text, tmpl
	// The store refuses an unrestricted query without a limit.
	if q.Filter == "" && q.Limit == nil && !b.outputs.Count {
		limit, err := b.defaultLimit()
		if err != nil {
			return nil, err
		}
		q.Limit = limit
	}
	return q, nil
}

func (b *selectBuilder) finishHybrid(collection string) (request.Request, error) {
	comps := b.extract.Components()
	ranker, err := vsearch.Ranker(b.sel.Ranking, len(comps))
	if err != nil {
		return nil, err
	}
	text, tmpl, err := b.filterText()
	if err != nil {
		return nil, err
	}

	topK, err := b.topK()
	if err != nil {
		return nil, err
	}
	h := &request.HybridSearch{
		Collection:   collection,
		Ranker:       ranker,
		TopK:         topK,
		Offset:       b.offset,
		OutputFields: b.outputs.Fields,
		Columns:      b.outputs.Columns,
	}
	for _, comp := range comps {
		s := vsearch.SearchOf(comp, collection, topK)
		s.Filter = text
		s.Template = copyTemplate(tmpl)
		h.Searches = append(h.Searches, s)
	}
	return h, nil
}

func (b *selectBuilder) topK() (ir.Value, error) {
	if b.limit != nil {
		return b.limit, nil
	}
	return b.defaultLimit()
}

// defaultLimit fills a missing LIMIT so that offset plus limit stays within
// MaxTopK. A runtime OFFSET cannot be checked and needs an explicit LIMIT.
func (b *selectBuilder) defaultLimit() (ir.Value, error) {
	switch off := b.offset.(type) {
	case nil:
		return ir.Int(b.opts.MaxTopK), nil
	case ir.Int:
		if int64(off) >= b.opts.MaxTopK {
			return nil, failure.Unsupportedf("OFFSET %d without LIMIT", int64(off))
		}
		return ir.Int(b.opts.MaxTopK - int64(off)), nil
	default:
		return nil, failure.Unsupported("parameterized OFFSET without LIMIT")
	}
}

func copyTemplate(m map[string]ir.Value) map[string]ir.Value {
	if m == nil {
		return nil
	}
	out := make(map[string]ir.Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
