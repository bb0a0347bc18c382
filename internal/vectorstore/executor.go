package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/rs/zerolog/log"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/metrics"
	"github.com/roach88/sqlbridge/internal/request"
	"github.com/roach88/sqlbridge/internal/rows"
)

// Executor runs compiled vector requests. Safe for concurrent use.
type Executor struct {
	milvus  Milvus
	metrics *metrics.Recorder

	// schemas caches collection schemas for writes, by collection name.
	schemas sync.Map
}

// NewExecutor creates an executor over m. rec may be nil.
func NewExecutor(m Milvus, rec *metrics.Recorder) *Executor {
	return &Executor{milvus: m, metrics: rec}
}

// Execute binds args into req and runs it. A missing or ill-typed argument
// fails before any server call.
func (e *Executor) Execute(ctx context.Context, req request.Request, args []any) (*rows.Result, error) {
	start := time.Now()
	res, err := e.execute(ctx, req, args)
	e.metrics.ObserveCall(Backend, req.Kind().String(), start, err)

	evt := log.Debug()
	if err != nil {
		evt = log.Warn().Err(err)
	}
	evt.Str("backend", Backend).
		Str("kind", req.Kind().String()).
		Str("collection", req.CollectionName()).
		Dur("latency", time.Since(start)).
		Msg("vector request")
	return res, err
}

func fail(err error, stage Stage) error {
	return failure.Backend(Backend, Classify(err, stage), err)
}

func filterStage(filter string) Stage {
	if filter != "" {
		return StageFilter
	}
	return StageRead
}

func (e *Executor) execute(ctx context.Context, req request.Request, args []any) (*rows.Result, error) {
	b := binder{args: args}

	switch r := req.(type) {
	case *request.Query:
		if r.IsPointLookup() {
			call, err := b.getCall(r)
			if err != nil {
				return nil, err
			}
			hits, err := e.milvus.Get(ctx, call)
			if err != nil {
				return nil, fail(err, StageRead)
			}
			return layout(hits, r.Columns, r.OutputFields, 0)
		}
		call, err := b.queryCall(r)
		if err != nil {
			return nil, err
		}
		if call.Limit == 0 {
			return layout(&Hits{}, r.Columns, r.OutputFields, 0)
		}
		hits, err := e.milvus.Query(ctx, call)
		if err != nil {
			return nil, fail(err, filterStage(call.Filter))
		}
		return layout(hits, r.Columns, r.OutputFields, 0)

	case *request.Search:
		call, err := b.searchCall(r)
		if err != nil {
			return nil, err
		}
		if call.Limit == 0 {
			return layout(&Hits{}, r.Columns, r.OutputFields, 0)
		}
		hits, err := e.milvus.Search(ctx, call)
		if err != nil {
			return nil, fail(err, filterStage(call.Filter))
		}
		return layout(hits, r.Columns, r.OutputFields, 0)

	case *request.HybridSearch:
		call, offset, err := b.hybridCall(r)
		if err != nil {
			return nil, err
		}
		if call.Limit == offset {
			return layout(&Hits{}, r.Columns, r.OutputFields, 0)
		}
		hits, err := e.milvus.HybridSearch(ctx, call)
		if err != nil {
			stage := StageRead
			for _, s := range call.Searches {
				if s.Filter != "" {
					stage = StageFilter
				}
			}
			return nil, fail(err, stage)
		}
		return layout(hits, r.Columns, r.OutputFields, offset)

	case *request.Insert:
		return e.write(ctx, b, r.Collection, r.Fields, r.Rows, true)

	case *request.Upsert:
		return e.write(ctx, b, r.Collection, r.Fields, r.Rows, false)

	case *request.Delete:
		call, err := b.deleteCall(r)
		if err != nil {
			return nil, err
		}
		n, err := e.milvus.Delete(ctx, call)
		if err != nil {
			return nil, fail(err, filterStage(call.Filter))
		}
		return &rows.Result{RowCount: n}, nil

	case *request.CreateCollection:
		schema, err := schemaOf(r)
		if err != nil {
			return nil, err
		}
		e.schemas.Delete(r.Collection)
		err = e.milvus.CreateCollection(ctx, CreateCall{Schema: schema, Indexes: indexCalls(r.Schema.Indexes)})
		if err != nil {
			return nil, fail(err, StageWrite)
		}
		return &rows.Result{}, nil

	case *request.DropCollection:
		e.schemas.Delete(r.Collection)
		if err := e.milvus.DropCollection(ctx, r.Collection); err != nil {
			return nil, fail(err, StageRead)
		}
		return &rows.Result{}, nil

	default:
		return nil, failure.Unsupportedf("request %T", req)
	}
}

// write runs an insert or upsert. Inserts that leave the primary key to
// the server report the keys it generated.
func (e *Executor) write(ctx context.Context, b binder, collection string, fields []string, values [][]ir.Value, insert bool) (*rows.Result, error) {
	schema, err := e.schema(ctx, collection)
	if err != nil {
		return nil, err
	}
	call, err := b.writeCall(schema, collection, fields, values)
	if err != nil {
		return nil, err
	}

	do := e.milvus.Upsert
	if insert {
		do = e.milvus.Insert
	}
	written, err := do(ctx, call)
	if err != nil {
		return nil, fail(err, StageWrite)
	}

	res := &rows.Result{RowCount: written.Count}
	if insert && written.IDs != nil && !hasField(fields, written.IDs.Name()) {
		for i := 0; i < written.IDs.Len(); i++ {
			id, err := cell(written.IDs, i)
			if err != nil {
				return nil, failure.Backend(Backend, failure.KindUnknown, fmt.Errorf("generated id %d: %w", i, err))
			}
			res.GeneratedIDs = append(res.GeneratedIDs, id)
		}
	}
	return res, nil
}

func hasField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// schema returns the cached schema of collection, describing it on a miss.
func (e *Executor) schema(ctx context.Context, collection string) (*entity.Schema, error) {
	if s, ok := e.schemas.Load(collection); ok {
		return s.(*entity.Schema), nil
	}
	s, err := e.milvus.Describe(ctx, collection)
	if err != nil {
		return nil, fail(err, StageRead)
	}
	e.schemas.Store(collection, s)
	return s, nil
}

// layout turns result columns into rows, skipping the first skip rows.
// Without a column layout the output fields are returned as named.
func layout(hits *Hits, columns []request.Column, outputs []string, skip int) (*rows.Result, error) {
	if len(columns) == 0 {
		columns = make([]request.Column, len(outputs))
		for i, f := range outputs {
			columns[i] = request.Column{Label: f, Field: f}
		}
	}

	res := &rows.Result{Columns: make([]string, len(columns))}
	for i, c := range columns {
		res.Columns[i] = c.Label
	}

	n := hits.Count
	n = max(n, len(hits.Scores))
	for _, col := range hits.Fields {
		n = max(n, col.Len())
	}
	if hits.IDs != nil {
		n = max(n, hits.IDs.Len())
	}

	for i := skip; i < n; i++ {
		row := make([]ir.Value, len(columns))
		for j, c := range columns {
			v, err := hitValue(hits, c.Field, i)
			if err != nil {
				return nil, failure.Backend(Backend, failure.KindUnknown, fmt.Errorf("row %d field %s: %w", i, c.Field, err))
			}
			row[j] = v
		}
		res.Append(row)
	}
	return res, nil
}

func hitValue(hits *Hits, field string, i int) (ir.Value, error) {
	if field == request.DistanceField {
		if i >= len(hits.Scores) {
			return ir.Null{}, nil
		}
		return ir.Float(widen(hits.Scores[i])), nil
	}
	col := hits.Column(field)
	if col == nil || i >= col.Len() {
		return ir.Null{}, nil
	}
	return cell(col, i)
}
