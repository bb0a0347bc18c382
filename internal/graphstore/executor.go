package graphstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/metrics"
	"github.com/roach88/sqlbridge/internal/querygraph"
	"github.com/roach88/sqlbridge/internal/request"
	"github.com/roach88/sqlbridge/internal/rows"
)

// Backend is the backend name carried by errors and metrics.
const Backend = "graph"

// Executor renders templates and runs them on a Graph.
type Executor struct {
	graph   Graph
	ids     querygraph.IDGenerator
	metrics *metrics.Recorder
}

// Option configures an Executor.
type Option func(*Executor)

// WithIDGenerator replaces the UUIDv7 key generator.
func WithIDGenerator(gen querygraph.IDGenerator) Option {
	return func(e *Executor) { e.ids = gen }
}

// WithMetrics records calls on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(e *Executor) { e.metrics = rec }
}

// NewExecutor creates an executor over g.
func NewExecutor(g Graph, opts ...Option) *Executor {
	e := &Executor{graph: g, ids: querygraph.UUIDv7Generator{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute binds args into tpl and runs the statement.
//
// Reads return the template's columns. Creates and deletes report the node
// counters as RowCount; updates report the matched-node count the template
// returns. Inserts also return the keys generated for rows that supplied none.
func (e *Executor) Execute(ctx context.Context, tpl *request.Template, args []any) (*rows.Result, error) {
	start := time.Now()
	res, err := e.execute(ctx, tpl, args)
	e.metrics.ObserveCall(Backend, tpl.Mutation.String(), start, err)

	evt := log.Debug()
	if err != nil {
		evt = log.Warn().Err(err)
	}
	evt.Str("backend", Backend).
		Str("mutation", tpl.Mutation.String()).
		Str("label", tpl.Label).
		Dur("latency", time.Since(start)).
		Msg("graph request")
	return res, err
}

func (e *Executor) execute(ctx context.Context, tpl *request.Template, args []any) (*rows.Result, error) {
	rendered, err := querygraph.Render(tpl, args, e.ids)
	if err != nil {
		return nil, failure.Backend(Backend, failure.KindBadArgument, err)
	}

	recs, err := e.graph.Query(ctx, rendered.Text)
	if err != nil {
		return nil, failure.Backend(Backend, Classify(err), err)
	}

	res := &rows.Result{GeneratedIDs: rendered.GeneratedIDs}
	switch tpl.Mutation {
	case request.MutationCreate:
		res.RowCount = int64(recs.Stats.NodesCreated)
		return res, nil
	case request.MutationSet:
		n, err := updatedCount(recs)
		if err != nil {
			return nil, failure.Backend(Backend, failure.KindUnknown, err)
		}
		res.RowCount = n
		return res, nil
	case request.MutationDelete:
		res.RowCount = int64(recs.Stats.NodesDeleted)
		return res, nil
	}

	res.Columns = tpl.Columns
	for i, rec := range recs.Rows {
		row := make([]ir.Value, len(rec))
		for j, cell := range rec {
			v, err := ir.Literal(cell)
			if err != nil {
				return nil, failure.Backend(Backend, failure.KindUnknown, fmt.Errorf("row %d column %d: %w", i, j, err))
			}
			row[j] = v
		}
		res.Append(row)
	}
	return res, nil
}

// updatedCount reads the matched-node count an UPDATE template returns.
func updatedCount(recs *Records) (int64, error) {
	if len(recs.Rows) != 1 || len(recs.Rows[0]) != 1 {
		return 0, fmt.Errorf("update returned %d rows, want one %s count", len(recs.Rows), querygraph.UpdatedColumn)
	}
	v, err := ir.Literal(recs.Rows[0][0])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", querygraph.UpdatedColumn, err)
	}
	n, ok := v.(ir.Int)
	if !ok {
		return 0, fmt.Errorf("%s is %s, want an integer", querygraph.UpdatedColumn, v.Kind())
	}
	return int64(n), nil
}

// Classify maps a Redis or FalkorDB error to a backend error kind.
func Classify(err error) failure.BackendKind {
	var serverErr redis.Error
	if !errors.As(err, &serverErr) {
		var netErr net.Error
		switch {
		case errors.As(err, &netErr),
			errors.Is(err, io.EOF),
			errors.Is(err, redis.ErrPoolExhausted),
			errors.Is(err, context.DeadlineExceeded),
			errors.Is(err, context.Canceled):
			return failure.KindUnavailable
		default:
			return failure.KindUnknown
		}
	}

	msg := strings.ToLower(string(serverErr))
	switch {
	case strings.Contains(msg, "unique constraint"),
		strings.Contains(msg, "already exists"),
		strings.Contains(msg, "constraint violation"):
		return failure.KindConstraintViolation
	case strings.Contains(msg, "invalid input"),
		strings.Contains(msg, "syntax error"),
		strings.Contains(msg, "errmsg"):
		return failure.KindMalformedFilter
	case strings.Contains(msg, "type mismatch"),
		strings.Contains(msg, "vector dimension"):
		return failure.KindBadArgument
	case strings.Contains(msg, "unknown command"),
		strings.Contains(msg, "loading"):
		return failure.KindUnavailable
	case strings.Contains(msg, "invalid graph operation on empty key"),
		strings.Contains(msg, "not defined"):
		return failure.KindNotFound
	default:
		return failure.KindUnknown
	}
}
