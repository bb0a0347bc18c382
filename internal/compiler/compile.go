// Package compiler compiles relational statements into vector-store requests.
//
// Compile is the single entry point. It routes each statement kind to its
// builder (Select→Query, Insert→Insert, Update→Upsert, Delete→Delete) and
// owns request-shape promotion: a Select starts as a Query and is promoted to
// Search, then HybridSearch, as independent distance computations are found.
// Promotion is monotonic and additive.
//
// Every call is independent. The builder lives for exactly one call and is
// finalized into an immutable request.Request.
package compiler

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/filter"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/queryir"
	"github.com/roach88/sqlbridge/internal/request"
)

// DefaultMaxTopK is the largest top-K the vector store accepts. ANN requests
// need a concrete cap, so statements without LIMIT get this one.
const DefaultMaxTopK = 16384

// Options configures a Compiler.
type Options struct {
	// Filter tunes IN-list rendering.
	Filter filter.Options

	// MaxTopK is the top-K used when a search has no LIMIT.
	MaxTopK int64
}

// DefaultOptions returns the options used by Compile.
func DefaultOptions() Options {
	return Options{MaxTopK: DefaultMaxTopK}
}

// Compiler compiles statements for the vector store. It holds no per-call
// state and is safe for concurrent use.
type Compiler struct {
	opts Options
}

// New creates a Compiler.
func New(opts Options) *Compiler {
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = DefaultMaxTopK
	}
	return &Compiler{opts: opts}
}

// Compile compiles stmt with DefaultOptions.
func Compile(stmt queryir.Statement) (request.Request, error) {
	return New(DefaultOptions()).Compile(stmt)
}

// Compile compiles one statement.
//
// Structurally malformed statements fail with a plain error. Constructs the
// vector store cannot express fail with failure.Unsupported; unusable id
// predicates with failure.InvalidID.
func (c *Compiler) Compile(stmt queryir.Statement) (request.Request, error) {
	if v := queryir.Validate(stmt); !v.Valid {
		return nil, fmt.Errorf("invalid statement: %s", strings.Join(v.Problems, "; "))
	}

	var (
		req request.Request
		err error
	)
	switch s := stmt.(type) {
	case *queryir.Select:
		req, err = c.compileSelect(s)
	case *queryir.Insert:
		req, err = c.compileInsert(s)
	case *queryir.Update:
		req, err = c.compileUpdate(s)
	case *queryir.Delete:
		req, err = c.compileDelete(s)
	default:
		return nil, failure.Unsupportedf("statement %T", stmt)
	}
	if err != nil {
		log.Debug().Str("statement", queryir.KindName(stmt)).Err(err).Msg("compile rejected")
		return nil, err
	}

	log.Debug().
		Str("statement", queryir.KindName(stmt)).
		Str("request", req.Kind().String()).
		Str("collection", req.CollectionName()).
		Msg("statement compiled")
	return req, nil
}

// pagingValue converts a LIMIT or OFFSET expression.
func pagingValue(clause string, e queryir.Expr) (ir.Value, error) {
	if e == nil {
		return nil, nil
	}
	v, ok := filter.ForeignValue(e)
	if !ok {
		return nil, failure.Unsupportedf("%s %s", clause, queryir.Describe(e))
	}
	switch v.(type) {
	case ir.Int, ir.ParamRef:
		return v, nil
	default:
		return nil, failure.Unsupportedf("%s %s", clause, queryir.Describe(e))
	}
}

// foreignRow converts mutation values, which must be literals or parameters.
func foreignRow(kind string, exprs []queryir.Expr) ([]ir.Value, error) {
	row := make([]ir.Value, len(exprs))
	for i, e := range exprs {
		v, ok := filter.ForeignValue(e)
		if !ok {
			return nil, failure.Unsupportedf("%s value %s", kind, queryir.Describe(e))
		}
		row[i] = v
	}
	return row, nil
}
