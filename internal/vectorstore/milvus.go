// Package vectorstore executes compiled vector requests against a Milvus
// server through the official Go SDK.
package vectorstore

import (
	"context"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
)

// Backend is the backend name carried by errors and metrics.
const Backend = "vector"

// Milvus is the set of server calls the executor makes. Client implements
// it over the SDK.
type Milvus interface {
	Get(ctx context.Context, call GetCall) (*Hits, error)
	Query(ctx context.Context, call QueryCall) (*Hits, error)
	Search(ctx context.Context, call SearchCall) (*Hits, error)
	HybridSearch(ctx context.Context, call HybridCall) (*Hits, error)
	Insert(ctx context.Context, call WriteCall) (*Written, error)
	Upsert(ctx context.Context, call WriteCall) (*Written, error)
	Delete(ctx context.Context, call DeleteCall) (int64, error)
	Describe(ctx context.Context, collection string) (*entity.Schema, error)
	CreateCollection(ctx context.Context, call CreateCall) error
	DropCollection(ctx context.Context, collection string) error
}

// Unbounded marks an unset limit or offset.
const Unbounded = -1

// GetCall reads rows by primary key.
type GetCall struct {
	Collection   string
	IDs          column.Column
	OutputFields []string
}

// QueryCall reads rows matching a filter.
type QueryCall struct {
	Collection   string
	Filter       string
	Params       map[string]any
	OutputFields []string
	Limit        int
	Offset       int
}

// SearchCall is one ANN search with a single query vector.
type SearchCall struct {
	Collection   string
	AnnsField    string
	Vector       []float32
	Metric       entity.MetricType
	Limit        int
	Offset       int
	Filter       string
	Params       map[string]any
	SearchParams map[string]string // radius, range_filter
	GroupBy      string
	OutputFields []string
}

// HybridCall fuses sub-searches. Sub-search collection and output fields
// are ignored in favor of the parent's.
type HybridCall struct {
	Collection   string
	Searches     []SearchCall
	RRFK         float64   // used when Weights is empty
	Weights      []float64 // weighted ranker, one per search
	Limit        int
	OutputFields []string
}

// WriteCall carries insert or upsert rows as typed columns.
type WriteCall struct {
	Collection string
	Columns    []column.Column
}

// Written reports a completed insert or upsert.
type Written struct {
	Count int64
	IDs   column.Column
}

// DeleteCall removes rows by primary key or by a self-contained filter.
type DeleteCall struct {
	Collection string
	PrimaryKey string
	IDs        column.Column // nil when Filter is set
	Filter     string
}

// CreateCall creates a collection with its indexes.
type CreateCall struct {
	Schema  *entity.Schema
	Indexes []IndexCall
}

// IndexCall describes one index built with a new collection.
type IndexCall struct {
	Field     string
	Metric    entity.MetricType
	IndexType string // empty means AUTOINDEX
}

// Hits is one page of read results in column form. Scores is set for
// searches only.
type Hits struct {
	IDs    column.Column
	Fields []column.Column
	Scores []float32
	Count  int
}

// Column returns the result column named name, or nil.
func (h *Hits) Column(name string) column.Column {
	for _, c := range h.Fields {
		if c.Name() == name {
			return c
		}
	}
	if h.IDs != nil && h.IDs.Name() == name {
		return h.IDs
	}
	return nil
}
