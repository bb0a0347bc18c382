// Package request defines the target requests the compilers produce.
//
// Vector-store requests form a sealed union (Query, Search, HybridSearch,
// Insert, Upsert, Delete, CreateCollection, DropCollection). Graph-store
// statements are Templates: Cypher text interleaved with foreign values that
// are inlined at render time.
//
// Requests are immutable once a compiler returns them. Every runtime value is
// an ir.Value; ParamRefs stay unresolved until the executor binds arguments.
package request

import (
	"github.com/roach88/sqlbridge/internal/ir"
)

// Kind identifies a request variant.
type Kind int

const (
	KindQuery Kind = iota
	KindSearch
	KindHybridSearch
	KindInsert
	KindUpsert
	KindDelete
	KindCreateCollection
	KindDropCollection
)

var kindNames = [...]string{"query", "search", "hybrid_search", "insert", "upsert", "delete", "create_collection", "drop_collection"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Request is a compiled vector-store request.
//
// This is a sealed interface - only the pointer types in this package
// implement it.
type Request interface {
	requestNode() // Marker method - seals interface to this package
	Kind() Kind
	CollectionName() string
}

// DistanceField is the synthetic output field that stands for the distance
// score. It appears in Columns but never in OutputFields: the backend returns
// the score out of band.
const DistanceField = "$distance"

// Column is one column of the result row layout.
type Column struct {
	Label string // Result column name
	Field string // Backend field, or DistanceField
}

// Query is a scalar query or primary-key point lookup.
type Query struct {
	Collection   string
	PrimaryKey   string              // Field the ids key on
	IDs          []ir.Value          // Point lookup when non-empty
	Filter       string              // Milvus boolean expression; empty means none
	Template     map[string]ir.Value // Placeholder name -> value for Filter
	OutputFields []string
	Columns      []Column
	Offset       ir.Value // nil = unset
	Limit        ir.Value // nil = unset
}

func (*Query) requestNode()             {}
func (*Query) Kind() Kind               { return KindQuery }
func (q *Query) CollectionName() string { return q.Collection }

// IsPointLookup reports whether the query reads rows by primary key only.
func (q *Query) IsPointLookup() bool {
	return len(q.IDs) > 0 && q.Filter == ""
}

// Search is a single ANN search.
type Search struct {
	Collection    string
	AnnsField     string
	Vector        ir.Value
	Metric        Distance
	TopK          ir.Value
	Offset        ir.Value            // nil = unset
	Params        map[string]ir.Value // radius, range_filter
	GroupingField string
	Filter        string
	Template      map[string]ir.Value
	OutputFields  []string
	Columns       []Column
}

func (*Search) requestNode()             {}
func (*Search) Kind() Kind               { return KindSearch }
func (s *Search) CollectionName() string { return s.Collection }

// Search parameter keys.
const (
	ParamRadius      = "radius"
	ParamRangeFilter = "range_filter"
)

// HybridSearch fuses several ANN searches with a ranker.
type HybridSearch struct {
	Collection   string
	Searches     []*Search
	Ranker       Ranker
	TopK         ir.Value
	Offset       ir.Value // nil = unset
	OutputFields []string
	Columns      []Column
}

func (*HybridSearch) requestNode()             {}
func (*HybridSearch) Kind() Kind               { return KindHybridSearch }
func (h *HybridSearch) CollectionName() string { return h.Collection }

// Ranker is a hybrid-search fusion strategy.
//
// This is a sealed interface - only RRF and Weighted implement it.
type Ranker interface {
	rankerNode()
}

// RRF is reciprocal-rank fusion with smoothing constant K.
type RRF struct {
	K int
}

func (RRF) rankerNode() {}

// Weighted is a weighted score sum, one weight per sub-search.
type Weighted struct {
	Weights []float64
}

func (Weighted) rankerNode() {}

// Insert writes new rows.
type Insert struct {
	Collection string
	Fields     []string
	Rows       [][]ir.Value // one value per field
}

func (*Insert) requestNode()             {}
func (*Insert) Kind() Kind               { return KindInsert }
func (i *Insert) CollectionName() string { return i.Collection }

// Upsert writes rows, replacing those with the same primary key.
type Upsert struct {
	Collection string
	Fields     []string
	Rows       [][]ir.Value
}

func (*Upsert) requestNode()             {}
func (*Upsert) Kind() Kind               { return KindUpsert }
func (u *Upsert) CollectionName() string { return u.Collection }

// Delete removes rows by id list or filter.
type Delete struct {
	Collection string
	PrimaryKey string // Field the ids key on
	IDs        []ir.Value
	Filter     string
	Template   map[string]ir.Value
}

func (*Delete) requestNode()             {}
func (*Delete) Kind() Kind               { return KindDelete }
func (d *Delete) CollectionName() string { return d.Collection }

// CreateCollection applies a declarative schema.
type CreateCollection struct {
	Collection string
	Schema     Schema
}

func (*CreateCollection) requestNode()             {}
func (*CreateCollection) Kind() Kind               { return KindCreateCollection }
func (c *CreateCollection) CollectionName() string { return c.Collection }

// DropCollection removes a collection.
type DropCollection struct {
	Collection string
}

func (*DropCollection) requestNode()             {}
func (*DropCollection) Kind() Kind               { return KindDropCollection }
func (d *DropCollection) CollectionName() string { return d.Collection }

// Schema is a declarative collection schema.
type Schema struct {
	AutoID  bool          `yaml:"auto_id"`
	Fields  []FieldSchema `yaml:"fields"`
	Indexes []IndexSpec   `yaml:"indexes"`
}

// FieldSchema describes one collection field.
type FieldSchema struct {
	Name        string `yaml:"name"`
	DataType    string `yaml:"type"` // Int64, VarChar, FloatVector, ...
	Primary     bool   `yaml:"primary"`
	Dim         int    `yaml:"dim"`
	MaxLength   int    `yaml:"max_length"`
	ElementType string `yaml:"element_type"`
	Nullable    bool   `yaml:"nullable"`
}

// IndexSpec describes a vector index.
type IndexSpec struct {
	Field     string   `yaml:"field"`
	Metric    Distance `yaml:"metric"`
	IndexType string   `yaml:"index_type"`
}
