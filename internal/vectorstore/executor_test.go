package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/metrics"
	"github.com/roach88/sqlbridge/internal/request"
)

// fakeMilvus records the last call of each kind and answers with canned
// results.
type fakeMilvus struct {
	calls int

	get    GetCall
	query  QueryCall
	search SearchCall
	hybrid HybridCall
	write  WriteCall
	del    DeleteCall
	create CreateCall
	drop   string

	hits      *Hits
	written   *Written
	deleted   int64
	schema    *entity.Schema
	describes int
	err       error
}

func (f *fakeMilvus) reply() (*Hits, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.hits == nil {
		return &Hits{}, nil
	}
	return f.hits, nil
}

func (f *fakeMilvus) Get(_ context.Context, call GetCall) (*Hits, error) {
	f.get = call
	return f.reply()
}

func (f *fakeMilvus) Query(_ context.Context, call QueryCall) (*Hits, error) {
	f.query = call
	return f.reply()
}

func (f *fakeMilvus) Search(_ context.Context, call SearchCall) (*Hits, error) {
	f.search = call
	return f.reply()
}

func (f *fakeMilvus) HybridSearch(_ context.Context, call HybridCall) (*Hits, error) {
	f.hybrid = call
	return f.reply()
}

func (f *fakeMilvus) Insert(_ context.Context, call WriteCall) (*Written, error) {
	f.write = call
	f.calls++
	return f.written, f.err
}

func (f *fakeMilvus) Upsert(_ context.Context, call WriteCall) (*Written, error) {
	f.write = call
	f.calls++
	return f.written, f.err
}

func (f *fakeMilvus) Delete(_ context.Context, call DeleteCall) (int64, error) {
	f.del = call
	f.calls++
	return f.deleted, f.err
}

func (f *fakeMilvus) Describe(context.Context, string) (*entity.Schema, error) {
	f.describes++
	return f.schema, nil
}

func (f *fakeMilvus) CreateCollection(_ context.Context, call CreateCall) error {
	f.create = call
	f.calls++
	return f.err
}

func (f *fakeMilvus) DropCollection(_ context.Context, name string) error {
	f.drop = name
	f.calls++
	return f.err
}

func newFake(hits *Hits) (*fakeMilvus, *Executor) {
	fake := &fakeMilvus{hits: hits}
	return fake, NewExecutor(fake, nil)
}

var layoutColumns = []request.Column{
	{Label: "id", Field: "id"},
	{Label: "title", Field: "title"},
	{Label: "distance", Field: request.DistanceField},
}

func docsSchema() *entity.Schema {
	return entity.NewSchema().WithName("docs").
		WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeInt64).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName("title").WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
		WithField(entity.NewField().WithName("embedding").WithDataType(entity.FieldTypeFloatVector).WithDim(2)).
		WithField(entity.NewField().WithName("tags").WithDataType(entity.FieldTypeArray).WithElementType(entity.FieldTypeInt64))
}

func TestExecute_PointLookup(t *testing.T) {
	fake, exec := newFake(&Hits{
		IDs: column.NewColumnInt64("id", []int64{7}),
		Fields: []column.Column{
			column.NewColumnInt64("id", []int64{7}),
			column.NewColumnVarChar("title", []string{"seven"}),
		},
		Count: 1,
	})

	res, err := exec.Execute(context.Background(), &request.Query{
		Collection:   "docs",
		PrimaryKey:   "id",
		IDs:          []ir.Value{ir.Param(0)},
		OutputFields: []string{"id", "title"},
		Columns:      layoutColumns[:2],
	}, []any{int64(7)})
	require.NoError(t, err)

	assert.Equal(t, "docs", fake.get.Collection)
	assert.Equal(t, "id", fake.get.IDs.Name())
	id, err := fake.get.IDs.GetAsInt64(0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, []string{"id", "title"}, res.Columns)
	assert.Equal(t, [][]ir.Value{{ir.Int(7), ir.String("seven")}}, res.Rows)
	assert.Equal(t, int64(1), res.RowCount)
}

func TestExecute_QueryWithTemplate(t *testing.T) {
	fake, exec := newFake(&Hits{
		Fields: []column.Column{column.NewColumnInt64("count(*)", []int64{12})},
	})

	res, err := exec.Execute(context.Background(), &request.Query{
		Collection:   "docs",
		Filter:       "status == {p1} && rank in {p2}",
		Template:     map[string]ir.Value{"p1": ir.Param(0), "p2": ir.Array{ir.Int(1), ir.Int(2)}},
		OutputFields: []string{"count(*)"},
		Columns:      []request.Column{{Label: "count", Field: "count(*)"}},
		Limit:        ir.Int(5),
	}, []any{"open"})
	require.NoError(t, err)

	assert.Equal(t, QueryCall{
		Collection:   "docs",
		Filter:       "status == {p1} && rank in {p2}",
		Params:       map[string]any{"p1": "open", "p2": []int64{1, 2}},
		OutputFields: []string{"count(*)"},
		Limit:        5,
		Offset:       Unbounded,
	}, fake.query)
	assert.Equal(t, [][]ir.Value{{ir.Int(12)}}, res.Rows)
}

func TestExecute_LimitZeroSkipsServer(t *testing.T) {
	fake, exec := newFake(nil)

	res, err := exec.Execute(context.Background(), &request.Query{
		Collection: "docs",
		Limit:      ir.Int(0),
		Columns:    layoutColumns[:1],
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, fake.calls)
	assert.Equal(t, []string{"id"}, res.Columns)
	assert.Empty(t, res.Rows)
}

func TestExecute_Search(t *testing.T) {
	fake, exec := newFake(&Hits{
		IDs:    column.NewColumnInt64("id", []int64{1, 2}),
		Fields: []column.Column{column.NewColumnInt64("id", []int64{1, 2})},
		Scores: []float32{0.12, 0.5},
		Count:  2,
	})

	res, err := exec.Execute(context.Background(), &request.Search{
		Collection:    "docs",
		AnnsField:     "embedding",
		Vector:        ir.Param(0),
		Metric:        request.Cosine,
		TopK:          ir.Int(10),
		Params:        map[string]ir.Value{request.ParamRadius: ir.Float(0.2)},
		GroupingField: "author",
		OutputFields:  []string{"id", "title"},
		Columns:       layoutColumns,
	}, []any{[]float64{0.5, 1}})
	require.NoError(t, err)

	assert.Equal(t, SearchCall{
		Collection:   "docs",
		AnnsField:    "embedding",
		Vector:       []float32{0.5, 1},
		Metric:       entity.COSINE,
		Limit:        10,
		Offset:       Unbounded,
		SearchParams: map[string]string{"radius": "0.2"},
		GroupBy:      "author",
		OutputFields: []string{"id", "title"},
	}, fake.search)

	assert.Equal(t, []string{"id", "title", "distance"}, res.Columns)
	assert.Equal(t, [][]ir.Value{
		{ir.Int(1), ir.Null{}, ir.Float(0.12)},
		{ir.Int(2), ir.Null{}, ir.Float(0.5)},
	}, res.Rows)
}

func TestExecute_HybridSearch(t *testing.T) {
	fake, exec := newFake(&Hits{
		IDs:    column.NewColumnInt64("id", []int64{3, 4, 5}),
		Scores: []float32{0.03, 0.02, 0.01},
	})

	sub := func(field string, pos int) *request.Search {
		return &request.Search{
			Collection: "docs",
			AnnsField:  field,
			Vector:     ir.Param(pos),
			Metric:     request.Euclidean,
			TopK:       ir.Int(4),
			Filter:     "lang == {p1}",
			Template:   map[string]ir.Value{"p1": ir.String("en")},
		}
	}
	res, err := exec.Execute(context.Background(), &request.HybridSearch{
		Collection:   "docs",
		Searches:     []*request.Search{sub("text_vec", 0), sub("image_vec", 1)},
		Ranker:       request.Weighted{Weights: []float64{0.7, 0.3}},
		TopK:         ir.Int(2),
		Offset:       ir.Int(1),
		OutputFields: []string{"id"},
		Columns:      []request.Column{layoutColumns[0], layoutColumns[2]},
	}, []any{[]float32{1, 0}, []float32{0, 1}})
	require.NoError(t, err)

	require.Len(t, fake.hybrid.Searches, 2)
	first := fake.hybrid.Searches[0]
	assert.Equal(t, "text_vec", first.AnnsField)
	assert.Equal(t, "lang == {p1}", first.Filter)
	assert.Equal(t, map[string]any{"p1": "en"}, first.Params)
	assert.Equal(t, entity.L2, first.Metric)
	assert.Equal(t, []float64{0.7, 0.3}, fake.hybrid.Weights)
	assert.Equal(t, 3, fake.hybrid.Limit, "server ranks limit+offset rows")
	assert.Equal(t, [][]ir.Value{
		{ir.Int(4), ir.Float(0.02)},
		{ir.Int(5), ir.Float(0.01)},
	}, res.Rows)
}

func TestExecute_HybridRanker(t *testing.T) {
	tests := []struct {
		name    string
		ranker  request.Ranker
		rrfK    float64
		weights []float64
		kind    failure.BackendKind
	}{
		{name: "rrf", ranker: request.RRF{K: 60}, rrfK: 60},
		{name: "weighted", ranker: request.Weighted{Weights: []float64{1}}, weights: []float64{1}},
		{name: "weight count mismatch", ranker: request.Weighted{Weights: []float64{0.5, 0.5}}, kind: failure.KindBadArgument},
		{name: "no ranker", kind: failure.KindBadArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, exec := newFake(nil)
			_, err := exec.Execute(context.Background(), &request.HybridSearch{
				Collection: "docs",
				Searches: []*request.Search{{
					AnnsField: "v", Vector: ir.Vector{1}, Metric: request.Cosine, TopK: ir.Int(1),
				}},
				Ranker: tt.ranker,
				TopK:   ir.Int(1),
			}, nil)
			if tt.kind != "" {
				assert.Equal(t, tt.kind, failure.KindOf(err))
				assert.Zero(t, fake.calls)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.rrfK, fake.hybrid.RRFK)
			assert.Equal(t, tt.weights, fake.hybrid.Weights)
		})
	}
}

func TestExecute_ColumnTypesDecideShape(t *testing.T) {
	fake, exec := newFake(&Hits{
		Fields: []column.Column{
			column.NewColumnInt64("id", []int64{1}),
			column.NewColumnFloatVector("embedding", 3, [][]float32{{1, 0, 0}}),
			column.NewColumnInt64Array("tags", [][]int64{{4, 5}}),
			column.NewColumnDoubleArray("weights", [][]float64{{0.5, 1}}),
			column.NewColumnFloat("score", []float32{0.12}),
			column.NewColumnBool("live", []bool{true}),
			column.NewColumnJSONBytes("meta", [][]byte{[]byte(`{"b":1}`)}),
		},
	})
	fields := []string{"id", "embedding", "tags", "weights", "score", "live", "meta"}

	res, err := exec.Execute(context.Background(), &request.Query{
		Collection:   "docs",
		Filter:       "id > 0",
		OutputFields: fields,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, fake.calls)

	assert.Equal(t, fields, res.Columns)
	assert.Equal(t, [][]ir.Value{{
		ir.Int(1),
		ir.Vector{1, 0, 0},
		ir.Array{ir.Int(4), ir.Int(5)},
		ir.Array{ir.Float(0.5), ir.Float(1)},
		ir.Float(0.12),
		ir.Bool(true),
		ir.String(`{"b":1}`),
	}}, res.Rows)
}

func TestExecute_Writes(t *testing.T) {
	t.Run("insert with generated ids", func(t *testing.T) {
		fake, exec := newFake(nil)
		fake.schema = docsSchema()
		fake.written = &Written{Count: 2, IDs: column.NewColumnInt64("id", []int64{451, 452})}

		res, err := exec.Execute(context.Background(), &request.Insert{
			Collection: "docs",
			Fields:     []string{"title", "embedding", "tags"},
			Rows: [][]ir.Value{
				{ir.String("a"), ir.Vector{0.5, 0.25}, ir.Array{ir.Int(1)}},
				{ir.Param(0), ir.Param(1), ir.Array{}},
			},
		}, []any{"b", []int64{1, 1}})
		require.NoError(t, err)

		cols := fake.write.Columns
		require.Len(t, cols, 3)
		assert.Equal(t, entity.FieldTypeVarChar, cols[0].Type())
		assert.Equal(t, entity.FieldTypeFloatVector, cols[1].Type())
		assert.Equal(t, entity.FieldTypeArray, cols[2].Type())
		second, err := cols[1].Get(1)
		require.NoError(t, err)
		assert.Equal(t, entity.FloatVector{1, 1}, second)

		assert.Equal(t, int64(2), res.RowCount)
		assert.Equal(t, []ir.Value{ir.Int(451), ir.Int(452)}, res.GeneratedIDs)
	})

	t.Run("upsert", func(t *testing.T) {
		fake, exec := newFake(nil)
		fake.schema = docsSchema()
		fake.written = &Written{Count: 1, IDs: column.NewColumnInt64("id", []int64{9})}

		res, err := exec.Execute(context.Background(), &request.Upsert{
			Collection: "docs",
			Fields:     []string{"id", "title"},
			Rows:       [][]ir.Value{{ir.Param(1), ir.Param(0)}},
		}, []any{"new", int64(9)})
		require.NoError(t, err)
		assert.Equal(t, entity.FieldTypeInt64, fake.write.Columns[0].Type())
		assert.Equal(t, int64(1), res.RowCount)
		assert.Empty(t, res.GeneratedIDs)
	})

	t.Run("schema cached across writes", func(t *testing.T) {
		fake, exec := newFake(nil)
		fake.schema = docsSchema()
		fake.written = &Written{Count: 1}
		insert := &request.Insert{Collection: "docs", Fields: []string{"title"}, Rows: [][]ir.Value{{ir.String("x")}}}

		for range 2 {
			_, err := exec.Execute(context.Background(), insert, nil)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, fake.describes)
	})

	t.Run("delete by ids", func(t *testing.T) {
		fake, exec := newFake(nil)
		fake.deleted = 2
		res, err := exec.Execute(context.Background(), &request.Delete{
			Collection: "docs",
			PrimaryKey: "id",
			IDs:        []ir.Value{ir.Int(1), ir.Param(0)},
		}, []any{int64(2)})
		require.NoError(t, err)
		assert.Equal(t, "id", fake.del.PrimaryKey)
		assert.Equal(t, 2, fake.del.IDs.Len())
		assert.Empty(t, fake.del.Filter)
		assert.Equal(t, int64(2), res.RowCount)
	})

	t.Run("delete by filter reports the server count", func(t *testing.T) {
		fake, exec := newFake(nil)
		fake.deleted = 5
		res, err := exec.Execute(context.Background(), &request.Delete{
			Collection: "docs",
			PrimaryKey: "id",
			Filter:     "rank > {p1} && title == {p2}",
			Template:   map[string]ir.Value{"p1": ir.Int(3), "p2": ir.Param(0)},
		}, []any{`say "hi"`})
		require.NoError(t, err)
		assert.Nil(t, fake.del.IDs)
		assert.Equal(t, `rank > 3 && title == "say \"hi\""`, fake.del.Filter)
		assert.Equal(t, int64(5), res.RowCount)
	})
}

func TestExecute_WriteRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		row    []ir.Value
		kind   failure.BackendKind
	}{
		{"dimension mismatch", []string{"embedding"}, []ir.Value{ir.Vector{1, 2, 3}}, failure.KindConstraintViolation},
		{"unknown field", []string{"body"}, []ir.Value{ir.String("x")}, failure.KindConstraintViolation},
		{"wrong type", []string{"title"}, []ir.Value{ir.Int(1)}, failure.KindConstraintViolation},
		{"null", []string{"title"}, []ir.Value{ir.Null{}}, failure.KindConstraintViolation},
		{"missing argument", []string{"title"}, []ir.Value{ir.Param(3)}, failure.KindBadArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, exec := newFake(nil)
			fake.schema = docsSchema()
			_, err := exec.Execute(context.Background(), &request.Insert{
				Collection: "docs",
				Fields:     tt.fields,
				Rows:       [][]ir.Value{tt.row},
			}, nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, failure.KindOf(err))
			assert.Zero(t, fake.calls)
		})
	}
}

func TestExecute_Collections(t *testing.T) {
	fake, exec := newFake(nil)

	_, err := exec.Execute(context.Background(), &request.CreateCollection{
		Collection: "docs",
		Schema: request.Schema{
			Fields: []request.FieldSchema{
				{Name: "id", DataType: "Int64", Primary: true},
				{Name: "title", DataType: "VarChar", MaxLength: 256},
				{Name: "embedding", DataType: "FloatVector", Dim: 2},
				{Name: "tags", DataType: "Array", ElementType: "VarChar", MaxLength: 32},
			},
			Indexes: []request.IndexSpec{{Field: "embedding", Metric: request.Cosine, IndexType: "HNSW"}},
		},
	}, nil)
	require.NoError(t, err)

	schema := fake.create.Schema
	assert.Equal(t, "docs", schema.CollectionName)
	require.Len(t, schema.Fields, 4)
	assert.True(t, schema.Fields[0].PrimaryKey)
	assert.Equal(t, entity.FieldTypeVarChar, schema.Fields[1].DataType)
	assert.Equal(t, "2", schema.Fields[2].TypeParams[entity.TypeParamDim])
	assert.Equal(t, entity.FieldTypeVarChar, schema.Fields[3].ElementType)
	assert.Equal(t, []IndexCall{{Field: "embedding", Metric: entity.COSINE, IndexType: "HNSW"}}, fake.create.Indexes)

	_, err = exec.Execute(context.Background(), &request.DropCollection{Collection: "docs"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "docs", fake.drop)

	_, err = exec.Execute(context.Background(), &request.CreateCollection{
		Collection: "bad",
		Schema:     request.Schema{Fields: []request.FieldSchema{{Name: "x", DataType: "Geometry"}}},
	}, nil)
	assert.Equal(t, failure.KindBadArgument, failure.KindOf(err))
}

func TestExecute_MissingArgumentFailsBeforeCall(t *testing.T) {
	fake, exec := newFake(nil)

	_, err := exec.Execute(context.Background(), &request.Query{
		Collection: "docs",
		PrimaryKey: "id",
		IDs:        []ir.Value{ir.Param(1)},
	}, []any{int64(1)})
	require.Error(t, err)
	assert.Equal(t, failure.KindBadArgument, failure.KindOf(err))

	_, err = exec.Execute(context.Background(), &request.Search{
		Collection: "docs",
		AnnsField:  "v",
		Vector:     ir.Param(0),
		Metric:     request.Cosine,
		TopK:       ir.Int(1),
	}, []any{"not a vector"})
	assert.Equal(t, failure.KindBadArgument, failure.KindOf(err))
	assert.Zero(t, fake.calls)
}

// codedError mimics the SDK's server errors.
type codedError struct {
	code int32
	msg  string
}

func (e codedError) Error() string { return e.msg }
func (e codedError) Code() int32   { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		stage Stage
		want  failure.BackendKind
	}{
		{"collection not found", codedError{100, "collection not found[collection=docs]"}, StageRead, failure.KindNotFound},
		{"field not found", codedError{1700, "field not found"}, StageWrite, failure.KindNotFound},
		{"not loaded", codedError{101, "collection not loaded"}, StageRead, failure.KindUnavailable},
		{"service not ready", codedError{1, "not ready"}, StageRead, failure.KindUnavailable},
		{"parameter in filter", codedError{1100, "cannot parse expression: a ==="}, StageFilter, failure.KindMalformedFilter},
		{"parameter in write", codedError{1100, "dimension mismatch"}, StageWrite, failure.KindConstraintViolation},
		{"parameter in read", codedError{1100, "invalid parameter[expected=positive]"}, StageRead, failure.KindBadArgument},
		{"illegal schema", codedError{105, "illegal schema"}, StageWrite, failure.KindConstraintViolation},
		{"wrapped code", fmt.Errorf("search: %w", codedError{100, "gone"}), StageRead, failure.KindNotFound},
		{"undefined code", codedError{65535, "something odd"}, StageRead, failure.KindUnknown},
		{"grpc unavailable", status.Error(codes.Unavailable, "connection refused"), StageRead, failure.KindUnavailable},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "bad"), StageRead, failure.KindBadArgument},
		{"connect", fmt.Errorf("%w: refused", ErrConnect), StageRead, failure.KindUnavailable},
		{"deadline", context.DeadlineExceeded, StageRead, failure.KindUnavailable},
		{"plain error", errors.New("boom"), StageRead, failure.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err, tt.stage))
		})
	}
}

func TestExecute_ErrorStage(t *testing.T) {
	fake, exec := newFake(nil)
	fake.err = codedError{1100, "cannot parse expression"}

	_, err := exec.Execute(context.Background(), &request.Query{
		Collection: "docs",
		Filter:     "a === 1",
	}, nil)
	assert.True(t, failure.IsBackend(err))
	assert.Equal(t, failure.KindMalformedFilter, failure.KindOf(err))

	_, err = exec.Execute(context.Background(), &request.DropCollection{Collection: "docs"}, nil)
	assert.Equal(t, failure.KindBadArgument, failure.KindOf(err))
}

func TestExecute_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	exec := NewExecutor(&fakeMilvus{}, metrics.New(reg))
	_, err := exec.Execute(context.Background(), &request.DropCollection{Collection: "docs"}, nil)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "sqlbridge_backend_calls_total")
}

func TestInlineFilter(t *testing.T) {
	values := map[string]ir.Value{
		"p1": ir.String("it's"),
		"p2": ir.Array{ir.Int(1), ir.Int(2)},
		"p3": ir.Float(0.5),
		"p4": ir.Bool(false),
	}
	tests := []struct {
		name    string
		expr    string
		want    string
		wantErr bool
	}{
		{name: "scalars", expr: "a == {p1} && b > {p3} && c == {p4}", want: `a == "it's" && b > 0.5 && c == false`},
		{name: "list", expr: "id in {p2}", want: "id in [1, 2]"},
		{name: "quoted braces kept", expr: `t == "{p1}" || id in {p2}`, want: `t == "{p1}" || id in [1, 2]`},
		{name: "unknown placeholder", expr: "a == {p9}", wantErr: true},
		{name: "unterminated", expr: "a == {p1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InlineFilter(tt.expr, values)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
