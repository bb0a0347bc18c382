package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/roach88/sqlbridge/internal/failure"
)

// DefaultTimeout bounds one call when the caller's context sets no deadline.
const DefaultTimeout = 30 * time.Second

// ErrConnect wraps failures to reach the server.
var ErrConnect = errors.New("connect to milvus")

// ClientConfig locates a Milvus server.
type ClientConfig struct {
	Address  string // host:port, or an http(s) URI
	Token    string // "user:password" or an API key
	Database string
	Timeout  time.Duration
}

// Client implements Milvus over the SDK. The connection is opened on first
// use. Safe for concurrent use.
type Client struct {
	cfg ClientConfig

	mu   sync.Mutex
	conn *milvusclient.Client
}

// NewClient creates a client for the server in cfg.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{cfg: cfg}
}

func (c *Client) connect(ctx context.Context) (*milvusclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: c.cfg.Address,
		APIKey:  c.cfg.Token,
		DBName:  c.cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %w", ErrConnect, c.cfg.Address, err)
	}
	c.conn = conn
	return conn, nil
}

// call bounds ctx by the configured timeout and connects.
func (c *Client) call(ctx context.Context) (context.Context, context.CancelFunc, *milvusclient.Client, error) {
	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	}
	conn, err := c.connect(ctx)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, conn, nil
}

// Close releases the connection, if one was opened.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(context.Background())
	c.conn = nil
	return err
}

// Get implements Milvus.
func (c *Client) Get(ctx context.Context, call GetCall) (*Hits, error) {
	ctx, cancel, conn, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	opt := milvusclient.NewQueryOption(call.Collection).WithIDs(call.IDs)
	if len(call.OutputFields) > 0 {
		opt = opt.WithOutputFields(call.OutputFields...)
	}
	rs, err := conn.Get(ctx, opt)
	if err != nil {
		return nil, err
	}
	return hitsOf(rs), nil
}

// Query implements Milvus.
func (c *Client) Query(ctx context.Context, call QueryCall) (*Hits, error) {
	ctx, cancel, conn, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	opt := milvusclient.NewQueryOption(call.Collection).WithFilter(call.Filter)
	for name, v := range call.Params {
		opt = opt.WithTemplateParam(name, v)
	}
	if len(call.OutputFields) > 0 {
		opt = opt.WithOutputFields(call.OutputFields...)
	}
	if call.Limit != Unbounded {
		opt = opt.WithLimit(call.Limit)
	}
	if call.Offset != Unbounded {
		opt = opt.WithOffset(call.Offset)
	}
	rs, err := conn.Query(ctx, opt)
	if err != nil {
		return nil, err
	}
	return hitsOf(rs), nil
}

// Search implements Milvus.
func (c *Client) Search(ctx context.Context, call SearchCall) (*Hits, error) {
	ctx, cancel, conn, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	opt := milvusclient.NewSearchOption(call.Collection, call.Limit, []entity.Vector{entity.FloatVector(call.Vector)}).
		WithANNSField(call.AnnsField).
		WithSearchParam(metricParam, string(call.Metric))
	for k, v := range call.SearchParams {
		opt = opt.WithSearchParam(k, v)
	}
	if call.Filter != "" {
		opt = opt.WithFilter(call.Filter)
		for name, v := range call.Params {
			opt = opt.WithTemplateParam(name, v)
		}
	}
	if call.Offset != Unbounded {
		opt = opt.WithOffset(call.Offset)
	}
	if call.GroupBy != "" {
		opt = opt.WithGroupByField(call.GroupBy)
	}
	if len(call.OutputFields) > 0 {
		opt = opt.WithOutputFields(call.OutputFields...)
	}
	sets, err := conn.Search(ctx, opt)
	if err != nil {
		return nil, err
	}
	return firstSet(sets)
}

// HybridSearch implements Milvus.
func (c *Client) HybridSearch(ctx context.Context, call HybridCall) (*Hits, error) {
	ctx, cancel, conn, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	reqs := make([]*milvusclient.AnnRequest, len(call.Searches))
	for i, s := range call.Searches {
		req := milvusclient.NewAnnRequest(s.AnnsField, s.Limit, entity.FloatVector(s.Vector)).
			WithSearchParam(metricParam, string(s.Metric))
		for k, v := range s.SearchParams {
			req = req.WithSearchParam(k, v)
		}
		if s.Filter != "" {
			req = req.WithFilter(s.Filter)
			for name, v := range s.Params {
				req = req.WithTemplateParam(name, v)
			}
		}
		reqs[i] = req
	}

	var ranker milvusclient.Reranker = milvusclient.NewRRFReranker().WithK(call.RRFK)
	if len(call.Weights) > 0 {
		ranker = milvusclient.NewWeightedReranker(call.Weights)
	}
	opt := milvusclient.NewHybridSearchOption(call.Collection, call.Limit, reqs...).WithReranker(ranker)
	if len(call.OutputFields) > 0 {
		opt = opt.WithOutputFields(call.OutputFields...)
	}
	sets, err := conn.HybridSearch(ctx, opt)
	if err != nil {
		return nil, err
	}
	return firstSet(sets)
}

// Insert implements Milvus.
func (c *Client) Insert(ctx context.Context, call WriteCall) (*Written, error) {
	ctx, cancel, conn, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	res, err := conn.Insert(ctx, milvusclient.NewColumnBasedInsertOption(call.Collection, call.Columns...))
	if err != nil {
		return nil, err
	}
	return &Written{Count: res.InsertCount, IDs: res.IDs}, nil
}

// Upsert implements Milvus.
func (c *Client) Upsert(ctx context.Context, call WriteCall) (*Written, error) {
	ctx, cancel, conn, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	res, err := conn.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(call.Collection, call.Columns...))
	if err != nil {
		return nil, err
	}
	return &Written{Count: res.UpsertCount, IDs: res.IDs}, nil
}

// Delete implements Milvus.
func (c *Client) Delete(ctx context.Context, call DeleteCall) (int64, error) {
	ctx, cancel, conn, err := c.call(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	opt := milvusclient.NewDeleteOption(call.Collection)
	switch ids := call.IDs.(type) {
	case nil:
		opt = opt.WithExpr(call.Filter)
	case *column.ColumnInt64:
		opt = opt.WithInt64IDs(call.PrimaryKey, ids.Data())
	case *column.ColumnVarChar:
		opt = opt.WithStringIDs(call.PrimaryKey, ids.Data())
	default:
		return 0, fmt.Errorf("delete ids of type %s", call.IDs.Type())
	}
	res, err := conn.Delete(ctx, opt)
	if err != nil {
		return 0, err
	}
	return res.DeleteCount, nil
}

// Describe implements Milvus.
func (c *Client) Describe(ctx context.Context, collection string) (*entity.Schema, error) {
	ctx, cancel, conn, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	coll, err := conn.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(collection))
	if err != nil {
		return nil, err
	}
	return coll.Schema, nil
}

// CreateCollection implements Milvus.
func (c *Client) CreateCollection(ctx context.Context, call CreateCall) error {
	ctx, cancel, conn, err := c.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	name := call.Schema.CollectionName
	opt := milvusclient.NewCreateCollectionOption(name, call.Schema)
	if len(call.Indexes) > 0 {
		idxOpts := make([]milvusclient.CreateIndexOption, len(call.Indexes))
		for i, idx := range call.Indexes {
			idxOpts[i] = milvusclient.NewCreateIndexOption(name, idx.Field, buildIndex(idx)).
				WithIndexName(idx.Field + "_idx")
		}
		opt = opt.WithIndexOptions(idxOpts...)
	}
	return conn.CreateCollection(ctx, opt)
}

// DropCollection implements Milvus.
func (c *Client) DropCollection(ctx context.Context, collection string) error {
	ctx, cancel, conn, err := c.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return conn.DropCollection(ctx, milvusclient.NewDropCollectionOption(collection))
}

const metricParam = "metric_type"

func buildIndex(idx IndexCall) index.Index {
	if idx.IndexType == "" || idx.IndexType == "AUTOINDEX" {
		return index.NewAutoIndex(idx.Metric)
	}
	return index.NewGenericIndex(idx.Field+"_idx", map[string]string{
		"index_type": idx.IndexType,
		metricParam:  string(idx.Metric),
	})
}

func hitsOf(rs milvusclient.ResultSet) *Hits {
	return &Hits{IDs: rs.IDs, Fields: rs.Fields, Scores: rs.Scores, Count: rs.ResultCount}
}

// firstSet unwraps the results of a single-vector search.
func firstSet(sets []milvusclient.ResultSet) (*Hits, error) {
	if len(sets) == 0 {
		return &Hits{}, nil
	}
	if sets[0].Err != nil {
		return nil, sets[0].Err
	}
	return hitsOf(sets[0]), nil
}

// Stage is what a failed call was doing. Parameter errors read differently
// for filtered reads and for writes.
type Stage int

const (
	StageRead Stage = iota
	StageFilter
	StageWrite
)

// Milvus error codes with a stable meaning.
const (
	codeCollectionNotFound     = 100
	codeCollectionNotLoaded    = 101
	codeCollectionNotFullyLoad = 103
	codeCollectionIllegal      = 105
	codePartitionNotFound      = 200
	codeIndexNotFound          = 700
	codeDatabaseNotFound       = 800
	codeParameterInvalid       = 1100
	codeParameterMissing       = 1101
	codeParameterTooLarge      = 1102
	codeFieldNotFound          = 1700
)

// coded matches the SDK's server errors.
type coded interface {
	Code() int32
}

// Classify maps an SDK error to a backend error kind by its code.
func Classify(err error, stage Stage) failure.BackendKind {
	switch {
	case errors.Is(err, ErrConnect),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return failure.KindUnavailable
	}

	var srv coded
	if errors.As(err, &srv) {
		return codeKind(srv.Code(), stage)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled,
			codes.Unauthenticated, codes.PermissionDenied, codes.ResourceExhausted:
			return failure.KindUnavailable
		case codes.NotFound:
			return failure.KindNotFound
		case codes.InvalidArgument, codes.OutOfRange:
			return failure.KindBadArgument
		case codes.AlreadyExists, codes.FailedPrecondition:
			return failure.KindConstraintViolation
		}
	}
	return failure.KindUnknown
}

func codeKind(code int32, stage Stage) failure.BackendKind {
	switch {
	case code >= 1 && code <= 9,
		code == codeCollectionNotLoaded,
		code == codeCollectionNotFullyLoad:
		return failure.KindUnavailable
	case code == codeCollectionNotFound,
		code == codePartitionNotFound,
		code == codeIndexNotFound,
		code == codeDatabaseNotFound,
		code == codeFieldNotFound:
		return failure.KindNotFound
	case code == codeCollectionIllegal:
		return failure.KindConstraintViolation
	case code == codeParameterInvalid,
		code == codeParameterMissing,
		code == codeParameterTooLarge:
		switch stage {
		case StageFilter:
			return failure.KindMalformedFilter
		case StageWrite:
			return failure.KindConstraintViolation
		default:
			return failure.KindBadArgument
		}
	default:
		return failure.KindUnknown
	}
}
