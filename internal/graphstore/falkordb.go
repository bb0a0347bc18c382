// Package graphstore executes compiled graph templates against a FalkorDB
// graph over the Redis protocol.
package graphstore

import (
	"context"
	"fmt"
	"time"

	falkordb "github.com/falkordb/falkordb-go"
	"github.com/gomodule/redigo/redis"
)

// Graph runs Cypher text against one named graph.
type Graph interface {
	Query(ctx context.Context, cypher string) (*Records, error)
}

// Records is the raw outcome of one Cypher statement.
type Records struct {
	Rows  [][]any
	Stats Stats
}

// Stats are the mutation counters reported with a result set.
type Stats struct {
	NodesCreated int
	NodesDeleted int
}

// FalkorGraph is a Graph backed by a pooled FalkorDB connection.
// Safe for concurrent use.
type FalkorGraph struct {
	pool *redis.Pool
	name string
}

// PoolOptions tunes the connection pool.
type PoolOptions struct {
	MaxIdle     int
	MaxActive   int
	IdleTimeout time.Duration
	Password    string
}

// Dial creates a FalkorGraph for graph name on the server at addr.
// Connections are opened lazily.
func Dial(addr, name string, opts PoolOptions) *FalkorGraph {
	dialOpts := []redis.DialOption{redis.DialConnectTimeout(5 * time.Second)}
	if opts.Password != "" {
		dialOpts = append(dialOpts, redis.DialPassword(opts.Password))
	}
	pool := &redis.Pool{
		MaxIdle:     opts.MaxIdle,
		MaxActive:   opts.MaxActive,
		IdleTimeout: opts.IdleTimeout,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr, dialOpts...)
		},
	}
	return &FalkorGraph{pool: pool, name: name}
}

// Query implements Graph.
func (g *FalkorGraph) Query(ctx context.Context, cypher string) (*Records, error) {
	conn, err := g.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	graph := falkordb.GraphNew(g.name, conn)
	res, err := graph.Query(cypher)
	if err != nil {
		return nil, err
	}

	out := &Records{
		Stats: Stats{
			NodesCreated: res.NodesCreated(),
			NodesDeleted: res.NodesDeleted(),
		},
	}
	for res.Next() {
		out.Rows = append(out.Rows, res.Record().Values())
	}
	return out, nil
}

// Close releases the pool.
func (g *FalkorGraph) Close() error {
	return g.pool.Close()
}
