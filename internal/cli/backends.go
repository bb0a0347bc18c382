package cli

import (
	"io"
	"time"

	"github.com/roach88/sqlbridge/internal/api"
	"github.com/roach88/sqlbridge/internal/config"
	"github.com/roach88/sqlbridge/internal/graphstore"
	"github.com/roach88/sqlbridge/internal/metrics"
	"github.com/roach88/sqlbridge/internal/vectorstore"
)

// Backends holds the executors a command runs statements on.
// A nil executor means the backend is not available.
type Backends struct {
	Vector api.VectorExecutor
	Graph  api.GraphExecutor

	closers []io.Closer
}

// Close releases backend connections.
func (b *Backends) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenBackends builds executors for both backends from cfg. Connections are
// opened lazily, so an unreachable server only fails the requests sent to it.
func OpenBackends(cfg *config.Config, rec *metrics.Recorder) *Backends {
	client := vectorstore.NewClient(vectorstore.ClientConfig{
		Address:  cfg.Vector.Endpoint,
		Token:    cfg.Vector.Token,
		Database: cfg.Vector.Database,
		Timeout:  cfg.Vector.Timeout,
	})

	graph := graphstore.Dial(cfg.Graph.Addr, cfg.Graph.Graph, graphstore.PoolOptions{
		MaxIdle:     cfg.Graph.MaxIdle,
		MaxActive:   cfg.Graph.MaxActive,
		IdleTimeout: 5 * time.Minute,
		Password:    cfg.Graph.Password,
	})

	return &Backends{
		Vector:  vectorstore.NewExecutor(client, rec),
		Graph:   graphstore.NewExecutor(graph, graphstore.WithMetrics(rec)),
		closers: []io.Closer{client, graph},
	}
}
