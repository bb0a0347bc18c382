// Package api exposes compilation and execution over HTTP.
//
//	POST /v1/compile/{backend}   compile a statement, return the request or template
//	POST /v1/execute/{backend}   compile, bind args and run against the backend
//	GET  /healthz                liveness
//	GET  /metrics                Prometheus exposition
//
// Request bodies carry the statement document (the queryir YAML form, given
// either as a JSON object or as a YAML string) and the positional args.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/roach88/sqlbridge/internal/compiler"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/metrics"
	"github.com/roach88/sqlbridge/internal/request"
	"github.com/roach88/sqlbridge/internal/rows"
)

// Backend names accepted in the {backend} path segment.
const (
	BackendVector = "vector"
	BackendGraph  = "graph"
)

// VectorExecutor runs compiled vector requests.
type VectorExecutor interface {
	Execute(ctx context.Context, req request.Request, args []any) (*rows.Result, error)
}

// GraphExecutor runs compiled graph templates.
type GraphExecutor interface {
	Execute(ctx context.Context, tpl *request.Template, args []any) (*rows.Result, error)
}

// Server routes HTTP requests to the compilers and executors.
type Server struct {
	compiler *compiler.Compiler
	vector   VectorExecutor
	graph    GraphExecutor
	gatherer prometheus.Gatherer
	metrics  *metrics.Recorder
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithVector enables execution on the vector backend.
func WithVector(exec VectorExecutor) Option {
	return func(s *Server) { s.vector = exec }
}

// WithGraph enables execution on the graph backend.
func WithGraph(exec GraphExecutor) Option {
	return func(s *Server) { s.graph = exec }
}

// WithMetrics counts compilations on rec and serves g on /metrics.
func WithMetrics(rec *metrics.Recorder, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = rec
		s.gatherer = g
	}
}

// NewServer creates a server compiling with c. Backends without an
// executor answer execute requests with 503.
func NewServer(c *compiler.Compiler, opts ...Option) *Server {
	s := &Server{compiler: c, gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Post("/compile/{backend}", s.handleCompile)
		r.Post("/execute/{backend}", s.handleExecute)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then drains open
// requests for up to shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("http server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "ok",
		"version":        ir.CompilerVersion,
		"requestVersion": ir.RequestVersion,
	})
}
