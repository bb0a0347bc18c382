package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/roach88/sqlbridge/internal/api"
	"github.com/roach88/sqlbridge/internal/compiler"
	"github.com/roach88/sqlbridge/internal/metrics"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr            string
	ShutdownTimeout time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the compile and execute HTTP API",
		Long: `Start the HTTP API on the configured address.

The server compiles statements and runs them against the configured
Milvus and FalkorDB servers. Metrics are exposed on /metrics.
SIGINT or SIGTERM drains in-flight requests and stops the server.

Example:
  sqlbridge serve --config sqlbridge.yaml
  sqlbridge serve --addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return reportLoadError(formatter, err)
	}
	addr := cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	backends := OpenBackends(cfg, rec)
	defer func() {
		if err := backends.Close(); err != nil {
			log.Warn().Err(err).Msg("close backends")
		}
	}()

	srv := api.NewServer(compiler.New(cfg.Compiler.Options()),
		api.WithVector(backends.Vector),
		api.WithGraph(backends.Graph),
		api.WithMetrics(rec, reg),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("vector", cfg.Vector.Endpoint).
		Str("graph", cfg.Graph.Addr).
		Msg("starting sqlbridge server")
	if err := srv.ListenAndServe(ctx, addr, opts.ShutdownTimeout); err != nil {
		return WrapExitError(ExitCommandError, "server failed", err)
	}
	return nil
}
