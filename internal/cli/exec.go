package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlbridge/internal/compiler"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/querygraph"
	"github.com/roach88/sqlbridge/internal/rows"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Backend string
	Args    []string

	// Backends overrides the executors built from the config (for testing).
	Backends *Backends
}

// ExecResult is the JSON form of an executed statement.
type ExecResult struct {
	Columns      []string         `json:"columns"`
	Rows         []map[string]any `json:"rows"`
	RowCount     int64            `json:"row_count"`
	GeneratedIDs []any            `json:"generated_ids,omitempty"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <statement.yaml>",
		Short: "Compile a statement and run it on a backend",
		Long: `Compile a relational statement, bind the runtime arguments and run it
against the configured Milvus or FalkorDB server.

Arguments bind by position: the first --arg is parameter 0.

Exit codes:
  0 - Statement executed
  1 - Statement cannot be expressed on the backend
  2 - Command or backend error

Examples:
  sqlbridge exec search.yaml --arg "[0.1, 0.2, 0.3]"
  sqlbridge exec insert.yaml --backend graph --arg alice --config sqlbridge.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", BackendVector, "target backend (vector|graph)")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "runtime argument, by position (repeatable)")

	return cmd
}

func runExec(ctx context.Context, opts *ExecOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if err := checkBackend(opts.Backend); err != nil {
		return reportLoadError(formatter, err)
	}
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return reportLoadError(formatter, err)
	}
	stmt, err := LoadStatement(path)
	if err != nil {
		return reportLoadError(formatter, err)
	}
	args, err := ParseArgs(opts.Args)
	if err != nil {
		return reportLoadError(formatter, err)
	}

	backends := opts.Backends
	if backends == nil {
		backends = OpenBackends(cfg, nil)
		defer backends.Close()
	}

	var res *rows.Result
	switch opts.Backend {
	case BackendVector:
		formatter.VerboseLog("Executing %s on %s", path, cfg.Vector.Endpoint)
		req, err := compiler.New(cfg.Compiler.Options()).Compile(stmt)
		if err != nil {
			return formatter.Failure(err)
		}
		if res, err = backends.Vector.Execute(ctx, req, args); err != nil {
			return formatter.Failure(err)
		}
	case BackendGraph:
		formatter.VerboseLog("Executing %s on %s/%s", path, cfg.Graph.Addr, cfg.Graph.Graph)
		tpl, err := querygraph.Compile(stmt)
		if err != nil {
			return formatter.Failure(err)
		}
		if res, err = backends.Graph.Execute(ctx, tpl, args); err != nil {
			return formatter.Failure(err)
		}
	}

	return outputExecResult(formatter, res)
}

func outputExecResult(formatter *OutputFormatter, res *rows.Result) error {
	if formatter.Format == "json" {
		out, err := toExecResult(res)
		if err != nil {
			return err
		}
		return formatter.Success(out)
	}

	w := formatter.Writer
	if len(res.Columns) == 0 {
		fmt.Fprintf(w, "✓ %d row(s) affected\n", res.RowCount)
		for _, id := range res.GeneratedIDs {
			fmt.Fprintf(w, "  generated %s\n", formatCell(id))
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
	it := res.Iter()
	for it.Next() {
		cells := make([]string, len(it.Columns()))
		for i := range cells {
			v, err := it.Value(i)
			if err != nil {
				return err
			}
			if it.WasNull() {
				cells[i] = "NULL"
				continue
			}
			cells[i] = formatCell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n(%d row(s))\n", res.RowCount)
	return nil
}

func toExecResult(res *rows.Result) (*ExecResult, error) {
	maps, err := res.Maps()
	if err != nil {
		return nil, err
	}
	out := &ExecResult{Columns: res.Columns, Rows: maps, RowCount: res.RowCount}
	if out.Columns == nil {
		out.Columns = []string{}
	}
	for _, id := range res.GeneratedIDs {
		n, err := ir.Native(id)
		if err != nil {
			return nil, err
		}
		out.GeneratedIDs = append(out.GeneratedIDs, n)
	}
	return out, nil
}

func formatCell(v ir.Value) string {
	switch val := v.(type) {
	case ir.String:
		return string(val)
	default:
		text, err := ir.MarshalCanonical(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(text)
	}
}
