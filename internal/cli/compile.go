package cli

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/roach88/sqlbridge/internal/compiler"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/querygraph"
	"github.com/roach88/sqlbridge/internal/queryir"
	"github.com/roach88/sqlbridge/internal/request"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Backend string
	Args    []string // rendered into graph templates when given
	Output  string   // output file path
}

// CompilationResult is the compiled form of one statement.
type CompilationResult struct {
	Backend string `json:"backend"`

	// Vector requests.
	Request     json.RawMessage `json:"request,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`

	// Graph templates.
	Skeleton string   `json:"skeleton,omitempty"`
	Mutation string   `json:"mutation,omitempty"`
	Columns  []string `json:"columns,omitempty"`
	Cypher   string   `json:"cypher,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <statement.yaml>",
		Short: "Compile a statement to a backend request",
		Long: `Compile a relational statement into a vector-store request or a
Cypher template without contacting any backend.

Vector requests print with their parameter placeholders and fingerprint.
Graph templates print as a skeleton; with --arg the Cypher text is also
rendered, generating fresh keys for inserted rows.

Examples:
  sqlbridge compile search.yaml
  sqlbridge compile lookup.yaml --backend graph --arg 42
  sqlbridge compile search.yaml --format json -o request.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", BackendVector, "target backend (vector|graph)")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "runtime argument, by position (repeatable)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
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

	formatter.VerboseLog("Compiling %s for the %s backend", path, opts.Backend)

	var result *CompilationResult
	if opts.Backend == BackendVector {
		result, err = compileVector(compiler.New(cfg.Compiler.Options()), stmt)
	} else {
		result, err = compileGraph(stmt, args)
	}
	if err != nil {
		return formatter.Failure(err)
	}

	if opts.Output != "" {
		if err := writeResultFile(result, opts.Output); err != nil {
			return reportLoadError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}
	return outputCompileSuccess(formatter, result, opts.Output)
}

func compileVector(c *compiler.Compiler, stmt queryir.Statement) (*CompilationResult, error) {
	req, err := c.Compile(stmt)
	if err != nil {
		return nil, err
	}
	explained, err := ir.MarshalCanonical(request.Explain(req))
	if err != nil {
		return nil, err
	}
	fp, err := request.Fingerprint(req)
	if err != nil {
		return nil, err
	}
	return &CompilationResult{Backend: BackendVector, Request: explained, Fingerprint: fp}, nil
}

func compileGraph(stmt queryir.Statement, args []any) (*CompilationResult, error) {
	tpl, err := querygraph.Compile(stmt)
	if err != nil {
		return nil, err
	}
	result := &CompilationResult{
		Backend:  BackendGraph,
		Skeleton: tpl.Skeleton(),
		Mutation: tpl.Mutation.String(),
		Columns:  tpl.Columns,
	}
	if len(args) > 0 {
		rendered, err := querygraph.Render(tpl, args, querygraph.UUIDv7Generator{})
		if err != nil {
			return nil, err
		}
		result.Cypher = rendered.Text
	}
	return result, nil
}

func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	switch result.Backend {
	case BackendVector:
		fmt.Fprintf(w, "✓ Compiled vector request %s\n\n", result.Fingerprint)
		var pretty any
		if err := json.Unmarshal(result.Request, &pretty); err != nil {
			return err
		}
		if err := writeIndented(w, pretty); err != nil {
			return err
		}
	case BackendGraph:
		fmt.Fprintf(w, "✓ Compiled graph %s template\n\n", result.Mutation)
		fmt.Fprintln(w, result.Skeleton)
		if result.Cypher != "" {
			fmt.Fprintf(w, "\nRendered:\n%s\n", result.Cypher)
		}
	}

	if outputFile != "" {
		fmt.Fprintf(w, "\nWrote compiled output to %s\n", outputFile)
	}
	return nil
}

func writeResultFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
