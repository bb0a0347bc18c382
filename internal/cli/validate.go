package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlbridge/internal/compiler"
	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/querygraph"
	"github.com/roach88/sqlbridge/internal/queryir"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Backend string // empty checks both backends
}

// ValidationResult is the outcome of validating one statement file.
type ValidationResult struct {
	File     string            `json:"file"`
	Valid    bool              `json:"valid"`
	Params   []int             `json:"params,omitempty"`
	Problems []string          `json:"problems,omitempty"`
	Backends map[string]string `json:"backends,omitempty"` // backend -> "ok" or the rejection
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <statement.yaml>...",
		Short: "Check statements without executing them",
		Long: `Decode each statement, check its structure and report whether each
backend can express it.

A statement is valid when it is structurally sound and at least one
checked backend accepts it. Faster than exec for development feedback.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", "", "check only this backend (vector|graph)")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	backends := []string{BackendVector, BackendGraph}
	if opts.Backend != "" {
		if err := checkBackend(opts.Backend); err != nil {
			return reportLoadError(formatter, err)
		}
		backends = []string{opts.Backend}
	}
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return reportLoadError(formatter, err)
	}
	c := compiler.New(cfg.Compiler.Options())

	results := make([]ValidationResult, 0, len(paths))
	invalid := 0
	for _, path := range paths {
		formatter.VerboseLog("Validating %s", path)
		result, err := validateFile(c, path, backends)
		if err != nil {
			var loadErr *LoadError
			if !errors.As(err, &loadErr) || loadErr.Code == ErrCodeNotFound {
				return reportLoadError(formatter, err)
			}
			result = ValidationResult{File: path, Problems: []string{loadErr.Message}}
		}
		if !result.Valid {
			invalid++
		}
		results = append(results, result)
	}

	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: results}
		if invalid > 0 {
			response.Status = "error"
			response.Error = &CLIError{Code: ErrCodeInvalid, Message: fmt.Sprintf("%d statement(s) invalid", invalid)}
		}
		if err := writeIndented(formatter.Writer, response); err != nil {
			return err
		}
	} else {
		outputValidationText(formatter, results, backends)
	}

	if invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d statement(s) invalid", invalid))
	}
	return nil
}

func validateFile(c *compiler.Compiler, path string, backends []string) (ValidationResult, error) {
	stmt, err := LoadStatement(path)
	if err != nil {
		return ValidationResult{}, err
	}

	structure := queryir.Validate(stmt)
	result := ValidationResult{
		File:     path,
		Params:   structure.Params,
		Problems: structure.Problems,
		Backends: make(map[string]string, len(backends)),
	}
	if !structure.Valid {
		return result, nil
	}

	for _, backend := range backends {
		var err error
		if backend == BackendVector {
			_, err = c.Compile(stmt)
		} else {
			_, err = querygraph.Compile(stmt)
		}
		switch {
		case err == nil:
			result.Backends[backend] = "ok"
			result.Valid = true
		case failure.IsUnsupported(err) || failure.IsInvalidID(err):
			result.Backends[backend] = err.Error()
		default:
			return ValidationResult{}, err
		}
	}
	return result, nil
}

func outputValidationText(formatter *OutputFormatter, results []ValidationResult, backends []string) {
	w := formatter.Writer
	for _, r := range results {
		if r.Valid {
			fmt.Fprintf(w, "✓ %s\n", r.File)
		} else {
			fmt.Fprintf(w, "✗ %s\n", r.File)
		}
		for _, p := range r.Problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
		for _, b := range backends {
			if status, ok := r.Backends[b]; ok {
				fmt.Fprintf(w, "  %s: %s\n", b, status)
			}
		}
		if formatter.Verbose && len(r.Params) > 0 {
			fmt.Fprintf(w, "  params: %v\n", r.Params)
		}
	}
}
