package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sqlbridge/internal/config"
	"github.com/roach88/sqlbridge/internal/queryir"
)

// LoadError represents an error reading a statement, argument or config file.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for CLI errors.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNotFound     = "E002" // Path not found
	ErrCodeBadStatement = "E003" // Statement document does not decode
	ErrCodeInvalid      = "E004" // Statement fails structural validation
	ErrCodeBadArg       = "E005" // --arg value does not parse
	ErrCodeBadConfig    = "E006" // Config file missing or invalid
	ErrCodeBadBackend   = "E007" // Unknown --backend value
	ErrCodeWriteFailed  = "E008" // File write error
)

// Backend names accepted by --backend.
const (
	BackendVector = "vector"
	BackendGraph  = "graph"
)

func checkBackend(backend string) error {
	if backend != BackendVector && backend != BackendGraph {
		return &LoadError{Code: ErrCodeBadBackend, Message: fmt.Sprintf("unknown backend %q: must be %s or %s", backend, BackendVector, BackendGraph)}
	}
	return nil
}

// LoadStatement reads and decodes a statement document.
func LoadStatement(path string) (queryir.Statement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("statement file not found: %s", path)}
		}
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	stmt, err := queryir.DecodeYAML(data)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBadStatement, Message: fmt.Sprintf("%s: %v", path, err)}
	}
	return stmt, nil
}

// ParseArgs converts --arg values to runtime arguments. Each value is read
// as a YAML flow scalar or sequence, so 3 is an integer, 0.5 a float,
// [0.1, 0.2] a vector and anything else a string.
func ParseArgs(raw []string) ([]any, error) {
	args := make([]any, len(raw))
	for i, text := range raw {
		var v any
		if err := yaml.Unmarshal([]byte(text), &v); err != nil {
			return nil, &LoadError{Code: ErrCodeBadArg, Message: fmt.Sprintf("--arg #%d %q: %v", i+1, text, err)}
		}
		if _, isMap := v.(map[string]any); isMap {
			return nil, &LoadError{Code: ErrCodeBadArg, Message: fmt.Sprintf("--arg #%d %q: mappings are not valid arguments", i+1, text)}
		}
		args[i] = v
	}
	return args, nil
}

// loadConfig loads the --config file, or the defaults when none is given,
// and applies its logging section.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBadConfig, Message: err.Error()}
	}
	if err := ConfigureLogging(os.Stderr, cfg.Log.Level, cfg.Log.Pretty, opts.Verbose); err != nil {
		return nil, &LoadError{Code: ErrCodeBadConfig, Message: err.Error()}
	}
	return cfg, nil
}

// reportLoadError prints err and converts it to a command-level exit error.
func reportLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return WrapExitError(ExitCommandError, loadErr.Code, loadErr)
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, ErrCodeGeneric, err)
}

func newFormatter(opts *RootOptions, outw, errw io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    outw,
		ErrWriter: errw, // verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}
