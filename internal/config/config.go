// Package config loads the sqlbridge configuration file.
//
// A YAML file is decoded over Default(), secrets may be overridden from the
// environment, and the merged result is checked against an embedded CUE
// schema before use.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sqlbridge/internal/compiler"
	"github.com/roach88/sqlbridge/internal/filter"
)

//go:embed schema.cue
var schemaSource string

// Environment variables that override secrets from the file.
const (
	EnvVectorToken   = "SQLBRIDGE_VECTOR_TOKEN"
	EnvGraphPassword = "SQLBRIDGE_GRAPH_PASSWORD"
)

// Config is the complete runtime configuration.
type Config struct {
	Log      Log      `yaml:"log" json:"log"`
	Compiler Compiler `yaml:"compiler" json:"compiler"`
	Vector   Vector   `yaml:"vector" json:"vector"`
	Graph    Graph    `yaml:"graph" json:"graph"`
	Server   Server   `yaml:"server" json:"server"`
}

// Log configures the zerolog logger.
type Log struct {
	Level  string `yaml:"level" json:"level"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// Compiler tunes vector request compilation.
type Compiler struct {
	MaxTopK    int64 `yaml:"max_top_k" json:"max_top_k"`
	PadInLists bool  `yaml:"pad_in_lists" json:"pad_in_lists"`
	MaxInList  int   `yaml:"max_in_list" json:"max_in_list"`
}

// Options converts c to compiler options.
func (c Compiler) Options() compiler.Options {
	return compiler.Options{
		MaxTopK: c.MaxTopK,
		Filter:  filter.Options{PadInLists: c.PadInLists, MaxInList: c.MaxInList},
	}
}

// Vector locates the Milvus server.
type Vector struct {
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Token    string        `yaml:"token" json:"token"`
	Database string        `yaml:"database" json:"database"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// Graph locates the FalkorDB server.
type Graph struct {
	Addr      string `yaml:"addr" json:"addr"`
	Graph     string `yaml:"graph" json:"graph"`
	Password  string `yaml:"password" json:"password"`
	MaxIdle   int    `yaml:"max_idle" json:"max_idle"`
	MaxActive int    `yaml:"max_active" json:"max_active"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:      Log{Level: "info", Pretty: true},
		Compiler: Compiler{MaxTopK: compiler.DefaultMaxTopK},
		Vector: Vector{
			Endpoint: "http://localhost:19530",
			Timeout:  30 * time.Second,
		},
		Graph: Graph{
			Addr:      "localhost:6379",
			Graph:     "sqlbridge",
			MaxIdle:   4,
			MaxActive: 16,
		},
		Server: Server{Addr: ":8080"},
	}
}

// Load reads the file at path over the defaults. An empty path yields the
// defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result.
// The environment is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvVectorToken); ok {
		c.Vector.Token = v
	}
	if v, ok := os.LookupEnv(EnvGraphPassword); ok {
		c.Graph.Password = v
	}
}

// Validate checks c against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := def.Unify(ctx.Encode(c))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
