// Package config provides configuration management for the leapetl CLI.
//
// Configuration is loaded from leapetl.yaml, LEAPETL_* environment
// variables, and command-line flags, in increasing order of precedence.
package config

// WarehouseConfig selects and locates the warehouse database.
type WarehouseConfig struct {
	Type string `koanf:"type"`
	Path string `koanf:"path"`
}

// ImportConfig controls CSV intake behavior.
type ImportConfig struct {
	Encodings      []string `koanf:"encodings"`
	TrimWhitespace bool     `koanf:"trim_whitespace"`
	SkipEmptyRows  bool     `koanf:"skip_empty_rows"`
}

// Config holds all CLI configuration options.
type Config struct {
	ProjectRoot  string              `koanf:"-"`
	IncomingDir  string              `koanf:"incoming_dir"`
	Warehouse    WarehouseConfig     `koanf:"warehouse"`
	StatePath    string              `koanf:"state_path"`
	Keys         map[string][]string `koanf:"keys"`
	Import       ImportConfig        `koanf:"import"`
	Verbose      bool                `koanf:"verbose"`
	OutputFormat string              `koanf:"output"`
}

// Default configuration values.
const (
	DefaultIncomingDir   = "incoming"
	DefaultWarehouseType = "sqlite"
	DefaultWarehousePath = ".leapetl/warehouse.db"
	DefaultStateFile     = ".leapetl/state.db"
	DefaultOutput        = "auto"
)
