package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/leapetl/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapetl/pkg/adapters/sqlite"
)

// newTestFlags builds a flag set with the flags LoadConfig inspects.
func newTestFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("project-dir", "", "project directory")
	flags.String("incoming-dir", "", "incoming directory")
	flags.String("warehouse", "", "warehouse database path")
	flags.String("warehouse-type", "", "warehouse database type")
	flags.String("state", "", "state database path")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.StringP("output", "o", "", "output format")
	return flags
}

// TestValidate tests configuration validation.
func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			IncomingDir: "incoming",
			Warehouse:   WarehouseConfig{Type: "sqlite", Path: "wh.db"},
			StatePath:   "state.db",
			Import:      ImportConfig{Encodings: []string{"utf-8"}},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errSubstr string
	}{
		{
			name:    "valid sqlite",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "valid duckdb",
			mutate:  func(c *Config) { c.Warehouse.Type = "duckdb" },
			wantErr: false,
		},
		{
			name:      "empty warehouse type",
			mutate:    func(c *Config) { c.Warehouse.Type = "" },
			wantErr:   true,
			errSubstr: "warehouse.type is required",
		},
		{
			name:      "unknown warehouse type",
			mutate:    func(c *Config) { c.Warehouse.Type = "mysql" },
			wantErr:   true,
			errSubstr: "unknown adapter type",
		},
		{
			name:      "empty warehouse path",
			mutate:    func(c *Config) { c.Warehouse.Path = "" },
			wantErr:   true,
			errSubstr: "warehouse.path is required",
		},
		{
			name:      "empty state path",
			mutate:    func(c *Config) { c.StatePath = "" },
			wantErr:   true,
			errSubstr: "state_path is required",
		},
		{
			name:      "no encodings",
			mutate:    func(c *Config) { c.Import.Encodings = nil },
			wantErr:   true,
			errSubstr: "at least one encoding",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestValidate_ErrorContainsAvailable verifies that the unknown-adapter error
// lists the registered adapters.
func TestValidate_ErrorContainsAvailable(t *testing.T) {
	cfg := &Config{
		Warehouse: WarehouseConfig{Type: "oracle", Path: "wh.db"},
		StatePath: "state.db",
		Import:    ImportConfig{Encodings: []string{"utf-8"}},
	}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite", "error should list available adapters")
}

func TestValidateIncomingDir(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := &Config{IncomingDir: tmpDir}
	assert.NoError(t, cfg.ValidateIncomingDir())

	cfg.IncomingDir = filepath.Join(tmpDir, "does-not-exist")
	err := cfg.ValidateIncomingDir()
	require.Error(t, err)
	assert.Contains(t, err.Error(), cfg.IncomingDir)
	assert.Contains(t, err.Error(), "--incoming-dir")
}

// TestLoadConfig_Defaults verifies defaults when no config file exists.
func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()

	flags := newTestFlags()
	require.NoError(t, flags.Set("project-dir", tmpDir))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, tmpDir, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(tmpDir, DefaultIncomingDir), cfg.IncomingDir)
	assert.Equal(t, "sqlite", cfg.Warehouse.Type)
	assert.Equal(t, filepath.Join(tmpDir, DefaultWarehousePath), cfg.Warehouse.Path)
	assert.Equal(t, filepath.Join(tmpDir, DefaultStateFile), cfg.StatePath)
	assert.Equal(t, []string{"utf-8", "latin-1", "cp1252"}, cfg.Import.Encodings)
	assert.True(t, cfg.Import.TrimWhitespace)
	assert.True(t, cfg.Import.SkipEmptyRows)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Empty(t, GetConfigFileUsed())
}

// TestLoadConfig_File verifies loading from an explicit config file, with
// relative paths resolved against the config file's directory.
func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "leapetl.yaml")
	cfgContent := `incoming_dir: drops
warehouse:
  type: sqlite
  path: data/wh.db
state_path: data/state.db
keys:
  customer_profiles: [customer_id]
  transactions: [transaction_id, posted_at]
import:
  encodings: [utf-8]
  skip_empty_rows: false
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgContent), 0600))

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, tmpDir, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(tmpDir, "drops"), cfg.IncomingDir)
	assert.Equal(t, filepath.Join(tmpDir, "data", "wh.db"), cfg.Warehouse.Path)
	assert.Equal(t, filepath.Join(tmpDir, "data", "state.db"), cfg.StatePath)
	assert.Equal(t, []string{"customer_id"}, cfg.Keys["customer_profiles"])
	assert.Equal(t, []string{"transaction_id", "posted_at"}, cfg.Keys["transactions"])
	assert.Equal(t, []string{"utf-8"}, cfg.Import.Encodings)
	assert.False(t, cfg.Import.SkipEmptyRows)
	// Unspecified values keep their defaults
	assert.True(t, cfg.Import.TrimWhitespace)

	assert.Equal(t, cfgPath, GetConfigFileUsed())
	assert.Equal(t, cfg, GetCurrentConfig())
}

// TestLoadConfig_MemoryPathsNotResolved verifies :memory: paths pass through.
func TestLoadConfig_MemoryPathsNotResolved(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "leapetl.yaml")
	cfgContent := `warehouse:
  type: sqlite
  path: ":memory:"
state_path: ":memory:"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgContent), 0600))

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, ":memory:", cfg.Warehouse.Path)
	assert.Equal(t, ":memory:", cfg.StatePath)
}

// TestLoadConfig_EnvOverridesFile tests that env vars override the config file.
func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "leapetl.yaml")
	cfgContent := `incoming_dir: from_file
warehouse:
  type: sqlite
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgContent), 0600))

	require.NoError(t, os.Setenv("LEAPETL_INCOMING_DIR", "from_env"))
	defer func() { _ = os.Unsetenv("LEAPETL_INCOMING_DIR") }()

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(tmpDir, "from_env"), cfg.IncomingDir,
		"env var should override config file")
}

// TestLoadConfig_FlagPrecedence tests that flags override env vars and the file.
func TestLoadConfig_FlagPrecedence(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "leapetl.yaml")
	cfgContent := `incoming_dir: from_file
warehouse:
  type: sqlite
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgContent), 0600))

	require.NoError(t, os.Setenv("LEAPETL_INCOMING_DIR", "from_env"))
	defer func() { _ = os.Unsetenv("LEAPETL_INCOMING_DIR") }()

	flagDir := t.TempDir()
	flags := newTestFlags()
	require.NoError(t, flags.Set("incoming-dir", flagDir))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, flagDir, cfg.IncomingDir,
		"flag value should override config file and env var")
}

// TestLoadConfig_FlagMappings tests the short flag names that map to nested
// config keys.
func TestLoadConfig_FlagMappings(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	whPath := filepath.Join(tmpDir, "custom.duckdb")
	statePath := filepath.Join(tmpDir, "custom_state.db")

	flags := newTestFlags()
	require.NoError(t, flags.Set("project-dir", tmpDir))
	require.NoError(t, flags.Set("warehouse", whPath))
	require.NoError(t, flags.Set("warehouse-type", "duckdb"))
	require.NoError(t, flags.Set("state", statePath))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, "duckdb", cfg.Warehouse.Type)
	assert.Equal(t, whPath, cfg.Warehouse.Path)
	assert.Equal(t, statePath, cfg.StatePath)
}

// TestLoadConfig_MemoryWarehouseFlag tests that --warehouse :memory: is not
// converted to an absolute path.
func TestLoadConfig_MemoryWarehouseFlag(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()

	flags := newTestFlags()
	require.NoError(t, flags.Set("project-dir", tmpDir))
	require.NoError(t, flags.Set("warehouse", ":memory:"))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, ":memory:", cfg.Warehouse.Path)
}

// TestLoadConfig_InvalidWarehouseType tests that validation runs on load.
func TestLoadConfig_InvalidWarehouseType(t *testing.T) {
	ResetConfig()
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "leapetl.yaml")
	cfgContent := `warehouse:
  type: mysql
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgContent), 0600))

	_, err := LoadConfig(cfgPath, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown adapter type")
	assert.Contains(t, err.Error(), "mysql")
}

func TestResolvePathRelativeTo(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"empty", "", ""},
		{"memory", ":memory:", ":memory:"},
		{"absolute", "/abs/path.db", "/abs/path.db"},
		{"relative", "data/wh.db", filepath.Join("/base", "data", "wh.db")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resolvePathRelativeTo(tt.path, "/base"))
		})
	}
}
