// Package commands implements the leapetl subcommands.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapetl/internal/cli/config"
	"github.com/leapstack-labs/leapetl/internal/intake"
	"github.com/leapstack-labs/leapetl/internal/pipeline"
	"github.com/leapstack-labs/leapetl/internal/state"
	"github.com/leapstack-labs/leapetl/internal/warehouse"
	"github.com/leapstack-labs/leapetl/pkg/adapter"
	"github.com/spf13/cobra"
)

// getConfig returns the loaded configuration for the current invocation.
func getConfig() *config.Config {
	if c := config.GetCurrentConfig(); c != nil {
		return c
	}
	return &config.Config{
		IncomingDir: config.DefaultIncomingDir,
		StatePath:   config.DefaultStateFile,
		Warehouse: config.WarehouseConfig{
			Type: config.DefaultWarehouseType,
			Path: config.DefaultWarehousePath,
		},
	}
}

// ensureParentDir creates the parent directory for a database path.
func ensureParentDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// openWarehouse connects to the configured warehouse and initializes its
// system tables.
func openWarehouse(cmd *cobra.Command, cfg *config.Config) (*warehouse.Warehouse, error) {
	if err := ensureParentDir(cfg.Warehouse.Path); err != nil {
		return nil, err
	}
	logger := config.GetLogger(cmd.Context())
	return warehouse.Open(cmd.Context(), adapter.Config{
		Type: cfg.Warehouse.Type,
		Path: cfg.Warehouse.Path,
	}, logger)
}

// openStore opens the state database and runs pending migrations.
func openStore(cfg *config.Config) (*state.SQLiteStore, error) {
	if err := ensureParentDir(cfg.StatePath); err != nil {
		return nil, err
	}
	store := state.NewSQLiteStore()
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// intakeOptions maps import config onto intake options.
func intakeOptions(cfg *config.Config) intake.Options {
	opts := intake.DefaultOptions()
	if len(cfg.Import.Encodings) > 0 {
		opts.Encodings = cfg.Import.Encodings
	}
	opts.TrimWhitespace = cfg.Import.TrimWhitespace
	opts.SkipEmptyRows = cfg.Import.SkipEmptyRows
	return opts
}

// pipelineOptions assembles pipeline options from config.
func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		IncomingDir: cfg.IncomingDir,
		Intake:      intakeOptions(cfg),
		Keys:        cfg.Keys,
	}
}
