package config

import (
	"fmt"
	"os"

	"github.com/leapstack-labs/leapetl/pkg/adapter"
)

// Validate checks if the configuration is valid.
func Validate(c *Config) error {
	if c.Warehouse.Type == "" {
		return fmt.Errorf("warehouse.type is required")
	}
	if _, ok := adapter.Get(c.Warehouse.Type); !ok {
		return &adapter.UnknownAdapterError{
			Type:      c.Warehouse.Type,
			Available: adapter.ListAdapters(),
		}
	}
	if c.Warehouse.Path == "" {
		return fmt.Errorf("warehouse.path is required")
	}
	if c.StatePath == "" {
		return fmt.Errorf("state_path is required")
	}
	if len(c.Import.Encodings) == 0 {
		return fmt.Errorf("import.encodings must list at least one encoding")
	}
	return nil
}

// ValidateIncomingDir checks that the intake directory exists.
func (c *Config) ValidateIncomingDir() error {
	if _, err := os.Stat(c.IncomingDir); os.IsNotExist(err) {
		return fmt.Errorf("incoming directory does not exist: %s\nHint: Create the directory or use --incoming-dir to specify a different path", c.IncomingDir)
	}
	return nil
}
