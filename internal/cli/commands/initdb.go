package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewInitDBCommand creates the initdb command.
func NewInitDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "initdb",
		Short: "Create the warehouse and state databases",
		Long: `Initialize the warehouse system tables and run state database
migrations. Safe to run repeatedly; existing data is untouched.`,
		RunE: runInitDB,
	}
	return cmd
}

func runInitDB(cmd *cobra.Command, _ []string) error {
	cfg := getConfig()
	out := cmd.OutOrStdout()

	wh, err := openWarehouse(cmd, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()
	fmt.Fprintf(out, "Warehouse ready: %s (%s)\n", cfg.Warehouse.Path, cfg.Warehouse.Type)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	version, err := store.GetMigrationVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "State database ready: %s (migration version %d)\n", cfg.StatePath, version)

	return nil
}
