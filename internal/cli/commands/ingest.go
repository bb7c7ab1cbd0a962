package commands

import (
	"fmt"

	"github.com/leapstack-labs/leapetl/internal/cli/config"
	"github.com/leapstack-labs/leapetl/internal/intake"
	"github.com/leapstack-labs/leapetl/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewIngestCommand creates the ingest command.
func NewIngestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Load CSV files into raw tables",
		Long: `Load CSV files into per-entity raw tables without reconciling.

With no arguments, every CSV file in the incoming directory is loaded.
Rows are appended as-is with provenance metadata; deduplication happens
later, during reconcile.`,
		Example: `  # Ingest everything in the incoming directory
  leapetl ingest

  # Ingest specific files
  leapetl ingest drops/customer_profiles_20240115.csv`,
		RunE: runIngest,
	}
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := getConfig()
	out := cmd.OutOrStdout()
	logger := config.GetLogger(cmd.Context())

	wh, err := openWarehouse(cmd, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	if len(args) > 0 {
		ing := intake.NewIngestor(wh, intakeOptions(cfg), cfg.Keys, logger)
		var failed int
		for _, path := range args {
			batch, err := ing.IngestFile(cmd.Context(), path)
			if err != nil {
				failed++
				fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(out, "OK   %s -> %s (%d rows)\n", path, batch.Table, batch.RowsLoaded)
		}
		if failed > 0 {
			return fmt.Errorf("%d file(s) failed to ingest", failed)
		}
		return nil
	}

	if err := cfg.ValidateIncomingDir(); err != nil {
		return err
	}

	p := pipeline.New(wh, nil, pipelineOptions(cfg), logger)
	summary, err := p.Ingest(cmd.Context())
	if summary != nil {
		fmt.Fprintf(out, "Ingested %d file(s), %d row(s)\n", summary.FilesIngested, summary.RowsLoaded)
	}
	return err
}
