package commands

import (
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapetl/internal/aggregate"
	"github.com/leapstack-labs/leapetl/internal/cli/config"
	"github.com/spf13/cobra"
)

// NewAggregateCommand creates the aggregate command.
func NewAggregateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Rebuild all summary reports from durable tables",
		Long: `Drop and rebuild every report table from the current durable
tables. Reports whose source tables are missing are skipped; a failure
in one report does not stop the others.`,
		Aliases: []string{"reports"},
		RunE:    runAggregate,
	}
	return cmd
}

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	wh, err := openWarehouse(cmd, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	builder := aggregate.New(wh, logger)
	counts, buildErr := builder.RebuildAll(cmd.Context())

	if len(counts) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Report", "Rows"})

		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			t.AppendRow(table.Row{name, counts[name]})
		}
		t.Render()
	}

	return buildErr
}
