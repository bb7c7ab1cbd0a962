package commands

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapetl/internal/cli/config"
	"github.com/leapstack-labs/leapetl/internal/entity"
	"github.com/leapstack-labs/leapetl/internal/reconcile"
	"github.com/spf13/cobra"
)

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile [entity...]",
		Short: "Admit new rows from raw tables into durable tables",
		Long: `Compare intake rows against durable tables by identity key and
admit only rows not seen before. Re-running is always safe: a second
pass over the same intake contents admits nothing.`,
		Example: `  # Reconcile every entity with an intake table
  leapetl reconcile

  # Reconcile specific entities
  leapetl reconcile customer_profiles loans`,
		RunE: runReconcile,
	}
	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	wh, err := openWarehouse(cmd, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	rec := reconcile.New(wh, cfg.Keys, logger)

	results := make(map[string]*reconcile.Result)
	var firstErr error
	if len(args) > 0 {
		for _, base := range args {
			res, err := rec.Reconcile(cmd.Context(), entity.FromBase(base))
			if res != nil {
				results[base] = res
			}
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("entity %s: %w", base, err)
			}
		}
	} else {
		results, firstErr = rec.ReconcileAll(cmd.Context())
	}

	if len(results) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Entity", "Table", "Admitted", "Already Present"})

		bases := make([]string, 0, len(results))
		for base := range results {
			bases = append(bases, base)
		}
		sort.Strings(bases)
		for _, base := range bases {
			res := results[base]
			t.AppendRow(table.Row{res.Entity, res.Table, res.Admitted, res.AlreadyPresent})
		}
		t.Render()
	}

	return firstErr
}
