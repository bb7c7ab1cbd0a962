package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// StatusOptions holds options for the status command.
type StatusOptions struct {
	Limit int
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	opts := &StatusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent runs and warehouse activity",
		Long: `Display recent pipeline runs from the state database and the most
recent operations recorded in the warehouse audit log.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "Number of entries to show")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	cfg := getConfig()
	out := cmd.OutOrStdout()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(opts.Limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Recent runs:")
	if len(runs) == 0 {
		fmt.Fprintln(out, "  (none)")
	} else {
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Run", "Status", "Started", "Duration", "Error"})
		for _, run := range runs {
			duration := ""
			if run.CompletedAt != nil {
				duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
			}
			t.AppendRow(table.Row{
				shortID(run.ID),
				run.Status,
				run.StartedAt.Format("2006-01-02 15:04:05"),
				duration,
				run.Error,
			})
		}
		t.Render()
	}

	wh, err := openWarehouse(cmd, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	entries, err := wh.RecentLog(cmd.Context(), opts.Limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Warehouse activity:")
	if len(entries) == 0 {
		fmt.Fprintln(out, "  (none)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Operation", "Entity", "Table", "Rows", "Status", "Completed"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Operation, e.Entity, e.TableName, e.RowsAffected, e.Status, e.CompletedAt})
	}
	t.Render()

	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
