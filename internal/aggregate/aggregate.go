// Package aggregate rebuilds the report table tier from current durable
// state. Every report table is dropped and recreated in full on each run,
// so reports are always a pure function of the durable tables at rebuild
// time and carry no state of their own.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapetl/internal/warehouse"
)

// Report table names.
const (
	TableKPIs         = "rptDashboardKPIs"
	TableCustomers    = "rptCustomerSummary"
	TableAccounts     = "rptAccountSummary"
	TableTransactions = "rptTransactionSummary"
	TableLoans        = "rptLoanSummary"
	TableBranches     = "rptBranchSummary"
	TableDaily        = "rptDailyMetrics"
)

// Builder rebuilds report tables.
type Builder struct {
	wh     *warehouse.Warehouse
	logger *slog.Logger
}

// New creates a Builder.
func New(wh *warehouse.Warehouse, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{wh: wh, logger: logger}
}

type report struct {
	name  string
	build func(ctx context.Context, updatedAt string) (int64, error)
}

// RebuildAll drops and recreates every report table. A report whose source
// durable tables are missing is skipped and reported as zero rows. Failures
// are scoped per report: the remaining reports are still rebuilt and the
// collected errors are returned joined.
func (b *Builder) RebuildAll(ctx context.Context) (map[string]int64, error) {
	startedAt := warehouse.Now()
	updatedAt := startedAt

	reports := []report{
		{TableKPIs, b.buildKPIs},
		{TableCustomers, b.buildCustomerSummary},
		{TableAccounts, b.buildAccountSummary},
		{TableTransactions, b.buildTransactionSummary},
		{TableLoans, b.buildLoanSummary},
		{TableBranches, b.buildBranchSummary},
		{TableDaily, b.buildDailyMetrics},
	}

	counts := make(map[string]int64, len(reports))
	var errs []error
	for _, rep := range reports {
		rows, err := rep.build(ctx, updatedAt)
		counts[rep.name] = rows
		if err != nil {
			b.logger.Error("report rebuild failed", "report", rep.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", rep.name, err))
			continue
		}
		b.logger.Debug("report rebuilt", "report", rep.name, "rows", rows)
	}

	status := warehouse.StatusSuccess
	msg := fmt.Sprintf("rebuilt %d report tables", len(reports))
	if len(errs) > 0 {
		status = warehouse.StatusFailed
		msg = fmt.Sprintf("%d of %d report rebuilds failed", len(errs), len(reports))
	}
	_ = b.wh.AppendLog(ctx, warehouse.LogEntry{
		Operation: warehouse.OpAggregate,
		TableName: "rpt*",
		Status:    status,
		Message:   msg,
		StartedAt: startedAt,
	})
	_ = b.wh.SetMeta(ctx, "last_report_refresh", warehouse.Now())

	return counts, errors.Join(errs...)
}

// recreate drops a report table and recreates it from a SELECT. Returns the
// resulting row count.
func (b *Builder) recreate(ctx context.Context, table, selectSQL string) (int64, error) {
	q := b.wh.Adapter().QuoteIdent
	if err := b.wh.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", q(table))); err != nil {
		return 0, err
	}
	if err := b.wh.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", q(table), selectSQL)); err != nil {
		return 0, fmt.Errorf("failed to create report table %s: %w", table, err)
	}
	return b.wh.RowCount(ctx, table)
}
