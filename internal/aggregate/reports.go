package aggregate

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapetl/internal/entity"
)

// Durable source tables consumed by the reports.
const (
	srcCustomers   = "stgCustomerProfiles"
	srcAccounts    = "stgAccountProducts"
	srcLoans       = "stgLoans"
	srcPendingTxns = "stgPendingTransactions"
	srcFailedTxns  = "stgFailedTransactions"
	srcBranches    = "stgBranches"
	srcEmployees   = "stgEmployees"
	srcAtms        = "stgAtmLocations"
	srcCreditCards = "stgCreditCards"
	srcInvestments = "stgInvestments"
)

// buildKPIs computes the headline KPI table. Each KPI is an independent
// scalar query; a KPI whose source table is absent is simply not emitted.
func (b *Builder) buildKPIs(ctx context.Context, updatedAt string) (int64, error) {
	q := b.wh.Adapter().QuoteIdent
	if err := b.wh.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", q(TableKPIs))); err != nil {
		return 0, err
	}
	if err := b.wh.Exec(ctx, fmt.Sprintf(`CREATE TABLE %s (
		kpi_name TEXT PRIMARY KEY,
		kpi_value DOUBLE,
		kpi_format TEXT,
		kpi_category TEXT,
		updated_at TEXT
	)`, q(TableKPIs))); err != nil {
		return 0, err
	}

	type kpi struct {
		name     string
		value    float64
		format   string
		category string
	}
	var kpis []kpi
	add := func(name string, value float64, ok bool, format, category string) {
		if ok {
			kpis = append(kpis, kpi{name, value, format, category})
		}
	}

	if yes, _ := b.wh.TableExists(ctx, srcCustomers); yes {
		n, ok := b.scalar(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", q(srcCustomers)))
		add("total_customers", n, ok, "number", "customer")
		if b.tableHasColumn(ctx, srcCustomers, "status") {
			n, ok = b.scalar(ctx, fmt.Sprintf(
				"SELECT COUNT(*) FROM %s WHERE status = 'active' OR status IS NULL", q(srcCustomers)))
			add("active_customers", n, ok, "number", "customer")
		}
	}

	if yes, _ := b.wh.TableExists(ctx, srcAccounts); yes {
		n, ok := b.scalar(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", q(srcAccounts)))
		add("total_accounts", n, ok, "number", "account")
		n, ok = b.scalar(ctx, b.sumSQL(srcAccounts, "balance"))
		add("total_balance", n, ok, "currency", "account")
		n, ok = b.scalar(ctx, b.avgSQL(srcAccounts, "balance"))
		add("avg_account_balance", n, ok, "currency", "account")
	}

	if yes, _ := b.wh.TableExists(ctx, srcLoans); yes {
		n, ok := b.scalar(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", q(srcLoans)))
		add("total_loans", n, ok, "number", "loan")
		n, ok = b.scalar(ctx, b.sumSQL(srcLoans, "principal"))
		add("total_loan_amount", n, ok, "currency", "loan")
		if b.tableHasColumn(ctx, srcLoans, "status") {
			n, ok = b.scalar(ctx, fmt.Sprintf(
				"SELECT COUNT(*) FROM %s WHERE status = 'active' OR status IS NULL", q(srcLoans)))
			add("active_loans", n, ok, "number", "loan")
		}
	}

	if yes, _ := b.wh.TableExists(ctx, srcPendingTxns); yes {
		n, ok := b.scalar(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", q(srcPendingTxns)))
		add("pending_transactions", n, ok, "number", "transaction")
		n, ok = b.scalar(ctx, b.sumSQL(srcPendingTxns, "amount"))
		add("pending_amount", n, ok, "currency", "transaction")
	}
	if yes, _ := b.wh.TableExists(ctx, srcFailedTxns); yes {
		n, ok := b.scalar(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", q(srcFailedTxns)))
		add("failed_transactions", n, ok, "number", "transaction")
	}

	for _, t := range []struct{ table, name string }{
		{srcBranches, "total_branches"},
		{srcEmployees, "total_employees"},
		{srcAtms, "total_atms"},
	} {
		if yes, _ := b.wh.TableExists(ctx, t.table); yes {
			n, ok := b.scalar(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", q(t.table)))
			add(t.name, n, ok, "number", "operations")
		}
	}

	if yes, _ := b.wh.TableExists(ctx, srcCreditCards); yes {
		n, ok := b.scalar(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", q(srcCreditCards)))
		add("total_credit_cards", n, ok, "number", "products")
		n, ok = b.scalar(ctx, b.sumSQL(srcCreditCards, "credit_limit"))
		add("total_credit_limit", n, ok, "currency", "products")
	}
	if yes, _ := b.wh.TableExists(ctx, srcInvestments); yes {
		n, ok := b.scalar(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", q(srcInvestments)))
		add("total_investments", n, ok, "number", "products")
		n, ok = b.scalar(ctx, b.sumSQL(srcInvestments, "current_value"))
		add("total_investment_value", n, ok, "currency", "products")
	}

	for _, k := range kpis {
		err := b.wh.Exec(ctx, fmt.Sprintf(
			"INSERT INTO %s (kpi_name, kpi_value, kpi_format, kpi_category, updated_at) VALUES (?, ?, ?, ?, ?)",
			q(TableKPIs)),
			k.name, k.value, k.format, k.category, updatedAt)
		if err != nil {
			return int64(len(kpis)), err
		}
	}
	return int64(len(kpis)), nil
}

func (b *Builder) buildCustomerSummary(ctx context.Context, updatedAt string) (int64, error) {
	if yes, _ := b.wh.TableExists(ctx, srcCustomers); !yes {
		b.logger.Debug("skipping report, source missing", "report", TableCustomers, "source", srcCustomers)
		return 0, nil
	}

	sel := fmt.Sprintf(`SELECT
			%s AS segment,
			%s AS risk_rating,
			%s AS status,
			COUNT(*) AS customer_count,
			'%s' AS updated_at
		FROM %s
		GROUP BY segment, risk_rating, status`,
		b.textExpr(ctx, srcCustomers, "segment", "Unknown"),
		b.textExpr(ctx, srcCustomers, "risk_rating", "Unknown"),
		b.textExpr(ctx, srcCustomers, "status", "active"),
		updatedAt, b.wh.Adapter().QuoteIdent(srcCustomers))
	return b.recreate(ctx, TableCustomers, sel)
}

func (b *Builder) buildAccountSummary(ctx context.Context, updatedAt string) (int64, error) {
	if yes, _ := b.wh.TableExists(ctx, srcAccounts); !yes {
		b.logger.Debug("skipping report, source missing", "report", TableAccounts, "source", srcAccounts)
		return 0, nil
	}

	sel := fmt.Sprintf(`SELECT
			%s AS account_type,
			%s AS currency,
			%s AS status,
			COUNT(*) AS account_count,
			%s AS total_balance,
			%s AS avg_balance,
			%s AS min_balance,
			%s AS max_balance,
			'%s' AS updated_at
		FROM %s
		GROUP BY account_type, currency, status`,
		b.textExpr(ctx, srcAccounts, "account_type", "Unknown"),
		b.textExpr(ctx, srcAccounts, "currency", "USD"),
		b.textExpr(ctx, srcAccounts, "status", "active"),
		b.aggExpr(ctx, srcAccounts, "SUM", "balance"),
		b.aggExpr(ctx, srcAccounts, "AVG", "balance"),
		b.aggExpr(ctx, srcAccounts, "MIN", "balance"),
		b.aggExpr(ctx, srcAccounts, "MAX", "balance"),
		updatedAt, b.wh.Adapter().QuoteIdent(srcAccounts))
	return b.recreate(ctx, TableAccounts, sel)
}

// buildTransactionSummary unions pending and failed transactions into one
// summary; either source may be absent.
func (b *Builder) buildTransactionSummary(ctx context.Context, updatedAt string) (int64, error) {
	q := b.wh.Adapter().QuoteIdent
	if err := b.wh.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", q(TableTransactions))); err != nil {
		return 0, err
	}
	if err := b.wh.Exec(ctx, fmt.Sprintf(`CREATE TABLE %s (
		transaction_type TEXT,
		status TEXT,
		transaction_count BIGINT,
		total_amount DOUBLE,
		avg_amount DOUBLE,
		source_table TEXT,
		updated_at TEXT
	)`, q(TableTransactions))); err != nil {
		return 0, err
	}

	if yes, _ := b.wh.TableExists(ctx, srcPendingTxns); yes {
		err := b.wh.Exec(ctx, fmt.Sprintf(`INSERT INTO %s
			SELECT
				%s AS transaction_type,
				%s AS status,
				COUNT(*),
				%s,
				%s,
				'%s',
				'%s'
			FROM %s
			GROUP BY transaction_type, status`,
			q(TableTransactions),
			b.textExpr(ctx, srcPendingTxns, "transaction_type", "Unknown"),
			b.textExpr(ctx, srcPendingTxns, "status", "pending"),
			b.aggExpr(ctx, srcPendingTxns, "SUM", "amount"),
			b.aggExpr(ctx, srcPendingTxns, "AVG", "amount"),
			srcPendingTxns, updatedAt, q(srcPendingTxns)))
		if err != nil {
			return 0, err
		}
	}

	if yes, _ := b.wh.TableExists(ctx, srcFailedTxns); yes {
		err := b.wh.Exec(ctx, fmt.Sprintf(`INSERT INTO %s
			SELECT
				%s AS transaction_type,
				'failed',
				COUNT(*),
				%s,
				%s,
				'%s',
				'%s'
			FROM %s
			GROUP BY transaction_type`,
			q(TableTransactions),
			b.textExpr(ctx, srcFailedTxns, "transaction_type", "Unknown"),
			b.aggExpr(ctx, srcFailedTxns, "SUM", "amount"),
			b.aggExpr(ctx, srcFailedTxns, "AVG", "amount"),
			srcFailedTxns, updatedAt, q(srcFailedTxns)))
		if err != nil {
			return 0, err
		}
	}

	return b.wh.RowCount(ctx, TableTransactions)
}

func (b *Builder) buildLoanSummary(ctx context.Context, updatedAt string) (int64, error) {
	if yes, _ := b.wh.TableExists(ctx, srcLoans); !yes {
		b.logger.Debug("skipping report, source missing", "report", TableLoans, "source", srcLoans)
		return 0, nil
	}

	sel := fmt.Sprintf(`SELECT
			%s AS loan_type,
			%s AS status,
			COUNT(*) AS loan_count,
			%s AS total_principal,
			%s AS avg_principal,
			%s AS avg_interest_rate,
			%s AS total_outstanding,
			'%s' AS updated_at
		FROM %s
		GROUP BY loan_type, status`,
		b.textExpr(ctx, srcLoans, "loan_type", "Unknown"),
		b.textExpr(ctx, srcLoans, "status", "active"),
		b.aggExpr(ctx, srcLoans, "SUM", "principal"),
		b.aggExpr(ctx, srcLoans, "AVG", "principal"),
		b.aggExpr(ctx, srcLoans, "AVG", "interest_rate"),
		b.aggExpr(ctx, srcLoans, "SUM", "outstanding"),
		updatedAt, b.wh.Adapter().QuoteIdent(srcLoans))
	return b.recreate(ctx, TableLoans, sel)
}

// buildBranchSummary lists branches with per-branch child counts. The child
// links are optional: a child table that is missing, or that lacks the
// branch_id linking column entirely, leaves the corresponding count at zero
// rather than failing the rebuild.
func (b *Builder) buildBranchSummary(ctx context.Context, updatedAt string) (int64, error) {
	if yes, _ := b.wh.TableExists(ctx, srcBranches); !yes {
		b.logger.Debug("skipping report, source missing", "report", TableBranches, "source", srcBranches)
		return 0, nil
	}

	if !b.tableHasColumn(ctx, srcBranches, "branch_id") {
		b.logger.Debug("skipping report, source has no branch_id", "report", TableBranches)
		return 0, nil
	}

	q := b.wh.Adapter().QuoteIdent
	sel := fmt.Sprintf(`SELECT
			branch_id,
			%s AS branch_name,
			%s AS city,
			%s AS state,
			0 AS customer_count,
			0 AS account_count,
			0 AS employee_count,
			'%s' AS updated_at
		FROM %s`,
		b.textExpr(ctx, srcBranches, "branch_name", ""),
		b.textExpr(ctx, srcBranches, "city", ""),
		b.textExpr(ctx, srcBranches, "state", ""),
		updatedAt, q(srcBranches))
	rows, err := b.recreate(ctx, TableBranches, sel)
	if err != nil {
		return rows, err
	}

	for _, child := range []struct{ table, countCol string }{
		{srcEmployees, "employee_count"},
		{srcAccounts, "account_count"},
	} {
		if yes, _ := b.wh.TableExists(ctx, child.table); !yes {
			continue
		}
		if !b.tableHasColumn(ctx, child.table, "branch_id") {
			b.logger.Debug("child table has no branch link, counts stay zero", "table", child.table)
			continue
		}
		err := b.wh.Exec(ctx, fmt.Sprintf(`UPDATE %s SET %s = (
				SELECT COUNT(*) FROM %s c WHERE c.branch_id = %s.branch_id
			)`,
			q(TableBranches), child.countCol, q(child.table), q(TableBranches)))
		if err != nil {
			return rows, err
		}
	}

	return rows, nil
}

// buildDailyMetrics produces an import-volume time series per intake table,
// keyed on the date part of the import timestamp.
func (b *Builder) buildDailyMetrics(ctx context.Context, updatedAt string) (int64, error) {
	q := b.wh.Adapter().QuoteIdent
	if err := b.wh.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", q(TableDaily))); err != nil {
		return 0, err
	}
	if err := b.wh.Exec(ctx, fmt.Sprintf(`CREATE TABLE %s (
		metric_date TEXT,
		metric_name TEXT,
		metric_value DOUBLE,
		updated_at TEXT,
		PRIMARY KEY (metric_date, metric_name)
	)`, q(TableDaily))); err != nil {
		return 0, err
	}

	rawTables, err := b.wh.ListTables(ctx, entity.RawPrefix)
	if err != nil {
		return 0, err
	}

	for _, table := range rawTables {
		if !b.tableHasColumn(ctx, table, "_imported_at") {
			continue
		}
		err := b.wh.Exec(ctx, fmt.Sprintf(`INSERT INTO %s
			SELECT
				substr(_imported_at, 1, 10),
				'imported_%s',
				COUNT(*),
				'%s'
			FROM %s
			WHERE _imported_at IS NOT NULL
			GROUP BY substr(_imported_at, 1, 10)`,
			q(TableDaily), table, updatedAt, q(table)))
		if err != nil {
			return 0, err
		}
	}

	return b.wh.RowCount(ctx, TableDaily)
}

// scalar runs a single-value query, treating NULL as zero. ok is false when
// the query itself failed (e.g. a column the KPI needs is absent).
func (b *Builder) scalar(ctx context.Context, sqlStr string) (float64, bool) {
	rows, err := b.wh.Query(ctx, sqlStr)
	if err != nil {
		b.logger.Debug("kpi query failed", "error", err)
		return 0, false
	}
	defer func() { _ = rows.Close() }()

	var v *float64
	if rows.Next() {
		if err := rows.Scan(&v); err != nil {
			return 0, false
		}
	}
	if v == nil {
		return 0, true
	}
	return *v, true
}

// textExpr yields a null-safe column reference, falling back to a literal
// when the source table does not carry the column at all.
func (b *Builder) textExpr(ctx context.Context, table, col, def string) string {
	if !b.tableHasColumn(ctx, table, col) {
		return fmt.Sprintf("'%s'", def)
	}
	return fmt.Sprintf("COALESCE(%s, '%s')", b.wh.Adapter().QuoteIdent(col), def)
}

// aggExpr yields a numeric aggregate over a text column, or a constant zero
// when the column is absent.
func (b *Builder) aggExpr(ctx context.Context, table, fn, col string) string {
	if !b.tableHasColumn(ctx, table, col) {
		return "0"
	}
	return fmt.Sprintf("COALESCE(%s(CAST(%s AS DOUBLE)), 0)", fn, b.wh.Adapter().QuoteIdent(col))
}

func (b *Builder) sumSQL(table, col string) string {
	q := b.wh.Adapter().QuoteIdent
	return fmt.Sprintf("SELECT COALESCE(SUM(CAST(%s AS DOUBLE)), 0) FROM %s", q(col), q(table))
}

func (b *Builder) avgSQL(table, col string) string {
	q := b.wh.Adapter().QuoteIdent
	return fmt.Sprintf("SELECT COALESCE(AVG(CAST(%s AS DOUBLE)), 0) FROM %s", q(col), q(table))
}

// tableHasColumn reports whether a source table carries a column. Durable
// tables consult the schema registry first; tables with no registered entity
// fall back to live introspection.
func (b *Builder) tableHasColumn(ctx context.Context, table, col string) bool {
	if ent, ok := entity.BaseFromDurableTable(table); ok {
		if has, err := b.wh.HasColumn(ctx, ent, col); err == nil && has {
			return true
		}
	}
	cols, err := b.wh.Columns(ctx, table)
	if err != nil {
		return false
	}
	for _, c := range cols {
		if strings.EqualFold(c, col) {
			return true
		}
	}
	return false
}
