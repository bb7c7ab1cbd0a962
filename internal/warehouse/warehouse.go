// Package warehouse wraps a warehouse adapter with the system surfaces the
// pipeline needs: the audit log, the entity schema registry, and key/value
// metadata. All three live in the same relational store as the data tables
// so a run's history can be reconstructed from the store alone.
package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapetl/pkg/adapter"
)

// System table names. Everything else in the store belongs to the raw/stg/rpt
// tiers.
const (
	LogTable    = "etl_log"
	SchemaTable = "etl_schema"
	MetaTable   = "etl_meta"
)

// TimeFormat is the wall-clock text format stored in warehouse tables.
const TimeFormat = "2006-01-02 15:04:05"

// Now returns the current UTC time in warehouse text form.
func Now() string {
	return time.Now().UTC().Format(TimeFormat)
}

// Warehouse provides access to the relational store through an adapter.
type Warehouse struct {
	db     adapter.Adapter
	logger *slog.Logger
}

// Open creates an adapter from config, connects it, and ensures the system
// tables exist.
func Open(ctx context.Context, cfg adapter.Config, logger *slog.Logger) (*Warehouse, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := adapter.NewAdapter(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create warehouse adapter: %w", err)
	}
	if err := db.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}

	w := New(db, logger)
	if err := w.InitSystemTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// New wraps an already-connected adapter. The caller keeps ownership of
// nothing; Close closes the adapter.
func New(db adapter.Adapter, logger *slog.Logger) *Warehouse {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Warehouse{db: db, logger: logger}
}

// Adapter returns the underlying adapter for direct SQL access.
func (w *Warehouse) Adapter() adapter.Adapter {
	return w.db
}

// Close closes the underlying adapter.
func (w *Warehouse) Close() error {
	return w.db.Close()
}

// InitSystemTables creates the audit log, schema registry, and metadata
// tables if they do not exist, and stamps database_created on first use.
func (w *Warehouse) InitSystemTables(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			entity TEXT,
			table_name TEXT,
			rows_affected INTEGER,
			status TEXT,
			message TEXT,
			started_at TEXT,
			completed_at TEXT
		)`, LogTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			entity TEXT PRIMARY KEY,
			columns TEXT NOT NULL,
			key_columns TEXT,
			created_at TEXT
		)`, SchemaTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value TEXT,
			created_at TEXT,
			updated_at TEXT
		)`, MetaTable),
	}

	for _, stmt := range stmts {
		if err := w.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create system tables: %w", err)
		}
	}

	if _, ok, err := w.GetMeta(ctx, "database_created"); err == nil && !ok {
		_ = w.SetMeta(ctx, "database_created", Now())
	}
	return nil
}

// Exec executes a statement on the underlying adapter.
func (w *Warehouse) Exec(ctx context.Context, sqlStr string, args ...any) error {
	return w.db.Exec(ctx, sqlStr, args...)
}

// Query runs a query on the underlying adapter.
func (w *Warehouse) Query(ctx context.Context, sqlStr string, args ...any) (*adapter.Rows, error) {
	return w.db.Query(ctx, sqlStr, args...)
}

// TableExists reports whether a table exists in the store.
func (w *Warehouse) TableExists(ctx context.Context, table string) (bool, error) {
	return w.db.TableExists(ctx, table)
}

// Columns returns the column names of a table in declared order.
func (w *Warehouse) Columns(ctx context.Context, table string) ([]string, error) {
	meta, err := w.db.GetTableMetadata(ctx, table)
	if err != nil {
		return nil, err
	}
	return meta.ColumnNames(), nil
}

// RowCount returns the number of rows in a table.
func (w *Warehouse) RowCount(ctx context.Context, table string) (int64, error) {
	rows, err := w.db.Query(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", w.db.QuoteIdent(table))) //nolint:gosec // identifier is quoted
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

// CreateTable creates a table with the given TEXT columns if it does not
// already exist. Incoming data is stored as text; typing is left to the
// reporting layer.
func (w *Warehouse) CreateTable(ctx context.Context, table string, cols []string) error {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = w.db.QuoteIdent(c) + " TEXT"
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", w.db.QuoteIdent(table), strings.Join(defs, ", "))
	if err := w.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// InsertRow inserts a single row into a table.
func (w *Warehouse) InsertRow(ctx context.Context, table string, cols []string, vals []any) error {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = w.db.QuoteIdent(c)
		marks[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.db.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	return w.db.Exec(ctx, stmt, vals...)
}

// ListTables returns data table names with the given prefix, sorted.
func (w *Warehouse) ListTables(ctx context.Context, prefix string) ([]string, error) {
	var (
		rows *adapter.Rows
		err  error
	)
	if w.db.DialectName() == "sqlite" {
		rows, err = w.db.Query(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ORDER BY name`,
			prefix+"%")
	} else {
		rows, err = w.db.Query(ctx,
			`SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' AND table_name LIKE ? ORDER BY table_name`,
			prefix+"%")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SetMeta upserts a key/value metadata entry.
func (w *Warehouse) SetMeta(ctx context.Context, key, value string) error {
	now := Now()
	stmt := fmt.Sprintf(`INSERT INTO %s (key, value, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, MetaTable)
	return w.db.Exec(ctx, stmt, key, value, now, now)
}

// GetMeta returns a metadata value and whether it exists.
func (w *Warehouse) GetMeta(ctx context.Context, key string) (string, bool, error) {
	rows, err := w.db.Query(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, MetaTable), key)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return "", false, rows.Err()
	}
	var value string
	if err := rows.Scan(&value); err != nil {
		return "", false, err
	}
	return value, true, nil
}
