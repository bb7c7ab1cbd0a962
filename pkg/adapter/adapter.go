// Package adapter provides database adapter interfaces and implementations
// for the leapetl warehouse.
//
// This package contains the public contract that all warehouse adapters must
// implement. Concrete adapter implementations are in pkg/adapters/
// subdirectories and register themselves via init().
package adapter

import (
	"context"
	"database/sql"
)

// Adapter defines the interface that all warehouse adapters must implement.
// It provides methods for connecting to a file-backed database, executing
// SQL, and retrieving table metadata.
type Adapter interface {
	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Exec executes a SQL statement that doesn't return rows (e.g., INSERT, CREATE).
	Exec(ctx context.Context, sql string, args ...any) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (*Rows, error)

	// TableExists reports whether a table with the given name exists.
	TableExists(ctx context.Context, table string) (bool, error)

	// GetTableMetadata retrieves column metadata and row count for a table.
	GetTableMetadata(ctx context.Context, table string) (*Metadata, error)

	// QuoteIdent quotes an identifier for safe use in generated SQL.
	QuoteIdent(name string) string

	// DialectName returns the adapter's dialect name (e.g. "sqlite", "duckdb").
	DialectName() string
}

// Config holds configuration for connecting to a warehouse database.
type Config struct {
	// Type selects the registered adapter ("sqlite", "duckdb").
	Type string
	// Path is the database file path. Empty or ":memory:" for in-memory.
	Path string
	// Options holds adapter-specific connection options.
	Options map[string]string
}

// Column represents a column in a database table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// Metadata holds metadata about a database table.
type Metadata struct {
	Name     string
	Columns  []Column
	RowCount int64
}

// ColumnNames returns the column names in declared order.
func (m *Metadata) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// Rows wraps sql.Rows to provide a consistent interface across adapters.
type Rows struct {
	*sql.Rows
}
