package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Audit statuses recorded in the log table.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Operation kinds recorded in the log table.
const (
	OpIngest    = "ingest"
	OpReconcile = "reconcile"
	OpAggregate = "aggregate"
)

// LogEntry is one audit record: the outcome of one batch-scoped operation.
type LogEntry struct {
	ID           string
	Operation    string
	Entity       string
	TableName    string
	RowsAffected int64
	Status       string
	Message      string
	StartedAt    string
	CompletedAt  string
}

// AppendLog appends an audit record. A zero ID is assigned, a zero
// CompletedAt is stamped with the current time.
func (w *Warehouse) AppendLog(ctx context.Context, e LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CompletedAt == "" {
		e.CompletedAt = Now()
	}

	stmt := fmt.Sprintf(`INSERT INTO %s
		(id, operation, entity, table_name, rows_affected, status, message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, LogTable)

	err := w.db.Exec(ctx, stmt,
		e.ID, e.Operation, e.Entity, e.TableName, e.RowsAffected,
		e.Status, e.Message, e.StartedAt, e.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}

	w.logger.Debug("audit record appended",
		"operation", e.Operation, "entity", e.Entity, "rows", e.RowsAffected, "status", e.Status)
	return nil
}

// RecentLog returns the most recent audit records, newest first. Records
// completing within the same second tie-break on rowid, so insertion order
// is preserved at the timestamp resolution.
func (w *Warehouse) RecentLog(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := w.db.Query(ctx, fmt.Sprintf(`SELECT
		id, operation, entity, table_name, rows_affected, status, message, started_at, completed_at
		FROM %s ORDER BY completed_at DESC, rowid DESC LIMIT ?`, LogTable), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var ent, table, status, msg, started, completed sql.NullString
		var affected sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Operation, &ent, &table, &affected, &status, &msg, &started, &completed); err != nil {
			return nil, err
		}
		e.Entity = ent.String
		e.TableName = table.String
		e.RowsAffected = affected.Int64
		e.Status = status.String
		e.Message = msg.String
		e.StartedAt = started.String
		e.CompletedAt = completed.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
