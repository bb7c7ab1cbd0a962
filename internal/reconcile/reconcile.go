// Package reconcile admits new rows from intake tables into durable entity
// tables, preserving the no-duplication invariant and recording provenance.
//
// Admission is evaluated incrementally against the durable table: an
// identity set is seeded from current durable contents and updated as rows
// are admitted, so when a key appears more than once in one intake pass the
// first occurrence wins and later ones are excluded. Running the same pass
// again admits nothing.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapetl/internal/entity"
	"github.com/leapstack-labs/leapetl/internal/warehouse"
)

// Provenance columns added to every admitted durable row. Never part of
// identity comparison.
const (
	ColLoadedAt = "_loaded_at"
	ColBatchID  = "_batch_id"
)

// Result reports one reconciliation pass for one entity.
type Result struct {
	Entity         string
	Table          string
	Admitted       int64
	AlreadyPresent int64
}

// KeyColumnsMissingError is returned when an entity declares identity key
// columns that are not present in the intake data. There is no silent
// fallback to full-row comparison; the batch fails fast.
type KeyColumnsMissingError struct {
	Entity  string
	Missing []string
}

func (e *KeyColumnsMissingError) Error() string {
	return fmt.Sprintf("key columns not found for entity %s: %v", e.Entity, e.Missing)
}

// Reconciler moves rows from raw tables into durable tables.
type Reconciler struct {
	wh     *warehouse.Warehouse
	keys   map[string][]string
	logger *slog.Logger
}

// New creates a Reconciler. keys is the configured fallback for entities
// whose schema registry entry predates key declarations; the registry wins
// when it holds keys.
func New(wh *warehouse.Warehouse, keys map[string][]string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{wh: wh, keys: keys, logger: logger}
}

// ReconcileAll reconciles every entity that has an intake table, in sorted
// table order. Failures are scoped per entity; all entities are attempted
// and the first error is returned after the loop alongside partial results.
func (r *Reconciler) ReconcileAll(ctx context.Context) (map[string]*Result, error) {
	tables, err := r.wh.ListTables(ctx, entity.RawPrefix)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*Result)
	var firstErr error
	for _, table := range tables {
		ent, ok := entity.BaseFromRawTable(table)
		if !ok {
			continue
		}
		res, err := r.Reconcile(ctx, ent)
		if res != nil {
			results[ent.Base] = res
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("entity %s: %w", ent.Base, err)
		}
	}
	return results, firstErr
}

// Reconcile admits new rows from an entity's raw table into its durable
// table. Safe to invoke repeatedly: a second pass over the same intake
// contents admits zero rows.
//
// Write failures leave partial progress committed; the returned Result
// reflects rows admitted before the failure and re-running is the
// prescribed recovery.
func (r *Reconciler) Reconcile(ctx context.Context, ent entity.Name) (*Result, error) {
	startedAt := warehouse.Now()
	rawTable := ent.RawTable()
	durable := ent.DurableTable()
	res := &Result{Entity: ent.Base, Table: durable}

	exists, err := r.wh.TableExists(ctx, rawTable)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("no intake table %s for entity %s", rawTable, ent.Base)
	}

	dataCols, keyCols, err := r.entityShape(ctx, ent, rawTable)
	if err != nil {
		r.audit(ctx, ent.Base, durable, 0, warehouse.StatusFailed, err.Error(), startedAt)
		return nil, err
	}

	r.logger.Debug("reconciling entity",
		"entity", ent.Base, "durable", durable, "key_columns", keyCols)

	durableCols := append(append([]string{}, dataCols...), ColLoadedAt, ColBatchID)
	if err := r.wh.CreateTable(ctx, durable, durableCols); err != nil {
		return nil, err
	}

	// Identity columns: the declared key, or every data column when no key
	// is declared (whole-row identity, NULL matches NULL).
	identityCols := keyCols
	if len(identityCols) == 0 {
		identityCols = dataCols
	}

	seen, err := r.loadIdentities(ctx, durable, identityCols)
	if err != nil {
		return nil, err
	}

	idIdx, err := columnIndexes(dataCols, identityCols)
	if err != nil {
		// Shape was validated above; an index miss here means the registry
		// and the raw table disagree.
		return nil, err
	}

	rows, err := r.readIntake(ctx, rawTable, dataCols)
	if err != nil {
		return nil, err
	}

	insertCols := durableCols
	now := warehouse.Now()
	for _, row := range rows {
		key := identityKey(project(row.data, idIdx))
		if seen.has(key) {
			res.AlreadyPresent++
			continue
		}

		vals := append(append([]any{}, row.data...), now, row.batchID)
		if err := r.wh.InsertRow(ctx, durable, insertCols, vals); err != nil {
			msg := fmt.Sprintf("write failed after admitting %d rows: %v", res.Admitted, err)
			r.audit(ctx, ent.Base, durable, res.Admitted, warehouse.StatusFailed, msg, startedAt)
			return res, fmt.Errorf("failed to admit row into %s: %w", durable, err)
		}
		seen.add(key)
		res.Admitted++
	}

	msg := fmt.Sprintf("from %s: %d admitted, %d already present", rawTable, res.Admitted, res.AlreadyPresent)
	r.audit(ctx, ent.Base, durable, res.Admitted, warehouse.StatusSuccess, msg, startedAt)

	r.logger.Info("entity reconciled",
		"entity", ent.Base, "admitted", res.Admitted, "already_present", res.AlreadyPresent)
	return res, nil
}

// entityShape resolves the entity's data columns and key columns, preferring
// the schema registry and falling back to raw table introspection. Declared
// key columns absent from the data fail fast.
func (r *Reconciler) entityShape(ctx context.Context, ent entity.Name, rawTable string) (dataCols, keyCols []string, err error) {
	schema, err := r.wh.GetSchema(ctx, ent)
	if err != nil {
		return nil, nil, err
	}

	if schema != nil {
		dataCols = entity.DataColumns(schema.Columns)
		keyCols = schema.Keys
	} else {
		cols, err := r.wh.Columns(ctx, rawTable)
		if err != nil {
			return nil, nil, err
		}
		dataCols = entity.DataColumns(cols)
	}
	if len(keyCols) == 0 {
		keyCols = r.keys[ent.Base]
	}

	var missing []string
	for _, k := range keyCols {
		if !containsFold(dataCols, k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &KeyColumnsMissingError{Entity: ent.Base, Missing: missing}
	}
	return dataCols, keyCols, nil
}

// loadIdentities builds the identity set from current durable contents.
func (r *Reconciler) loadIdentities(ctx context.Context, durable string, identityCols []string) (identitySet, error) {
	rows, err := r.wh.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", //nolint:gosec // identifiers are quoted
		quotedList(r.wh, identityCols), r.wh.Adapter().QuoteIdent(durable)))
	if err != nil {
		return nil, fmt.Errorf("failed to read durable identities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	seen := make(identitySet)
	vals := make([]any, len(identityCols))
	ptrs := make([]any, len(identityCols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		seen.add(identityKey(vals))
	}
	return seen, rows.Err()
}

type intakeRow struct {
	data    []any
	batchID any
}

// readIntake loads the raw table's data columns plus the originating batch
// id for provenance.
func (r *Reconciler) readIntake(ctx context.Context, rawTable string, dataCols []string) ([]intakeRow, error) {
	cols := append(append([]string{}, dataCols...), ColBatchID)
	rows, err := r.wh.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", //nolint:gosec // identifiers are quoted
		quotedList(r.wh, cols), r.wh.Adapter().QuoteIdent(rawTable)))
	if err != nil {
		return nil, fmt.Errorf("failed to read intake rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []intakeRow
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, intakeRow{data: vals[:len(dataCols)], batchID: vals[len(dataCols)]})
	}
	return out, rows.Err()
}

func (r *Reconciler) audit(ctx context.Context, ent, table string, rows int64, status, msg, startedAt string) {
	_ = r.wh.AppendLog(ctx, warehouse.LogEntry{
		Operation:    warehouse.OpReconcile,
		Entity:       ent,
		TableName:    table,
		RowsAffected: rows,
		Status:       status,
		Message:      msg,
		StartedAt:    startedAt,
	})
}

func quotedList(wh *warehouse.Warehouse, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = wh.Adapter().QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

// columnIndexes resolves identity column positions within the data columns,
// matching case-insensitively.
func columnIndexes(dataCols, identityCols []string) ([]int, error) {
	idx := make([]int, 0, len(identityCols))
	for _, want := range identityCols {
		found := -1
		for i, c := range dataCols {
			if strings.EqualFold(c, want) {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("column %q not present in data columns", want)
		}
		idx = append(idx, found)
	}
	return idx, nil
}

func containsFold(cols []string, want string) bool {
	for _, c := range cols {
		if strings.EqualFold(c, want) {
			return true
		}
	}
	return false
}
