package intake

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapetl/internal/entity"
	"github.com/leapstack-labs/leapetl/internal/warehouse"
)

// Metadata columns added to every raw row.
const (
	ColImportedAt = "_imported_at"
	ColSourceFile = "_source_file"
	ColFileDate   = "_file_date"
	ColBatchID    = "_batch_id"
)

// Batch summarizes one successfully ingested file.
type Batch struct {
	ID         string
	Entity     entity.Name
	SourceFile string
	FileDate   string
	Table      string
	RowsLoaded int64
}

// Ingestor loads incoming files into raw tables, one batch per file. Each
// batch is isolated: a failure is scoped to its own file.
type Ingestor struct {
	wh     *warehouse.Warehouse
	opts   Options
	keys   map[string][]string
	logger *slog.Logger
}

// NewIngestor creates an Ingestor. keys maps entity base names to their
// declared identity key columns; an absent entry means whole-row identity.
// The keys are recorded in the schema registry the first time an entity is
// seen.
func NewIngestor(wh *warehouse.Warehouse, opts Options, keys map[string][]string, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ingestor{wh: wh, opts: opts, keys: keys, logger: logger}
}

// IngestFile ingests a single CSV file into its entity's raw table. Rows are
// appended as-is (never deduplicated) with provenance metadata. A schema
// mismatch, unresolvable name, or unreadable source fails this batch only
// and is recorded in the audit log.
func (ing *Ingestor) IngestFile(ctx context.Context, path string) (*Batch, error) {
	startedAt := warehouse.Now()
	filename := filepath.Base(path)

	ent, fileDate, err := entity.Resolve(filename)
	if err != nil {
		ing.audit(ctx, "", "", 0, warehouse.StatusFailed, err.Error(), startedAt)
		return nil, err
	}
	rawTable := ent.RawTable()

	ing.logger.Debug("ingesting file", "file", filename, "entity", ent.Base, "table", rawTable)

	ds, err := ReadCSV(path, ing.opts)
	if err != nil {
		ing.audit(ctx, ent.Base, rawTable, 0, warehouse.StatusFailed, err.Error(), startedAt)
		return nil, err
	}

	comp, err := CheckCompatibility(ctx, ing.wh, ent, ds.Columns)
	if err != nil {
		return nil, err
	}
	switch comp.Verdict {
	case VerdictCreate:
		schema := &warehouse.Schema{
			Entity:  ent.Base,
			Columns: ds.Columns,
			Keys:    ing.keys[ent.Base],
		}
		if err := ing.wh.PutSchema(ctx, schema); err != nil {
			return nil, err
		}
		ing.logger.Debug("registered entity schema", "entity", ent.Base, "columns", len(ds.Columns))
	case VerdictMismatch:
		mismatch := &SchemaMismatchError{Entity: ent.Base, Missing: comp.Missing, Extra: comp.Extra}
		ing.audit(ctx, ent.Base, rawTable, 0, warehouse.StatusFailed, mismatch.Error(), startedAt)
		return nil, mismatch
	}

	cols := append(append([]string{}, ds.Columns...), ColImportedAt, ColSourceFile, ColFileDate, ColBatchID)
	if err := ing.wh.CreateTable(ctx, rawTable, cols); err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:         uuid.New().String(),
		Entity:     ent,
		SourceFile: filename,
		FileDate:   fileDate,
		Table:      rawTable,
	}

	now := warehouse.Now()
	for _, row := range ds.Rows {
		vals := make([]any, 0, len(cols))
		for _, v := range row {
			vals = append(vals, nullable(v))
		}
		vals = append(vals, now, filename, nullable(fileDate), batch.ID)

		if err := ing.wh.InsertRow(ctx, rawTable, cols, vals); err != nil {
			msg := fmt.Sprintf("write failed after %d rows: %v", batch.RowsLoaded, err)
			ing.audit(ctx, ent.Base, rawTable, batch.RowsLoaded, warehouse.StatusFailed, msg, startedAt)
			return batch, fmt.Errorf("failed to load %s into %s: %w", filename, rawTable, err)
		}
		batch.RowsLoaded++
	}

	msg := fmt.Sprintf("imported from %s (encoding %s)", filename, ds.Encoding)
	ing.audit(ctx, ent.Base, rawTable, batch.RowsLoaded, warehouse.StatusSuccess, msg, startedAt)

	ing.logger.Info("batch ingested",
		"entity", ent.Base, "file", filename, "rows", batch.RowsLoaded, "encoding", ds.Encoding)
	return batch, nil
}

func (ing *Ingestor) audit(ctx context.Context, ent, table string, rows int64, status, msg, startedAt string) {
	_ = ing.wh.AppendLog(ctx, warehouse.LogEntry{
		Operation:    warehouse.OpIngest,
		Entity:       ent,
		TableName:    table,
		RowsAffected: rows,
		Status:       status,
		Message:      msg,
		StartedAt:    startedAt,
	})
}

// nullable maps empty cells to NULL.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
