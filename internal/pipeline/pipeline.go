// Package pipeline runs the full intake, reconcile, and aggregate sequence
// over a directory of incoming CSV files, recording per-batch outcomes in
// the state store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapetl/internal/aggregate"
	"github.com/leapstack-labs/leapetl/internal/entity"
	"github.com/leapstack-labs/leapetl/internal/intake"
	"github.com/leapstack-labs/leapetl/internal/reconcile"
	"github.com/leapstack-labs/leapetl/internal/state"
	"github.com/leapstack-labs/leapetl/internal/warehouse"
)

// Options configures a pipeline run.
type Options struct {
	IncomingDir string
	Intake      intake.Options
	Keys        map[string][]string
}

// Pipeline wires the three stages together over one warehouse and one
// state store.
type Pipeline struct {
	wh     *warehouse.Warehouse
	store  state.Store
	opts   Options
	logger *slog.Logger
}

// Summary is the aggregate outcome of one pipeline run.
type Summary struct {
	RunID          string
	FilesIngested  int
	FilesFailed    int
	RowsLoaded     int64
	RowsAdmitted   int64
	RowsDuplicate  int64
	EntitiesFailed int
	ReportRows     map[string]int64
	Failed         bool
}

// New creates a Pipeline. A nil logger discards all output.
func New(wh *warehouse.Warehouse, store state.Store, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{wh: wh, store: store, opts: opts, logger: logger}
}

// Run executes ingest, reconcile, and aggregate in order. Stage failures
// are scoped to the file or entity they occur in; the run continues and is
// marked failed at the end if any batch failed.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	run, err := p.store.CreateRun()
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	summary := &Summary{RunID: run.ID, ReportRows: map[string]int64{}}

	p.ingestStage(ctx, run.ID, summary)
	p.reconcileStage(ctx, run.ID, summary)
	p.aggregateStage(ctx, run.ID, summary)

	status := state.RunStatusCompleted
	errMsg := ""
	if summary.Failed {
		status = state.RunStatusFailed
		errMsg = fmt.Sprintf("%d file(s) and %d entit(ies) failed", summary.FilesFailed, summary.EntitiesFailed)
	}
	if err := p.store.CompleteRun(run.ID, status, errMsg); err != nil {
		return summary, fmt.Errorf("failed to complete run: %w", err)
	}

	return summary, nil
}

// Ingest runs only the intake stage outside of a recorded run.
func (p *Pipeline) Ingest(ctx context.Context) (*Summary, error) {
	summary := &Summary{ReportRows: map[string]int64{}}
	p.ingestStage(ctx, "", summary)
	if summary.Failed {
		return summary, fmt.Errorf("%d file(s) failed to ingest", summary.FilesFailed)
	}
	return summary, nil
}

func (p *Pipeline) ingestStage(ctx context.Context, runID string, summary *Summary) {
	files, err := p.incomingFiles()
	if err != nil {
		p.logger.Error("failed to scan incoming directory", "dir", p.opts.IncomingDir, "error", err)
		summary.Failed = true
		return
	}
	if len(files) == 0 {
		p.logger.Info("no incoming files found", "dir", p.opts.IncomingDir)
		return
	}

	ing := intake.NewIngestor(p.wh, p.opts.Intake, p.opts.Keys, p.logger)
	for _, path := range files {
		batch, err := ing.IngestFile(ctx, path)
		if err != nil {
			summary.FilesFailed++
			summary.Failed = true
			p.logger.Error("ingest failed", "file", filepath.Base(path), "error", err)
			p.recordBatch(runID, state.StageIngest, batchEntity(batch), path, state.BatchStatusFailed, batchRows(batch), err.Error())
			continue
		}
		summary.FilesIngested++
		summary.RowsLoaded += batch.RowsLoaded
		p.recordBatch(runID, state.StageIngest, batch.Entity.Base, path, state.BatchStatusSuccess, batch.RowsLoaded, "")
	}
}

func (p *Pipeline) reconcileStage(ctx context.Context, runID string, summary *Summary) {
	tables, err := p.wh.ListTables(ctx, entity.RawPrefix)
	if err != nil {
		p.logger.Error("failed to list intake tables", "error", err)
		summary.Failed = true
		return
	}

	rec := reconcile.New(p.wh, p.opts.Keys, p.logger)
	for _, table := range tables {
		ent, ok := entity.BaseFromRawTable(table)
		if !ok {
			continue
		}
		res, err := rec.Reconcile(ctx, ent)
		if err != nil {
			summary.EntitiesFailed++
			summary.Failed = true
			p.logger.Error("reconcile failed", "entity", ent.Base, "error", err)
			p.recordBatch(runID, state.StageReconcile, ent.Base, "", state.BatchStatusFailed, resultRows(res), err.Error())
			continue
		}
		summary.RowsAdmitted += res.Admitted
		summary.RowsDuplicate += res.AlreadyPresent
		msg := fmt.Sprintf("%d already present", res.AlreadyPresent)
		p.recordBatch(runID, state.StageReconcile, ent.Base, "", state.BatchStatusSuccess, res.Admitted, msg)
	}
}

func (p *Pipeline) aggregateStage(ctx context.Context, runID string, summary *Summary) {
	builder := aggregate.New(p.wh, p.logger)
	counts, err := builder.RebuildAll(ctx)
	for name, n := range counts {
		summary.ReportRows[name] = n
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	if err != nil {
		summary.Failed = true
		p.logger.Error("aggregate rebuild failed", "error", err)
		p.recordBatch(runID, state.StageAggregate, "reports", "", state.BatchStatusFailed, total, err.Error())
		return
	}
	p.recordBatch(runID, state.StageAggregate, "reports", "", state.BatchStatusSuccess, total, "")
}

// incomingFiles lists CSV files in the incoming directory in sorted order.
func (p *Pipeline) incomingFiles() ([]string, error) {
	entries, err := os.ReadDir(p.opts.IncomingDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			files = append(files, filepath.Join(p.opts.IncomingDir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (p *Pipeline) recordBatch(runID, stage, ent, sourceFile string, status state.BatchStatus, rows int64, msg string) {
	if runID == "" {
		return
	}
	err := p.store.RecordBatch(&state.BatchResult{
		RunID:      runID,
		Stage:      stage,
		Entity:     ent,
		SourceFile: sourceFile,
		Status:     status,
		Rows:       rows,
		Message:    msg,
	})
	if err != nil {
		p.logger.Warn("failed to record batch result", "stage", stage, "entity", ent, "error", err)
	}
}

func batchEntity(b *intake.Batch) string {
	if b == nil {
		return ""
	}
	return b.Entity.Base
}

func batchRows(b *intake.Batch) int64 {
	if b == nil {
		return 0
	}
	return b.RowsLoaded
}

func resultRows(r *reconcile.Result) int64 {
	if r == nil {
		return 0
	}
	return r.Admitted
}
