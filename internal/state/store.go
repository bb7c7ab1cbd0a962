// Package state tracks pipeline runs and per-file batch outcomes in a
// local SQLite database, separate from the warehouse itself.
package state

import "time"

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// BatchStatus represents the outcome of a single stage/entity unit of work.
type BatchStatus string

const (
	BatchStatusSuccess BatchStatus = "success"
	BatchStatusFailed  BatchStatus = "failed"
	BatchStatusSkipped BatchStatus = "skipped"
)

// Pipeline stages recorded against batch results.
const (
	StageIngest    = "ingest"
	StageReconcile = "reconcile"
	StageAggregate = "aggregate"
)

// Run is a single end-to-end pipeline execution.
type Run struct {
	ID          string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// BatchResult is the outcome of one stage acting on one entity, typically
// one source file ingested or one entity reconciled.
type BatchResult struct {
	ID         string
	RunID      string
	Stage      string
	Entity     string
	SourceFile string
	Status     BatchStatus
	Rows       int64
	Message    string
	RecordedAt time.Time
}

// Store is the persistence interface for run history.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	CreateRun() (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetRun(id string) (*Run, error)
	GetLatestRun() (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	RecordBatch(batch *BatchResult) error
	ListBatchesForRun(runID string) ([]*BatchResult, error)
}
