package state

import (
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore()
	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore()

	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestSQLiteStore_Migrate(t *testing.T) {
	store := setupTestStore(t)

	// Verify tables exist by querying them
	for _, table := range []string{"runs", "batch_results"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		if err != nil {
			t.Errorf("table %s does not exist: %v", table, err)
		} else {
			rows.Close()
		}
	}

	version, err := store.GetMigrationVersion()
	if err != nil {
		t.Fatalf("failed to get migration version: %v", err)
	}
	if version < 1 {
		t.Errorf("migration version = %d, want >= 1", version)
	}
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateRun()
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if run.ID == "" {
		t.Error("run ID should not be empty")
	}
	if run.Status != RunStatusRunning {
		t.Errorf("status = %q, want running", run.Status)
	}

	if err := store.CompleteRun(run.ID, RunStatusCompleted, ""); err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != RunStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
	if got.Error != "" {
		t.Errorf("error = %q, want empty", got.Error)
	}
}

func TestSQLiteStore_FailedRun(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateRun()
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	if err := store.CompleteRun(run.ID, RunStatusFailed, "2 file(s) failed"); err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != RunStatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.Error != "2 file(s) failed" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestSQLiteStore_CompleteUnknownRun(t *testing.T) {
	store := setupTestStore(t)

	if err := store.CompleteRun("no-such-run", RunStatusCompleted, ""); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestSQLiteStore_GetLatestRun(t *testing.T) {
	store := setupTestStore(t)

	latest, err := store.GetLatestRun()
	if err != nil {
		t.Fatalf("GetLatestRun failed: %v", err)
	}
	if latest != nil {
		t.Fatal("expected nil with no runs")
	}

	first, err := store.CreateRun()
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := store.CreateRun()
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	latest, err = store.GetLatestRun()
	if err != nil {
		t.Fatalf("GetLatestRun failed: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("latest = %s, want %s (not %s)", latest.ID, second.ID, first.ID)
	}

	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].ID != second.ID {
		t.Errorf("newest first ordering violated")
	}
}

func TestSQLiteStore_BatchResults(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateRun()
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	batches := []*BatchResult{
		{RunID: run.ID, Stage: StageIngest, Entity: "customers", SourceFile: "customers_20240101.csv", Status: BatchStatusSuccess, Rows: 10},
		{RunID: run.ID, Stage: StageReconcile, Entity: "customers", Status: BatchStatusSuccess, Rows: 8, Message: "2 already present"},
		{RunID: run.ID, Stage: StageAggregate, Entity: "reports", Status: BatchStatusFailed, Message: "boom"},
	}
	for _, b := range batches {
		if err := store.RecordBatch(b); err != nil {
			t.Fatalf("RecordBatch failed: %v", err)
		}
		if b.ID == "" {
			t.Error("batch ID should be assigned")
		}
	}

	got, err := store.ListBatchesForRun(run.ID)
	if err != nil {
		t.Fatalf("ListBatchesForRun failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("batches = %d, want 3", len(got))
	}

	var stages []string
	for _, b := range got {
		stages = append(stages, b.Stage)
	}
	// All three stages are present.
	want := map[string]bool{StageIngest: false, StageReconcile: false, StageAggregate: false}
	for _, s := range stages {
		want[s] = true
	}
	for s, seen := range want {
		if !seen {
			t.Errorf("missing stage %s in %v", s, stages)
		}
	}

	other, err := store.ListBatchesForRun("other-run")
	if err != nil {
		t.Fatalf("ListBatchesForRun failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("unrelated run has %d batches", len(other))
	}
}
