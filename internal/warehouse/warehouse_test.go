package warehouse

import (
	"context"
	"reflect"
	"testing"

	"github.com/leapstack-labs/leapetl/internal/entity"
	"github.com/leapstack-labs/leapetl/internal/testutil"
	"github.com/leapstack-labs/leapetl/pkg/adapter"

	_ "github.com/leapstack-labs/leapetl/pkg/adapters/sqlite"
)

func testWarehouse(t *testing.T) *Warehouse {
	t.Helper()
	wh, err := Open(context.Background(), adapter.Config{Type: "sqlite", Path: ":memory:"}, testutil.NewTestLogger(t))
	if err != nil {
		t.Fatalf("failed to open warehouse: %v", err)
	}
	t.Cleanup(func() { wh.Close() })
	return wh
}

func TestOpenCreatesSystemTables(t *testing.T) {
	ctx := context.Background()
	wh := testWarehouse(t)

	for _, table := range []string{LogTable, SchemaTable, MetaTable} {
		exists, err := wh.TableExists(ctx, table)
		if err != nil {
			t.Fatalf("TableExists(%s) failed: %v", table, err)
		}
		if !exists {
			t.Errorf("system table %s was not created", table)
		}
	}

	// First open stamps database_created.
	if _, ok, err := wh.GetMeta(ctx, "database_created"); err != nil || !ok {
		t.Errorf("database_created meta missing: ok=%v err=%v", ok, err)
	}
}

func TestCreateTableAndInsert(t *testing.T) {
	ctx := context.Background()
	wh := testWarehouse(t)

	cols := []string{"id", "name", "select"} // reserved word as column
	if err := wh.CreateTable(ctx, "rawThings", cols); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	// Idempotent.
	if err := wh.CreateTable(ctx, "rawThings", cols); err != nil {
		t.Fatalf("CreateTable (again) failed: %v", err)
	}

	if err := wh.InsertRow(ctx, "rawThings", cols, []any{"1", "widget", nil}); err != nil {
		t.Fatalf("InsertRow failed: %v", err)
	}

	n, err := wh.RowCount(ctx, "rawThings")
	if err != nil {
		t.Fatalf("RowCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}

	got, err := wh.Columns(ctx, "rawThings")
	if err != nil {
		t.Fatalf("Columns failed: %v", err)
	}
	if !reflect.DeepEqual(got, cols) {
		t.Errorf("columns = %v, want %v", got, cols)
	}
}

func TestListTables(t *testing.T) {
	ctx := context.Background()
	wh := testWarehouse(t)

	for _, table := range []string{"rawBeta", "rawAlpha", "stgAlpha", "rptSummary"} {
		if err := wh.CreateTable(ctx, table, []string{"id"}); err != nil {
			t.Fatalf("CreateTable failed: %v", err)
		}
	}

	got, err := wh.ListTables(ctx, "raw")
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	want := []string{"rawAlpha", "rawBeta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListTables(raw) = %v, want %v", got, want)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	ctx := context.Background()
	wh := testWarehouse(t)

	if err := wh.SetMeta(ctx, "last_report_refresh", "2024-01-15 10:00:00"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}

	v, ok, err := wh.GetMeta(ctx, "last_report_refresh")
	if err != nil || !ok {
		t.Fatalf("GetMeta failed: ok=%v err=%v", ok, err)
	}
	if v != "2024-01-15 10:00:00" {
		t.Errorf("value = %q", v)
	}

	// Upsert overwrites.
	if err := wh.SetMeta(ctx, "last_report_refresh", "2024-02-01 09:30:00"); err != nil {
		t.Fatalf("SetMeta (update) failed: %v", err)
	}
	v, _, _ = wh.GetMeta(ctx, "last_report_refresh")
	if v != "2024-02-01 09:30:00" {
		t.Errorf("updated value = %q", v)
	}

	if _, ok, err := wh.GetMeta(ctx, "absent"); err != nil || ok {
		t.Errorf("GetMeta(absent): ok=%v err=%v, want false/nil", ok, err)
	}
}

func TestSchemaRegistry(t *testing.T) {
	ctx := context.Background()
	wh := testWarehouse(t)
	ent := entity.FromBase("customer_profiles")

	got, err := wh.GetSchema(ctx, ent)
	if err != nil {
		t.Fatalf("GetSchema failed: %v", err)
	}
	if got != nil {
		t.Fatal("unregistered entity should return nil schema")
	}

	schema := &Schema{
		Entity:  ent.Base,
		Columns: []string{"customer_id", "name", "status"},
		Keys:    []string{"customer_id"},
	}
	if err := wh.PutSchema(ctx, schema); err != nil {
		t.Fatalf("PutSchema failed: %v", err)
	}

	got, err = wh.GetSchema(ctx, ent)
	if err != nil {
		t.Fatalf("GetSchema failed: %v", err)
	}
	if got == nil {
		t.Fatal("schema not found after PutSchema")
	}
	if !reflect.DeepEqual(got.Columns, schema.Columns) {
		t.Errorf("columns = %v, want %v", got.Columns, schema.Columns)
	}
	if !reflect.DeepEqual(got.Keys, schema.Keys) {
		t.Errorf("keys = %v, want %v", got.Keys, schema.Keys)
	}

	has, err := wh.HasColumn(ctx, ent, "Customer_ID")
	if err != nil {
		t.Fatalf("HasColumn failed: %v", err)
	}
	if !has {
		t.Error("HasColumn should match case-insensitively")
	}
}

func TestAuditLog(t *testing.T) {
	ctx := context.Background()
	wh := testWarehouse(t)

	entries := []LogEntry{
		{Operation: OpIngest, Entity: "customers", TableName: "rawCustomers", RowsAffected: 10, Status: StatusSuccess, StartedAt: "2024-01-01 10:00:00", CompletedAt: "2024-01-01 10:00:02"},
		{Operation: OpReconcile, Entity: "customers", TableName: "stgCustomers", RowsAffected: 8, Status: StatusSuccess, StartedAt: "2024-01-01 10:00:05", CompletedAt: "2024-01-01 10:00:07"},
		{Operation: OpAggregate, Entity: "", TableName: "", RowsAffected: 0, Status: StatusFailed, Message: "boom", StartedAt: "2024-01-01 10:00:10", CompletedAt: "2024-01-01 10:00:12"},
	}
	for _, e := range entries {
		if err := wh.AppendLog(ctx, e); err != nil {
			t.Fatalf("AppendLog failed: %v", err)
		}
	}

	got, err := wh.RecentLog(ctx, 10)
	if err != nil {
		t.Fatalf("RecentLog failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}
	// Newest first.
	if got[0].Operation != OpAggregate {
		t.Errorf("first entry = %s, want %s", got[0].Operation, OpAggregate)
	}
	if got[0].Message != "boom" {
		t.Errorf("message = %q, want boom", got[0].Message)
	}
	for _, e := range got {
		if e.ID == "" {
			t.Error("log entry has empty id")
		}
		if e.CompletedAt == "" {
			t.Error("log entry missing completed_at")
		}
	}

	got, err = wh.RecentLog(ctx, 2)
	if err != nil {
		t.Fatalf("RecentLog failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("limited entries = %d, want 2", len(got))
	}
}

func TestRecentLogSameSecondOrder(t *testing.T) {
	ctx := context.Background()
	wh := testWarehouse(t)

	// Two passes over the same entity completing within one second: the
	// timestamp alone cannot order them, so newest-first must fall back to
	// insertion order.
	completed := "2024-01-15 09:30:00"
	for _, rows := range []int64{2, 1} {
		e := LogEntry{
			Operation:    OpReconcile,
			Entity:       "customers",
			TableName:    "stgCustomers",
			RowsAffected: rows,
			Status:       StatusSuccess,
			StartedAt:    completed,
			CompletedAt:  completed,
		}
		if err := wh.AppendLog(ctx, e); err != nil {
			t.Fatalf("AppendLog failed: %v", err)
		}
	}

	got, err := wh.RecentLog(ctx, 10)
	if err != nil {
		t.Fatalf("RecentLog failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].RowsAffected != 1 || got[1].RowsAffected != 2 {
		t.Errorf("rows_affected order = [%d %d], want [1 2]",
			got[0].RowsAffected, got[1].RowsAffected)
	}
}
