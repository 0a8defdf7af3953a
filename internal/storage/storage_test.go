package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/leefowlercu/asset-snapshot/internal/metrics"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	storage, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() {
		storage.Close()
	})

	return storage
}

func TestOpen_CreatesDirectory(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "ledger.db")

	s, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	s1, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("failed to open storage first time: %v", err)
	}
	s1.Close()

	s2, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("failed to open storage second time: %v", err)
	}
	defer s2.Close()

	version, err := s2.GetSchemaVersion(ctx)
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != len(schema) {
		t.Errorf("schema version = %d, want %d", version, len(schema))
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	s, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", len(schema)+1)); err != nil {
		t.Fatalf("failed to bump user_version: %v", err)
	}
	s.Close()

	if _, err := Open(ctx, dbPath); err == nil {
		t.Error("expected error for a ledger written by a newer binary")
	}
}

func TestRecordAndListExports(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	records := []ExportRecord{
		{BatchID: 1, ObjectPath: "/Game/Props/Chair.Chair", Class: "StaticMesh", HashMain: "aa", HashFull: "bb", Outcome: "exported", ZipPath: "/x/aa.zip", Uploaded: true, Duration: 1500 * time.Millisecond},
		{BatchID: 1, ObjectPath: "/Game/Props/Table.Table", Outcome: "skipped_remote"},
		{BatchID: 2, ObjectPath: "/Game/Props/Chair.Chair", Outcome: "failed", Error: "primary hash failed"},
	}
	for _, rec := range records {
		if err := s.RecordExport(ctx, rec); err != nil {
			t.Fatalf("RecordExport failed: %v", err)
		}
	}

	all, err := s.ListExports(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListExports failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Outcome != "failed" || all[0].Error != "primary hash failed" {
		t.Errorf("newest record = %+v, want failed with error", all[0])
	}

	chair, err := s.ListExports(ctx, "/Game/Props/Chair.Chair", 10)
	if err != nil {
		t.Fatalf("ListExports failed: %v", err)
	}
	if len(chair) != 2 {
		t.Fatalf("len = %d, want 2", len(chair))
	}
	first := chair[1]
	if !first.Uploaded || first.HashMain != "aa" || first.ZipPath != "/x/aa.zip" {
		t.Errorf("record = %+v, want uploaded aa", first)
	}
	if first.Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v, want 1.5s", first.Duration)
	}
	if first.CreatedAt.IsZero() {
		t.Error("created_at should be set")
	}
}

func TestLastBatchID(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	id, err := s.LastBatchID(ctx)
	if err != nil {
		t.Fatalf("LastBatchID failed: %v", err)
	}
	if id != 0 {
		t.Errorf("empty ledger batch id = %d, want 0", id)
	}

	for _, batch := range []int64{3, 7, 5} {
		if err := s.RecordExport(ctx, ExportRecord{BatchID: batch, ObjectPath: "/Game/A.A", Outcome: "exported"}); err != nil {
			t.Fatalf("RecordExport failed: %v", err)
		}
	}

	id, err = s.LastBatchID(ctx)
	if err != nil {
		t.Fatalf("LastBatchID failed: %v", err)
	}
	if id != 7 {
		t.Errorf("batch id = %d, want 7", id)
	}
}

func TestRecordAndListImports(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.RecordImport(ctx, ImportRecord{Source: "inbox", ZipPath: "/in/a.zip", Mode: "skip", Imported: 2, Skipped: 1}); err != nil {
		t.Fatalf("RecordImport failed: %v", err)
	}
	if err := s.RecordImport(ctx, ImportRecord{Source: "download", ZipPath: "/in/7.zip", Mode: "override", Error: "unsafe path"}); err != nil {
		t.Fatalf("RecordImport failed: %v", err)
	}

	got, err := s.ListImports(ctx, 1)
	if err != nil {
		t.Fatalf("ListImports failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Source != "download" || got[0].Error != "unsafe path" {
		t.Errorf("record = %+v, want download with error", got[0])
	}
}

func TestCollectMetrics(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for range 3 {
		if err := s.RecordExport(ctx, ExportRecord{ObjectPath: "/Game/A.A", Outcome: "exported"}); err != nil {
			t.Fatalf("RecordExport failed: %v", err)
		}
	}
	if err := s.CollectMetrics(ctx); err != nil {
		t.Fatalf("CollectMetrics failed: %v", err)
	}
	if got := testutil.ToFloat64(metrics.LedgerRows.WithLabelValues("exports")); got != 3 {
		t.Errorf("exports rows = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.LedgerRows.WithLabelValues("imports")); got != 0 {
		t.Errorf("imports rows = %v, want 0", got)
	}
}
