package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/scd2/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createRegisteredStore opens a store with the customers dimension registered.
func createRegisteredStore(t *testing.T) *Store {
	t.Helper()
	s := createTestStore(t)
	if _, err := s.RegisterDimension(context.Background(), customersSpec()); err != nil {
		t.Fatalf("RegisterDimension() failed: %v", err)
	}
	return s
}

func customersSpec() ir.DimensionSpec {
	return ir.DimensionSpec{
		Name: "customers",
		Columns: []ir.Column{
			{Name: "id", Type: ir.TypeInt},
			{Name: "name", Type: ir.TypeString},
			{Name: "email", Type: ir.TypeString, Nullable: true},
		},
		Tracked: []string{"id", "name"},
	}
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func activeRow(id int64, name string, start time.Time) ir.TargetRow {
	return ir.TargetRow{
		Attrs:    ir.Row{"id": ir.IRInt(id), "name": ir.IRString(name), "email": ir.IRNull{}},
		StartTS:  start,
		IsActive: true,
	}
}

func closedRow(id int64, name string, start, end time.Time) ir.TargetRow {
	row := activeRow(id, name, start)
	row.EndTS = &end
	row.IsActive = false
	return row
}

// commitRun replaces the customers table with rows in one committed run.
func commitRun(t *testing.T, s *Store, id string, runTS time.Time, rows []ir.TargetRow) ir.RunRecord {
	t.Helper()
	ctx := context.Background()

	run, err := s.BeginRun(ctx, "customers")
	if err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	defer run.Rollback()

	rec, err := run.Replace(ctx, rows, ir.RunRecord{ID: id, RunTS: runTS, SourceRows: len(rows)})
	if err != nil {
		t.Fatalf("Replace() failed: %v", err)
	}
	if err := run.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	return rec
}
