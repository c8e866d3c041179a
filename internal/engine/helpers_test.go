package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/scd2/internal/ir"
)

var (
	t1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	t3 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t4 = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
)

var customers = ir.DimensionSpec{
	Name: "customers",
	Columns: []ir.Column{
		{Name: "id", Type: ir.TypeInt},
		{Name: "name", Type: ir.TypeString},
	},
	Tracked: []string{"name"},
}

func person(id int64, name string) ir.Row {
	return ir.Row{"id": ir.IRInt(id), "name": ir.IRString(name)}
}

func active(attrs ir.Row, start time.Time) ir.TargetRow {
	return ir.TargetRow{Attrs: attrs, StartTS: start, IsActive: true}
}

func closed(attrs ir.Row, start, end time.Time) ir.TargetRow {
	return ir.TargetRow{Attrs: attrs, StartTS: start, EndTS: &end, IsActive: false}
}

// quietReconciler returns a Reconciler that logs nowhere.
func quietReconciler(opts ...Option) *Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(append([]Option{WithLogger(logger)}, opts...)...)
}

func fingerprintOf(t *testing.T, tracked []string, row ir.Row) string {
	t.Helper()
	f, err := NewFingerprinter(tracked)
	require.NoError(t, err)
	fp, err := f.Compute(row)
	require.NoError(t, err)
	return fp
}

func sourceEntries(t *testing.T, tracked []string, rows ...ir.Row) []SourceEntry {
	t.Helper()
	out := make([]SourceEntry, len(rows))
	for i, r := range rows {
		out[i] = SourceEntry{Index: i, Fingerprint: fingerprintOf(t, tracked, r), Row: r}
	}
	return out
}

func targetEntries(t *testing.T, tracked []string, rows ...ir.TargetRow) []TargetEntry {
	t.Helper()
	out := make([]TargetEntry, len(rows))
	for i, r := range rows {
		out[i] = TargetEntry{Index: i, Fingerprint: fingerprintOf(t, tracked, r.Attrs), Row: r}
	}
	return out
}

// requireValid asserts that rows satisfy every target-table invariant.
func requireValid(t *testing.T, tracked []string, rows []ir.TargetRow) {
	t.Helper()
	violations, err := CheckInvariants(tracked, rows)
	require.NoError(t, err)
	require.Empty(t, violations)
}
