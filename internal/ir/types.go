package ir

import (
	"fmt"
	"time"
)

// Row is one record of a dimension: column name -> scalar value.
// Source rows carry only attribute columns; target rows wrap a Row in TargetRow.
type Row = IRObject

// Reserved column names. They belong to the SCD2 bookkeeping of TargetRow
// and may not be declared as attribute columns.
const (
	ColumnStartTS     = "start_ts"
	ColumnEndTS       = "end_ts"
	ColumnIsActive    = "is_active"
	ColumnFingerprint = "fingerprint"
)

// ReservedColumns lists names that attribute columns may not use.
var ReservedColumns = map[string]bool{
	ColumnStartTS:     true,
	ColumnEndTS:       true,
	ColumnIsActive:    true,
	ColumnFingerprint: true,
}

// TargetRow is one persisted version of an entity.
//
// EndTS is nil while the version is active. IsActive is redundant with
// EndTS == nil and kept as an explicit flag.
type TargetRow struct {
	Attrs    Row        `json:"attrs"`
	StartTS  time.Time  `json:"start_ts"`
	EndTS    *time.Time `json:"end_ts"`
	IsActive bool       `json:"is_active"`
}

// Clone returns a copy of r that shares no mutable state with it.
func (r TargetRow) Clone() TargetRow {
	out := TargetRow{
		Attrs:    r.Attrs.Clone(),
		StartTS:  r.StartTS,
		IsActive: r.IsActive,
	}
	if r.EndTS != nil {
		end := *r.EndTS
		out.EndTS = &end
	}
	return out
}

// ColumnType is the declared type of an attribute column.
type ColumnType string

const (
	TypeString ColumnType = "string"
	TypeInt    ColumnType = "int"
	TypeBool   ColumnType = "bool"
)

// ValidColumnTypes defines allowed column types.
var ValidColumnTypes = map[ColumnType]bool{
	TypeString: true,
	TypeInt:    true,
	TypeBool:   true,
}

// Kind returns the IRValue kind that values of this column type carry.
func (t ColumnType) Kind() Kind {
	return Kind(t)
}

// Column declares one attribute column of a dimension.
type Column struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Nullable bool       `json:"nullable,omitempty"`
}

// Accepts reports whether v is a legal value for the column.
func (c Column) Accepts(v IRValue) bool {
	if IsNull(v) {
		return c.Nullable
	}
	return KindOf(v) == c.Type.Kind()
}

// DimensionSpec describes one SCD2 dimension.
//
// Tracked lists the columns that make up the fingerprint, in fingerprint
// order. Columns not listed in Tracked are passthrough. Columns may be
// empty for callers that only know the tracked column names; schema checks
// then fall back to inference.
type DimensionSpec struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Columns     []Column `json:"columns,omitempty"`
	Tracked     []string `json:"tracked"`
}

// Column looks up a declared column by name.
func (s DimensionSpec) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the declared column names in declaration order.
func (s DimensionSpec) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// HasSchema reports whether the spec declares its columns.
func (s DimensionSpec) HasSchema() bool {
	return len(s.Columns) > 0
}

// RunRecord is the audit entry written for every committed reconciliation run.
type RunRecord struct {
	ID                string    `json:"id"`
	Dimension         string    `json:"dimension"`
	Seq               int64     `json:"seq"`
	RunTS             time.Time `json:"run_ts"`
	SpecHash          string    `json:"spec_hash"`
	SourceRows        int       `json:"source_rows"`
	UnchangedActive   int       `json:"unchanged_active"`
	UnchangedInactive int       `json:"unchanged_inactive"`
	Ended             int       `json:"ended"`
	New               int       `json:"new"`
	TotalRows         int       `json:"total_rows"`
}

// NormalizeTime converts t to UTC at microsecond precision, the resolution
// every store backend round-trips.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// String renders a compact description of the row for logs and errors.
func (r TargetRow) String() string {
	end := "null"
	if r.EndTS != nil {
		end = r.EndTS.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%v [%s, %s) active=%t", r.Attrs, r.StartTS.Format(time.RFC3339Nano), end, r.IsActive)
}
