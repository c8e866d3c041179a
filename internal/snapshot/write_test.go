package snapshot

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/scd2/internal/ir"
)

var (
	jan = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
)

func exportRows() []ir.TargetRow {
	end := feb
	return []ir.TargetRow{
		{
			Attrs:   ir.Row{"id": ir.IRInt(1), "name": ir.IRString("Alice"), "vip": ir.IRNull{}},
			StartTS: jan,
			EndTS:   &end,
		},
		{
			Attrs:    ir.Row{"id": ir.IRInt(1), "name": ir.IRString("Alicia"), "vip": ir.IRBool(true)},
			StartTS:  feb,
			IsActive: true,
		},
	}
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, exportRows()))

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)

	assert.Equal(t, map[string]any{
		"id":        1,
		"name":      "Alice",
		"vip":       nil,
		"start_ts":  "2024-01-01T00:00:00Z",
		"end_ts":    "2024-02-01T00:00:00Z",
		"is_active": false,
	}, got[0])
	assert.Nil(t, got[1]["end_ts"])
	assert.Equal(t, true, got[1]["is_active"])
}

func TestWriteYAML_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	require.NoError(t, WriteParquet(context.Background(), path, customers(), exportRows()))

	got, err := queryDuckDB(context.Background(),
		"SELECT id, name, vip, start_ts, end_ts, is_active FROM read_parquet("+quoteLiteral(path)+") ORDER BY start_ts")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(1), got[0]["id"])
	assert.Equal(t, "Alice", got[0]["name"])
	assert.Nil(t, got[0]["vip"])
	assert.Equal(t, false, got[0]["is_active"])
	assert.True(t, jan.Equal(got[0]["start_ts"].(time.Time)))
	assert.True(t, feb.Equal(got[0]["end_ts"].(time.Time)))

	assert.Nil(t, got[1]["end_ts"])
	assert.Equal(t, true, got[1]["vip"])
}

func TestWriteFile_DispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	yamlPath := filepath.Join(dir, "out.yaml")
	require.NoError(t, WriteFile(ctx, yamlPath, customers(), exportRows()))

	// Reserved columns make an export unreadable as a source for a declared
	// schema, but a schema-less spec reads it back.
	back, err := ReadFile(ctx, yamlPath, ir.DimensionSpec{Name: "d", Tracked: []string{"name"}})
	require.NoError(t, err)
	assert.Len(t, back, 2)

	err = WriteFile(ctx, filepath.Join(dir, "out.csv"), customers(), exportRows())
	assert.ErrorContains(t, err, "not supported")
}

func TestExportColumns_Inferred(t *testing.T) {
	rows := []ir.TargetRow{
		{Attrs: ir.Row{"b": ir.IRNull{}, "a": ir.IRInt(1)}},
		{Attrs: ir.Row{"b": ir.IRBool(true), "c": ir.IRNull{}}},
	}
	cols := exportColumns(ir.DimensionSpec{Tracked: []string{"a"}}, rows)
	assert.Equal(t, []ir.Column{
		{Name: "a", Type: ir.TypeInt, Nullable: true},
		{Name: "b", Type: ir.TypeBool, Nullable: true},
		{Name: "c", Type: ir.TypeString, Nullable: true},
	}, cols)
}
