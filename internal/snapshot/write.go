package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/scd2/internal/ir"
)

// WriteFile exports rows to path in the format implied by its extension.
// CSV export is not supported.
func WriteFile(ctx context.Context, path string, spec ir.DimensionSpec, rows []ir.TargetRow) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatParquet:
		return WriteParquet(ctx, path, spec, rows)
	case FormatYAML:
		f, err := createFile(path)
		if err != nil {
			return err
		}
		if err := WriteYAML(f, rows); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("export to %s is not supported", format)
	}
}

// WriteYAML encodes rows as a YAML list. Each row carries its attributes plus
// start_ts, end_ts and is_active, with timestamps in RFC 3339.
func WriteYAML(w io.Writer, rows []ir.TargetRow) error {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		m := make(map[string]any, len(r.Attrs)+3)
		for k, v := range r.Attrs {
			m[k] = ir.ToAny(v)
		}
		m[ir.ColumnStartTS] = r.StartTS.UTC().Format(time.RFC3339Nano)
		if r.EndTS != nil {
			m[ir.ColumnEndTS] = r.EndTS.UTC().Format(time.RFC3339Nano)
		} else {
			m[ir.ColumnEndTS] = nil
		}
		m[ir.ColumnIsActive] = r.IsActive
		out[i] = m
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// WriteParquet exports rows to a Parquet file through an in-memory DuckDB
// table and COPY ... (FORMAT PARQUET).
func WriteParquet(ctx context.Context, path string, spec ir.DimensionSpec, rows []ir.TargetRow) error {
	cols := exportColumns(spec, rows)

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()
	// The temp table lives on the connection that created it.
	db.SetMaxOpenConns(1)

	defs := make([]string, 0, len(cols)+3)
	for _, c := range cols {
		defs = append(defs, quoteIdent(c.Name)+" "+sqlType(c.Type))
	}
	defs = append(defs,
		quoteIdent(ir.ColumnStartTS)+" TIMESTAMP NOT NULL",
		quoteIdent(ir.ColumnEndTS)+" TIMESTAMP",
		quoteIdent(ir.ColumnIsActive)+" BOOLEAN NOT NULL",
	)
	if _, err := db.ExecContext(ctx, "CREATE TEMP TABLE export_rows ("+strings.Join(defs, ", ")+")"); err != nil {
		return fmt.Errorf("create export table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(defs)), ", ")
	stmt, err := db.PrepareContext(ctx, "INSERT INTO export_rows VALUES ("+placeholders+")")
	if err != nil {
		return fmt.Errorf("prepare export insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		args := make([]any, 0, len(defs))
		for _, c := range cols {
			args = append(args, ir.ToAny(r.Attrs[c.Name]))
		}
		var end any
		if r.EndTS != nil {
			end = r.EndTS.UTC()
		}
		args = append(args, r.StartTS.UTC(), end, r.IsActive)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("export row %d: %w", i, err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("COPY export_rows TO %s (FORMAT PARQUET)", quoteLiteral(path))); err != nil {
		return fmt.Errorf("copy to parquet: %w", err)
	}
	return nil
}

// exportColumns returns the declared columns, or for specs without a schema
// the union of attribute names with types inferred from the first non-null
// value. Inferred columns are sorted by name.
func exportColumns(spec ir.DimensionSpec, rows []ir.TargetRow) []ir.Column {
	if spec.HasSchema() {
		return spec.Columns
	}

	kinds := map[string]ir.ColumnType{}
	for _, r := range rows {
		for name, v := range r.Attrs {
			if kinds[name] != "" {
				continue
			}
			switch ir.KindOf(v) {
			case ir.KindInt:
				kinds[name] = ir.TypeInt
			case ir.KindBool:
				kinds[name] = ir.TypeBool
			case ir.KindString:
				kinds[name] = ir.TypeString
			default:
				kinds[name] = ""
			}
		}
	}

	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	slices.Sort(names)

	cols := make([]ir.Column, len(names))
	for i, name := range names {
		typ := kinds[name]
		if typ == "" {
			typ = ir.TypeString
		}
		cols[i] = ir.Column{Name: name, Type: typ, Nullable: true}
	}
	return cols
}

func sqlType(t ir.ColumnType) string {
	switch t {
	case ir.TypeInt:
		return "BIGINT"
	case ir.TypeBool:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

func createFile(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}
