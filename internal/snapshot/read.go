package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"gopkg.in/yaml.v3"

	"github.com/roach88/scd2/internal/ir"
)

// Format identifies a snapshot file format.
type Format string

const (
	FormatYAML    Format = "yaml"
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// FormatOf returns the format implied by a file's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	case ".csv":
		return FormatCSV, nil
	case ".parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported snapshot format %q (want .yaml, .yml, .json, .csv or .parquet)", filepath.Ext(path))
	}
}

// ReadFile loads the source snapshot at path for spec.
func ReadFile(ctx context.Context, path string, spec ir.DimensionSpec) ([]ir.Row, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	var raw []map[string]any
	switch format {
	case FormatYAML:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open snapshot: %w", err)
		}
		defer f.Close()
		raw, err = decodeYAML(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	case FormatCSV:
		raw, err = queryDuckDB(ctx, fmt.Sprintf(
			"SELECT * FROM read_csv_auto(%s, header = true, all_varchar = true)", quoteLiteral(path)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	case FormatParquet:
		raw, err = queryDuckDB(ctx, fmt.Sprintf("SELECT * FROM read_parquet(%s)", quoteLiteral(path)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	return Coerce(spec, raw, format == FormatCSV)
}

// ReadYAML decodes a YAML or JSON snapshot from r.
func ReadYAML(r io.Reader, spec ir.DimensionSpec) ([]ir.Row, error) {
	raw, err := decodeYAML(r)
	if err != nil {
		return nil, err
	}
	return Coerce(spec, raw, false)
}

// decodeYAML accepts either a list of objects or {rows: [...]}.
// An empty document is an empty snapshot.
func decodeYAML(r io.Reader) ([]map[string]any, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return []map[string]any{}, nil
		}
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	if m, ok := doc.(map[string]any); ok {
		rows, found := m["rows"]
		if !found || len(m) != 1 {
			return nil, fmt.Errorf("decode snapshot: top-level object must have exactly one key, rows")
		}
		doc = rows
	}
	if doc == nil {
		return []map[string]any{}, nil
	}

	list, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("decode snapshot: expected a list of rows, got %T", doc)
	}
	out := make([]map[string]any, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode snapshot: row %d: expected an object, got %T", i, item)
		}
		out[i] = m
	}
	return out, nil
}

// queryDuckDB runs query in a throwaway in-memory DuckDB and returns each
// result row keyed by column name.
func queryDuckDB(ctx context.Context, query string) ([]map[string]any, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = vals[i]
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
