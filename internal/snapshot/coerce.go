package snapshot

import (
	"strconv"
	"strings"

	"github.com/roach88/scd2/internal/engine"
	"github.com/roach88/scd2/internal/ir"
)

// Coerce converts decoded rows into ir.Rows for spec.
//
// With declared columns, undeclared columns are a schema mismatch. When text
// is set every non-null value is a string and is parsed per declared type.
// Without declared columns values pass through ir.FromAny unchanged.
//
// Text input comes from CSV, where DuckDB already reads an empty cell as
// NULL. Empty cells therefore follow the column: null when it is nullable,
// "" in a required string column, and null (a schema mismatch at reconcile
// time) in a required int or bool column.
func Coerce(spec ir.DimensionSpec, raw []map[string]any, text bool) ([]ir.Row, error) {
	out := make([]ir.Row, len(raw))
	for i, m := range raw {
		row := make(ir.Row, len(m))
		for name, v := range m {
			col, declared := spec.Column(name)
			if spec.HasSchema() && !declared {
				return nil, engine.NewSchemaMismatchError(name,
					"source row %d: column %q is not declared", i, name)
			}

			var (
				val ir.IRValue
				err error
			)
			if s, ok := v.(string); ok && text && declared {
				val, err = parseText(col, s)
			} else if v == nil && text && declared {
				val = emptyText(col)
			} else {
				val, err = ir.FromAny(v)
			}
			if err != nil {
				return nil, engine.NewSchemaMismatchError(name,
					"source row %d: column %q: %v", i, name, err)
			}
			row[name] = val
		}
		out[i] = row
	}
	return out, nil
}

// emptyText is the value of an empty CSV cell.
func emptyText(col ir.Column) ir.IRValue {
	if col.Type == ir.TypeString && !col.Nullable {
		return ir.IRString("")
	}
	return ir.IRNull{}
}

// parseText parses a CSV cell for a declared column.
func parseText(col ir.Column, s string) (ir.IRValue, error) {
	if col.Type == ir.TypeString {
		return ir.IRString(s), nil
	}

	trimmed := strings.TrimSpace(s)
	if trimmed == "" && col.Nullable {
		return ir.IRNull{}, nil
	}
	switch col.Type {
	case ir.TypeInt:
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, &textError{value: s, want: col.Type}
		}
		return ir.IRInt(n), nil
	case ir.TypeBool:
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return nil, &textError{value: s, want: col.Type}
		}
		return ir.IRBool(b), nil
	default:
		return nil, &textError{value: s, want: col.Type}
	}
}

type textError struct {
	value string
	want  ir.ColumnType
}

func (e *textError) Error() string {
	return strconv.Quote(e.value) + " is not a valid " + string(e.want)
}
