package engine

import (
	"errors"

	"github.com/roach88/scd2/internal/ir"
)

// ValidateSpec checks a dimension definition before any rows are touched.
//
// Tracked columns follow NewFingerprinter's rules. When the spec declares
// columns, every tracked column must be declared, column names must be
// unique and non-reserved, and types must be known.
func ValidateSpec(spec ir.DimensionSpec) error {
	if _, err := NewFingerprinter(spec.Tracked); err != nil {
		return withDimension(err, spec.Name)
	}
	if !spec.HasSchema() {
		return nil
	}

	seen := make(map[string]bool, len(spec.Columns))
	for _, c := range spec.Columns {
		switch {
		case c.Name == "":
			return withDimension(NewConfigurationError("column with empty name"), spec.Name)
		case ir.ReservedColumns[c.Name]:
			return withDimension(NewConfigurationError("column %q uses a reserved name", c.Name), spec.Name)
		case seen[c.Name]:
			return withDimension(NewConfigurationError("column %q declared twice", c.Name), spec.Name)
		case !ir.ValidColumnTypes[c.Type]:
			return withDimension(NewConfigurationError("column %q has unknown type %q", c.Name, c.Type), spec.Name)
		}
		seen[c.Name] = true
	}
	for _, name := range spec.Tracked {
		if !seen[name] {
			return withDimension(NewConfigurationError("tracked column %q is not a declared column", name), spec.Name)
		}
	}
	return nil
}

// checkSchema verifies that source and target rows agree on the schema of
// the tracked columns. spec must already have passed ValidateSpec.
func checkSchema(spec ir.DimensionSpec, source []ir.Row, target []ir.TargetRow) error {
	for i, t := range target {
		if t.IsActive != (t.EndTS == nil) {
			return NewSchemaMismatchError("", "target row %d: is_active=%t disagrees with end_ts", i, t.IsActive)
		}
	}

	if spec.HasSchema() {
		for i, row := range source {
			if err := checkDeclared(spec, "source", i, row); err != nil {
				return err
			}
		}
		for i, t := range target {
			if err := checkDeclared(spec, "target", i, t.Attrs); err != nil {
				return err
			}
		}
		return nil
	}
	return checkInferred(spec.Tracked, source, target)
}

// checkDeclared verifies one row against declared columns: no unknown
// columns, no missing columns, values of the declared type.
func checkDeclared(spec ir.DimensionSpec, side string, idx int, row ir.Row) error {
	for name := range row {
		if _, ok := spec.Column(name); !ok {
			return NewSchemaMismatchError(name, "%s row %d: unknown column %q", side, idx, name)
		}
	}
	for _, c := range spec.Columns {
		v, ok := row[c.Name]
		if !ok {
			return NewSchemaMismatchError(c.Name, "%s row %d: missing column %q", side, idx, c.Name)
		}
		if !c.Accepts(v) {
			return NewSchemaMismatchError(c.Name, "%s row %d: column %q expects %s, got %s",
				side, idx, c.Name, describeType(c), ir.KindOf(v))
		}
	}
	return nil
}

func describeType(c ir.Column) string {
	if c.Nullable {
		return string(c.Type) + " or null"
	}
	return string(c.Type)
}

// checkInferred is used when only tracked column names are known. Each
// tracked column must be present in every row, must hold a single non-null
// kind on each side, and both sides must agree on that kind.
func checkInferred(tracked []string, source []ir.Row, target []ir.TargetRow) error {
	for _, row := range source {
		for name := range row {
			if ir.ReservedColumns[name] {
				return NewSchemaMismatchError(name, "source rows may not carry reserved column %q", name)
			}
		}
	}

	for _, name := range tracked {
		srcKind, srcSeen, err := inferKind(name, "source", len(source), func(i int) ir.Row { return source[i] })
		if err != nil {
			return err
		}
		tgtKind, tgtSeen, err := inferKind(name, "target", len(target), func(i int) ir.Row { return target[i].Attrs })
		if err != nil {
			return err
		}
		if !srcSeen && !tgtSeen && (len(source) > 0 || len(target) > 0) {
			return NewConfigurationError("tracked column %q is absent from the row schema", name)
		}
		if len(source) > 0 && !srcSeen {
			return NewSchemaMismatchError(name, "column %q is present in target but absent from source", name)
		}
		if len(target) > 0 && !tgtSeen {
			return NewSchemaMismatchError(name, "column %q is present in source but absent from target", name)
		}
		if srcKind != "" && tgtKind != "" && srcKind != tgtKind {
			return NewSchemaMismatchError(name, "column %q is %s in source but %s in target", name, srcKind, tgtKind)
		}
	}
	return nil
}

// inferKind scans one side for column name. It reports the single non-null
// kind found (empty if all values are null) and whether any row had the
// column at all.
func inferKind(name, side string, n int, rowAt func(int) ir.Row) (ir.Kind, bool, error) {
	var kind ir.Kind
	present, missing := -1, -1
	for i := 0; i < n; i++ {
		v, ok := rowAt(i)[name]
		if !ok {
			if missing < 0 {
				missing = i
			}
			continue
		}
		if present < 0 {
			present = i
		}
		if ir.IsNull(v) {
			continue
		}
		k := ir.KindOf(v)
		if k == ir.KindArray || k == ir.KindObject {
			return "", false, NewSchemaMismatchError(name, "%s row %d: column %q holds a non-scalar %s", side, i, name, k)
		}
		if kind == "" {
			kind = k
		} else if k != kind {
			return "", false, NewSchemaMismatchError(name, "%s row %d: column %q is %s, earlier rows are %s", side, i, name, k, kind)
		}
	}
	if present >= 0 && missing >= 0 {
		return "", false, NewSchemaMismatchError(name, "%s row %d: missing column %q", side, missing, name)
	}
	return kind, present >= 0, nil
}

// withDimension fills in the dimension name on a ReconcileError.
func withDimension(err error, dimension string) error {
	var re *ReconcileError
	if errors.As(err, &re) && re.Dimension == "" && dimension != "" {
		re.Dimension = dimension
	}
	return err
}
