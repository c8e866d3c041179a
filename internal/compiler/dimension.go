package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/scd2/internal/ir"
)

// CompileDimension parses a CUE value into a DimensionSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the dimension struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`dimension: customers: { ... }`)
//	spec, err := CompileDimension(v.LookupPath(cue.ParsePath("dimension.customers")))
//
// A dimension looks like:
//
//	dimension: customers: {
//		description: "Customer master data"
//		columns: {
//			id:    int
//			name:  string
//			email: null | string
//		}
//		tracked: ["name", "email"]
//	}
//
// Columns keep their declaration order. A column whose type admits null is
// nullable.
func CompileDimension(v cue.Value) (*ir.DimensionSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.DimensionSpec{}

	// Dimension name comes from the struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = unquoteLabel(labels[len(labels)-1])
	}

	// Description is optional
	descVal := v.LookupPath(cue.ParsePath("description"))
	if descVal.Exists() {
		desc, err := descVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Description = desc
	}

	var err error
	spec.Columns, err = parseColumns(v)
	if err != nil {
		return nil, err
	}

	spec.Tracked, err = parseTracked(v)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

// parseColumns extracts column declarations in declaration order.
func parseColumns(v cue.Value) ([]ir.Column, error) {
	columnsVal := v.LookupPath(cue.ParsePath("columns"))
	if !columnsVal.Exists() {
		return nil, &CompileError{
			Field:   "columns",
			Message: "columns are required",
			Pos:     v.Pos(),
		}
	}

	iter, err := columnsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var columns []ir.Column
	for iter.Next() {
		col, err := parseColumn(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return columns, nil
}

// parseColumn converts a CUE type expression into a Column.
// Floats are forbidden: they break fingerprint determinism.
func parseColumn(name string, v cue.Value) (ir.Column, error) {
	col := ir.Column{Name: name}

	kind := v.IncompleteKind()
	if kind&cue.NullKind != 0 && kind != cue.NullKind {
		col.Nullable = true
		kind &^= cue.NullKind
	}

	switch kind {
	case cue.StringKind:
		col.Type = ir.TypeString
	case cue.IntKind:
		col.Type = ir.TypeInt
	case cue.BoolKind:
		col.Type = ir.TypeBool
	case cue.FloatKind, cue.NumberKind:
		return col, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("column %q: float types are forbidden - use int or a decimal string", name),
			Pos:     v.Pos(),
		}
	default:
		return col, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("column %q: unsupported type kind: %v", name, v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
	return col, nil
}

// parseTracked extracts the ordered tracked column list.
func parseTracked(v cue.Value) ([]string, error) {
	trackedVal := v.LookupPath(cue.ParsePath("tracked"))
	if !trackedVal.Exists() {
		return nil, &CompileError{
			Field:   "tracked",
			Message: "tracked columns are required",
			Pos:     v.Pos(),
		}
	}

	iter, err := trackedVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var tracked []string
	for iter.Next() {
		name, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   "tracked",
				Message: "tracked entries must be column names",
				Pos:     iter.Value().Pos(),
			}
		}
		tracked = append(tracked, name)
	}
	return tracked, nil
}

func unquoteLabel(sel cue.Selector) string {
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
