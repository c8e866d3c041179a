package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/scd2/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// DimensionSpec errors (E101-E109)
	ErrDimensionNoColumns = "E101" // at least one column required
	ErrDimensionNoTracked = "E102" // at least one tracked column required
	ErrTrackedUnknown     = "E103" // tracked column is not declared
	ErrInvalidColumnType  = "E104" // invalid type string
	ErrDuplicateName      = "E105" // duplicate column or tracked name
	ErrFloatTypeForbidden = "E106" // float types not allowed
	ErrReservedColumnName = "E107" // column uses a bookkeeping name
	ErrInvalidName        = "E108" // name is not an identifier
	ErrDimensionNameEmpty = "E109" // dimension name is required
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.DimensionSpec:
		return validateDimensionSpec(spec)
	case ir.DimensionSpec:
		return validateDimensionSpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// identPattern restricts names to identifiers so they map cleanly onto
// SQL, CSV headers and Parquet columns.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateDimensionSpec validates a dimension definition.
func validateDimensionSpec(spec *ir.DimensionSpec) []ValidationError {
	var errs []ValidationError

	// E109: name is required; E108: must be an identifier
	switch {
	case strings.TrimSpace(spec.Name) == "":
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "dimension name is required",
			Code:    ErrDimensionNameEmpty,
		})
	case !identPattern.MatchString(spec.Name):
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("dimension name %q must be an identifier", spec.Name),
			Code:    ErrInvalidName,
		})
	}

	// E101: at least one column required
	if len(spec.Columns) == 0 {
		errs = append(errs, ValidationError{
			Field:   "columns",
			Message: "at least one column is required",
			Code:    ErrDimensionNoColumns,
		})
	}

	declared := make(map[string]bool)
	for i, col := range spec.Columns {
		field := fmt.Sprintf("columns[%d]", i)

		// E105: duplicate column name
		if declared[col.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate column name: %q", col.Name),
				Code:    ErrDuplicateName,
			})
		}
		declared[col.Name] = true

		// E107: reserved names; E108: identifiers only
		if ir.ReservedColumns[col.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("column name %q is reserved", col.Name),
				Code:    ErrReservedColumnName,
			})
		} else if !identPattern.MatchString(col.Name) {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("column name %q must be an identifier", col.Name),
				Code:    ErrInvalidName,
			})
		}

		errs = append(errs, validateColumnType(string(col.Type), field+".type", col.Name)...)
	}

	// E102: at least one tracked column required
	if len(spec.Tracked) == 0 {
		errs = append(errs, ValidationError{
			Field:   "tracked",
			Message: "at least one tracked column is required",
			Code:    ErrDimensionNoTracked,
		})
	}

	tracked := make(map[string]bool)
	for i, name := range spec.Tracked {
		field := fmt.Sprintf("tracked[%d]", i)

		// E105: tracked twice
		if tracked[name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("column %q is tracked twice", name),
				Code:    ErrDuplicateName,
			})
		}
		tracked[name] = true

		// E103: tracked column must be declared
		if !declared[name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("tracked column %q is not declared in columns", name),
				Code:    ErrTrackedUnknown,
			})
		}
	}

	return errs
}

// validateColumnType validates a type string, returning errors for invalid types and floats.
func validateColumnType(columnType, fieldPath, columnName string) []ValidationError {
	// E106: float forbidden gets its own code
	if isFloatType(columnType) {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("float type forbidden for column %q, use int or a decimal string", columnName),
			Code:    ErrFloatTypeForbidden,
		}}
	}

	// E104: check for valid type
	if !ir.ValidColumnTypes[ir.ColumnType(columnType)] {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("invalid type %q for column %q", columnType, columnName),
			Code:    ErrInvalidColumnType,
		}}
	}
	return nil
}

// isFloatType checks if a type string represents a float type.
func isFloatType(t string) bool {
	floatTypes := map[string]bool{
		"float":   true,
		"float32": true,
		"float64": true,
		"number":  true,
		"double":  true,
	}
	return floatTypes[t]
}
