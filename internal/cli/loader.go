package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/scd2/internal/compiler"
	"github.com/roach88/scd2/internal/ir"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the dimensions loaded from a directory.
type LoadResult struct {
	Dimensions []ir.DimensionSpec
	CUEValue   cue.Value // The raw CUE value for additional processing
	FileCount  int       // Number of CUE files found
}

// Dimension returns the loaded dimension with the given name.
func (r *LoadResult) Dimension(name string) (ir.DimensionSpec, bool) {
	for _, d := range r.Dimensions {
		if d.Name == name {
			return d, true
		}
	}
	return ir.DimensionSpec{}, false
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDimensions loads and compiles the CUE dimension definitions in dir.
// Compiled dimensions are also validated.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadDimensions(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	dimsVal := value.LookupPath(cue.ParsePath("dimension"))
	if dimsVal.Exists() {
		iter, iterErr := dimsVal.Fields()
		if iterErr != nil {
			return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating dimensions: %v", iterErr)}}
		}
		for iter.Next() {
			spec, compileErr := compiler.CompileDimension(iter.Value())
			if compileErr != nil {
				errs = append(errs, convertCompileError(compileErr, "dimension."+iter.Label()))
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			if verrs := compiler.Validate(spec); len(verrs) > 0 {
				for _, v := range verrs {
					errs = append(errs, &LoadError{
						Code:    v.Code,
						Message: fmt.Sprintf("dimension %s: %s: %s", iter.Label(), v.Field, v.Message),
						Pos:     iter.Value().Pos(),
					})
				}
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			result.Dimensions = append(result.Dimensions, *spec)
		}
	}

	if len(result.Dimensions) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no dimensions found in specs"})
	}

	slices.SortFunc(result.Dimensions, func(a, b ir.DimensionSpec) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
// Dimension validation codes (E1xx) come from the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	ErrCodeStore            = "E008" // Database open/read/write failed
	ErrCodeSource           = "E009" // Source snapshot unreadable
	ErrCodeUnknownDimension = "E010" // Dimension neither in specs nor store
	ErrCodeBadArgument      = "E011" // Unparseable flag or argument

	// Reconciliation errors
	ErrCodeConfiguration        = "E201"
	ErrCodeSchemaMismatch       = "E202"
	ErrCodeDuplicateFingerprint = "E203"
	ErrCodeTemporalOrdering     = "E204"
	ErrCodeInvariantViolation   = "E205" // check found a broken target table
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "columns":
		return compiler.ErrDimensionNoColumns
	case "tracked":
		return compiler.ErrDimensionNoTracked
	case "type":
		return compiler.ErrInvalidColumnType
	default:
		return ErrCodeGeneric
	}
}
