package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/roach88/scd2/internal/ir"
	"github.com/roach88/scd2/internal/store"
)

// timestampLayouts are tried in order after RFC 3339. They carry no offset
// and are read in the configured zone.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses s as RFC 3339, or as a local date or date-time in
// loc. The result is normalized to UTC at microsecond precision.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ir.NormalizeTime(t), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ir.NormalizeTime(t), nil
		}
	}
	return time.Time{}, &LoadError{
		Code:    ErrCodeBadArgument,
		Message: fmt.Sprintf("invalid timestamp %q: want RFC 3339 or YYYY-MM-DD[ HH:MM:SS]", s),
	}
}

// openStore opens the configured store.
func (o *RootOptions) openStore() (*store.Store, error) {
	st, err := store.Open(o.Config.DB)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: err.Error()}
	}
	o.Logger.Debug("store opened", "dsn", o.Config.DB, "backend", st.Backend())
	return st, nil
}

// specDimension looks name up in the configured specs directory. A missing
// directory is not an error; the caller falls back to the store.
func (o *RootOptions) specDimension(name string) (ir.DimensionSpec, bool, error) {
	if _, err := os.Stat(o.Config.Specs); errors.Is(err, os.ErrNotExist) {
		return ir.DimensionSpec{}, false, nil
	}
	res, errs := LoadDimensions(o.Config.Specs, LoadModeFailFast)
	if len(errs) > 0 {
		var le *LoadError
		if errors.As(errs[0], &le) {
			return ir.DimensionSpec{}, false, le
		}
		return ir.DimensionSpec{}, false, errs[0]
	}
	spec, ok := res.Dimension(name)
	return spec, ok, nil
}

// storedDimension returns the definition registered in st.
func storedDimension(ctx context.Context, st *store.Store, name string) (ir.DimensionSpec, error) {
	spec, err := st.GetDimension(ctx, name)
	if errors.Is(err, store.ErrDimensionNotFound) {
		return ir.DimensionSpec{}, &LoadError{
			Code:    ErrCodeUnknownDimension,
			Message: fmt.Sprintf("dimension %q is not registered", name),
		}
	}
	if err != nil {
		return ir.DimensionSpec{}, &LoadError{Code: ErrCodeStore, Message: err.Error()}
	}
	return spec, nil
}

// errorCode picks the CLI code for err.
func errorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	if code := reconcileErrorCode(err); code != ErrCodeGeneric {
		return code
	}
	return ErrCodeGeneric
}
