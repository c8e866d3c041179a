package engine

import (
	"time"

	"github.com/roach88/scd2/internal/ir"
)

// RunClock supplies the single timestamp a reconciliation run is stamped
// with. It is read once per run, never per row.
type RunClock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC at microsecond precision.
type SystemClock struct{}

// Now returns the current time normalized with ir.NormalizeTime.
func (SystemClock) Now() time.Time {
	return ir.NormalizeTime(time.Now())
}

// ClockFunc adapts a function to RunClock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}
