package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/scd2/internal/ir"
)

// Fingerprinter computes row fingerprints over a fixed, ordered list of
// tracked columns.
//
// The column order is captured at construction and never derived from map
// iteration, so the same configuration yields the same fingerprints across
// runs and processes.
type Fingerprinter struct {
	tracked []string
}

// NewFingerprinter validates tracked and returns a Fingerprinter for it.
//
// Fails with a configuration error if tracked is empty, names a column
// twice, contains an empty name or uses a reserved column name.
func NewFingerprinter(tracked []string) (*Fingerprinter, error) {
	if len(tracked) == 0 {
		return nil, NewConfigurationError("tracked columns must not be empty")
	}

	seen := make(map[string]bool, len(tracked))
	for i, name := range tracked {
		if name == "" {
			return nil, NewConfigurationError("tracked column %d has an empty name", i)
		}
		if ir.ReservedColumns[name] {
			return nil, NewConfigurationError("tracked column %q is reserved", name)
		}
		if seen[name] {
			return nil, NewConfigurationError("tracked column %q listed twice", name)
		}
		seen[name] = true
	}

	return &Fingerprinter{tracked: append([]string(nil), tracked...)}, nil
}

// Tracked returns a copy of the tracked column names in fingerprint order.
func (f *Fingerprinter) Tracked() []string {
	return append([]string(nil), f.tracked...)
}

// Compute returns the fingerprint of row.
//
// A tracked column absent from row is a configuration error: the row schema
// does not contain a column the dimension tracks. Null values are legal and
// fingerprint differently from every non-null value.
func (f *Fingerprinter) Compute(row ir.Row) (string, error) {
	values := make([]ir.IRValue, len(f.tracked))
	for i, name := range f.tracked {
		v, ok := row[name]
		if !ok {
			return "", NewConfigurationError("tracked column %q is absent from the row", name)
		}
		if v == nil {
			v = ir.IRNull{}
		}
		values[i] = v
	}
	return ir.Fingerprint(values)
}

// ComputeAll fingerprints rows using up to workers goroutines.
// The result is index-aligned with rows. workers <= 0 means GOMAXPROCS.
func (f *Fingerprinter) ComputeAll(ctx context.Context, rows []ir.Row, workers int) ([]string, error) {
	out := make([]string, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// Small inputs are not worth the goroutines.
	if workers == 1 || len(rows) < 2*workers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, row := range rows {
			fp, err := f.Compute(row)
			if err != nil {
				return nil, err
			}
			out[i] = fp
		}
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	chunk := (len(rows) + workers - 1) / workers
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				fp, err := f.Compute(rows[i])
				if err != nil {
					return err
				}
				out[i] = fp
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
