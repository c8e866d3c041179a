package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/scd2/internal/ir"
)

// Recorder receives the outcome of every reconciliation run.
// Implemented by metrics.Metrics.
type Recorder interface {
	RunSucceeded(dimension string, stats Stats, elapsed time.Duration)
	RunFailed(dimension string, code ErrorCode)
}

// Stats counts the rows in each reconciliation case.
type Stats struct {
	SourceRows        int `json:"source_rows"`
	TargetRows        int `json:"target_rows"`
	UnchangedActive   int `json:"unchanged_active"`
	UnchangedInactive int `json:"unchanged_inactive"`
	Ended             int `json:"ended"`
	New               int `json:"new"`
	Reopened          int `json:"reopened"`
	OutputRows        int `json:"output_rows"`
}

// Changed reports whether the run closed or opened any version.
func (s Stats) Changed() bool {
	return s.Ended > 0 || s.New > 0
}

// Result is the outcome of a successful run.
type Result struct {
	// Rows is the complete replacement target table.
	Rows []ir.TargetRow

	// Stats counts the rows in each case.
	Stats Stats

	// RunTS is the normalized timestamp every transition was stamped with.
	RunTS time.Time
}

// Reconciler runs SCD2 reconciliation.
//
// A Reconciler holds no per-run state and is safe for concurrent use.
// Serializing runs against one target table is the store's job.
type Reconciler struct {
	logger  *slog.Logger
	workers int
	metrics Recorder
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithWorkers bounds fingerprint parallelism. n <= 0 means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		r.workers = n
	}
}

// WithMetrics reports run outcomes to m.
func WithMetrics(m Recorder) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// New creates a Reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile computes the next target table for spec from source and target.
//
// runTS is normalized to UTC at microsecond precision and shared by every
// row the run closes or opens. Neither source nor target is modified.
//
// On error no rows are returned and the error is a *ReconcileError, except
// for context cancellation which is returned as is.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	spec ir.DimensionSpec,
	source []ir.Row,
	target []ir.TargetRow,
	runTS time.Time,
) (*Result, error) {
	start := time.Now()
	log := r.logger.With("dimension", spec.Name)

	res, err := r.reconcile(ctx, spec, source, target, runTS)
	if err != nil {
		err = withDimension(err, spec.Name)
		log.Error("reconciliation failed", "error", err, "code", CodeOf(err))
		if r.metrics != nil {
			r.metrics.RunFailed(spec.Name, CodeOf(err))
		}
		return nil, err
	}

	elapsed := time.Since(start)
	log.Info("reconciliation complete",
		"run_ts", res.RunTS,
		"unchanged_active", res.Stats.UnchangedActive,
		"unchanged_inactive", res.Stats.UnchangedInactive,
		"ended", res.Stats.Ended,
		"new", res.Stats.New,
		"output_rows", res.Stats.OutputRows,
		"elapsed", elapsed,
	)
	if r.metrics != nil {
		r.metrics.RunSucceeded(spec.Name, res.Stats, elapsed)
	}
	return res, nil
}

func (r *Reconciler) reconcile(
	ctx context.Context,
	spec ir.DimensionSpec,
	source []ir.Row,
	target []ir.TargetRow,
	runTS time.Time,
) (*Result, error) {
	if runTS.IsZero() {
		return nil, NewConfigurationError("run timestamp must be set")
	}
	runTS = ir.NormalizeTime(runTS)

	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}
	fp, err := NewFingerprinter(spec.Tracked)
	if err != nil {
		return nil, err
	}
	if err := checkSchema(spec, source, target); err != nil {
		return nil, err
	}

	r.logger.Debug("fingerprinting rows",
		"dimension", spec.Name,
		"source_rows", len(source),
		"target_rows", len(target),
		"tracked", spec.Tracked,
	)

	sourceFPs, err := fp.ComputeAll(ctx, source, r.workers)
	if err != nil {
		return nil, fmt.Errorf("fingerprint source: %w", err)
	}
	attrs := make([]ir.Row, len(target))
	for i, t := range target {
		attrs[i] = t.Attrs
	}
	targetFPs, err := fp.ComputeAll(ctx, attrs, r.workers)
	if err != nil {
		return nil, fmt.Errorf("fingerprint target: %w", err)
	}

	sourceEntries := make([]SourceEntry, len(source))
	for i, row := range source {
		sourceEntries[i] = SourceEntry{Index: i, Fingerprint: sourceFPs[i], Row: row}
	}
	targetEntries := make([]TargetEntry, len(target))
	for i, row := range target {
		targetEntries[i] = TargetEntry{Index: i, Fingerprint: targetFPs[i], Row: row}
	}

	c, err := Classify(sourceEntries, targetEntries)
	if err != nil {
		return nil, err
	}
	for _, t := range c.Ended {
		r.logger.Debug("closing version", "dimension", spec.Name, "fingerprint", t.Fingerprint)
	}
	for _, s := range c.New {
		r.logger.Debug("opening version", "dimension", spec.Name, "fingerprint", s.Fingerprint)
	}

	a, err := Annotate(c, runTS)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := Assemble(c, a)
	return &Result{
		Rows: rows,
		Stats: Stats{
			SourceRows:        len(source),
			TargetRows:        len(target),
			UnchangedActive:   len(c.UnchangedActive),
			UnchangedInactive: len(c.UnchangedInactive),
			Ended:             len(c.Ended),
			New:               len(c.New),
			Reopened:          c.Reopened,
			OutputRows:        len(rows),
		},
		RunTS: runTS,
	}, nil
}

// Reconcile runs a default Reconciler over rows described only by their
// tracked columns, in order. Schema checks fall back to inference.
func Reconcile(source []ir.Row, target []ir.TargetRow, tracked []string, runTS time.Time) ([]ir.TargetRow, error) {
	res, err := New().Reconcile(context.Background(), ir.DimensionSpec{Tracked: tracked}, source, target, runTS)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}
