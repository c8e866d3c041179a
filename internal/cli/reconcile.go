package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scd2/internal/engine"
	"github.com/roach88/scd2/internal/ir"
	"github.com/roach88/scd2/internal/metrics"
	"github.com/roach88/scd2/internal/snapshot"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	At     string
	DryRun bool
}

// ReconcileResult is the outcome of one reconcile invocation.
type ReconcileResult struct {
	Dimension string       `json:"dimension"`
	RunID     string       `json:"run_id"`
	Seq       int64        `json:"seq,omitempty"`
	RunTS     time.Time    `json:"run_ts"`
	DryRun    bool         `json:"dry_run"`
	Stats     engine.Stats `json:"stats"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile <dimension> <source-file>",
		Short: "Reconcile a source snapshot into a dimension",
		Long: `Reconcile a source snapshot (YAML, CSV or Parquet) into the stored
target table of a dimension.

The dimension definition is read from the specs directory and registered in
the store, or taken from the store when the specs directory does not define
it. The whole run is one transaction: either the new table and its run
record are committed together or nothing changes.

Example:
  scd2 reconcile customers ./customers.csv
  scd2 reconcile customers ./customers.parquet --at 2024-03-01
  scd2 reconcile customers ./customers.yaml --dry-run --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "run timestamp (default now)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compute the run and roll it back")

	return cmd
}

func runReconcile(opts *ReconcileOptions, dimension, sourcePath string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)
	log := opts.Logger.With("dimension", dimension)

	runTS := opts.Clock.Now()
	if opts.At != "" {
		ts, err := ParseTimestamp(opts.At, opts.Location)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeBadArgument, err)
		}
		runTS = ts
	}

	st, err := opts.openStore()
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err), err)
	}
	defer st.Close()

	spec, found, err := opts.specDimension(dimension)
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err), err)
	}
	if found {
		changed, err := st.RegisterDimension(ctx, spec)
		if err != nil {
			code := errorCode(err)
			if code == ErrCodeGeneric {
				code = ErrCodeStore
			}
			return f.Fail(failureExit(err), code, err)
		}
		if changed {
			log.Info("dimension registered", "tracked", spec.Tracked)
		}
	} else {
		if spec, err = storedDimension(ctx, st, dimension); err != nil {
			return f.Fail(ExitCommandError, errorCode(err), err)
		}
	}

	f.VerboseLog("Reading %s", sourcePath)
	source, err := snapshot.ReadFile(ctx, sourcePath, spec)
	if err != nil {
		code := reconcileErrorCode(err)
		if code == ErrCodeGeneric {
			code = ErrCodeSource
		}
		return f.Fail(failureExit(err), code, err)
	}

	m := metrics.New()
	r := engine.New(
		engine.WithLogger(opts.Logger),
		engine.WithWorkers(opts.Config.Workers),
		engine.WithMetrics(m),
	)

	run, err := st.BeginRun(ctx, dimension)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err)
	}
	defer run.Rollback()

	target, err := run.Target(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err)
	}
	last, err := run.CheckRunOrder(ctx, runTS)
	if engine.IsTemporalOrderingError(err) {
		m.RunFailed(dimension, engine.ErrCodeTemporalOrdering)
		opts.writeMetrics(m)
		return f.Fail(ExitFailure, ErrCodeTemporalOrdering, err)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err)
	}
	if last != nil {
		f.VerboseLog("Previous run %d at %s (%d rows)", last.Seq, last.RunTS.In(opts.Location).Format(time.RFC3339Nano), last.TotalRows)
	}

	res, err := r.Reconcile(ctx, run.Spec(), source, target, runTS)
	if err != nil {
		opts.writeMetrics(m)
		return f.Fail(failureExit(err), errorCode(err), err)
	}

	rec, err := run.Replace(ctx, res.Rows, ir.RunRecord{
		ID:                opts.RunIDs.Generate(),
		RunTS:             res.RunTS,
		SourceRows:        res.Stats.SourceRows,
		UnchangedActive:   res.Stats.UnchangedActive,
		UnchangedInactive: res.Stats.UnchangedInactive,
		Ended:             res.Stats.Ended,
		New:               res.Stats.New,
	})
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err)
	}

	result := ReconcileResult{
		Dimension: dimension,
		RunID:     rec.ID,
		RunTS:     res.RunTS,
		DryRun:    opts.DryRun,
		Stats:     res.Stats,
	}
	if opts.DryRun {
		if err := run.Rollback(); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err)
		}
		log.Info("dry run rolled back", "run_id", rec.ID)
	} else {
		if err := run.Commit(); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err)
		}
		result.Seq = rec.Seq
		opts.writeMetrics(m)
	}

	return outputReconcile(f, result, opts.Location)
}

// failureExit separates rejected runs (exit 1) from command errors (exit 2).
func failureExit(err error) int {
	if engine.CodeOf(err) != engine.ErrCodeUnknown {
		return ExitFailure
	}
	return ExitCommandError
}

// writeMetrics writes the metrics textfile when one is configured. Failures
// are logged and do not fail the run.
func (o *RootOptions) writeMetrics(m *metrics.Metrics) {
	path := o.Config.MetricsTextfile
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		o.Logger.Warn("metrics not written", "path", path, "error", err)
	}
}

func outputReconcile(f *OutputFormatter, res ReconcileResult, loc *time.Location) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   res,
			RunID:  res.RunID,
		})
	}

	s := res.Stats
	at := res.RunTS.In(loc).Format(time.RFC3339Nano)
	if res.DryRun {
		fmt.Fprintf(f.Writer, "✓ %s: dry run at %s (nothing written)\n", res.Dimension, at)
	} else {
		fmt.Fprintf(f.Writer, "✓ %s: run %d at %s\n", res.Dimension, res.Seq, at)
	}
	fmt.Fprintf(f.Writer, "  unchanged: %d active, %d closed\n", s.UnchangedActive, s.UnchangedInactive)
	fmt.Fprintf(f.Writer, "  ended:     %d\n", s.Ended)
	if s.Reopened > 0 {
		fmt.Fprintf(f.Writer, "  new:       %d (%d reopened)\n", s.New, s.Reopened)
	} else {
		fmt.Fprintf(f.Writer, "  new:       %d\n", s.New)
	}
	fmt.Fprintf(f.Writer, "  rows:      %d\n", s.OutputRows)
	f.VerboseLog("run id %s", res.RunID)
	return nil
}
