package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scd2/internal/ir"
	"github.com/roach88/scd2/internal/snapshot"
)

// AsOfResult is the point-in-time view of a dimension.
type AsOfResult struct {
	Dimension string         `json:"dimension"`
	At        time.Time      `json:"at"`
	Rows      []ir.TargetRow `json:"rows"`
}

// NewAsOfCommand creates the asof command.
func NewAsOfCommand(rootOpts *RootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "asof <dimension>",
		Short: "Show the versions valid at a point in time",
		Long: `Show every version whose validity window [start_ts, end_ts) contains
the given timestamp.

Example:
  scd2 asof customers --at 2024-02-15
  scd2 asof customers --at 2024-02-15T12:00:00+01:00 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsOf(rootOpts, args[0], at, cmd)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "point in time (required)")
	_ = cmd.MarkFlagRequired("at")

	return cmd
}

func runAsOf(opts *RootOptions, dimension, at string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	ts, err := ParseTimestamp(at, opts.Location)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeBadArgument, err)
	}

	st, err := opts.openStore()
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err), err)
	}
	defer st.Close()

	if _, err := storedDimension(ctx, st, dimension); err != nil {
		return f.Fail(ExitCommandError, errorCode(err), err)
	}
	rows, err := st.AsOf(ctx, dimension, ts)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err)
	}

	if f.Format == "json" {
		if rows == nil {
			rows = []ir.TargetRow{}
		}
		return f.Success(AsOfResult{Dimension: dimension, At: ts, Rows: rows})
	}
	if err := snapshot.WriteYAML(f.Writer, rows); err != nil {
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Errorf("write rows: %w", err))
	}
	return nil
}
