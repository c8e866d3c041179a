package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scd2/internal/ir"
)

// HistoryResult is the run log of one dimension.
type HistoryResult struct {
	Dimension string         `json:"dimension"`
	Runs      []ir.RunRecord `json:"runs"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <dimension>",
		Short: "Show the run log of a dimension",
		Long: `Show every committed run of a dimension, oldest first.

Example:
  scd2 history customers
  scd2 history customers --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, args[0], cmd)
		},
	}
}

func runHistory(opts *RootOptions, dimension string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err), err)
	}
	defer st.Close()

	if _, err := storedDimension(ctx, st, dimension); err != nil {
		return f.Fail(ExitCommandError, errorCode(err), err)
	}
	runs, err := st.ListRuns(ctx, dimension)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err)
	}

	if f.Format == "json" {
		return f.Success(HistoryResult{Dimension: dimension, Runs: runs})
	}

	if len(runs) == 0 {
		fmt.Fprintf(f.Writer, "%s: no runs\n", dimension)
		return nil
	}
	fmt.Fprintf(f.Writer, "%-4s %-32s %7s %9s %7s %6s %6s %6s  %s\n",
		"SEQ", "RUN_TS", "SOURCE", "UNCHANGED", "CLOSED", "ENDED", "NEW", "ROWS", "ID")
	for _, r := range runs {
		fmt.Fprintf(f.Writer, "%-4d %-32s %7d %9d %7d %6d %6d %6d  %s\n",
			r.Seq, r.RunTS.In(opts.Location).Format(time.RFC3339Nano),
			r.SourceRows, r.UnchangedActive, r.UnchangedInactive, r.Ended, r.New, r.TotalRows, r.ID)
	}
	return nil
}
