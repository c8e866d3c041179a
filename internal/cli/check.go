package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/scd2/internal/engine"
)

// CheckResult reports the invariant check of one target table.
type CheckResult struct {
	Dimension  string             `json:"dimension"`
	Rows       int                `json:"rows"`
	Active     int                `json:"active"`
	Valid      bool               `json:"valid"`
	Violations []engine.Violation `json:"violations,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <dimension>",
		Short: "Verify the invariants of a stored target table",
		Long: `Verify that a stored target table is a well-formed SCD2 history:
at most one active version per fingerprint, is_active set exactly when
end_ts is null, non-empty validity windows and no overlapping versions.

Exits 1 when any invariant is broken.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
}

func runCheck(opts *RootOptions, dimension string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err), err)
	}
	defer st.Close()

	spec, err := storedDimension(ctx, st, dimension)
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err), err)
	}
	rows, err := st.ReadTarget(ctx, dimension)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err)
	}

	violations, err := engine.CheckInvariants(spec.Tracked, rows)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	result := CheckResult{
		Dimension:  dimension,
		Rows:       len(rows),
		Valid:      len(violations) == 0,
		Violations: violations,
	}
	for _, r := range rows {
		if r.IsActive {
			result.Active++
		}
	}

	if result.Valid {
		if f.Format == "json" {
			return f.Success(result)
		}
		fmt.Fprintf(f.Writer, "✓ %s: %d row(s), %d active, invariants hold\n", dimension, result.Rows, result.Active)
		return nil
	}

	for _, v := range violations {
		opts.Logger.Warn("invariant violated", "dimension", dimension, "rule", v.Rule, "row", v.Row)
	}
	msg := fmt.Sprintf("%d invariant violation(s)", len(violations))
	if f.Format == "json" {
		if err := json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: ErrCodeInvariantViolation, Message: msg},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", ErrCodeInvariantViolation, msg))
	}

	fmt.Fprintf(f.Writer, "✗ %s: %s\n", dimension, msg)
	for _, v := range violations {
		fmt.Fprintf(f.Writer, "  %s\n", v)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", ErrCodeInvariantViolation, msg))
}
