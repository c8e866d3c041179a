package harness

import (
	"time"

	"github.com/roach88/scd2/internal/engine"
	"github.com/roach88/scd2/internal/ir"
)

// RunOutcome records what one scenario run did.
type RunOutcome struct {
	Index int          `json:"index"`
	At    time.Time    `json:"at"`
	Stats engine.Stats `json:"stats"`

	// Error is the reconciliation error code when the run was rejected.
	Error engine.ErrorCode `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every run ended as expected and all assertions hold.
	Pass bool `json:"pass"`

	// Runs holds one outcome per scenario run, in order.
	Runs []RunOutcome `json:"runs"`

	// Rows is the final target table as stored, in storage order.
	Rows []ir.TargetRow `json:"rows"`

	// History is the committed run log.
	History []ir.RunRecord `json:"history"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Runs:   []RunOutcome{},
		Rows:   []ir.TargetRow{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddRun appends a run outcome.
func (r *Result) AddRun(outcome RunOutcome) {
	r.Runs = append(r.Runs, outcome)
}

// ActiveCount returns the number of active rows in the final table.
func (r *Result) ActiveCount() int {
	n := 0
	for _, row := range r.Rows {
		if row.IsActive {
			n++
		}
	}
	return n
}
