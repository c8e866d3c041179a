package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/scd2/internal/engine"
	"github.com/roach88/scd2/internal/ir"
	"github.com/roach88/scd2/internal/snapshot"
	"github.com/roach88/scd2/internal/store"
	"github.com/roach88/scd2/internal/testutil"
)

// DefaultStart is the first run timestamp for runs without an explicit at.
// Each later run without one is a day after the previous clock tick.
var DefaultStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and run IDs.
type Harness struct {
	store  *store.Store
	engine *engine.Reconciler
	clock  *testutil.StepClock
	runIDs *testutil.SequentialRunIDs
	logger *slog.Logger
	spec   ir.DimensionSpec

	// lastSource and lastAt describe the last successful run, for the
	// idempotent assertion.
	lastSource []ir.Row
	lastAt     time.Time
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation, through
// the same register, begin, reconcile, replace and commit sequence as the
// reconcile command. A run that fails with a reconciliation error is rolled
// back and compared against its expect_error.
//
// The returned error is reserved for infrastructure failures; scenario
// failures are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	h := &Harness{
		store:  st,
		engine: engine.New(engine.WithLogger(logger), engine.WithWorkers(1)),
		clock:  testutil.NewStepClock(DefaultStart, 24*time.Hour),
		runIDs: testutil.NewSequentialRunIDs(scenario.Name),
		logger: logger,
		spec:   scenario.Spec(),
	}

	ctx := context.Background()
	if _, err := st.RegisterDimension(ctx, h.spec); err != nil {
		return nil, fmt.Errorf("failed to register dimension: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Runs {
		if err := h.executeRun(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("run %d: %w", i, err)
		}
	}

	if result.Rows, err = st.ReadTarget(ctx, h.spec.Name); err != nil {
		return nil, fmt.Errorf("failed to read final table: %w", err)
	}
	if result.History, err = st.ListRuns(ctx, h.spec.Name); err != nil {
		return nil, fmt.Errorf("failed to read run log: %w", err)
	}

	actx := &AssertionContext{
		Ctx:        ctx,
		Spec:       h.spec,
		Engine:     h.engine,
		LastSource: h.lastSource,
		LastAt:     h.lastAt,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeRun applies one run step.
//
// The store transaction is always closed before returning: committed when
// the run succeeds, rolled back otherwise.
func (h *Harness) executeRun(ctx context.Context, i int, step RunStep, result *Result) error {
	at := h.clock.Now()
	if step.At != "" {
		t, err := parseTime(step.At)
		if err != nil {
			return err
		}
		at = t
	}
	outcome := RunOutcome{Index: i, At: at}

	source, err := snapshot.Coerce(h.spec, step.Source, false)
	if err != nil {
		return h.rejected(i, step, outcome, err, result)
	}

	run, err := h.store.BeginRun(ctx, h.spec.Name)
	if err != nil {
		return err
	}
	defer run.Rollback()

	before, err := run.Target(ctx)
	if err != nil {
		return err
	}
	if _, err := run.CheckRunOrder(ctx, at); err != nil {
		return h.rejected(i, step, outcome, err, result)
	}

	res, err := h.engine.Reconcile(ctx, run.Spec(), source, before, at)
	if err != nil {
		return h.rejected(i, step, outcome, err, result)
	}
	outcome.Stats = res.Stats

	if step.ExpectError != "" {
		result.AddError(fmt.Sprintf("run %d: expected %s, run succeeded", i, step.ExpectError))
	}

	rec, err := run.Replace(ctx, res.Rows, ir.RunRecord{
		ID:                h.runIDs.Generate(),
		RunTS:             res.RunTS,
		SourceRows:        res.Stats.SourceRows,
		UnchangedActive:   res.Stats.UnchangedActive,
		UnchangedInactive: res.Stats.UnchangedInactive,
		Ended:             res.Stats.Ended,
		New:               res.Stats.New,
	})
	if err != nil {
		return err
	}
	if err := run.Commit(); err != nil {
		return err
	}

	for _, v := range engine.CheckTransition(before, res.Rows) {
		result.AddError(fmt.Sprintf("run %d: %s", i, v))
	}

	h.lastSource = source
	h.lastAt = res.RunTS
	result.AddRun(outcome)

	h.logger.Info("run committed",
		"run", i,
		"run_id", rec.ID,
		"seq", rec.Seq,
		"ended", res.Stats.Ended,
		"new", res.Stats.New,
	)
	return nil
}

// rejected records a run that failed. Reconciliation errors are scenario
// outcomes; anything else is returned as an infrastructure failure.
func (h *Harness) rejected(i int, step RunStep, outcome RunOutcome, err error, result *Result) error {
	code := engine.CodeOf(err)
	if code == engine.ErrCodeUnknown {
		return err
	}
	outcome.Error = code
	result.AddRun(outcome)

	switch {
	case step.ExpectError == "":
		result.AddError(fmt.Sprintf("run %d: unexpected error: %v", i, err))
	case engine.ErrorCode(step.ExpectError) != code:
		result.AddError(fmt.Sprintf("run %d: expected %s, got %s: %v", i, step.ExpectError, code, err))
	}

	h.logger.Info("run rejected", "run", i, "code", code, "error", err)
	return nil
}
