package harness

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/roach88/scd2/internal/engine"
	"github.com/roach88/scd2/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Rows     []ir.TargetRow // Final table for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Rows) > 0 {
		fmt.Fprintf(&buf, "\nFinal table:\n")
		for i, row := range e.Rows {
			fmt.Fprintf(&buf, "  [%d] %s\n", i, row)
		}
	}

	return buf.String()
}

// AssertionContext provides what assertions need beyond the result.
type AssertionContext struct {
	Ctx  context.Context
	Spec ir.DimensionSpec

	// Engine re-runs reconciliation for the idempotent assertion.
	Engine *engine.Reconciler

	// LastSource and LastAt describe the last successful run.
	LastSource []ir.Row
	LastAt     time.Time
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRowCount:
			err = assertCount(AssertRowCount, "rows", len(result.Rows), assertion, result.Rows)
		case AssertActiveCount:
			err = assertCount(AssertActiveCount, "active rows", result.ActiveCount(), assertion, result.Rows)
		case AssertRunCount:
			err = assertCount(AssertRunCount, "committed runs", len(result.History), assertion, result.Rows)
		case AssertRow:
			err = assertRow(result.Rows, assertion)
		case AssertInvariants:
			if actx == nil {
				err = fmt.Errorf("assertion[%d]: invariants requires an assertion context", i)
			} else {
				err = assertInvariants(actx.Spec, result.Rows)
			}
		case AssertIdempotent:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: idempotent requires an engine", i)
			} else {
				err = assertIdempotent(actx, result.Rows, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func assertCount(kind, noun string, actual int, assertion Assertion, rows []ir.TargetRow) error {
	if assertion.Count == nil {
		return fmt.Errorf("%s assertion requires count", kind)
	}
	if actual != *assertion.Count {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%d %s", *assertion.Count, noun),
			Actual:   fmt.Sprintf("%d %s", actual, noun),
			Rows:     rows,
		}
	}
	return nil
}

// assertRow checks that exactly one row matches the assertion.
// Where is a subset match on attributes; Active, Start and Closed narrow
// the match further when set.
func assertRow(rows []ir.TargetRow, assertion Assertion) error {
	where, err := ir.RowFromMap(assertion.Where)
	if err != nil {
		return fmt.Errorf("row assertion: where: %w", err)
	}
	desc := describeRowAssertion(assertion)

	var matches []int
	for i, row := range rows {
		ok, err := rowMatches(row, where, assertion)
		if err != nil {
			return err
		}
		if ok {
			matches = append(matches, i)
		}
	}

	switch len(matches) {
	case 1:
		return nil
	case 0:
		return &AssertionError{
			Type:     AssertRow,
			Expected: fmt.Sprintf("one row where %s", desc),
			Actual:   "row not found",
			Rows:     rows,
		}
	default:
		return &AssertionError{
			Type:     AssertRow,
			Expected: fmt.Sprintf("exactly one row where %s", desc),
			Actual:   fmt.Sprintf("%d rows matched (assertion is ambiguous)", len(matches)),
			Rows:     rows,
		}
	}
}

func rowMatches(row ir.TargetRow, where ir.Row, assertion Assertion) (bool, error) {
	if !matchAttrs(row.Attrs, where) {
		return false, nil
	}
	if assertion.Active != nil && row.IsActive != *assertion.Active {
		return false, nil
	}
	if assertion.Start != "" {
		start, err := parseTime(assertion.Start)
		if err != nil {
			return false, err
		}
		if !row.StartTS.Equal(start) {
			return false, nil
		}
	}
	if assertion.Closed != "" {
		end, err := parseTime(assertion.Closed)
		if err != nil {
			return false, err
		}
		if row.EndTS == nil || !row.EndTS.Equal(end) {
			return false, nil
		}
	}
	return true, nil
}

// matchAttrs checks if actual contains all expected attributes (subset match).
// Extra keys in actual are ignored.
func matchAttrs(actual, expected ir.Row) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			// A missing nullable column reads as null.
			if ir.IsNull(expectedVal) {
				continue
			}
			return false
		}
		if !reflect.DeepEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// describeRowAssertion creates a human-readable description of a row assertion.
func describeRowAssertion(a Assertion) string {
	// Sort keys for deterministic output
	keys := make([]string, 0, len(a.Where))
	for k := range a.Where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+3)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, a.Where[k]))
	}
	if a.Active != nil {
		parts = append(parts, fmt.Sprintf("active=%t", *a.Active))
	}
	if a.Start != "" {
		parts = append(parts, "start_ts="+a.Start)
	}
	if a.Closed != "" {
		parts = append(parts, "end_ts="+a.Closed)
	}
	return strings.Join(parts, " AND ")
}

func assertInvariants(spec ir.DimensionSpec, rows []ir.TargetRow) error {
	violations, err := engine.CheckInvariants(spec.Tracked, rows)
	if err != nil {
		return fmt.Errorf("invariants: %w", err)
	}
	if len(violations) == 0 {
		return nil
	}
	msgs := make([]string, len(violations))
	for i, v := range violations {
		msgs[i] = v.String()
	}
	return &AssertionError{
		Type:     AssertInvariants,
		Expected: "no invariant violations",
		Actual:   strings.Join(msgs, "; "),
		Rows:     rows,
	}
}

// assertIdempotent re-runs the last successful source against the final
// table. The run must close and open nothing and return the same table.
func assertIdempotent(actx *AssertionContext, rows []ir.TargetRow, assertion Assertion) error {
	if actx.LastAt.IsZero() {
		return &AssertionError{
			Type:     AssertIdempotent,
			Expected: "a successful run to repeat",
			Actual:   "no run succeeded",
		}
	}

	at := actx.LastAt.Add(time.Hour)
	if assertion.At != "" {
		t, err := parseTime(assertion.At)
		if err != nil {
			return err
		}
		at = t
	}

	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := actx.Engine.Reconcile(ctx, actx.Spec, actx.LastSource, rows, at)
	if err != nil {
		return &AssertionError{
			Type:     AssertIdempotent,
			Expected: "repeat run succeeds",
			Actual:   err.Error(),
			Rows:     rows,
		}
	}
	if res.Stats.Changed() {
		return &AssertionError{
			Type:     AssertIdempotent,
			Expected: "0 ended, 0 new",
			Actual:   fmt.Sprintf("%d ended, %d new", res.Stats.Ended, res.Stats.New),
			Rows:     rows,
		}
	}

	same, err := sameRows(actx.Spec.Tracked, rows, res.Rows)
	if err != nil {
		return fmt.Errorf("idempotent: %w", err)
	}
	if !same {
		return &AssertionError{
			Type:     AssertIdempotent,
			Expected: "repeat run returns the same table",
			Actual:   fmt.Sprintf("%d rows differ", len(res.Rows)),
			Rows:     res.Rows,
		}
	}
	return nil
}

// sameRows compares two tables ignoring row order.
func sameRows(tracked []string, a, b []ir.TargetRow) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	a, b = slices.Clone(a), slices.Clone(b)
	if err := engine.SortRows(tracked, a); err != nil {
		return false, err
	}
	if err := engine.SortRows(tracked, b); err != nil {
		return false, err
	}
	for i := range a {
		if a[i].String() != b[i].String() {
			return false, nil
		}
	}
	return true, nil
}
