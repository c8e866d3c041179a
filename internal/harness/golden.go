package harness

import (
	"fmt"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/scd2/internal/engine"
	"github.com/roach88/scd2/internal/ir"
)

// TableSnapshot captures the outcome of a scenario execution: every run
// and the final target table.
type TableSnapshot struct {
	ScenarioName string
	Tracked      []string
	Runs         []RunOutcome
	Rows         []ir.TargetRow
}

// toCanonicalMap converts a TableSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TableSnapshot) toCanonicalMap() (map[string]any, error) {
	fp, err := engine.NewFingerprinter(s.Tracked)
	if err != nil {
		return nil, err
	}

	rows := make([]any, len(s.Rows))
	for i, row := range s.Rows {
		fingerprint, err := fp.Compute(row.Attrs)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		var end any
		if row.EndTS != nil {
			end = formatTS(*row.EndTS)
		}
		rows[i] = map[string]any{
			"attrs":       row.Attrs,
			"start_ts":    formatTS(row.StartTS),
			"end_ts":      end,
			"is_active":   row.IsActive,
			"fingerprint": fingerprint,
		}
	}

	runs := make([]any, len(s.Runs))
	for i, run := range s.Runs {
		if run.Error != "" {
			runs[i] = map[string]any{
				"at":    formatTS(run.At),
				"error": string(run.Error),
			}
			continue
		}
		runs[i] = map[string]any{
			"at":                 formatTS(run.At),
			"unchanged_active":   run.Stats.UnchangedActive,
			"unchanged_inactive": run.Stats.UnchangedInactive,
			"ended":              run.Stats.Ended,
			"new":                run.Stats.New,
			"output_rows":        run.Stats.OutputRows,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"runs":          runs,
		"rows":          rows,
	}, nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// RunWithGolden executes a scenario and compares the final table against a
// golden file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Rows appear in storage order, which is (fingerprint, start_ts), so the
// snapshot is stable across runs.
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the table doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, scenario.Spec().Tracked, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, name string, tracked []string, result *Result) error {
	t.Helper()

	snapshot := TableSnapshot{
		ScenarioName: name,
		Tracked:      tracked,
		Runs:         result.Runs,
		Rows:         result.Rows,
	}

	canonicalMap, err := snapshot.toCanonicalMap()
	if err != nil {
		return err
	}
	data, err := ir.MarshalCanonical(canonicalMap)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)

	return nil
}
