package engine

import (
	"fmt"
	"time"

	"github.com/roach88/scd2/internal/ir"
)

// Annotation holds the rows produced by the run's state transitions.
// Both slices are index-aligned with the Classification sets they came from.
type Annotation struct {
	Ended []ir.TargetRow
	New   []ir.TargetRow
}

// CheckTemporalOrder verifies runTS against the recorded history.
//
// runTS must not precede any start_ts or end_ts already in the target. A
// runTS equal to the latest recorded instant is accepted only when it closes
// nothing, so repeating a run at the same timestamp is a no-op but history
// already stamped at that instant is never rewritten.
func CheckTemporalOrder(c *Classification, runTS time.Time) error {
	var latest time.Time
	var latestFP string
	note := func(ts time.Time, fp string) {
		if ts.After(latest) {
			latest, latestFP = ts, fp
		}
	}
	for _, set := range [][]TargetEntry{c.UnchangedActive, c.UnchangedInactive, c.Ended} {
		for _, t := range set {
			note(t.Row.StartTS, t.Fingerprint)
			if t.Row.EndTS != nil {
				note(*t.Row.EndTS, t.Fingerprint)
			}
		}
	}

	if runTS.Before(latest) {
		return NewTemporalOrderingError(latestFP, "run timestamp precedes recorded history", map[string]string{
			"run_ts": runTS.Format(time.RFC3339Nano),
			"latest": latest.Format(time.RFC3339Nano),
		})
	}

	// Every closed row started at or before latest, so this also rules out
	// empty validity windows.
	if len(c.Ended) > 0 && runTS.Equal(latest) {
		return NewTemporalOrderingError(c.Ended[0].Fingerprint, "run at the latest recorded instant would close rows", map[string]string{
			"run_ts": runTS.Format(time.RFC3339Nano),
			"ended":  fmt.Sprintf("%d", len(c.Ended)),
		})
	}
	return nil
}

// CheckRunOrder rejects a runTS earlier than the previous committed run.
// An equal timestamp is accepted. A zero previous means no run yet.
func CheckRunOrder(previous, runTS time.Time) error {
	if previous.IsZero() {
		return nil
	}
	runTS = ir.NormalizeTime(runTS)
	if runTS.Before(previous) {
		return NewTemporalOrderingError("", "run timestamp precedes the previous run", map[string]string{
			"run_ts":   runTS.Format(time.RFC3339Nano),
			"previous": previous.Format(time.RFC3339Nano),
		})
	}
	return nil
}

// Annotate stamps the transition sets with runTS.
//
// Ended rows are copied with end_ts = runTS and is_active = false. New rows
// become active versions starting at runTS. Inputs are not modified.
func Annotate(c *Classification, runTS time.Time) (*Annotation, error) {
	if err := CheckTemporalOrder(c, runTS); err != nil {
		return nil, err
	}

	a := &Annotation{
		Ended: make([]ir.TargetRow, len(c.Ended)),
		New:   make([]ir.TargetRow, len(c.New)),
	}
	for i, t := range c.Ended {
		closed := t.Row.Clone()
		end := runTS
		closed.EndTS = &end
		closed.IsActive = false
		a.Ended[i] = closed
	}
	for i, s := range c.New {
		a.New[i] = ir.TargetRow{
			Attrs:    s.Row.Clone(),
			StartTS:  runTS,
			EndTS:    nil,
			IsActive: true,
		}
	}
	return a, nil
}
