package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/roach88/scd2/internal/ir"
)

// Invariant rule names reported in Violation.Rule.
const (
	RuleSingleActive    = "single-active"
	RuleActiveFlag      = "active-flag"
	RuleWindowOrder     = "window-order"
	RuleNoOverlap       = "no-overlap"
	RuleHistoryKept     = "history-kept"
	RuleClosedImmutable = "closed-immutable"
	RuleEncodable       = "encodable"
)

// Violation describes one broken target-table invariant.
type Violation struct {
	Rule        string `json:"rule"`
	Row         int    `json:"row"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Message     string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: row %d: %s", v.Rule, v.Row, v.Message)
}

// CheckInvariants verifies a target table in isolation:
//
//   - at most one active row per fingerprint
//   - is_active is true exactly when end_ts is null
//   - end_ts is strictly after start_ts
//   - versions sharing a fingerprint do not overlap in time
//
// The error is non-nil only when rows cannot be fingerprinted.
func CheckInvariants(tracked []string, rows []ir.TargetRow) ([]Violation, error) {
	f, err := NewFingerprinter(tracked)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	byFP := make(map[string][]int)
	var order []string
	for i, r := range rows {
		fp, err := f.Compute(r.Attrs)
		if err != nil {
			return nil, err
		}
		if _, seen := byFP[fp]; !seen {
			order = append(order, fp)
		}
		byFP[fp] = append(byFP[fp], i)

		if r.IsActive != (r.EndTS == nil) {
			violations = append(violations, Violation{
				Rule: RuleActiveFlag, Row: i, Fingerprint: fp,
				Message: fmt.Sprintf("is_active=%t but end_ts=%s", r.IsActive, formatEnd(r.EndTS)),
			})
		}
		if r.EndTS != nil && !r.EndTS.After(r.StartTS) {
			violations = append(violations, Violation{
				Rule: RuleWindowOrder, Row: i, Fingerprint: fp,
				Message: fmt.Sprintf("end_ts %s is not after start_ts %s", formatEnd(r.EndTS), r.StartTS.Format(time.RFC3339Nano)),
			})
		}
	}

	for _, fp := range order {
		idx := byFP[fp]

		active := 0
		for _, i := range idx {
			if rows[i].IsActive {
				active++
				if active > 1 {
					violations = append(violations, Violation{
						Rule: RuleSingleActive, Row: i, Fingerprint: fp,
						Message: "second active row for fingerprint",
					})
				}
			}
		}

		sorted := slices.Clone(idx)
		slices.SortStableFunc(sorted, func(a, b int) int { return rows[a].StartTS.Compare(rows[b].StartTS) })
		for k := 1; k < len(sorted); k++ {
			prev, cur := rows[sorted[k-1]], rows[sorted[k]]
			if prev.EndTS == nil || prev.EndTS.After(cur.StartTS) {
				violations = append(violations, Violation{
					Rule: RuleNoOverlap, Row: sorted[k], Fingerprint: fp,
					Message: fmt.Sprintf("starts at %s inside the window of row %d", cur.StartTS.Format(time.RFC3339Nano), sorted[k-1]),
				})
			}
		}
	}

	slices.SortStableFunc(violations, func(a, b Violation) int { return a.Row - b.Row })
	return violations, nil
}

// CheckTransition verifies that after is a legal successor of before:
// every row of before is present in after with the same attributes and
// start_ts, closed rows are unchanged, and active rows are either unchanged
// or closed. Rows whose attributes cannot be encoded are reported as
// RuleEncodable and never matched.
func CheckTransition(before, after []ir.TargetRow) []Violation {
	type key struct {
		attrs string
		start int64
	}
	keyOf := func(r ir.TargetRow) (key, error) {
		b, err := ir.MarshalCanonical(r.Attrs)
		if err != nil {
			return key{}, err
		}
		return key{attrs: string(b), start: r.StartTS.UnixMicro()}, nil
	}

	var violations []Violation
	remaining := make(map[key][]ir.TargetRow, len(after))
	for i, r := range after {
		k, err := keyOf(r)
		if err != nil {
			violations = append(violations, Violation{
				Rule: RuleEncodable, Row: i,
				Message: fmt.Sprintf("new table row cannot be encoded: %v", err),
			})
			continue
		}
		remaining[k] = append(remaining[k], r)
	}

	for i, old := range before {
		k, err := keyOf(old)
		if err != nil {
			violations = append(violations, Violation{
				Rule: RuleEncodable, Row: i,
				Message: fmt.Sprintf("row cannot be encoded: %v", err),
			})
			continue
		}
		candidates := remaining[k]
		if len(candidates) == 0 {
			violations = append(violations, Violation{
				Rule: RuleHistoryKept, Row: i,
				Message: fmt.Sprintf("row %s is missing from the new table", old),
			})
			continue
		}
		next := candidates[0]
		remaining[k] = candidates[1:]

		if !old.IsActive && old.EndTS != nil {
			if next.IsActive || next.EndTS == nil || !next.EndTS.Equal(*old.EndTS) {
				violations = append(violations, Violation{
					Rule: RuleClosedImmutable, Row: i,
					Message: fmt.Sprintf("closed row changed to %s", next),
				})
			}
		}
	}
	return violations
}

func formatEnd(t *time.Time) string {
	if t == nil {
		return "null"
	}
	return t.Format(time.RFC3339Nano)
}
