package engine

import (
	"github.com/roach88/scd2/internal/ir"
)

// SourceEntry is a source row paired with its fingerprint.
type SourceEntry struct {
	Index       int
	Fingerprint string
	Row         ir.Row
}

// TargetEntry is a target row paired with its fingerprint. Index is the
// row's position in the target table and is used to keep output stable.
type TargetEntry struct {
	Index       int
	Fingerprint string
	Row         ir.TargetRow
}

// Classification partitions one run's rows into the four reconciliation
// cases. Every target row lands in exactly one of the three target sets.
type Classification struct {
	// UnchangedActive are active target rows whose fingerprint is in the source.
	UnchangedActive []TargetEntry

	// UnchangedInactive are closed target rows. They are history and are
	// copied forward even when their fingerprint reappears in the source.
	UnchangedInactive []TargetEntry

	// Ended are active target rows whose fingerprint left the source.
	// They are not yet closed; see Annotate.
	Ended []TargetEntry

	// New are source rows with no active target row sharing their
	// fingerprint. They are not yet stamped; see Annotate.
	New []SourceEntry

	// Reopened counts New rows whose fingerprint matches closed history,
	// i.e. an entity that returned to an earlier state.
	Reopened int
}

// Classify partitions fingerprinted source and target rows.
//
// Set order within each case follows input order. Fails with a duplicate
// fingerprint error if two source rows, or two active target rows, share a
// fingerprint. Two closed target rows may share one: an entity can leave a
// state and return to it more than once.
func Classify(source []SourceEntry, target []TargetEntry) (*Classification, error) {
	sourceFPs := make(map[string]int, len(source))
	for _, s := range source {
		if prev, dup := sourceFPs[s.Fingerprint]; dup {
			return nil, NewDuplicateFingerprintError("source", s.Fingerprint, prev, s.Index)
		}
		sourceFPs[s.Fingerprint] = s.Index
	}

	activeFPs := make(map[string]int)
	inactiveFPs := make(map[string]bool)
	for _, t := range target {
		if !t.Row.IsActive {
			inactiveFPs[t.Fingerprint] = true
			continue
		}
		if prev, dup := activeFPs[t.Fingerprint]; dup {
			return nil, NewDuplicateFingerprintError("target", t.Fingerprint, prev, t.Index)
		}
		activeFPs[t.Fingerprint] = t.Index
	}

	c := &Classification{}
	for _, t := range target {
		_, inSource := sourceFPs[t.Fingerprint]
		switch {
		case t.Row.IsActive && inSource:
			c.UnchangedActive = append(c.UnchangedActive, t)
		case t.Row.IsActive:
			c.Ended = append(c.Ended, t)
		default:
			c.UnchangedInactive = append(c.UnchangedInactive, t)
		}
	}

	for _, s := range source {
		if _, active := activeFPs[s.Fingerprint]; active {
			continue
		}
		if inactiveFPs[s.Fingerprint] {
			c.Reopened++
		}
		c.New = append(c.New, s)
	}

	return c, nil
}
