// Package engine implements SCD Type-2 reconciliation.
//
// A run compares a source snapshot (one row per entity, current state) with
// the target history table (every recorded version, each with a validity
// window) and produces the complete next target table.
//
// PIPELINE:
//
//  1. Fingerprint: each row gets an identity token computed from its tracked
//     columns in configured order (see ir.Fingerprint).
//  2. Classify: target and source rows are partitioned into UnchangedActive,
//     UnchangedInactive, Ended and New.
//  3. Annotate: Ended rows are closed at the run timestamp, New rows are
//     opened at it. Every transition in a run shares that one instant.
//  4. Assemble: the four sets are unioned into the replacement table.
//
// Data flows one way. The assembled table is the target of the next run.
//
// INVARIANTS:
//
//   - At most one active row per fingerprint.
//   - History is never deleted. Inactive rows are copied forward unchanged.
//   - end_ts is set exactly once and is strictly after start_ts.
//
// All validation happens before assembly. A failed run returns a
// *ReconcileError and no rows, so callers never see partial output.
//
// The core is pure. Storage, locking and the atomic swap of the target
// table belong to the store package.
package engine
