// Package harness provides scenario testing for SCD2 reconciliation.
//
// A scenario applies a sequence of source snapshots to one dimension and
// validates the resulting target table. Every run goes through a fresh
// in-memory SQLite store and the real reconciler, in the same register,
// begin, reconcile, replace and commit sequence the reconcile command uses.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: name_change
//	description: "What this scenario validates"
//	dimension:
//	  columns:
//	    - { name: id, type: int }
//	    - { name: name, type: string }
//	  tracked: [name]
//	runs:
//	  - at: "2024-01-01T00:00:00Z"
//	    source:
//	      - { id: 1, name: Alice }
//	  - at: "2024-03-01T00:00:00Z"
//	    source:
//	      - { id: 1, name: Alice }
//	      - { id: 1, name: Alice }
//	    expect_error: DUPLICATE_FINGERPRINT
//	assertions:
//	  - type: row_count
//	    count: 1
//	  - type: row
//	    where: { name: Alice }
//	    active: true
//	    start_ts: "2024-01-01T00:00:00Z"
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - row_count: Verifies the number of rows in the final table
//   - active_count: Verifies the number of active rows
//   - run_count: Verifies the number of committed runs
//   - row: Verifies exactly one row matches attributes and its window
//   - invariants: Verifies the final table passes engine.CheckInvariants
//   - idempotent: Verifies that repeating the last successful run is a no-op
//
// Independent of assertions, every committed run is checked with
// engine.CheckTransition against the table it replaced.
//
// # Deterministic Testing
//
// Runs without an explicit at take their timestamp from a step clock
// starting at DefaultStart. Run IDs are sequential per scenario. Together
// with the store's (fingerprint, start_ts) row order this makes the final
// table byte-identical across executions, which RunWithGolden relies on.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/scenario_c.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
