// Package store provides durable storage for SCD2 target tables.
//
// The store holds three things:
//   - Dimensions: registered definitions, with the hash of each
//   - Dimension rows: the target table of every dimension
//   - Runs: an append-only log of committed reconciliation runs
//
// # Backends
//
// SQLite (github.com/mattn/go-sqlite3) is the default. A DSN of the form
// duckdb://path selects DuckDB (github.com/duckdb/duckdb-go/v2). Both use the
// same schema and queries.
//
// # Run Transactions
//
// A run reads the target, reconciles, and replaces the target inside one
// transaction opened by BeginRun. A failed or abandoned run leaves the
// previous table in place. On SQLite the transaction is IMMEDIATE, so two
// runs against the same database serialize instead of racing.
//
// # Deterministic Storage
//
//   - Rows are written sorted by (fingerprint, start_ts) and read back
//     ORDER BY ordinal ASC
//   - Attributes are stored as RFC 8785 canonical JSON
//   - Timestamps are UTC microseconds since the Unix epoch
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
