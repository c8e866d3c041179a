package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
// 2 - Added index on runs(dimension, run_ts) for history lookups
const currentSchemaVersion = 2

// DuckDBScheme prefixes DSNs that select the DuckDB backend.
const DuckDBScheme = "duckdb://"

// Backend names the database engine behind a Store.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendDuckDB Backend = "duckdb"
)

// ErrDimensionNotFound is returned when a dimension has not been registered.
var ErrDimensionNotFound = errors.New("dimension not found")

// Store provides durable storage for dimension target tables and their run log.
type Store struct {
	db      *sql.DB
	backend Backend
}

// querier is satisfied by both *sql.DB and *sql.Tx so reads can run inside
// or outside a run transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates or opens a store.
//
// A DSN of the form duckdb://path opens a DuckDB database (an empty path is
// in-memory). Anything else is a SQLite path, ":memory:" included.
//
// SQLite is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//   - IMMEDIATE transactions, so a run takes the write lock when it begins
//
// This function is idempotent - safe to call multiple times.
func Open(dsn string) (*Store, error) {
	backend, driver, source := parseDSN(dsn)

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: a single writer per database, and in-memory
	// databases live exactly as long as their connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if backend == BackendSQLite {
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, backend: backend}, nil
}

func parseDSN(dsn string) (Backend, string, string) {
	if path, ok := strings.CutPrefix(dsn, DuckDBScheme); ok {
		return BackendDuckDB, "duckdb", path
	}
	if strings.Contains(dsn, "?") {
		return BackendSQLite, "sqlite3", dsn + "&_txlock=immediate"
	}
	return BackendSQLite, "sqlite3", dsn + "?_txlock=immediate"
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Backend reports which database engine the store runs on.
func (s *Store) Backend() Backend {
	return s.backend
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// Statements are executed one at a time so both drivers accept them.
func applySchema(db *sql.DB) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func splitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// runMigrations applies incremental schema migrations based on the version
// recorded in schema_meta.
func runMigrations(db *sql.DB) error {
	version, err := schemaVersion(db)
	if err != nil {
		return err
	}

	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	_, err = db.Exec(`
		INSERT INTO schema_meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, strconv.Itoa(currentSchemaVersion))
	if err != nil {
		return fmt.Errorf("set schema_version: %w", err)
	}

	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get schema_version: %w", err)
	}
	version, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse schema_version %q: %w", value, err)
	}
	return version, nil
}

// migrateToV2 adds the run history index for databases created at v1.
func migrateToV2(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_runs_dimension_ts
		ON runs(dimension, run_ts)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
