package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/scd2/internal/engine"
	"github.com/roach88/scd2/internal/ir"
)

// ErrRunClosed is returned by RunTx methods after Commit or Rollback.
var ErrRunClosed = errors.New("run transaction already closed")

// RunTx is the write transaction of one reconciliation run.
//
// The transaction is opened before the target is read, so nothing can change
// the target between the read and the replacement. Readers outside the
// transaction keep seeing the previous table until Commit.
type RunTx struct {
	tx     *sql.Tx
	spec   ir.DimensionSpec
	fp     *engine.Fingerprinter
	closed bool
}

// BeginRun opens the run transaction for a registered dimension.
// On SQLite the transaction is IMMEDIATE and holds the write lock from here.
func (s *Store) BeginRun(ctx context.Context, dimension string) (*RunTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}

	spec, err := getDimension(ctx, tx, dimension)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("begin run: %w", err)
	}
	fp, err := engine.NewFingerprinter(spec.Tracked)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("begin run: %w", err)
	}

	return &RunTx{tx: tx, spec: spec, fp: fp}, nil
}

// Spec returns the definition the run was opened against.
func (r *RunTx) Spec() ir.DimensionSpec {
	return r.spec
}

// Target reads the dimension's current target table inside the transaction.
func (r *RunTx) Target(ctx context.Context) ([]ir.TargetRow, error) {
	if r.closed {
		return nil, ErrRunClosed
	}
	return readRows(ctx, r.tx, r.spec.Name, nil)
}

// LastRun returns the most recent committed run record, or nil if the
// dimension has never been reconciled.
func (r *RunTx) LastRun(ctx context.Context) (*ir.RunRecord, error) {
	if r.closed {
		return nil, ErrRunClosed
	}
	return lastRun(ctx, r.tx, r.spec.Name)
}

// CheckRunOrder returns the last committed run and fails with a
// TEMPORAL_ORDERING error when runTS precedes it. A run that changed nothing
// leaves no timestamp in the target table, so the run log is the only record
// of how far the dimension has been reconciled.
func (r *RunTx) CheckRunOrder(ctx context.Context, runTS time.Time) (*ir.RunRecord, error) {
	last, err := r.LastRun(ctx)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	if err := engine.CheckRunOrder(last.RunTS, runTS); err != nil {
		return last, fmt.Errorf("run %d: %w", last.Seq, err)
	}
	return last, nil
}

// Replace swaps the dimension's target table for rows and appends record to
// the run log. Nothing is visible to other readers until Commit.
//
// Rows are written sorted by (fingerprint, start_ts), so identical tables
// are stored identically. record.Dimension, Seq, SpecHash and TotalRows are
// filled in when left zero.
func (r *RunTx) Replace(ctx context.Context, rows []ir.TargetRow, record ir.RunRecord) (ir.RunRecord, error) {
	if r.closed {
		return ir.RunRecord{}, ErrRunClosed
	}

	sorted := make([]ir.TargetRow, len(rows))
	copy(sorted, rows)
	if err := engine.SortRows(r.spec.Tracked, sorted); err != nil {
		return ir.RunRecord{}, fmt.Errorf("replace: %w", err)
	}

	if _, err := r.tx.ExecContext(ctx,
		`DELETE FROM dimension_rows WHERE dimension = ?`, r.spec.Name,
	); err != nil {
		return ir.RunRecord{}, fmt.Errorf("replace: delete rows: %w", err)
	}

	stmt, err := r.tx.PrepareContext(ctx, `
		INSERT INTO dimension_rows
		(dimension, ordinal, fingerprint, attrs, start_ts, end_ts, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return ir.RunRecord{}, fmt.Errorf("replace: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range sorted {
		fp, err := r.fp.Compute(row.Attrs)
		if err != nil {
			return ir.RunRecord{}, fmt.Errorf("replace: row %d: %w", i, err)
		}
		attrs, err := marshalAttrs(row.Attrs)
		if err != nil {
			return ir.RunRecord{}, fmt.Errorf("replace: row %d: %w", i, err)
		}
		_, err = stmt.ExecContext(ctx,
			r.spec.Name,
			int64(i),
			fp,
			attrs,
			toMicros(row.StartTS),
			toNullMicros(row.EndTS),
			boolToInt(row.IsActive),
		)
		if err != nil {
			return ir.RunRecord{}, fmt.Errorf("replace: insert row %d: %w", i, err)
		}
	}

	record, err = r.completeRecord(ctx, record, len(sorted))
	if err != nil {
		return ir.RunRecord{}, err
	}
	if err := writeRun(ctx, r.tx, record); err != nil {
		return ir.RunRecord{}, fmt.Errorf("replace: %w", err)
	}
	return record, nil
}

func (r *RunTx) completeRecord(ctx context.Context, record ir.RunRecord, total int) (ir.RunRecord, error) {
	if record.ID == "" {
		return ir.RunRecord{}, fmt.Errorf("replace: run record has no ID")
	}
	record.Dimension = r.spec.Name
	record.RunTS = ir.NormalizeTime(record.RunTS)
	record.TotalRows = total
	if record.SpecHash == "" {
		hash, err := ir.SpecHash(r.spec)
		if err != nil {
			return ir.RunRecord{}, fmt.Errorf("replace: %w", err)
		}
		record.SpecHash = hash
	}
	if record.Seq == 0 {
		var maxSeq sql.NullInt64
		err := r.tx.QueryRowContext(ctx,
			`SELECT MAX(seq) FROM runs WHERE dimension = ?`, r.spec.Name,
		).Scan(&maxSeq)
		if err != nil {
			return ir.RunRecord{}, fmt.Errorf("replace: next seq: %w", err)
		}
		record.Seq = maxSeq.Int64 + 1
	}
	return record, nil
}

// Commit publishes the replacement.
func (r *RunTx) Commit() error {
	if r.closed {
		return ErrRunClosed
	}
	r.closed = true
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// Rollback discards the run. Safe to call after Commit, which makes it
// usable in a defer.
func (r *RunTx) Rollback() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback run: %w", err)
	}
	return nil
}

func writeRun(ctx context.Context, q querier, rec ir.RunRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO runs
		(id, dimension, seq, run_ts, spec_hash, source_rows, unchanged_active,
		 unchanged_inactive, ended, new_rows, total_rows)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Dimension,
		rec.Seq,
		toMicros(rec.RunTS),
		rec.SpecHash,
		int64(rec.SourceRows),
		int64(rec.UnchangedActive),
		int64(rec.UnchangedInactive),
		int64(rec.Ended),
		int64(rec.New),
		int64(rec.TotalRows),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}
