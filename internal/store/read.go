package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/scd2/internal/ir"
)

// ReadTarget returns the full target table of a dimension, every version
// included. Rows come back in storage order: ORDER BY ordinal ASC.
//
// Returns an empty slice (not nil) if the dimension holds no rows yet.
func (s *Store) ReadTarget(ctx context.Context, dimension string) ([]ir.TargetRow, error) {
	if _, err := getDimension(ctx, s.db, dimension); err != nil {
		return nil, err
	}
	return readRows(ctx, s.db, dimension, nil)
}

// AsOf returns the versions that were current at ts: those with
// start_ts <= ts and end_ts either null or after ts.
func (s *Store) AsOf(ctx context.Context, dimension string, ts time.Time) ([]ir.TargetRow, error) {
	if _, err := getDimension(ctx, s.db, dimension); err != nil {
		return nil, err
	}
	ts = ir.NormalizeTime(ts)
	return readRows(ctx, s.db, dimension, &ts)
}

func readRows(ctx context.Context, q querier, dimension string, asOf *time.Time) ([]ir.TargetRow, error) {
	query := `
		SELECT attrs, start_ts, end_ts, is_active
		FROM dimension_rows
		WHERE dimension = ?
	`
	args := []any{dimension}
	if asOf != nil {
		query += ` AND start_ts <= ? AND (end_ts IS NULL OR end_ts > ?)`
		us := toMicros(*asOf)
		args = append(args, us, us)
	}
	query += ` ORDER BY ordinal ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	out := []ir.TargetRow{}
	for rows.Next() {
		row, err := scanTargetRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func scanTargetRow(rows *sql.Rows) (ir.TargetRow, error) {
	var (
		attrsJSON string
		start     int64
		end       sql.NullInt64
		active    int64
	)
	if err := rows.Scan(&attrsJSON, &start, &end, &active); err != nil {
		return ir.TargetRow{}, fmt.Errorf("scan row: %w", err)
	}
	attrs, err := unmarshalAttrs(attrsJSON)
	if err != nil {
		return ir.TargetRow{}, err
	}
	return ir.TargetRow{
		Attrs:    attrs,
		StartTS:  fromMicros(start),
		EndTS:    fromNullMicros(end),
		IsActive: active != 0,
	}, nil
}

// ListRuns returns the run log of a dimension, oldest first:
// ORDER BY seq ASC.
func (s *Store) ListRuns(ctx context.Context, dimension string) ([]ir.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE dimension = ?
		ORDER BY seq ASC
	`, dimension)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LastRun returns the latest committed run of a dimension, or nil if none.
func (s *Store) LastRun(ctx context.Context, dimension string) (*ir.RunRecord, error) {
	return lastRun(ctx, s.db, dimension)
}

const runColumns = `id, dimension, seq, run_ts, spec_hash, source_rows, unchanged_active,
		unchanged_inactive, ended, new_rows, total_rows`

func lastRun(ctx context.Context, q querier, dimension string) (*ir.RunRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE dimension = ?
		ORDER BY seq DESC
		LIMIT 1
	`, dimension)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (ir.RunRecord, error) {
	var (
		rec        ir.RunRecord
		runTS      int64
		source     int64
		unchActive int64
		unchClosed int64
		ended      int64
		newRows    int64
		total      int64
	)
	err := s.Scan(
		&rec.ID, &rec.Dimension, &rec.Seq, &runTS, &rec.SpecHash,
		&source, &unchActive, &unchClosed, &ended, &newRows, &total,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.RunRecord{}, err
	}
	if err != nil {
		return ir.RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	rec.RunTS = fromMicros(runTS)
	rec.SourceRows = int(source)
	rec.UnchangedActive = int(unchActive)
	rec.UnchangedInactive = int(unchClosed)
	rec.Ended = int(ended)
	rec.New = int(newRows)
	rec.TotalRows = int(total)
	return rec, nil
}
