package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/scd2/internal/engine"
	"github.com/roach88/scd2/internal/ir"
)

// RegisterDimension inserts or updates a dimension definition.
//
// Changing the tracked columns of a dimension that already holds rows is
// refused with a configuration error: stored fingerprints would silently
// change meaning. Other edits (description, passthrough columns) are allowed.
//
// Returns true when the stored definition changed.
func (s *Store) RegisterDimension(ctx context.Context, spec ir.DimensionSpec) (bool, error) {
	if err := engine.ValidateSpec(spec); err != nil {
		return false, fmt.Errorf("register dimension: %w", err)
	}

	hash, err := ir.SpecHash(spec)
	if err != nil {
		return false, fmt.Errorf("register dimension: %w", err)
	}
	specJSON, err := marshalSpec(spec)
	if err != nil {
		return false, fmt.Errorf("register dimension: %w", err)
	}
	tracked := strings.Join(spec.Tracked, ",")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("register dimension: begin: %w", err)
	}
	defer tx.Rollback()

	var storedHash, storedTracked string
	err = tx.QueryRowContext(ctx,
		`SELECT spec_hash, tracked FROM dimensions WHERE name = ?`, spec.Name,
	).Scan(&storedHash, &storedTracked)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("register dimension: %w", err)
	case storedHash == hash:
		return false, nil
	case storedTracked != tracked:
		n, err := countRows(ctx, tx, spec.Name)
		if err != nil {
			return false, fmt.Errorf("register dimension: %w", err)
		}
		if n > 0 {
			return false, engine.NewConfigurationError(
				"dimension %q: tracked columns changed from [%s] to [%s] but %d rows are stored",
				spec.Name, storedTracked, tracked, n)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dimensions (name, spec_hash, tracked, spec)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			spec_hash = excluded.spec_hash,
			tracked = excluded.tracked,
			spec = excluded.spec
	`, spec.Name, hash, tracked, specJSON)
	if err != nil {
		return false, fmt.Errorf("register dimension: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("register dimension: commit: %w", err)
	}
	return true, nil
}

// GetDimension returns a registered dimension definition.
// Returns an error wrapping ErrDimensionNotFound if it does not exist.
func (s *Store) GetDimension(ctx context.Context, name string) (ir.DimensionSpec, error) {
	return getDimension(ctx, s.db, name)
}

func getDimension(ctx context.Context, q querier, name string) (ir.DimensionSpec, error) {
	var specJSON string
	err := q.QueryRowContext(ctx, `SELECT spec FROM dimensions WHERE name = ?`, name).Scan(&specJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.DimensionSpec{}, fmt.Errorf("%w: %q", ErrDimensionNotFound, name)
	}
	if err != nil {
		return ir.DimensionSpec{}, fmt.Errorf("get dimension %q: %w", name, err)
	}
	return unmarshalSpec(specJSON)
}

// ListDimensions returns every registered dimension ordered by name.
func (s *Store) ListDimensions(ctx context.Context) ([]ir.DimensionSpec, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT spec FROM dimensions ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query dimensions: %w", err)
	}
	defer rows.Close()

	specs := []ir.DimensionSpec{}
	for rows.Next() {
		var specJSON string
		if err := rows.Scan(&specJSON); err != nil {
			return nil, fmt.Errorf("scan dimension: %w", err)
		}
		spec, err := unmarshalSpec(specJSON)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dimensions: %w", err)
	}

	// Backends may collate differently; keep byte order.
	slices.SortFunc(specs, func(a, b ir.DimensionSpec) int { return strings.Compare(a.Name, b.Name) })
	return specs, nil
}

func countRows(ctx context.Context, q querier, dimension string) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dimension_rows WHERE dimension = ?`, dimension,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}
