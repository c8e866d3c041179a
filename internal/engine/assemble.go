package engine

import (
	"cmp"
	"slices"

	"github.com/roach88/scd2/internal/ir"
)

// Assemble unions the classified and annotated sets into the replacement
// target table.
//
// Target rows keep their original positions, with Ended rows replaced by
// their closed copies. New rows follow in source order. The fingerprint is
// not part of the output.
func Assemble(c *Classification, a *Annotation) []ir.TargetRow {
	type placed struct {
		index int
		row   ir.TargetRow
	}
	carried := make([]placed, 0, len(c.UnchangedActive)+len(c.UnchangedInactive)+len(c.Ended))
	for _, t := range c.UnchangedActive {
		carried = append(carried, placed{t.Index, t.Row.Clone()})
	}
	for _, t := range c.UnchangedInactive {
		carried = append(carried, placed{t.Index, t.Row.Clone()})
	}
	for i, t := range c.Ended {
		carried = append(carried, placed{t.Index, a.Ended[i]})
	}
	slices.SortFunc(carried, func(x, y placed) int { return cmp.Compare(x.index, y.index) })

	out := make([]ir.TargetRow, 0, len(carried)+len(a.New))
	for _, p := range carried {
		out = append(out, p.row)
	}
	return append(out, a.New...)
}

// SortRows orders rows by (fingerprint, start_ts), the stable key for
// deterministic output.
func SortRows(tracked []string, rows []ir.TargetRow) error {
	f, err := NewFingerprinter(tracked)
	if err != nil {
		return err
	}
	fps := make([]string, len(rows))
	for i, r := range rows {
		if fps[i], err = f.Compute(r.Attrs); err != nil {
			return err
		}
	}

	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		if c := cmp.Compare(fps[a], fps[b]); c != 0 {
			return c
		}
		return rows[a].StartTS.Compare(rows[b].StartTS)
	})

	sorted := make([]ir.TargetRow, len(rows))
	for i, j := range idx {
		sorted[i] = rows[j]
	}
	copy(rows, sorted)
	return nil
}
