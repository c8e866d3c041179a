package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scd2/internal/ir"
)

func TestAnnotate_StampsTransitions(t *testing.T) {
	c := &Classification{
		Ended: targetEntries(t, byName, active(person(1, "Alice"), t1)),
		New:   sourceEntries(t, byName, person(1, "Alicia")),
	}

	a, err := Annotate(c, t2)
	require.NoError(t, err)

	require.Len(t, a.Ended, 1)
	assert.False(t, a.Ended[0].IsActive)
	require.NotNil(t, a.Ended[0].EndTS)
	assert.Equal(t, t2, *a.Ended[0].EndTS)
	assert.Equal(t, t1, a.Ended[0].StartTS)
	assert.Equal(t, person(1, "Alice"), a.Ended[0].Attrs)

	require.Len(t, a.New, 1)
	assert.True(t, a.New[0].IsActive)
	assert.Nil(t, a.New[0].EndTS)
	assert.Equal(t, t2, a.New[0].StartTS)
	assert.Equal(t, person(1, "Alicia"), a.New[0].Attrs)
}

func TestAnnotate_DoesNotModifyInputs(t *testing.T) {
	c := &Classification{
		Ended: targetEntries(t, byName, active(person(1, "Alice"), t1)),
		New:   sourceEntries(t, byName, person(2, "Bob")),
	}

	a, err := Annotate(c, t2)
	require.NoError(t, err)

	assert.True(t, c.Ended[0].Row.IsActive)
	assert.Nil(t, c.Ended[0].Row.EndTS)

	a.New[0].Attrs["name"] = ir.IRString("changed")
	assert.Equal(t, ir.IRString("Bob"), c.New[0].Row["name"])
}

func TestAnnotate_AllTransitionsShareRunTimestamp(t *testing.T) {
	c := &Classification{
		Ended: targetEntries(t, byName, active(person(1, "A"), t1), active(person(2, "B"), t1)),
		New:   sourceEntries(t, byName, person(3, "C"), person(4, "D")),
	}

	a, err := Annotate(c, t3)
	require.NoError(t, err)
	for _, r := range a.Ended {
		assert.Equal(t, t3, *r.EndTS)
	}
	for _, r := range a.New {
		assert.Equal(t, t3, r.StartTS)
	}
}

func TestCheckTemporalOrder(t *testing.T) {
	tests := []struct {
		name  string
		c     *Classification
		runTS time.Time
		ok    bool
	}{
		{
			name:  "after all history",
			c:     &Classification{UnchangedInactive: targetEntries(t, byName, closed(person(1, "A"), t1, t2))},
			runTS: t3,
			ok:    true,
		},
		{
			name:  "before an end_ts",
			c:     &Classification{UnchangedInactive: targetEntries(t, byName, closed(person(1, "A"), t1, t3))},
			runTS: t2,
			ok:    false,
		},
		{
			name:  "before a start_ts",
			c:     &Classification{UnchangedActive: targetEntries(t, byName, active(person(1, "A"), t3))},
			runTS: t2,
			ok:    false,
		},
		{
			name:  "equal to latest with nothing to close",
			c:     &Classification{UnchangedActive: targetEntries(t, byName, active(person(1, "A"), t2))},
			runTS: t2,
			ok:    true,
		},
		{
			name:  "closing a row opened at the same instant",
			c:     &Classification{Ended: targetEntries(t, byName, active(person(1, "A"), t2))},
			runTS: t2,
			ok:    false,
		},
		{
			name: "equal to latest closing an older row",
			c: &Classification{
				Ended:           targetEntries(t, byName, active(person(1, "A"), t1)),
				UnchangedActive: targetEntries(t, byName, active(person(2, "B"), t2)),
			},
			runTS: t2,
			ok:    false,
		},
		{
			name: "after latest closing an older row",
			c: &Classification{
				Ended:           targetEntries(t, byName, active(person(1, "A"), t1)),
				UnchangedActive: targetEntries(t, byName, active(person(2, "B"), t2)),
			},
			runTS: t3,
			ok:    true,
		},
		{
			name:  "empty target",
			c:     &Classification{},
			runTS: t1,
			ok:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTemporalOrder(tt.c, tt.runTS)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsTemporalOrderingError(err))
		})
	}
}

func TestCheckRunOrder(t *testing.T) {
	tests := []struct {
		name     string
		previous time.Time
		runTS    time.Time
		ok       bool
	}{
		{"no previous run", time.Time{}, t1, true},
		{"after previous", t1, t2, true},
		{"equal to previous", t2, t2, true},
		{"equal after normalization", t2, t2.Add(500 * time.Nanosecond), true},
		{"before previous", t3, t2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRunOrder(tt.previous, tt.runTS)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsTemporalOrderingError(err))

			var re *ReconcileError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.previous.Format(time.RFC3339Nano), re.Details["previous"])
		})
	}
}

func TestAnnotate_RejectsTemporalViolation(t *testing.T) {
	c := &Classification{
		UnchangedInactive: targetEntries(t, byName, closed(person(1, "A"), t1, t3)),
		New:               sourceEntries(t, byName, person(2, "B")),
	}

	a, err := Annotate(c, t2)
	require.Error(t, err)
	assert.Nil(t, a)
	assert.True(t, IsTemporalOrderingError(err))

	var re *ReconcileError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, t3.Format(time.RFC3339Nano), re.Details["latest"])
}

func TestAssemble_KeepsTargetPositionsAndAppendsNew(t *testing.T) {
	target := targetEntries(t, byName,
		closed(person(1, "Old"), t1, t2),
		active(person(2, "Bob"), t1),
		active(person(3, "Carol"), t1),
	)
	source := sourceEntries(t, byName, person(3, "Carol"), person(4, "Dave"))

	c, err := Classify(source, target)
	require.NoError(t, err)
	a, err := Annotate(c, t3)
	require.NoError(t, err)

	rows := Assemble(c, a)
	require.Len(t, rows, 4)
	assert.Equal(t, person(1, "Old"), rows[0].Attrs)
	assert.Equal(t, person(2, "Bob"), rows[1].Attrs)
	assert.False(t, rows[1].IsActive, "Bob left the source")
	assert.Equal(t, person(3, "Carol"), rows[2].Attrs)
	assert.True(t, rows[2].IsActive)
	assert.Equal(t, person(4, "Dave"), rows[3].Attrs)
	assert.Equal(t, t3, rows[3].StartTS)

	for _, r := range rows {
		_, has := r.Attrs[ir.ColumnFingerprint]
		assert.False(t, has, "fingerprint is never part of the output")
	}
}

func TestSortRows(t *testing.T) {
	rows := []ir.TargetRow{
		active(person(2, "Bob"), t2),
		active(person(1, "Alice"), t3),
		closed(person(1, "Alice"), t1, t2),
	}

	require.NoError(t, SortRows(byName, rows))

	fpAlice := ir.MustFingerprint(ir.IRString("Alice"))
	fpBob := ir.MustFingerprint(ir.IRString("Bob"))
	if fpAlice < fpBob {
		assert.Equal(t, t1, rows[0].StartTS)
		assert.Equal(t, t3, rows[1].StartTS)
		assert.Equal(t, ir.IRString("Bob"), rows[2].Attrs["name"])
	} else {
		assert.Equal(t, ir.IRString("Bob"), rows[0].Attrs["name"])
		assert.Equal(t, t1, rows[1].StartTS)
		assert.Equal(t, t3, rows[2].StartTS)
	}
}

func TestSortRows_RejectsBadTracked(t *testing.T) {
	err := SortRows(nil, []ir.TargetRow{active(person(1, "A"), t1)})
	assert.True(t, IsConfigurationError(err))
}
