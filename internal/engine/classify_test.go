package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var byName = []string{"name"}

func TestClassify_FourCases(t *testing.T) {
	target := targetEntries(t, byName,
		active(person(1, "Alice"), t1),   // still in source
		closed(person(2, "Bob"), t1, t2), // history
		active(person(3, "Carol"), t1),   // gone from source
	)
	source := sourceEntries(t, byName,
		person(1, "Alice"),
		person(4, "Dave"),
	)

	c, err := Classify(source, target)
	require.NoError(t, err)

	require.Len(t, c.UnchangedActive, 1)
	assert.Equal(t, 0, c.UnchangedActive[0].Index)
	require.Len(t, c.UnchangedInactive, 1)
	assert.Equal(t, 1, c.UnchangedInactive[0].Index)
	require.Len(t, c.Ended, 1)
	assert.Equal(t, 2, c.Ended[0].Index)
	require.Len(t, c.New, 1)
	assert.Equal(t, person(4, "Dave"), c.New[0].Row)
	assert.Zero(t, c.Reopened)
}

func TestClassify_EmptyInputs(t *testing.T) {
	c, err := Classify(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, c.UnchangedActive)
	assert.Empty(t, c.UnchangedInactive)
	assert.Empty(t, c.Ended)
	assert.Empty(t, c.New)
}

func TestClassify_ReturningStateOpensSecondVersion(t *testing.T) {
	// Alice was closed; the source shows that state again. The closed row is
	// history and stays closed; the source row becomes a fresh version.
	target := targetEntries(t, byName, closed(person(1, "Alice"), t1, t2))
	source := sourceEntries(t, byName, person(1, "Alice"))

	c, err := Classify(source, target)
	require.NoError(t, err)

	require.Len(t, c.UnchangedInactive, 1)
	require.Len(t, c.New, 1)
	assert.Equal(t, 1, c.Reopened)
	assert.Empty(t, c.UnchangedActive)
	assert.Empty(t, c.Ended)
}

func TestClassify_ActiveMatchSuppressesNew(t *testing.T) {
	target := targetEntries(t, byName,
		closed(person(1, "Alice"), t1, t2),
		active(person(1, "Alice"), t3),
	)
	source := sourceEntries(t, byName, person(1, "Alice"))

	c, err := Classify(source, target)
	require.NoError(t, err)
	assert.Len(t, c.UnchangedActive, 1)
	assert.Len(t, c.UnchangedInactive, 1)
	assert.Empty(t, c.New)
}

func TestClassify_DuplicateSourceFingerprint(t *testing.T) {
	source := sourceEntries(t, byName, person(1, "Alice"), person(2, "Alice"))

	_, err := Classify(source, nil)
	require.Error(t, err)
	assert.True(t, IsDuplicateFingerprintError(err))

	var re *ReconcileError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "source", re.Details["side"])
	assert.Equal(t, "0", re.Details["first"])
	assert.Equal(t, "1", re.Details["second"])
}

func TestClassify_DuplicateActiveTargetFingerprint(t *testing.T) {
	target := targetEntries(t, byName,
		active(person(1, "Alice"), t1),
		active(person(2, "Alice"), t2),
	)

	_, err := Classify(nil, target)
	require.Error(t, err)
	assert.True(t, IsDuplicateFingerprintError(err))
	assert.Contains(t, err.Error(), "target rows 0 and 1")
}

func TestClassify_DuplicateInactiveTargetFingerprintAllowed(t *testing.T) {
	target := targetEntries(t, byName,
		closed(person(1, "Alice"), t1, t2),
		closed(person(1, "Alice"), t3, t4),
	)

	c, err := Classify(nil, target)
	require.NoError(t, err)
	assert.Len(t, c.UnchangedInactive, 2)
}

func TestClassify_EveryTargetRowLandsInExactlyOneSet(t *testing.T) {
	target := targetEntries(t, byName,
		active(person(1, "A"), t1),
		closed(person(2, "B"), t1, t2),
		active(person(3, "C"), t1),
		closed(person(4, "D"), t1, t2),
		active(person(5, "E"), t2),
	)
	source := sourceEntries(t, byName, person(1, "A"), person(4, "D"), person(6, "F"))

	c, err := Classify(source, target)
	require.NoError(t, err)

	seen := make(map[int]int)
	for _, set := range [][]TargetEntry{c.UnchangedActive, c.UnchangedInactive, c.Ended} {
		for _, e := range set {
			seen[e.Index]++
		}
	}
	require.Len(t, seen, len(target))
	for idx, n := range seen {
		assert.Equal(t, 1, n, "target row %d", idx)
	}
}
