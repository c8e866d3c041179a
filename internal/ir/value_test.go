package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNull, KindOf(nil))
	assert.Equal(t, KindNull, KindOf(IRNull{}))
	assert.Equal(t, KindString, KindOf(IRString("x")))
	assert.Equal(t, KindInt, KindOf(IRInt(1)))
	assert.Equal(t, KindBool, KindOf(IRBool(true)))
	assert.Equal(t, KindArray, KindOf(IRArray{}))
	assert.Equal(t, KindObject, KindOf(IRObject{}))
}

func TestFromAny(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name     string
		input    any
		expected IRValue
	}{
		{"nil", nil, IRNull{}},
		{"string", "Alice", IRString("Alice")},
		{"bytes", []byte("raw"), IRString("raw")},
		{"bool", true, IRBool(true)},
		{"int", 7, IRInt(7)},
		{"int32", int32(-3), IRInt(-3)},
		{"uint16", uint16(9), IRInt(9)},
		{"integral float", float64(42), IRInt(42)},
		{"json number", json.Number("12"), IRInt(12)},
		{"time", ts, IRString("2024-03-01T11:00:00Z")},
		{"ir value passthrough", IRString("kept"), IRString("kept")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromAny(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestFromAnyRejectsFractionalFloats(t *testing.T) {
	_, err := FromAny(1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")

	_, err = FromAny(json.Number("1.5"))
	require.Error(t, err)
}

func TestFromAnyRejectsOverflow(t *testing.T) {
	_, err := FromAny(uint64(1 << 63))
	require.Error(t, err)
}

func TestFromAnyRejectsUnsupported(t *testing.T) {
	_, err := FromAny([]int{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestRowFromMap(t *testing.T) {
	row, err := RowFromMap(map[string]any{"id": 1, "name": "Alice", "email": nil})
	require.NoError(t, err)
	assert.Equal(t, Row{"id": IRInt(1), "name": IRString("Alice"), "email": IRNull{}}, row)

	_, err = RowFromMap(map[string]any{"price": 9.99})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "price"`)
}

func TestToAnyRoundTrip(t *testing.T) {
	row := Row{"id": IRInt(1), "name": IRString("Alice"), "vip": IRBool(false), "email": IRNull{}}

	plain := ToAny(row).(map[string]any)
	back, err := RowFromMap(plain)
	require.NoError(t, err)
	assert.Equal(t, row, back)
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	row := Row{"id": IRInt(9007199254740993), "name": IRString("Zoë"), "email": IRNull{}, "vip": IRBool(true)}

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"email":null,"id":9007199254740993,"name":"Zoë","vip":true}`, string(data))

	var back IRObject
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, row, back, "large integers must not lose precision")
}

func TestIRObjectUnmarshalRejectsFloats(t *testing.T) {
	var obj IRObject
	err := json.Unmarshal([]byte(`{"price":1.25}`), &obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestIRObjectClone(t *testing.T) {
	row := Row{"a": IRInt(1)}
	clone := row.Clone()
	clone["a"] = IRInt(2)

	assert.Equal(t, IRInt(1), row["a"])
	assert.Nil(t, IRObject(nil).Clone())
}

func TestColumnAccepts(t *testing.T) {
	name := Column{Name: "name", Type: TypeString}
	email := Column{Name: "email", Type: TypeString, Nullable: true}

	assert.True(t, name.Accepts(IRString("x")))
	assert.False(t, name.Accepts(IRInt(1)))
	assert.False(t, name.Accepts(IRNull{}))
	assert.True(t, email.Accepts(IRNull{}))
	assert.True(t, email.Accepts(nil))
}

func TestTargetRowClone(t *testing.T) {
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	row := TargetRow{Attrs: Row{"a": IRInt(1)}, StartTS: end.Add(-time.Hour), EndTS: &end}

	clone := row.Clone()
	*clone.EndTS = end.Add(time.Hour)
	clone.Attrs["a"] = IRInt(2)

	assert.Equal(t, end, *row.EndTS)
	assert.Equal(t, IRInt(1), row.Attrs["a"])
}

func TestNormalizeTime(t *testing.T) {
	in := time.Date(2024, 1, 1, 10, 0, 0, 123456789, time.FixedZone("X", -5*3600))
	out := NormalizeTime(in)

	assert.Equal(t, time.UTC, out.Location())
	assert.Equal(t, 123456000, out.Nanosecond())
	assert.True(t, out.Equal(in.Truncate(time.Microsecond)))
}
