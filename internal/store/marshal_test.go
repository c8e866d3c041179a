package store

import (
	"reflect"
	"testing"
	"time"

	"github.com/roach88/scd2/internal/ir"
)

func TestMarshalAttrs_EmptyObject(t *testing.T) {
	for _, attrs := range []ir.Row{nil, {}} {
		json, err := marshalAttrs(attrs)
		if err != nil {
			t.Fatalf("marshalAttrs() failed: %v", err)
		}
		if json != "{}" {
			t.Errorf("marshalAttrs() = %q, want %q", json, "{}")
		}
	}
}

func TestMarshalAttrs_WithValues(t *testing.T) {
	attrs := ir.Row{
		"name":   ir.IRString("widget"),
		"stock":  ir.IRInt(42),
		"active": ir.IRBool(true),
		"note":   ir.IRNull{},
	}
	json, err := marshalAttrs(attrs)
	if err != nil {
		t.Fatalf("marshalAttrs() failed: %v", err)
	}

	// Canonical JSON has deterministic key ordering
	expected := `{"active":true,"name":"widget","note":null,"stock":42}`
	if json != expected {
		t.Errorf("marshalAttrs() = %q, want %q", json, expected)
	}
}

func TestUnmarshalAttrs_RoundTrip(t *testing.T) {
	attrs := ir.Row{
		"id":   ir.IRInt(9007199254740993), // 2^53 + 1
		"name": ir.IRString("Zoë"),
		"vip":  ir.IRBool(false),
		"note": ir.IRNull{},
	}
	json, err := marshalAttrs(attrs)
	if err != nil {
		t.Fatalf("marshalAttrs() failed: %v", err)
	}

	got, err := unmarshalAttrs(json)
	if err != nil {
		t.Fatalf("unmarshalAttrs() failed: %v", err)
	}
	if !reflect.DeepEqual(got, attrs) {
		t.Errorf("round trip = %v, want %v", got, attrs)
	}
}

func TestUnmarshalAttrs_Empty(t *testing.T) {
	for _, data := range []string{"", "{}"} {
		got, err := unmarshalAttrs(data)
		if err != nil {
			t.Fatalf("unmarshalAttrs(%q) failed: %v", data, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("unmarshalAttrs(%q) = %v, want empty row", data, got)
		}
	}
}

func TestUnmarshalAttrs_Invalid(t *testing.T) {
	if _, err := unmarshalAttrs("{not json"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestSpec_RoundTrip(t *testing.T) {
	spec := customersSpec()
	spec.Description = "Customers <primary>"

	data, err := marshalSpec(spec)
	if err != nil {
		t.Fatalf("marshalSpec() failed: %v", err)
	}
	got, err := unmarshalSpec(data)
	if err != nil {
		t.Fatalf("unmarshalSpec() failed: %v", err)
	}
	if !reflect.DeepEqual(got, spec) {
		t.Errorf("round trip = %+v, want %+v", got, spec)
	}
}

func TestMicros_RoundTrip(t *testing.T) {
	in := ts("2024-03-01T10:20:30.123456Z")
	if got := fromMicros(toMicros(in)); !got.Equal(in) || got.Location() != time.UTC {
		t.Errorf("fromMicros(toMicros(%v)) = %v", in, got)
	}

	if v := toNullMicros(nil); v.Valid {
		t.Error("toNullMicros(nil) should be NULL")
	}
	if got := fromNullMicros(toNullMicros(&in)); got == nil || !got.Equal(in) {
		t.Errorf("nullable round trip = %v, want %v", got, in)
	}
}
