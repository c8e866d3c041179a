package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/scd2/internal/ir"
)

// marshalAttrs converts a row's attributes to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalAttrs(attrs ir.Row) (string, error) {
	if attrs == nil {
		attrs = ir.Row{}
	}
	data, err := ir.MarshalCanonical(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attrs: %w", err)
	}
	return string(data), nil
}

// unmarshalAttrs parses canonical JSON TEXT to a Row.
// Uses ir.IRObject.UnmarshalJSON which properly handles large integers via json.Number
// to avoid float64 precision loss for values > 2^53.
func unmarshalAttrs(data string) (ir.Row, error) {
	if data == "" || data == "{}" {
		return ir.Row{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal attrs: %w", err)
	}
	return obj, nil
}

// marshalSpec converts a DimensionSpec to JSON TEXT.
// Uses json.Encoder with HTML escaping disabled so descriptions stay readable.
func marshalSpec(spec ir.DimensionSpec) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(spec); err != nil {
		return "", fmt.Errorf("marshal spec: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalSpec(data string) (ir.DimensionSpec, error) {
	var spec ir.DimensionSpec
	if err := json.Unmarshal([]byte(data), &spec); err != nil {
		return ir.DimensionSpec{}, fmt.Errorf("unmarshal spec: %w", err)
	}
	return spec, nil
}

// Timestamps are stored as UTC microseconds since the Unix epoch. Both
// backends round-trip BIGINT exactly, which keeps AsOf comparisons numeric.
func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func toNullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*t), Valid: true}
}

func fromNullMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
