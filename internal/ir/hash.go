package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainFingerprint = "scd2/fingerprint/v1"
	DomainDimension   = "scd2/dimension/v1"
)

// FingerprintLen is the length of a hex-encoded fingerprint (SHA-256).
const FingerprintLen = 64

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // Null separator - CRITICAL
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes the identity token of a row from its tracked values.
//
// values must be given in the configured tracked-column order. The values
// are encoded as one canonical JSON array, so every element is
// self-delimiting and no separator can collide with data.
func Fingerprint(values []IRValue) (string, error) {
	canonical, err := MarshalCanonical(IRArray(values))
	if err != nil {
		return "", fmt.Errorf("Fingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFingerprint, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(values ...IRValue) string {
	fp, err := Fingerprint(values)
	if err != nil {
		panic(err)
	}
	return fp
}

// SpecHash computes a content hash of a dimension definition.
// Recorded with every run so history can be tied to the definition that
// produced it.
func SpecHash(spec DimensionSpec) (string, error) {
	columns := make(IRArray, len(spec.Columns))
	for i, c := range spec.Columns {
		columns[i] = IRObject{
			"name":     IRString(c.Name),
			"type":     IRString(c.Type),
			"nullable": IRBool(c.Nullable),
		}
	}
	tracked := make(IRArray, len(spec.Tracked))
	for i, name := range spec.Tracked {
		tracked[i] = IRString(name)
	}

	canonical, err := MarshalCanonical(IRObject{
		"name":    IRString(spec.Name),
		"columns": columns,
		"tracked": tracked,
	})
	if err != nil {
		return "", fmt.Errorf("SpecHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDimension, canonical), nil
}
