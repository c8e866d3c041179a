// Package ir provides the canonical row representation for SCD2 dimensions.
//
// This package contains value and record types plus the canonical encoding
// used for fingerprints. All other internal packages import ir; ir imports
// nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64, or strings for decimals
//   - Column values are scalars: IRNull, IRString, IRInt, IRBool
//   - Fingerprints are derived from canonical JSON, never from map iteration order
//   - All timestamps are UTC with microsecond precision
package ir
