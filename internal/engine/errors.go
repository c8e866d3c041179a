package engine

import (
	"errors"
	"fmt"
)

// ReconcileError represents an error detected during a reconciliation run.
//
// Every ReconcileError aborts the run before any output is assembled, so a
// caller that sees one can rely on the target table being untouched.
type ReconcileError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Dimension names the dimension being reconciled, when known.
	Dimension string

	// Fingerprint identifies the affected entity version, when known.
	Fingerprint string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes reconciliation errors.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates empty or invalid tracked columns, a
	// missing run timestamp, or an otherwise unusable dimension definition.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeSchemaMismatch indicates source and target rows disagree on
	// the tracked-column schema.
	ErrCodeSchemaMismatch ErrorCode = "SCHEMA_MISMATCH"

	// ErrCodeDuplicateFingerprint indicates two source rows, or two active
	// target rows, share a fingerprint.
	ErrCodeDuplicateFingerprint ErrorCode = "DUPLICATE_FINGERPRINT"

	// ErrCodeTemporalOrdering indicates the run timestamp does not come
	// after the history already recorded in the target.
	ErrCodeTemporalOrdering ErrorCode = "TEMPORAL_ORDERING"

	// ErrCodeUnknown is reported by CodeOf for errors that are not
	// ReconcileErrors.
	ErrCodeUnknown ErrorCode = "UNKNOWN"
)

// Sentinels for errors.Is. They match any ReconcileError with the same Code.
var (
	ErrConfiguration        = &ReconcileError{Code: ErrCodeConfiguration}
	ErrSchemaMismatch       = &ReconcileError{Code: ErrCodeSchemaMismatch}
	ErrDuplicateFingerprint = &ReconcileError{Code: ErrCodeDuplicateFingerprint}
	ErrTemporalOrdering     = &ReconcileError{Code: ErrCodeTemporalOrdering}
)

// Error implements the error interface.
func (e *ReconcileError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "reconciliation failed"
	}
	switch {
	case e.Dimension != "" && e.Fingerprint != "":
		return fmt.Sprintf("%s: %s (dimension=%s, fingerprint=%s)", e.Code, msg, e.Dimension, shortFingerprint(e.Fingerprint))
	case e.Dimension != "":
		return fmt.Sprintf("%s: %s (dimension=%s)", e.Code, msg, e.Dimension)
	case e.Fingerprint != "":
		return fmt.Sprintf("%s: %s (fingerprint=%s)", e.Code, msg, shortFingerprint(e.Fingerprint))
	default:
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
}

// Is reports whether target is a ReconcileError with the same Code.
func (e *ReconcileError) Is(target error) bool {
	var re *ReconcileError
	if !errors.As(target, &re) {
		return false
	}
	return re.Code == e.Code
}

// IsConfigurationError returns true if err is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigurationError(err error) bool {
	return hasCode(err, ErrCodeConfiguration)
}

// IsSchemaMismatchError returns true if err is a schema mismatch error.
func IsSchemaMismatchError(err error) bool {
	return hasCode(err, ErrCodeSchemaMismatch)
}

// IsDuplicateFingerprintError returns true if err is a duplicate fingerprint error.
func IsDuplicateFingerprintError(err error) bool {
	return hasCode(err, ErrCodeDuplicateFingerprint)
}

// IsTemporalOrderingError returns true if err is a temporal ordering error.
func IsTemporalOrderingError(err error) bool {
	return hasCode(err, ErrCodeTemporalOrdering)
}

// CodeOf returns the ErrorCode carried by err, or ErrCodeUnknown.
func CodeOf(err error) ErrorCode {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re.Code
	}
	return ErrCodeUnknown
}

func hasCode(err error, code ErrorCode) bool {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewConfigurationError creates a ReconcileError for invalid configuration.
func NewConfigurationError(format string, args ...any) *ReconcileError {
	return &ReconcileError{
		Code:    ErrCodeConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewSchemaMismatchError creates a ReconcileError for a tracked-column
// schema disagreement.
func NewSchemaMismatchError(column, format string, args ...any) *ReconcileError {
	e := &ReconcileError{
		Code:    ErrCodeSchemaMismatch,
		Message: fmt.Sprintf(format, args...),
	}
	if column != "" {
		e.Details = map[string]string{"column": column}
	}
	return e
}

// NewDuplicateFingerprintError creates a ReconcileError for two rows that
// share a fingerprint on the same side of the reconciliation.
func NewDuplicateFingerprintError(side, fingerprint string, first, second int) *ReconcileError {
	return &ReconcileError{
		Code:        ErrCodeDuplicateFingerprint,
		Message:     fmt.Sprintf("%s rows %d and %d share a fingerprint", side, first, second),
		Fingerprint: fingerprint,
		Details: map[string]string{
			"side":   side,
			"first":  fmt.Sprintf("%d", first),
			"second": fmt.Sprintf("%d", second),
		},
	}
}

// NewTemporalOrderingError creates a ReconcileError for a run timestamp
// that would produce overlapping or empty validity windows.
func NewTemporalOrderingError(fingerprint, message string, details map[string]string) *ReconcileError {
	return &ReconcileError{
		Code:        ErrCodeTemporalOrdering,
		Message:     message,
		Fingerprint: fingerprint,
		Details:     details,
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
