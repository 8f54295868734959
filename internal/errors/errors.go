// Package errors defines the storage error taxonomy for rpgtop.
//
// Every failure surfaced by the storage layer belongs to one of five
// categories: format, truncation, integrity, codec, or bounds. Callers
// branch on the category with the Is* helpers; the concrete sentinel
// carries the precise cause for diagnostics.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Format errors: the file cannot be this format. Always fatal for the
	// file, never coerced into a softer category.
	ErrTooShort           = errors.New("file too short for header")
	ErrBadMagic           = errors.New("bad magic")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrMisaligned         = errors.New("payload length is not a whole number of records")

	// Truncation: declared length exceeds the remaining bytes. Expected at a
	// WAL tail after a crash; fatal anywhere else.
	ErrTruncated = errors.New("truncated data")

	// Integrity: stored checksum does not match the payload, or a
	// structural invariant of the format does not hold (index out of
	// order, overlapping ranges). Torn-write treatment at a WAL tail;
	// fatal anywhere else.
	ErrChecksum  = errors.New("checksum mismatch")
	ErrInvariant = errors.New("structural invariant violated")

	// Entry size: a declared or submitted payload exceeds the configured
	// bound. On append it is a caller rejection; on recovery an oversized
	// declared length is never trusted for an allocation.
	ErrEntryTooLarge = errors.New("entry exceeds maximum size")

	// Codec errors: a well-framed region fails to decompress or decode.
	// Fatal only for that one snapshot or interner read.
	ErrDecompress = errors.New("decompression failed")
	ErrDecode     = errors.New("decode failed")

	// Bounds: caller asked for an index or offset that does not exist.
	ErrOutOfRange = errors.New("index out of range")

	// State errors for the owning pipeline.
	ErrClosed         = errors.New("already closed")
	ErrAlreadyRunning = errors.New("already running")
	ErrDraining       = errors.New("drain already in progress")
	ErrBufferFull     = errors.New("buffer full")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Is is a convenience wrapper for errors.Is.
var Is = errors.Is

// As is a convenience wrapper for errors.As.
var As = errors.As

// New is a convenience wrapper for errors.New.
var New = errors.New

// ============================================================================
// Category helpers
// ============================================================================

// IsFormat returns true if err marks a file that cannot be this format.
func IsFormat(err error) bool {
	return errors.Is(err, ErrTooShort) ||
		errors.Is(err, ErrBadMagic) ||
		errors.Is(err, ErrUnsupportedVersion) ||
		errors.Is(err, ErrMisaligned)
}

// IsTruncation returns true if err marks data cut short of its declared length.
func IsTruncation(err error) bool {
	return errors.Is(err, ErrTruncated)
}

// IsIntegrity returns true if err marks a checksum mismatch or a violated
// structural invariant.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrChecksum) ||
		errors.Is(err, ErrInvariant)
}

// IsCodec returns true if err marks a decompression or decode failure on an
// otherwise well-framed region.
func IsCodec(err error) bool {
	return errors.Is(err, ErrDecompress) ||
		errors.Is(err, ErrDecode)
}

// IsBounds returns true if err marks a caller range error.
func IsBounds(err error) bool {
	return errors.Is(err, ErrOutOfRange)
}

// IsCorruption returns true for any category that renders stored history
// unusable: format, integrity, and codec failures. The registry maps these
// to "corrupt history file, skipped" and continues; truncation is excluded
// because a WAL tail handles it as routine recovery.
func IsCorruption(err error) bool {
	return IsFormat(err) || IsIntegrity(err) || IsCodec(err)
}

// ============================================================================
// Wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewValidation creates a config validation error with field context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
