// Package apperrors defines the error values shared across modules.
package apperrors

import (
	"errors"
	"fmt"
)

// Domain entity errors indicate that a requested resource does not exist.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrHoldingNotFound = errors.New("holding not found")
	ErrRuleSetNotFound = errors.New("rule set not found")
	ErrPriceNotFound   = errors.New("price not found")
)

// Engine errors.
var (
	// ErrInvalidMode indicates an unrecognized allocation mode string.
	// The engine never falls back to a default mode.
	ErrInvalidMode = errors.New("invalid allocation mode")
)

// Import errors.
var (
	ErrInvalidCSVHeaders = errors.New("invalid CSV headers")
)

// ValidationError reports a malformed input: a cap outside [0, 100], an
// empty holdings list, a non-positive investable amount. It is raised at
// construction or call time, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// NewValidation creates a ValidationError for the given field.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
