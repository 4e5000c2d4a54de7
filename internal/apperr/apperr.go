// Package apperr holds the error kinds shared by the storefront services.
// Callers wrap these with fmt.Errorf("...: %w", ...) and match with errors.Is/As.
package apperr

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrForbidden         = errors.New("admin access required")
	ErrNotFound          = errors.New("not found")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrCheckoutInFlight  = errors.New("checkout already in progress")
	ErrPaymentFailed     = errors.New("payment confirmation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("conflict")
)

// ValidationError reports the fields that failed validation
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty ValidationError ready for Add
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records a problem with a field
func (e *ValidationError) Add(field, message string) {
	e.Fields[field] = message
}

// HasErrors reports whether any field was recorded
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// OrNil returns e when it has errors, nil otherwise
func (e *ValidationError) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

// IsValidation reports whether err carries a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
