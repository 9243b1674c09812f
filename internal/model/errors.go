package model

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when no record exists for a domain.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidFormat is returned when an import payload has the wrong shape.
	ErrInvalidFormat = errors.New("invalid format: expected array of records")
)

// ValidationError aggregates every rule a record violated.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Errors, ", ")
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
