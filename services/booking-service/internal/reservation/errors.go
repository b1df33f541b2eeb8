package reservation

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrSlotFull     = errors.New("slot is full")
	ErrInvalidState = errors.New("invalid appointment state")
	// ErrBusy means a lock could not be taken or a transient failure outlasted the retry budget.
	// The request had no effect and may be retried.
	ErrBusy      = errors.New("resource busy")
	ErrSlotInUse = errors.New("slot has active appointments")
)

// ValidationError rejects malformed input before any transaction is opened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
