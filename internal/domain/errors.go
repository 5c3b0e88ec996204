package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate")

	// ErrInvalidReminderSpec is a validation error.
	ErrInvalidReminderSpec = fmt.Errorf("%w: invalid reminder spec", ErrValidation)

	ErrDeliveryFailed = errors.New("delivery failed")
)

// DuplicateError is returned when a cancellation for the same subject and date
// already exists. Message is meant to be shown to the owner as is.
type DuplicateError struct {
	ExistingID int64
	Message    string
}

func (e *DuplicateError) Error() string {
	return "duplicate cancellation: " + e.Message
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}

// Validationf builds an error that matches ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
