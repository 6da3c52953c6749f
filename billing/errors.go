// Package billing holds the error taxonomy and the timeout/retry policy shared by the
// voucher, subscription, loyalty and payment components.
package billing

import (
	"context"
	"errors"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidPlan         = errors.New("invalid plan")
	ErrCodeSpaceExhausted  = errors.New("voucher code space exhausted")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyUsed         = errors.New("already used")
	ErrExpired             = errors.New("expired")
	ErrDeviceConflict      = errors.New("device conflict")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrNoActivePlan        = errors.New("no active plan")
	ErrPersistenceConflict = errors.New("persistence conflict")
	ErrNotificationFailed  = errors.New("notification failed")

	// ErrTransient is returned once conflict retries are used up.
	ErrTransient = errors.New("transient failure, try again")

	// ErrOutcomeUnknown means the backend call timed out. The write may or may not have been
	// applied; callers must re-read state instead of retrying.
	ErrOutcomeUnknown = errors.New("backend timeout, outcome unknown")
)

// IsValidation reports whether err should be shown to the end user as-is.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPlan) ||
		errors.Is(err, ErrInsufficientPoints)
}

// Classify converts context deadline errors coming out of the store into ErrOutcomeUnknown.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrOutcomeUnknown) {
		return errors.Join(ErrOutcomeUnknown, err)
	}
	return err
}
