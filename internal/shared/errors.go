package shared

import (
	"errors"
	"fmt"
)

// Error classes shared across domain packages. Domain packages define their
// own sentinels and wrap one of these so callers can branch on the class
// with errors.Is without importing every package.
var (
	// ErrValidation marks input the caller must fix; never retried.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a lost conditional update or claim; re-read and retry.
	ErrConflict = errors.New("conflict")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks a failure worth retrying with backoff.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks a counterparty rejection; retrying cannot help.
	ErrPermanent = errors.New("permanent failure")
	// ErrExhaustedRetries marks an entry that consumed its retry budget.
	ErrExhaustedRetries = errors.New("retries exhausted")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Transientf wraps ErrTransient with a formatted detail message.
func Transientf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrTransient}, args...)...)
}

// Permanentf wraps ErrPermanent with a formatted detail message.
func Permanentf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrPermanent}, args...)...)
}
