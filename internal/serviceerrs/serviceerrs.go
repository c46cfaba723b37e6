package serviceerrs

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientBalance is a definitive rejection of a debit. Never
	// retried.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTransientConflict surfaces after a bounded number of internal
	// retries lost a concurrent-write race. The caller may retry.
	ErrTransientConflict = errors.New("transient write conflict")

	ErrNotFound     = errors.New("not found")
	ErrTokenExpired = errors.New("token expired")
)

// ValidationError rejects malformed input before any storage interaction.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
