package rental

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrNotFound is the base for every not-found condition.
	ErrNotFound = errors.New("not found")

	// ErrPropertyNotFound is returned when a property ID does not resolve.
	ErrPropertyNotFound = fmt.Errorf("property %w", ErrNotFound)

	// ErrConversationNotFound is returned when a conversation ID does not resolve.
	ErrConversationNotFound = fmt.Errorf("conversation %w", ErrNotFound)

	// ErrMissingDates is returned when a new conversation would be created
	// without both stay dates under the strict creation policy.
	ErrMissingDates = errors.New("check-in and check-out dates are required to start a new conversation")

	// ErrReplyGeneration marks a failed AI reply. It is logged, never returned to callers of intake.
	ErrReplyGeneration = errors.New("reply generation failed")
)

// ValidationError reports the first inbound field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StoreError wraps a failure of the external record store. Unavailable is
// set when the store could not be reached or timed out.
type StoreError struct {
	Op          string
	Unavailable bool
	Err         error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err for op, classifying timeouts, network failures and
// errors that report Unavailable() as unavailability. Not-found errors pass
// through unchanged.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Unavailable: isUnavailable(err), Err: err}
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var signal interface{ Unavailable() bool }
	if errors.As(err, &signal) {
		return signal.Unavailable()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsRetryable reports whether a write that failed with err may be retried.
// Only unavailability qualifies; a store that rejected the write will reject
// it again, and caller cancellation is final.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StoreError
	return errors.As(err, &se) && se.Unavailable
}
