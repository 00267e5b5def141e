package clock

import (
	"context"
	"errors"
	"fmt"
)

// Cause categorizes why an awaited operation ended without its result.
//
// Callers branch on the cause explicitly rather than inferring it from error
// identity: a scenario asserting "the operation timed out" must not be
// satisfied by an external cancel, and vice versa.
type Cause int

const (
	// CauseTimeout means a scheduled delay elapsed.
	CauseTimeout Cause = iota + 1
	// CauseCanceled means the caller canceled a parent context.
	CauseCanceled
	// CauseFailed means the awaited operation itself failed downstream.
	CauseFailed
)

// String returns the cause name for diagnostics.
func (c Cause) String() string {
	switch c {
	case CauseTimeout:
		return "timeout"
	case CauseCanceled:
		return "canceled"
	case CauseFailed:
		return "failed"
	default:
		return fmt.Sprintf("cause(%d)", int(c))
	}
}

// WaitError reports that an awaited operation ended early, tagged with an
// explicit cause.
type WaitError struct {
	// Cause identifies which of timeout, cancellation, or downstream failure
	// occurred.
	Cause Cause

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *WaitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wait %s: %v", e.Cause, e.Err)
	}
	return fmt.Sprintf("wait %s", e.Cause)
}

// Unwrap returns the underlying error.
func (e *WaitError) Unwrap() error {
	return e.Err
}

// NewTimeoutError returns a WaitError with CauseTimeout. It is the default
// cancellation cause installed by Clock.WithTimeout.
func NewTimeoutError() *WaitError {
	return &WaitError{Cause: CauseTimeout}
}

// AsWaitError returns the WaitError in err's chain, if any.
func AsWaitError(err error) (*WaitError, bool) {
	var we *WaitError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}

// Classify maps err onto a WaitError with an explicit cause.
//
// An existing WaitError in the chain is returned as-is. A context deadline
// becomes CauseTimeout, a context cancel becomes CauseCanceled, and anything
// else (an injected broker failure, a decode error) becomes CauseFailed
// wrapping err.
func Classify(err error) *WaitError {
	if we, ok := AsWaitError(err); ok {
		return we
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &WaitError{Cause: CauseTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &WaitError{Cause: CauseCanceled, Err: err}
	}
	return &WaitError{Cause: CauseFailed, Err: err}
}
