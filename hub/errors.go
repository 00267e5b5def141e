package hub

import (
	"errors"
	"fmt"
)

// Op identifies the broker operation an injected outcome applied to.
type Op string

const (
	OpPublish     Op = "publish"
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
)

// AckError is the broker-level rejection returned when an operation
// consumes an injected Fail outcome.
type AckError struct {
	// Op is the operation that was rejected.
	Op Op
	// Kind is the injected outcome that caused the rejection.
	Kind AckKind
}

// Error implements the error interface.
func (e *AckError) Error() string {
	return fmt.Sprintf("%s rejected: injected %s outcome", e.Op, e.Kind)
}

// AsAckError returns the AckError in err's chain, if any.
func AsAckError(err error) (*AckError, bool) {
	var ae *AckError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
