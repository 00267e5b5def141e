package clock

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitError_Error(t *testing.T) {
	err := &WaitError{Cause: CauseTimeout, Err: context.DeadlineExceeded}
	assert.Equal(t, "wait timeout: context deadline exceeded", err.Error())

	bare := &WaitError{Cause: CauseCanceled}
	assert.Equal(t, "wait canceled", bare.Error())
}

func TestWaitError_Unwrap(t *testing.T) {
	inner := errors.New("broker gone")
	err := &WaitError{Cause: CauseFailed, Err: inner}
	assert.ErrorIs(t, err, inner)
}

func TestAsWaitError(t *testing.T) {
	wrapped := fmt.Errorf("run action 3: %w", NewTimeoutError())
	werr, ok := AsWaitError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CauseTimeout, werr.Cause)

	_, ok = AsWaitError(errors.New("plain"))
	assert.False(t, ok)
}

func TestClassify_DeadlineExceeded(t *testing.T) {
	werr := Classify(context.DeadlineExceeded)
	assert.Equal(t, CauseTimeout, werr.Cause)
}

func TestClassify_Canceled(t *testing.T) {
	werr := Classify(context.Canceled)
	assert.Equal(t, CauseCanceled, werr.Cause)
}

func TestClassify_ArbitraryError(t *testing.T) {
	inner := errors.New("socket reset")
	werr := Classify(inner)
	assert.Equal(t, CauseFailed, werr.Cause)
	assert.ErrorIs(t, werr, inner)
}

func TestClassify_PassesThroughWaitError(t *testing.T) {
	original := NewTimeoutError()
	assert.Same(t, original, Classify(original))

	wrapped := fmt.Errorf("await ack: %w", original)
	werr := Classify(wrapped)
	assert.Equal(t, CauseTimeout, werr.Cause, "wrapped wait errors keep their cause")
}

func TestCause_String(t *testing.T) {
	assert.Equal(t, "timeout", CauseTimeout.String())
	assert.Equal(t, "canceled", CauseCanceled.String())
	assert.Equal(t, "failed", CauseFailed.String())
	assert.Equal(t, "cause(0)", Cause(0).String())
}
