package syncutil

import (
	"context"
	"fmt"
	"sync"
)

// Countdown is a single-shot countdown barrier.
//
// It is constructed with an initial count; Signal decrements the count and,
// on the transition to zero, releases every waiter. Wait blocks until the
// barrier is released or the caller's context is done. A barrier constructed
// with count <= 0 is already released and Wait returns immediately.
//
// Release wakes waiters through a single token that circulates the waiter
// chain: each released waiter re-posts the token before returning, so all
// waiters observe the release, including waiters that arrive after the final
// Signal. Signaling past zero is permitted and has no further effect.
//
// Re-arming after release is not supported.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	token     chan struct{}
}

// NewCountdown creates a barrier that releases after count signals.
//
// maxWaiters bounds the number of goroutines expected to block in Wait
// concurrently and sizes the internal token channel. It must be at least 1;
// a smaller value is a programming error and panics.
func NewCountdown(count, maxWaiters int) *Countdown {
	if maxWaiters < 1 {
		panic(fmt.Sprintf("syncutil: countdown maxWaiters must be >= 1, got %d", maxWaiters))
	}
	return &Countdown{
		remaining: count,
		token:     make(chan struct{}, maxWaiters),
	}
}

// Signal decrements the count. On the transition to zero it releases all
// current and future waiters. Signals beyond zero are no-ops.
func (c *Countdown) Signal() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.remaining--
	if c.remaining == 0 {
		// Exactly one token enters circulation; Wait re-posts it.
		c.token <- struct{}{}
	}
}

// Wait blocks until the barrier is released or ctx is done.
//
// Returns nil on release. On cancellation it returns the context's cause so
// the caller can tell a scenario ceiling from an explicit cancel.
func (c *Countdown) Wait(ctx context.Context) error {
	c.mu.Lock()
	released := c.remaining <= 0
	c.mu.Unlock()
	if released {
		return nil
	}

	select {
	case <-c.token:
		// Pass the token on so the next waiter also releases.
		c.token <- struct{}{}
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
