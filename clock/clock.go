package clock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Ticket is an opaque handle returned by Freeze. Each ticket must be passed
// to Unfreeze exactly once; the clock stays frozen while any ticket is
// outstanding.
type Ticket int

// Config carries explicit clock construction parameters. There is no
// process-wide default clock; every scenario constructs and injects its own.
type Config struct {
	// MinTick is the floor applied when re-arming resumed schedules.
	// Zero means DefaultMinTick.
	MinTick time.Duration
}

// Clock is a virtual, freezable wall clock.
//
// While unfrozen, Now is real time shifted by an offset that accumulates
// across freeze/unfreeze cycles. While frozen, Now is pinned to the instant
// captured at the first freeze of the nested sequence, and every tracked
// schedule is paused so no timer or cancellation source can fire.
//
// All mutation is serialized by one mutex. The freeze/unfreeze sweeps and
// schedule creation hold that mutex for their whole duration, so a schedule
// created mid-sweep observes the clock's current frozen state, never a stale
// one.
type Clock struct {
	mu         sync.Mutex
	frozen     bool
	frozenAt   time.Time
	offset     time.Duration
	nextTicket int
	tickets    map[Ticket]struct{}
	tracked    map[*Schedule]struct{}
	minTick    time.Duration
}

// New creates a clock at real time with no accumulated offset.
func New(cfg Config) *Clock {
	minTick := cfg.MinTick
	if minTick <= 0 {
		minTick = DefaultMinTick
	}
	return &Clock{
		tickets: make(map[Ticket]struct{}),
		tracked: make(map[*Schedule]struct{}),
		minTick: minTick,
	}
}

// Now returns the current virtual time: the frozen instant while frozen,
// otherwise real time shifted by the accumulated offset.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return c.frozenAt
	}
	return time.Now().Add(c.offset)
}

// Frozen reports whether the clock is currently frozen.
func (c *Clock) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

// NewTimer registers a schedule for d and returns its handle. If the clock
// is frozen the schedule starts paused with the full delay owed.
func (c *Clock) NewTimer(d time.Duration) *Timer {
	ch := make(chan time.Time, 1)
	t := &Timer{clock: c, ch: ch}

	c.mu.Lock()
	s := newSchedule(d, TriggerFunc(func() { ch <- time.Now() }), c.frozen, c.minTick)
	c.tracked[s] = struct{}{}
	c.mu.Unlock()

	t.sched = s
	return t
}

// WithTimeoutCause is the cancellation-source surface: it derives a context
// that is canceled with the given cause once d of virtual time has elapsed.
//
// The underlying schedule pauses and resumes with the clock, so a frozen
// clock holds the cancellation back without losing the remaining delay. When
// the context ends for any reason (the delay elapsed, the parent was
// canceled, or the returned CancelFunc was called) the schedule is stopped
// and dropped from tracking.
func (c *Clock) WithTimeoutCause(parent context.Context, d time.Duration, cause error) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	c.mu.Lock()
	s := newSchedule(d, TriggerFunc(func() { cancel(cause) }), c.frozen, c.minTick)
	c.tracked[s] = struct{}{}
	c.mu.Unlock()

	context.AfterFunc(ctx, func() {
		s.Stop()
		c.drop(s)
	})

	return ctx, func() { cancel(context.Canceled) }
}

// WithTimeout is WithTimeoutCause with a CauseTimeout wait error installed
// as the cause, so context.Cause distinguishes this virtual deadline from an
// external cancel.
func (c *Clock) WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return c.WithTimeoutCause(parent, d, NewTimeoutError())
}

// Freeze pins virtual time and pauses every tracked schedule, returning a
// ticket that must be passed to Unfreeze.
//
// Freezing an already-frozen clock adds another ticket without re-capturing
// the frozen instant. Schedules that turn out to have fired are dropped from
// tracking during the sweep.
func (c *Clock) Freeze() Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.frozen {
		c.frozenAt = time.Now().Add(c.offset)
		c.frozen = true
		for s := range c.tracked {
			if !s.Pause() {
				delete(c.tracked, s)
			}
		}
	}

	c.nextTicket++
	t := Ticket(c.nextTicket)
	c.tickets[t] = struct{}{}
	return t
}

// Unfreeze releases one freeze ticket. When the last outstanding ticket is
// released, the frozen instant becomes the new "now" baseline (the offset
// absorbs however much real time passed while frozen) and every tracked
// schedule resumes with its remaining delay.
//
// Unfreezing an unfrozen clock, or presenting a ticket that is unknown or
// already consumed, panics: the scenario itself is malformed.
func (c *Clock) Unfreeze(t Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.frozen {
		panic("clock: unfreeze of an unfrozen clock")
	}
	if _, ok := c.tickets[t]; !ok {
		panic(fmt.Sprintf("clock: freeze ticket %d is not outstanding", t))
	}
	delete(c.tickets, t)

	if len(c.tickets) == 0 {
		c.offset = time.Until(c.frozenAt)
		c.frozen = false
		for s := range c.tracked {
			s.Resume()
		}
	}
}

// WaitFor blocks until d of virtual time has elapsed or ctx is done.
//
// Returns nil once the full duration has passed. On cancellation the result
// is a WaitError whose cause distinguishes a deadline from an explicit
// cancel, classified from context.Cause.
func (c *Clock) WaitFor(ctx context.Context, d time.Duration) error {
	t := c.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C():
		return nil
	case <-ctx.Done():
		return Classify(context.Cause(ctx))
	}
}

func (c *Clock) drop(s *Schedule) {
	c.mu.Lock()
	delete(c.tracked, s)
	c.mu.Unlock()
}
