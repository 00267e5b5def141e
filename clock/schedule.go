package clock

import (
	"sync"
	"time"
)

// Triggerable is the capability contract for a scheduled action: a single
// side-effecting Trigger invoked exactly once when the schedule's delay
// elapses. Implementations must not block; Trigger runs on the timer
// goroutine, or on the pausing goroutine when a pause forces an overdue fire.
type Triggerable interface {
	Trigger()
}

// TriggerFunc adapts a plain function to the Triggerable interface.
type TriggerFunc func()

// Trigger calls f.
func (f TriggerFunc) Trigger() { f() }

// ScheduleState identifies a schedule's position in its lifecycle.
type ScheduleState int

const (
	// StateRunning means the real timer is armed and counting down.
	StateRunning ScheduleState = iota + 1
	// StatePaused means the timer is stopped with remaining delay recorded.
	StatePaused
	// StateFired is terminal: the action has been invoked, or the schedule
	// was stopped before it could be.
	StateFired
)

// DefaultMinTick is the floor applied when re-arming a resumed schedule.
// A paused schedule whose remaining delay has dwindled to nearly nothing
// still needs a positive re-arm value, or the real timer may never fire.
const DefaultMinTick = 16 * time.Millisecond

// Schedule wraps a Triggerable behind a pause/resume state machine driven by
// a real timer.
//
// The state machine moves between Running and Paused any number of times,
// then to Fired exactly once: either naturally when the timer elapses, by a
// forced fire when Pause finds the remaining delay already spent, or via
// Stop. Once Fired, Pause and Resume are no-ops and the action is never
// invoked again.
//
// Thread-safety: all methods are safe for concurrent use. The natural fire
// callback and a concurrent Pause synchronize on the schedule's mutex so
// exactly one of them performs the fire.
type Schedule struct {
	mu      sync.Mutex
	state   ScheduleState
	action  Triggerable
	timer   *time.Timer
	minTick time.Duration

	// remaining is the delay still owed; meaningful while Paused, and while
	// Running it holds the delay the timer was last armed with.
	remaining time.Duration
	// startedAt is when the timer was last armed; meaningful while Running.
	startedAt time.Time
}

// NewSchedule creates a schedule that invokes action once delay has elapsed.
//
// If startPaused, the real timer is created disarmed and the full delay is
// owed on the first Resume; the clock uses this for schedules created while
// frozen.
func NewSchedule(delay time.Duration, action Triggerable, startPaused bool) *Schedule {
	return newSchedule(delay, action, startPaused, DefaultMinTick)
}

func newSchedule(delay time.Duration, action Triggerable, startPaused bool, minTick time.Duration) *Schedule {
	if minTick <= 0 {
		minTick = DefaultMinTick
	}
	s := &Schedule{
		action:    action,
		remaining: delay,
		minTick:   minTick,
	}
	if startPaused {
		s.state = StatePaused
		// Arm with a dummy delay and immediately stop: the timer object must
		// exist so Resume can Reset it.
		s.timer = time.AfterFunc(time.Hour, s.fire)
		s.timer.Stop()
	} else {
		s.state = StateRunning
		s.startedAt = time.Now()
		s.timer = time.AfterFunc(delay, s.fire)
	}
	return s
}

// fire is the real timer's callback.
func (s *Schedule) fire() {
	s.mu.Lock()
	if s.state != StateRunning {
		// A concurrent Pause or Stop won the race.
		s.mu.Unlock()
		return
	}
	s.state = StateFired
	s.mu.Unlock()

	s.action.Trigger()
}

// Pause suspends the countdown and reports whether the schedule is still
// pending.
//
// If the remaining delay is already spent, Pause performs the fire itself,
// transitioning to Fired and invoking the action exactly once, and returns
// false so the caller drops the schedule from tracking. If the natural fire
// is already in flight, Pause returns false and leaves the fire to the timer
// callback. Pausing a schedule that is already Paused panics; pausing a
// Fired schedule returns false without effect.
func (s *Schedule) Pause() bool {
	s.mu.Lock()

	switch s.state {
	case StateFired:
		s.mu.Unlock()
		return false
	case StatePaused:
		s.mu.Unlock()
		panic("clock: schedule already paused")
	}

	if !s.timer.Stop() {
		// The timer elapsed and its callback is running (or blocked on our
		// mutex). Leave state Running so the callback completes the fire.
		s.mu.Unlock()
		return false
	}

	remaining := s.remaining - time.Since(s.startedAt)
	if remaining <= 0 {
		// Overdue but the runtime had not fired it yet: fire now.
		s.state = StateFired
		s.mu.Unlock()
		s.action.Trigger()
		return false
	}

	s.remaining = remaining
	s.state = StatePaused
	s.mu.Unlock()
	return true
}

// Resume re-arms the timer for the remaining delay, floored at the minimum
// tick. Resuming a Fired schedule is a no-op; resuming a schedule that is
// not Paused panics.
func (s *Schedule) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateFired:
		return
	case StateRunning:
		panic("clock: schedule not paused")
	}

	delay := s.remaining
	if delay < s.minTick {
		delay = s.minTick
	}
	s.remaining = delay
	s.startedAt = time.Now()
	s.state = StateRunning
	s.timer.Reset(delay)
}

// Stop transitions the schedule to Fired without invoking the action and
// reports whether it prevented the fire.
func (s *Schedule) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFired {
		return false
	}
	if s.state == StateRunning && !s.timer.Stop() {
		// Callback in flight; it will observe Fired and skip the action.
		s.state = StateFired
		return true
	}
	s.state = StateFired
	return true
}

// State returns the schedule's current state.
func (s *Schedule) State() ScheduleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
