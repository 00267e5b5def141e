package clock

import "time"

// Timer is the handle for a schedule created with Clock.NewTimer. Its
// channel receives one value when the timer fires; the channel is buffered
// so a fire never blocks on a receiver.
type Timer struct {
	clock *Clock
	sched *Schedule
	ch    chan time.Time
}

// C returns the channel the fire is delivered on.
func (t *Timer) C() <-chan time.Time {
	return t.ch
}

// Stop cancels the timer and drops it from clock tracking. It reports
// whether the stop prevented the fire; false means the timer had already
// fired or been stopped. Stop does not drain the channel.
func (t *Timer) Stop() bool {
	stopped := t.sched.Stop()
	t.clock.drop(t.sched)
	return stopped
}
