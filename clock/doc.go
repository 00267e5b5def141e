// Package clock provides the virtual, freezable clock the harness injects
// into the component under test in place of real time.
//
// The clock's job is to make time-sensitive protocol behavior deterministic:
// a test can freeze time mid-flight (to assert that no premature timeout has
// fired), let real time pass while frozen, then unfreeze and observe timers
// resume with exactly the remaining delay they had.
//
// Building blocks:
//
//   - Triggerable: the capability contract for any scheduled action, a
//     single Trigger invoked exactly once when the delay elapses.
//   - Schedule: one generic pause/resume state machine over a Triggerable,
//     driven by a real timer. Timers and cancellation sources are thin
//     adapters over it, not separate implementations.
//   - Clock: owns the tracked schedules and a nested freeze-ticket counter;
//     exposes Now, NewTimer, WithTimeoutCause, Freeze/Unfreeze, and WaitFor.
//
// Freezing is reentrant: every Freeze mints a ticket and the clock stays
// frozen until every outstanding ticket has been passed to Unfreeze. Ticket
// misuse (unknown ticket, double unfreeze) panics: it indicates a malformed
// scenario, not a runtime condition.
package clock
