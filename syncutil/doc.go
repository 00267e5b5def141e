// Package syncutil provides the cross-task synchronization primitives the
// harness and scenario drivers use to coordinate concurrent protocol
// operations.
//
// The primitives are deliberately small and clock-independent:
//
//   - Counter: a mutex-serialized counter whose value can participate in
//     composite critical sections (publication counts, acknowledgement
//     counts, packet ID sequencing).
//   - Countdown: a single-shot countdown barrier used by scenario "sync"
//     actions to serialize test steps against the worker goroutines of the
//     component under test.
//   - Queue: an unbounded async FIFO backing the broker double's
//     "await next acknowledgement" / "await next publish" operations.
//
// All blocking operations take a context.Context and return the context's
// cause on cancellation, so callers can distinguish a scenario ceiling from
// an explicit cancel.
package syncutil
