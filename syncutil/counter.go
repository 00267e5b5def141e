package syncutil

import "sync"

// Counter is a thread-safe counter shared between concurrent test actions.
//
// A hardware atomic would cover Increment alone, but counter values are read
// inside composite critical sections (e.g. snapshotting a broker's counts for
// an epilogue assertion), so access is serialized by a single mutex instead.
//
// The zero value is ready to use and starts at 0.
type Counter struct {
	mu sync.Mutex
	n  int64
}

// Increment adds one and returns the new value.
func (c *Counter) Increment() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// Value returns the current count without incrementing.
func (c *Counter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Reset returns the counter to zero.
//
// Used when a harness component is reused across scenario sections. After
// Reset, the next Increment returns 1.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
