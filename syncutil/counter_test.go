package syncutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounter_Increment(t *testing.T) {
	var c Counter

	assert.Equal(t, int64(1), c.Increment())
	assert.Equal(t, int64(2), c.Increment())
	assert.Equal(t, int64(3), c.Increment())
}

func TestCounter_Value_ZeroValue(t *testing.T) {
	var c Counter

	assert.Equal(t, int64(0), c.Value())
}

func TestCounter_Reset(t *testing.T) {
	var c Counter

	c.Increment()
	c.Increment()
	c.Reset()

	assert.Equal(t, int64(0), c.Value())
	assert.Equal(t, int64(1), c.Increment(), "first increment after reset should return 1")
}

func TestCounter_ThreadSafe(t *testing.T) {
	var c Counter

	const goroutines = 10
	const perGoroutine = 1000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				c.Increment()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*perGoroutine), c.Value())
}
