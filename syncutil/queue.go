package syncutil

import (
	"context"
	"sync"
)

// Queue is a thread-safe unbounded FIFO.
//
// The queue is unbounded so producers (the worker goroutines of the component
// under test, calling into the broker double) never block on enqueue; only
// the consuming test action blocks, in Dequeue, and that wait is cancellable.
//
// A buffered signal channel (capacity 1) coalesces wakeups. After a dequeue
// that leaves items behind, the signal is re-posted so a second concurrent
// waiter cannot miss its wakeup.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an item to the back of the queue. It never blocks.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the front item, blocking until one is
// available or ctx is done. On cancellation it returns the zero value and
// the context's cause.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	for {
		if item, ok := q.TryDequeue(); ok {
			return item, nil
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, context.Cause(ctx)
		case <-q.signal:
		}
	}
}

// TryDequeue attempts to dequeue without blocking.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	item := q.items[0]

	// Clear the slot so the backing array does not retain the item.
	var zero T
	q.items[0] = zero

	if len(q.items) == 1 {
		// Last element: reset to empty, keeping capacity.
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
		// Items remain; re-post the wakeup for any other waiter.
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}

	return item, true
}

// Len returns the number of items currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
