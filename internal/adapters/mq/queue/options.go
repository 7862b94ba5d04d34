package queue

import "time"

// Option applies a configuration option to the PriorityQueue.
type Option func(*PriorityQueue)

// WithCapacity sets the maximum number of queued items.
func WithCapacity(capacity int) Option {
	return func(q *PriorityQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithClock sets the time source used to stamp items.
func WithClock(now func() time.Time) Option {
	return func(q *PriorityQueue) {
		if now != nil {
			q.now = now
		}
	}
}
