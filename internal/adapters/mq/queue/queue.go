// Package queue provides the in-memory priority queue the job scheduler
// drains.
//
// Items leave in strict priority order, highest first, with FIFO order among
// equal priorities. Producers may push concurrently from many goroutines.
// Consumers block in Pop until an item is ready, so an item is only selected
// at the moment a consumer can run it.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/okian/somurie/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 100000
)

// Item is one queued unit of work.
type Item struct {
	ID         string
	Priority   int
	EnqueuedAt time.Time

	seq uint64
}

// Queue provides concurrent enqueue and blocking dequeue.
type Queue interface {
	// Enqueue adds an item. Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, it Item) bool

	// Pop blocks until an item is available and returns the best one.
	// Returns ErrClosed once the queue is closed and drained.
	Pop(ctx context.Context) (Item, error)

	// Len returns the current number of queued items.
	Len(ctx context.Context) int

	// Close stops accepting items. Queued items can still be popped.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// itemHeap orders by priority desc, then insertion order.
type itemHeap []Item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)   { *h = append(*h, x.(Item)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// PriorityQueue implements Queue with a binary heap.
type PriorityQueue struct {
	mu       sync.Mutex
	items    itemHeap
	seq      uint64
	capacity int
	closed   bool
	// ready is closed and replaced whenever an item arrives or the queue
	// closes, waking every blocked Pop.
	ready chan struct{}
	now   func() time.Time
}

// NewPriorityQueue creates a new priority queue with configuration options.
func NewPriorityQueue(opts ...Option) *PriorityQueue {
	q := &PriorityQueue{
		capacity: defaultQueueCapacity,
		ready:    make(chan struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	metrics.UpdateQueueDepth(0)
	return q
}

// Enqueue adds an item to the queue.
func (q *PriorityQueue) Enqueue(ctx context.Context, it Item) bool {
	if ctx.Err() != nil {
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}
	if len(q.items) >= q.capacity {
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return false
	}

	q.seq++
	it.seq = q.seq
	if it.EnqueuedAt.IsZero() {
		it.EnqueuedAt = q.now()
	}
	heap.Push(&q.items, it)
	metrics.UpdateQueueDepth(len(q.items))

	close(q.ready)
	q.ready = make(chan struct{})
	return true
}

// Pop returns the highest-priority item, waiting for one if necessary.
func (q *PriorityQueue) Pop(ctx context.Context) (Item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := heap.Pop(&q.items).(Item)
			metrics.UpdateQueueDepth(len(q.items))
			q.mu.Unlock()
			return it, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Item{}, ErrClosed
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-ready:
		}
	}
}

// Len returns the current number of queued items.
func (q *PriorityQueue) Len(_ context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue from accepting new items.
func (q *PriorityQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ready)
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *PriorityQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
