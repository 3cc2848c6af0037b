// Package queue provides the bounded multi-producer queue used by the staged
// dispatch backend.
package queue

import (
	"sync/atomic"

	"code.hybscloud.com/lfq"
)

const minCapacity = 2

// Bounded is a lock-free fixed-capacity FIFO safe for concurrent producers
// and consumers. Neither TryPush nor TryPop ever blocks.
type Bounded[T any] struct {
	items    lfq.Queue[T]
	capacity int
	size     atomic.Int64
}

// NewBounded returns a queue holding at least capacity items. The capacity is
// rounded up to the next power of two, with a minimum of two.
func NewBounded[T any](capacity int) *Bounded[T] {
	capacity = roundCapacity(capacity)
	return &Bounded[T]{
		items:    lfq.Build[T](lfq.New(capacity).Compact()),
		capacity: capacity,
	}
}

// TryPush enqueues item and reports false when the queue is full.
func (q *Bounded[T]) TryPush(item T) bool {
	if err := q.items.Enqueue(&item); err != nil {
		return false
	}
	q.size.Add(1)
	return true
}

// TryPop dequeues the oldest item and reports false when the queue is empty.
func (q *Bounded[T]) TryPop() (T, bool) {
	item, err := q.items.Dequeue()
	if err != nil {
		var zero T
		return zero, false
	}
	q.size.Add(-1)
	return item, true
}

// Len is an approximate count while producers and consumers are active.
func (q *Bounded[T]) Len() int {
	if n := q.size.Load(); n > 0 {
		return int(n)
	}
	return 0
}

func (q *Bounded[T]) Cap() int { return q.capacity }

func roundCapacity(capacity int) int {
	n := minCapacity
	for n < capacity {
		n <<= 1
	}
	return n
}
