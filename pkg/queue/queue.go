// Package queue provides the bounded single-producer/single-consumer
// queue carrying motion batches from the sampling context to the main
// context.
//
// The queue never allocates after construction and never locks: the
// producer owns the tail index, the consumer owns the head index, and
// each side only loads the other's index with acquire semantics provided
// by sync/atomic.
package queue

import (
	"errors"
	"sync/atomic"
)

// Capacity is the number of items the queue holds.
const Capacity = 32

// ErrFull is returned by Push when the queue holds Capacity items.
// The pushed item is rejected, items already queued are kept.
var ErrFull = errors.New("queue full")

// Queue is the shared ring storage. Access it only through the
// Producer and Consumer returned by Split.
type Queue[T any] struct {
	buf   [Capacity]T
	head  uint32
	tail  uint32
	split int32
}

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Split returns the two ends of the queue. It must be called exactly
// once, a second call panics.
func (q *Queue[T]) Split() (*Producer[T], *Consumer[T]) {
	if !atomic.CompareAndSwapInt32(&q.split, 0, 1) {
		panic("queue: already split")
	}
	return &Producer[T]{q: q}, &Consumer[T]{q: q}
}

// Producer is the pushing end, owned by the sampling context.
type Producer[T any] struct {
	q *Queue[T]
}

// Push appends v, or returns ErrFull without touching the queue.
func (p *Producer[T]) Push(v *T) error {
	q := p.q
	tail := q.tail
	if tail-atomic.LoadUint32(&q.head) >= Capacity {
		return ErrFull
	}
	q.buf[tail%Capacity] = *v
	atomic.StoreUint32(&q.tail, tail+1)
	return nil
}

// Len returns the number of queued items as seen by the producer.
func (p *Producer[T]) Len() int {
	return int(p.q.tail - atomic.LoadUint32(&p.q.head))
}

// Consumer is the popping end, owned by the main context.
type Consumer[T any] struct {
	q *Queue[T]
}

// Peek returns the oldest item without removing it. The pointer stays
// valid until the next Pop.
func (c *Consumer[T]) Peek() (*T, bool) {
	q := c.q
	head := q.head
	if head == atomic.LoadUint32(&q.tail) {
		return nil, false
	}
	return &q.buf[head%Capacity], true
}

// Pop removes and returns the oldest item. ok is false if the queue
// is empty.
func (c *Consumer[T]) Pop() (v T, ok bool) {
	q := c.q
	head := q.head
	if head == atomic.LoadUint32(&q.tail) {
		return
	}
	v, ok = q.buf[head%Capacity], true
	atomic.StoreUint32(&q.head, head+1)
	return
}

// Len returns the number of queued items as seen by the consumer.
func (c *Consumer[T]) Len() int {
	return int(atomic.LoadUint32(&c.q.tail) - c.q.head)
}
