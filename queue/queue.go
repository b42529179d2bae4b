// Package queue implements the bounded, wait-when-full work queue that
// sits between a subscription processor's listener and its dispatcher.
package queue

import (
	"context"
	"time"

	"github.com/connectionloops/cloops.nats/errors"
)

// Item is a unit of work enqueued by a listener and drained by a
// dispatcher. Closure is executed at most once by the dispatcher; it
// typically closes over the raw NATS message, the decoded payload, the
// resolved binding, and is the closure's sole owner for its lifetime.
type Item struct {
	Subject string
	Closure func(ctx context.Context) error
}

// Queue is a bounded, FIFO, multi-producer multi-consumer work queue. It
// never drops work: producers block when the queue is at capacity.
type Queue struct {
	items chan Item
}

// New creates a Queue with the given fixed capacity. capacity must be at
// least 1.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{items: make(chan Item, capacity)}
}

// Enqueue blocks the caller while the queue is at capacity. It returns
// ctx.Err() if ctx is done before space becomes available. A nil
// Item.Closure is rejected immediately, without blocking.
func (q *Queue) Enqueue(ctx context.Context, item Item) error {
	if item.Closure == nil {
		return errors.New("queue: item closure must not be nil")
	}
	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until an item is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (Item, error) {
	select {
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		return Item{}, ctx.Err()
	}
}

// ReadBatch blocks indefinitely (honoring ctx) for the first item, then
// returns as soon as either max items have been read, or no further item
// arrives within timeout of the last received item. A timeout on a
// subsequent read is not an error: the partial batch is returned as-is. A
// ctx cancellation at any point - including during the first, blocking
// read - is propagated as an error alongside whatever was already read.
func (q *Queue) ReadBatch(ctx context.Context, max int, timeout time.Duration) ([]Item, error) {
	if max < 1 {
		max = 1
	}

	first, err := q.Dequeue(ctx)
	if err != nil {
		return nil, err
	}

	batch := make([]Item, 0, max)
	batch = append(batch, first)

	for len(batch) < max {
		select {
		case item := <-q.items:
			batch = append(batch, item)
		case <-time.After(timeout):
			return batch, nil
		case <-ctx.Done():
			return batch, ctx.Err()
		}
	}

	return batch, nil
}
