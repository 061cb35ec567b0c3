package ingest

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Push after Close, and by Pop once the queue is
// closed and empty.
var ErrQueueClosed = errors.New("queue closed")

// Queue is an unbounded FIFO of work items safe for many producers and
// consumers. Push never blocks.
type Queue struct {
	mu     sync.Mutex
	items  []WorkItem
	closed bool
	// signal is closed and replaced whenever items arrive or the queue closes,
	// waking every blocked Pop.
	signal chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{})}
}

// Push appends item to the tail of the queue.
func (q *Queue) Push(item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, item)
	q.broadcastLocked()
	return nil
}

// Pop removes and returns the head of the queue, blocking until an item is
// available, ctx is done, or the queue is closed and drained.
func (q *Queue) Pop(ctx context.Context) (WorkItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = WorkItem{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return WorkItem{}, ErrQueueClosed
		}
		wait := q.signal
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return WorkItem{}, ctx.Err()
		case <-wait:
		}
	}
}

// Close stops further pushes and wakes blocked consumers. Items already queued
// remain available to Pop and Drain.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.broadcastLocked()
}

// Drain removes and returns every pending item.
func (q *Queue) Drain() []WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len reports the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) broadcastLocked() {
	close(q.signal)
	q.signal = make(chan struct{})
}
