package session

import (
	"sync"

	"github.com/rsyslog/rsyslog-sub006/wire"
)

// SendQueue is a per-session FIFO of send buffers awaiting transmission,
// guarded by its own mutex since a second goroutine may enqueue a response
// while the session's own read/drain loop is running (spec.md §5).
type SendQueue struct {
	mu    sync.Mutex
	items []*wire.SendBuffer
}

// Push appends a send buffer to the back of the queue.
func (q *SendQueue) Push(sb *wire.SendBuffer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, sb)
}

// Front returns the head of the queue without removing it, or nil if empty.
func (q *SendQueue) Front() *wire.SendBuffer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// PopFront removes the head of the queue, once it has been fully written.
func (q *SendQueue) PopFront() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return
	}
	q.items = q.items[1:]
}

// Empty reports whether the queue has nothing pending.
func (q *SendQueue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len reports the number of pending send buffers.
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
