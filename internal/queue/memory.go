package queue

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue is an in-process Queue for tests.
type MemoryQueue struct {
	mu       sync.Mutex
	messages chan Message
	failNext bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{messages: make(chan Message, capacity)}
}

// FailNext makes the next Publish return an error, simulating broker outage.
func (q *MemoryQueue) FailNext() {
	q.mu.Lock()
	q.failNext = true
	q.mu.Unlock()
}

func (q *MemoryQueue) Publish(ctx context.Context, body []byte) error {
	q.mu.Lock()
	fail := q.failNext
	q.failNext = false
	q.mu.Unlock()
	if fail {
		return errors.New("queue: broker unavailable")
	}
	select {
	case q.messages <- Message{Body: append([]byte(nil), body...)}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context) (<-chan Message, error) {
	return q.messages, nil
}

// Len reports the number of buffered messages.
func (q *MemoryQueue) Len() int {
	return len(q.messages)
}

var _ Queue = (*MemoryQueue)(nil)
