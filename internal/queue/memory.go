package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue implements Producer and Consumer in process with the same
// delivery semantics as the SQS queue: a visibility timeout hides a
// delivered message until it is acked or nacked, and a message that
// would be delivered more than maxReceiveCount times is routed to the
// dead-letter queue instead. Used by tests and local runs.
type MemoryQueue struct {
	mu                sync.Mutex
	messages          []*memoryMessage
	dlq               []Message
	visibilityTimeout time.Duration
	maxReceiveCount   int
	now               func() time.Time
}

type memoryMessage struct {
	msg       Message
	visibleAt time.Time
}

func NewMemoryQueue(visibilityTimeout time.Duration, maxReceiveCount int) *MemoryQueue {
	return &MemoryQueue{
		visibilityTimeout: visibilityTimeout,
		maxReceiveCount:   maxReceiveCount,
		now:               time.Now,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.messages = append(q.messages, &memoryMessage{
		msg: Message{
			ID:   uuid.New().String(),
			Body: append([]byte(nil), body...),
		},
	})
	return nil
}

func (q *MemoryQueue) Receive(_ context.Context, max int) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []Message
	remaining := q.messages[:0]
	for _, m := range q.messages {
		if len(out) >= max || m.visibleAt.After(now) {
			remaining = append(remaining, m)
			continue
		}
		if m.msg.ReceiveCount >= q.maxReceiveCount {
			// Receive budget exhausted: dead-letter, do not deliver.
			q.dlq = append(q.dlq, m.msg)
			continue
		}
		m.msg.ReceiveCount++
		m.msg.ReceiptHandle = uuid.New().String()
		m.visibleAt = now.Add(q.visibilityTimeout)
		out = append(out, m.msg)
		remaining = append(remaining, m)
	}
	q.messages = remaining
	return out, nil
}

func (q *MemoryQueue) Ack(_ context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, m := range q.messages {
		if m.msg.ReceiptHandle == msg.ReceiptHandle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) Nack(_ context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, m := range q.messages {
		if m.msg.ReceiptHandle == msg.ReceiptHandle {
			m.visibleAt = q.now()
		}
	}
	return nil
}

// DeadLetters returns a snapshot of the dead-letter queue.
func (q *MemoryQueue) DeadLetters() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Message(nil), q.dlq...)
}

// Len returns the number of messages still on the main queue.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
