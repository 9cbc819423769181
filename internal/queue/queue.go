// Package queue is the durable order queue: at-least-once delivery with
// a visibility timeout and a dead-letter queue after the receive budget
// is exhausted.
package queue

import "context"

type Message struct {
	ID            string
	Body          []byte
	ReceiptHandle string
	// ReceiveCount is how many times this message has been delivered,
	// including the current delivery.
	ReceiveCount int
}

// Producer enqueues order messages.
type Producer interface {
	Enqueue(ctx context.Context, body []byte) error
}

// Consumer receives and settles order messages. A message that is
// neither acked nor nacked reappears after the visibility timeout.
type Consumer interface {
	// Receive blocks up to the configured wait time and returns between
	// zero and max messages.
	Receive(ctx context.Context, max int) ([]Message, error)
	// Ack removes the message from the queue.
	Ack(ctx context.Context, msg Message) error
	// Nack makes the message immediately visible for redelivery.
	Nack(ctx context.Context, msg Message) error
}
