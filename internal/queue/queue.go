package queue

import "context"

// Message is one dequeued job descriptor body.
type Message struct {
	Body []byte
}

// Queue is the durable enqueue/consume contract between the interactive
// service and the job-processing worker. Publish must not return until the
// broker has accepted the message; an error means the job was not submitted.
type Queue interface {
	Publish(ctx context.Context, body []byte) error
	Consume(ctx context.Context) (<-chan Message, error)
}
