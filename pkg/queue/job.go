package queue

import "context"

// Job handles one message type pulled off a queue. The refresh consumer
// registers one Job per externally enqueueable operation.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type the job consumes.
	Type() string

	// Handle processes one payload.
	Handle(ctx context.Context, payload interface{}) error
}
