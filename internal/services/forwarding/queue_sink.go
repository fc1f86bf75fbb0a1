package forwarding

import (
	"context"
	"fmt"

	"github.com/promoledger/backend/internal/queue"
)

// Enqueuer is the part of the job queue the sink needs
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...queue.EnqueueOption) (string, error)
}

// QueueSink enqueues events for the postback worker
type QueueSink struct {
	queue Enqueuer
}

// NewQueueSink creates a queue backed sink
func NewQueueSink(q Enqueuer) *QueueSink {
	return &QueueSink{queue: q}
}

func (s *QueueSink) Name() string { return "queue" }

// Forward enqueues a forward_conversion job
func (s *QueueSink) Forward(ctx context.Context, event ConversionEvent) error {
	if _, err := s.queue.Enqueue(ctx, queue.QueueForwardConversion, event); err != nil {
		return fmt.Errorf("error enqueueing conversion %s: %w", event.ConversionID, err)
	}
	return nil
}
