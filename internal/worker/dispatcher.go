package worker

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher is the publishing side of the RabbitMQ client
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// QueueDispatcher hands jobs to worker-service instances through RabbitMQ
type QueueDispatcher struct {
	publisher Publisher
}

// NewQueueDispatcher creates a new QueueDispatcher
func NewQueueDispatcher(publisher Publisher) *QueueDispatcher {
	return &QueueDispatcher{publisher: publisher}
}

// Dispatch publishes a persistent job message for jobID
func (d *QueueDispatcher) Dispatch(ctx context.Context, jobID string) error {
	body, err := json.Marshal(JobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	if err := d.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish job %s: %w", jobID, err)
	}
	return nil
}
