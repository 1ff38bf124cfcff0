package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer is the queue side of the RabbitMQ client
type Consumer interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// setupConsumer sets up RabbitMQ consumer with QoS and returns delivery channel
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	// prefetch bounds unacknowledged deliveries held by this consumer
	if err := w.consumer.Qos(w.prefetchCount); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := w.consumer.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	return deliveries, nil
}

// startMessageDispatcher turns deliveries into job messages for the pool. It returns an
// error when the broker closes the delivery channel while the worker is still running.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	w.logger.Info("Message dispatcher started", slog.String("worker_id", w.workerID))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Warn("RabbitMQ delivery channel closed")
				return errors.New("rabbitmq delivery channel closed")
			}

			msg, err := decodeMessage(delivery)
			if err != nil {
				w.logger.Error("Rejecting malformed job message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages go to the dead letter exchange, if one is bound
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message", slog.String("error", nackErr.Error()))
				}
				continue
			}

			if err := w.Enqueue(ctx, msg); err != nil {
				w.logger.Info("Message dispatcher stopped while dispatching job", slog.String("job_id", msg.JobID))
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown", slog.String("error", nackErr.Error()))
				}
				return nil
			}
		}
	}
}

func decodeMessage(delivery amqp.Delivery) (*JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		return nil, fmt.Errorf("invalid message json: %w", err)
	}
	if _, err := uuid.Parse(msg.JobID); err != nil {
		return nil, fmt.Errorf("invalid job_id %q: %w", msg.JobID, err)
	}

	msg.DeliveryTag = delivery.DeliveryTag
	msg.Redelivered = delivery.Redelivered
	msg.ack = func() error { return delivery.Ack(false) }
	msg.nack = func(requeue bool) error { return delivery.Nack(false, requeue) }
	return &msg, nil
}
