package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-w.stopChan:
			logger.Debug("Worker goroutine stopping - stopChan closed")
			return

		case <-ctx.Done():
			logger.Debug("Worker goroutine stopping - context canceled")
			return

		case msg := <-w.jobsChan:
			logger.Info("Worker received job",
				slog.String("job_id", msg.JobID),
				slog.Uint64("delivery_tag", msg.DeliveryTag),
			)

			err := w.processJob(ctx, msg)
			w.settle(logger, msg, err)
		}
	}
}

// settle acks or nacks msg with its source based on the processing result
func (w *Worker) settle(logger *slog.Logger, msg *JobMessage, err error) {
	logger = logger.With(slog.String("job_id", msg.JobID))

	if err == nil || !w.shouldRetry(err) {
		if err != nil {
			logger.Warn("Dropping job message", slog.String("error", err.Error()))
		}
		if msg.ack == nil {
			return
		}
		if ackErr := msg.ack(); ackErr != nil {
			logger.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
		}
		return
	}

	requeue := !msg.Redelivered || isInterruption(err)
	logger.Error("Job processing failed",
		slog.String("error", err.Error()),
		slog.Bool("requeue", requeue),
	)

	if msg.nack == nil {
		// in-process jobs stay unfinished in the store until the next resume
		return
	}
	if nackErr := msg.nack(requeue); nackErr != nil {
		logger.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
	}
}

// shouldRetry reports whether another delivery of the message could make progress.
// A job that was found terminal or missing is settled, and so is one whose lease another
// worker holds: that worker finishes it, or lease recovery re-dispatches it.
func (w *Worker) shouldRetry(err error) bool {
	switch {
	case errors.Is(err, domain.ErrJobBusy):
		return false
	case errors.Is(err, domain.ErrLeaseLost):
		return false
	case errors.Is(err, domain.ErrNotFound):
		return false
	case errors.Is(err, domain.ErrInvalidTransition):
		return false
	case errors.Is(err, domain.ErrInvalidInput):
		return false
	}
	return true
}

// isInterruption reports whether the job stopped because its context ended; such jobs
// are always requeued since the step never finished. The attempts they used are kept on
// the job, so the step's retry budget still bounds the redeliveries.
func isInterruption(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
