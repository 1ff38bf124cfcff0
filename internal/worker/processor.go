package worker

import (
	"context"
	"log/slog"
	"time"
)

// processJob runs the job through the orchestrator under the worker's job timeout
func (w *Worker) processJob(ctx context.Context, msg *JobMessage) error {
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	start := time.Now()
	err := w.runner.Run(jobCtx, msg.JobID)

	logger := w.logger.With(
		slog.String("job_id", msg.JobID),
		slog.Duration("duration", time.Since(start)),
	)
	if err != nil {
		logger.Warn("Job run returned an error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Job run finished")
	return nil
}
