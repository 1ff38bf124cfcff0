// Package worker runs processing jobs on a fixed pool of goroutines. Jobs arrive either from
// a RabbitMQ queue or from the in-process Dispatch call.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/pipeline"
)

const (
	defaultConcurrency = 4
	defaultQueueSize   = 128
	defaultJobTimeout  = 30 * time.Minute
)

// ErrStopped is returned by Dispatch once the worker stopped accepting jobs
var ErrStopped = errors.New("worker stopped")

// JobRunner executes one job until it is terminal or ctx ends
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// JobMessage is one job handed to the pool. Ack and Nack settle the message with its source
// and are nil for in-process jobs.
type JobMessage struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
	Redelivered bool   `json:"-"`

	ack  func() error
	nack func(requeue bool) error
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Runner        JobRunner
	Consumer      Consumer // nil for in-process mode
	Concurrency   int
	QueueSize     int
	PrefetchCount int
	JobTimeout    time.Duration
	WorkerID      string
}

// Worker represents the background job worker
type Worker struct {
	logger        *slog.Logger
	runner        JobRunner
	consumer      Consumer
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration
	workerID      string

	jobsChan chan *JobMessage
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ pipeline.Dispatcher = (*Worker)(nil)

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}

	return &Worker{
		logger:        cfg.Logger,
		runner:        cfg.Runner,
		consumer:      cfg.Consumer,
		concurrency:   concurrency,
		prefetchCount: prefetch,
		jobTimeout:    jobTimeout,
		workerID:      workerID,
		jobsChan:      make(chan *JobMessage, queueSize),
		stopChan:      make(chan struct{}),
	}
}

// Start spawns the pool and, with a consumer configured, feeds it from the queue.
// It blocks until ctx is cancelled or the consumer fails.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Bool("queue_consumer", w.consumer != nil),
	)

	w.spawnWorkerPool(ctx)

	g, gctx := errgroup.WithContext(ctx)

	if w.consumer != nil {
		deliveries, err := w.setupConsumer()
		if err != nil {
			return err
		}
		g.Go(func() error {
			return w.startMessageDispatcher(gctx, deliveries)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}

	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Dispatch queues jobID for in-process execution
func (w *Worker) Dispatch(ctx context.Context, jobID string) error {
	return w.Enqueue(ctx, &JobMessage{JobID: jobID})
}

// Enqueue hands msg to the pool, waiting for room until ctx ends
func (w *Worker) Enqueue(ctx context.Context, msg *JobMessage) error {
	select {
	case <-w.stopChan:
		return ErrStopped
	default:
	}

	select {
	case w.jobsChan <- msg:
		w.logger.Debug("Job dispatched to worker pool", slog.String("job_id", msg.JobID))
		return nil
	case <-w.stopChan:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("failed to enqueue job %s: %w", msg.JobID, ctx.Err())
	}
}

// Stop gracefully stops the worker and waits for running jobs to return
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
		w.wg.Wait()
		w.logger.Info("Worker stopped")
	})
}
