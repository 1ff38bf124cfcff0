package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/jobstore"
)

// enqueueFailedReason is recorded on jobs that could not be handed to a worker
const enqueueFailedReason = "failed to enqueue job"

// DefaultLease is used when Config leaves Lease at zero
const (
	DefaultLease       = 2 * time.Minute
	bookkeepingTimeout = 5 * time.Second
	heartbeatsPerLease = 3
)

// Dispatcher hands a job to whatever executes it (a local worker pool or a message queue)
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// Publisher makes a completed job visible as a content item
type Publisher interface {
	Publish(ctx context.Context, content domain.Content) error
}

// Config holds the collaborators of an Orchestrator
type Config struct {
	Store      jobstore.Store
	Runner     *Runner
	Dispatcher Dispatcher
	Publisher  Publisher
	// Pipelines maps a job type to its ordered step names
	Pipelines map[string][]string
	Logger    *slog.Logger

	// WorkerID names this process on the lease it takes; a random id is used when empty
	WorkerID string
	// Lease is how long a claim stays valid without a heartbeat
	Lease time.Duration
	// HeartbeatInterval is how often a running job's lease is renewed; it must be below Lease
	HeartbeatInterval time.Duration
}

// Orchestrator drives jobs through their steps, one step at a time, persisting every transition
type Orchestrator struct {
	store      jobstore.Store
	runner     *Runner
	dispatcher Dispatcher
	publisher  Publisher
	pipelines  map[string][]string
	logger     *slog.Logger
	now        func() time.Time

	workerID          string
	lease             time.Duration
	heartbeatInterval time.Duration

	inflight sync.Map
}

// NewOrchestrator creates a new Orchestrator. Every step of every pipeline must be registered on the runner.
func NewOrchestrator(cfg *Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("job store is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("step runner is required")
	}
	if len(cfg.Pipelines) == 0 {
		return nil, errors.New("at least one pipeline is required")
	}

	for jobType, steps := range cfg.Pipelines {
		if len(steps) == 0 {
			return nil, fmt.Errorf("pipeline %q has no steps", jobType)
		}
		for _, s := range steps {
			if !cfg.Runner.Has(s) {
				return nil, fmt.Errorf("pipeline %q uses unregistered step %q", jobType, s)
			}
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lease := cfg.Lease
	if lease <= 0 {
		lease = DefaultLease
	}
	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = lease / heartbeatsPerLease
	}
	if interval >= lease {
		return nil, fmt.Errorf("heartbeat interval %s must be shorter than lease %s", interval, lease)
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "orchestrator-" + uuid.NewString()[:8]
	}

	return &Orchestrator{
		store:      cfg.Store,
		runner:     cfg.Runner,
		dispatcher: cfg.Dispatcher,
		publisher:  cfg.Publisher,
		pipelines:  cfg.Pipelines,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },

		workerID:          workerID,
		lease:             lease,
		heartbeatInterval: interval,
	}, nil
}

// SetDispatcher sets the dispatcher after construction, for workers that need the orchestrator themselves
func (o *Orchestrator) SetDispatcher(d Dispatcher) {
	o.dispatcher = d
}

// Submit creates a queued job for owner and dispatches it. A job that cannot be dispatched
// is returned in the failed state rather than left queued forever.
func (o *Orchestrator) Submit(ctx context.Context, owner, jobType string, input domain.Submission) (*domain.Job, error) {
	if jobType == "" {
		jobType = domain.JobTypeVideo
	}

	steps, ok := o.pipelines[jobType]
	if !ok {
		return nil, domain.InvalidInputf("unsupported job type %q", jobType)
	}

	job, err := domain.NewJob(owner, jobType, steps, input, o.now())
	if err != nil {
		return nil, err
	}

	if err := o.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	logger := o.logger.With(slog.String("job_id", job.ID), slog.String("owner", job.OwnerIdentity))
	logger.Info("Job submitted", slog.String("job_type", jobType), slog.Int("steps", len(steps)))

	if o.dispatcher == nil {
		return job, nil
	}

	if err := o.dispatcher.Dispatch(ctx, job.ID); err != nil {
		logger.Error("Failed to dispatch job", slog.String("error", err.Error()))

		failed, ferr := o.store.Transition(ctx, job.ID, domain.Fail(enqueueFailedReason))
		if ferr != nil {
			return nil, fmt.Errorf("failed to dispatch job: %w", errors.Join(err, ferr))
		}
		return failed, nil
	}

	return job, nil
}

// Run executes the job to a terminal state or until ctx ends. Running a terminal job is a
// no-op apart from making sure a completed job is published. The job's lease is claimed
// first and renewed while steps run: a job running in this process, or leased by a live
// worker elsewhere, returns domain.ErrJobBusy. Losing the lease stops the run with
// domain.ErrLeaseLost.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	if _, loaded := o.inflight.LoadOrStore(jobID, struct{}{}); loaded {
		return fmt.Errorf("job %s: %w", jobID, domain.ErrJobBusy)
	}
	defer o.inflight.Delete(jobID)

	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	logger := o.logger.With(slog.String("job_id", job.ID), slog.String("worker_id", o.workerID))

	if job.Status.IsTerminal() {
		logger.Debug("Job already finished", slog.String("status", string(job.Status)))
		if job.Status == domain.JobStatusCompleted {
			return o.publish(ctx, job)
		}
		return nil
	}

	job, err = o.store.Transition(ctx, jobID, domain.Claim(o.workerID, o.lease))
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}

	runCtx, stop := context.WithCancelCause(ctx)
	beating := make(chan struct{})
	go func() {
		defer close(beating)
		o.heartbeat(runCtx, stop, jobID, logger)
	}()
	defer func() {
		stop(nil)
		<-beating
		if job == nil || !job.Status.IsTerminal() {
			o.release(ctx, jobID, logger)
		}
	}()

	if job.Status == domain.JobStatusQueued {
		job, err = o.store.Transition(ctx, jobID, domain.Start().By(o.workerID))
		if err != nil {
			return fmt.Errorf("failed to start job: %w", err)
		}
		logger.Info("Job started", slog.String("step", job.CurrentStep))
	} else {
		logger.Info("Resuming job", slog.String("step", job.CurrentStep))
	}

	for job.Status == domain.JobStatusRunning {
		step := job.CurrentStep
		result := o.runner.Run(runCtx, step, job)
		if result.Interrupted {
			cause := context.Cause(runCtx)
			logger.Warn("Job interrupted", slog.String("step", step), slog.Int("attempts", result.Attempts), slog.Any("cause", cause))
			if !errors.Is(cause, domain.ErrLeaseLost) {
				o.recordAttempts(ctx, jobID, step, result.Attempts, logger)
			}
			return fmt.Errorf("job %s interrupted at step %s: %w", jobID, step, cause)
		}

		next, err := o.store.Transition(ctx, jobID, domain.RecordStep(step, result).By(o.workerID))
		if err != nil {
			return fmt.Errorf("failed to record step %s: %w", step, err)
		}
		job = next

		logger.Info("Step recorded",
			slog.String("step", step),
			slog.String("outcome", string(result.Outcome)),
			slog.Int("progress", job.Progress),
		)
	}

	switch job.Status {
	case domain.JobStatusCompleted:
		logger.Info("Job completed", slog.String("token_id", job.Result.TokenID))
		return o.publish(ctx, job)
	case domain.JobStatusFailed:
		logger.Warn("Job failed", slog.String("error", job.ErrorMessage))
	}

	return nil
}

// heartbeat renews the lease until ctx ends. A lease taken over by another worker
// cancels ctx with domain.ErrLeaseLost.
func (o *Orchestrator) heartbeat(ctx context.Context, stop context.CancelCauseFunc, jobID string, logger *slog.Logger) {
	ticker := time.NewTicker(o.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := o.store.Transition(ctx, jobID, domain.Heartbeat(o.workerID))
			switch {
			case err == nil:
				logger.Debug("Job heartbeat updated")
			case errors.Is(err, domain.ErrLeaseLost):
				logger.Error("Job lease lost, stopping run", slog.String("error", err.Error()))
				stop(err)
				return
			case ctx.Err() != nil:
				return
			default:
				logger.Warn("Failed to update job heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

// recordAttempts persists the attempts an interrupted step used, even after ctx ended
func (o *Orchestrator) recordAttempts(ctx context.Context, jobID, step string, attempts int, logger *slog.Logger) {
	if attempts <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	if _, err := o.store.Transition(ctx, jobID, domain.RecordAttempts(step, attempts).By(o.workerID)); err != nil {
		logger.Error("Failed to record step attempts",
			slog.String("step", step),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)
	}
}

// release drops the lease so another worker can resume the job without waiting for expiry
func (o *Orchestrator) release(ctx context.Context, jobID string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	_, err := o.store.Transition(ctx, jobID, domain.Release(o.workerID))
	if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		logger.Warn("Failed to release job lease", slog.String("error", err.Error()))
	}
}

// Resume dispatches every queued job and every running job without a live lease,
// typically after a restart. It returns the number of jobs dispatched.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	return o.redispatch(ctx, "Resumed unfinished jobs", func(job *domain.Job, now time.Time) bool {
		return job.Status == domain.JobStatusQueued || !job.LeaseHeld(now, o.lease)
	})
}

// Recover dispatches running jobs whose lease expired, taking over from workers that died
// mid-step. Queued jobs are left to their pending dispatch.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	return o.redispatch(ctx, "Recovered abandoned jobs", func(job *domain.Job, now time.Time) bool {
		return job.Status == domain.JobStatusRunning && !job.LeaseHeld(now, o.lease)
	})
}

// WatchLeases runs Recover every interval until ctx ends. A non-positive interval disables it.
func (o *Orchestrator) WatchLeases(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.Recover(ctx); err != nil && ctx.Err() == nil {
				o.logger.Error("Failed to recover abandoned jobs", slog.String("error", err.Error()))
			}
		}
	}
}

func (o *Orchestrator) redispatch(ctx context.Context, msg string, want func(*domain.Job, time.Time) bool) (int, error) {
	if o.dispatcher == nil {
		return 0, errors.New("no dispatcher configured")
	}

	jobs, err := o.store.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}

	now := o.now()
	found, dispatched := 0, 0
	for _, job := range jobs {
		if !want(job, now) {
			continue
		}
		found++
		if err := o.dispatcher.Dispatch(ctx, job.ID); err != nil {
			o.logger.Error("Failed to re-dispatch job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		dispatched++
	}

	if found > 0 {
		o.logger.Info(msg, slog.Int("found", found), slog.Int("dispatched", dispatched))
	}
	return dispatched, nil
}

// Get returns the job if identity owns it
func (o *Orchestrator) Get(ctx context.Context, jobID, identity string) (*domain.Job, error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.OwnedBy(identity) {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrForbidden)
	}
	return job, nil
}

// List returns the jobs submitted by identity, newest first
func (o *Orchestrator) List(ctx context.Context, identity string) ([]*domain.Job, error) {
	return o.store.ListByOwner(ctx, identity)
}

func (o *Orchestrator) publish(ctx context.Context, job *domain.Job) error {
	if o.publisher == nil || job.Result == nil {
		return nil
	}

	content := domain.Content{
		ID:         job.ID,
		Owner:      job.OwnerIdentity,
		Title:      job.Input.Title,
		ContentURI: job.Result.ContentURI,
		TokenID:    job.Result.TokenID,
		TxHash:     job.Result.TxHash,
		CreatedAt:  job.UpdatedAt,
	}

	if err := o.publisher.Publish(ctx, content); err != nil {
		return fmt.Errorf("failed to publish content %s: %w", job.ID, err)
	}
	return nil
}
