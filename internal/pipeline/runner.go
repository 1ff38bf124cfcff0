package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

// Step is one unit of pipeline work, usually a call to an external collaborator.
// Execute must honour ctx; returning domain.ErrSkipStep records the step as skipped.
type Step interface {
	Name() string
	Execute(ctx context.Context, job *domain.Job) (map[string]string, error)
}

// Runner executes a single step with timeout, classified retries and idempotency
type Runner struct {
	steps         map[string]Step
	policies      map[string]RetryPolicy
	defaultPolicy RetryPolicy
	logger        *slog.Logger
	now           func() time.Time
}

// NewRunner creates a Runner for the given steps. policies overrides defaultPolicy per step name.
func NewRunner(logger *slog.Logger, defaultPolicy RetryPolicy, policies map[string]RetryPolicy, steps ...Step) *Runner {
	r := &Runner{
		steps:         make(map[string]Step, len(steps)),
		policies:      make(map[string]RetryPolicy, len(policies)),
		defaultPolicy: defaultPolicy.WithDefaults(),
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, s := range steps {
		r.steps[s.Name()] = s
	}
	for name, p := range policies {
		r.policies[name] = p.WithDefaults()
	}
	return r
}

// Has reports whether a step with this name is registered
func (r *Runner) Has(name string) bool {
	_, ok := r.steps[name]
	return ok
}

func (r *Runner) policyFor(name string) RetryPolicy {
	if p, ok := r.policies[name]; ok {
		return p
	}
	return r.defaultPolicy
}

// Run executes stepName for job and returns the outcome to record. It never calls the
// collaborator for a step the job already records as successful. An interrupted result
// carries the total attempts used so far, including those in job.Attempts.
func (r *Runner) Run(ctx context.Context, stepName string, job *domain.Job) domain.StepResult {
	logger := r.logger.With(slog.String("job_id", job.ID), slog.String("step", stepName))

	if prev, ok := job.StepResults[stepName]; ok && prev.Outcome == domain.OutcomeSuccess {
		logger.Debug("Step already succeeded, skipping execution")
		return prev
	}

	started := r.now()
	step, ok := r.steps[stepName]
	if !ok {
		logger.Error("Unknown pipeline step")
		return domain.StepResult{
			Outcome:    domain.OutcomeFailure,
			Error:      fmt.Sprintf("%s failed: unknown step", stepName),
			StartedAt:  started,
			FinishedAt: r.now(),
		}
	}

	policy := r.policyFor(stepName)

	// attempts spent by earlier, interrupted runs count against the budget
	prior := job.Attempts[stepName]
	if prior >= policy.MaxAttempts {
		logger.Error("Step retry budget exhausted", slog.Int("attempts", prior))
		return domain.StepResult{
			Outcome:    domain.OutcomeFailure,
			Error:      fmt.Sprintf("%s failed: %d attempts used without a result", stepName, prior),
			Attempts:   prior,
			StartedAt:  started,
			FinishedAt: r.now(),
		}
	}

	var (
		lastErr  error
		attempts int
	)
	for attempts = prior + 1; attempts <= policy.MaxAttempts; attempts++ {
		output, err := r.attempt(ctx, step, job.Clone(), policy.Timeout)
		if err == nil {
			logger.Info("Step succeeded", slog.Int("attempt", attempts))
			return domain.StepResult{
				Outcome:    domain.OutcomeSuccess,
				Output:     output,
				Attempts:   attempts,
				StartedAt:  started,
				FinishedAt: r.now(),
			}
		}

		if errors.Is(err, domain.ErrSkipStep) {
			logger.Info("Step skipped", slog.String("reason", err.Error()))
			return domain.StepResult{
				Outcome:    domain.OutcomeSkipped,
				Attempts:   attempts,
				StartedAt:  started,
				FinishedAt: r.now(),
			}
		}

		if ctx.Err() != nil {
			return r.interrupted(ctx, logger, attempts, started)
		}

		lastErr = err
		transient := isTransient(err)
		logger.Warn("Step attempt failed",
			slog.Int("attempt", attempts),
			slog.Int("max_attempts", policy.MaxAttempts),
			slog.Bool("transient", transient),
			slog.String("error", err.Error()),
		)

		if !transient || attempts == policy.MaxAttempts {
			break
		}

		delay := policy.Backoff(attempts)
		if err := sleep(ctx, delay); err != nil {
			return r.interrupted(ctx, logger, attempts, started)
		}
	}

	if attempts > policy.MaxAttempts {
		attempts = policy.MaxAttempts
	}

	logger.Error("Step failed",
		slog.Int("attempts", attempts),
		slog.String("error", lastErr.Error()),
	)

	return domain.StepResult{
		Outcome:    domain.OutcomeFailure,
		Error:      fmt.Sprintf("%s failed: %s", stepName, lastErr.Error()),
		Attempts:   attempts,
		StartedAt:  started,
		FinishedAt: r.now(),
	}
}

func (r *Runner) interrupted(ctx context.Context, logger *slog.Logger, attempts int, started time.Time) domain.StepResult {
	logger.Warn("Step interrupted", slog.Int("attempt", attempts), slog.Any("error", ctx.Err()))
	return domain.StepResult{
		Outcome:     domain.OutcomeFailure,
		Error:       ctx.Err().Error(),
		Attempts:    attempts,
		StartedAt:   started,
		FinishedAt:  r.now(),
		Interrupted: true,
	}
}

// lateResultGrace is how long an expired attempt waits for the step's own result
const lateResultGrace = 25 * time.Millisecond

type attemptOutcome struct {
	output map[string]string
	err    error
}

// attempt runs one execution of step. The call runs on its own goroutine so a collaborator
// that ignores ctx cannot hold the job past its timeout; its late result is dropped.
func (r *Runner) attempt(ctx context.Context, step Step, job *domain.Job, timeout time.Duration) (map[string]string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan attemptOutcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- attemptOutcome{err: domain.NewPermanentError(fmt.Errorf("step panicked: %v", p))}
			}
		}()
		output, err := step.Execute(attemptCtx, job)
		done <- attemptOutcome{output: output, err: err}
	}()

	timedOut := func() error {
		return domain.NewTransientError(fmt.Errorf("%w: attempt exceeded %s", domain.ErrTimeout, timeout))
	}

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return atDeadline(o, timedOut)
		}
		return o.output, o.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		grace := time.NewTimer(lateResultGrace)
		defer grace.Stop()
		select {
		case o := <-done:
			return atDeadline(o, timedOut)
		case <-grace.C:
			return nil, timedOut()
		}
	}
}

// atDeadline classifies a result that arrived as its attempt expired. A success or a
// permanent failure stands; any other error is reported as the timeout.
func atDeadline(o attemptOutcome, timedOut func() error) (map[string]string, error) {
	var permanent *domain.PermanentError
	if o.err == nil || errors.As(o.err, &permanent) {
		return o.output, o.err
	}
	return nil, timedOut()
}

// isTransient classifies a step failure. Unclassified errors are treated as permanent.
func isTransient(err error) bool {
	var permanent *domain.PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	if domain.IsTransient(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
