package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

const owner = "0x00000000000000000000000000000000000000a1"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedStep returns whatever fn returns for the n-th call (1-based)
type scriptedStep struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, call int) (map[string]string, error)
}

func newStep(name string, fn func(ctx context.Context, call int) (map[string]string, error)) *scriptedStep {
	return &scriptedStep{name: name, fn: fn}
}

func okStep(name string, output map[string]string) *scriptedStep {
	return newStep(name, func(context.Context, int) (map[string]string, error) {
		return output, nil
	})
}

func (s *scriptedStep) Name() string { return s.name }

func (s *scriptedStep) Execute(ctx context.Context, _ *domain.Job) (map[string]string, error) {
	n := int(s.calls.Add(1))
	return s.fn(ctx, n)
}

func (s *scriptedStep) Calls() int { return int(s.calls.Load()) }

// fastPolicy retries without waiting
var fastPolicy = RetryPolicy{MaxAttempts: 3, Timeout: time.Second, BaseDelay: -1}

func runningJob(t *testing.T, steps ...string) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(owner, domain.JobTypeVideo, steps, domain.Submission{Title: "clip"}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, job.Apply(domain.Start(), time.Now().UTC()))
	return job
}

func TestRunner_SucceedsFirstAttempt(t *testing.T) {
	step := okStep(domain.StepPin, map[string]string{domain.OutputContentURI: "ipfs://bafy"})
	runner := NewRunner(discardLogger(), fastPolicy, nil, step)

	result := runner.Run(context.Background(), domain.StepPin, runningJob(t, domain.StepPin))

	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "ipfs://bafy", result.Output[domain.OutputContentURI])
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
	assert.Equal(t, 1, step.Calls())
}

func TestRunner_Classification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCalls     int
		wantErrSubstr string
	}{
		{
			name:          "transient error is retried until the budget is spent",
			err:           domain.NewTransientError(errors.New("pinning service returned 503")),
			wantCalls:     3,
			wantErrSubstr: "503",
		},
		{
			name:          "network error is retried",
			err:           &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			wantCalls:     3,
			wantErrSubstr: "connection refused",
		},
		{
			name:          "permanent error fails immediately",
			err:           domain.NewPermanentError(errors.New("insufficient funds")),
			wantCalls:     1,
			wantErrSubstr: "insufficient funds",
		},
		{
			name:          "unclassified error is permanent",
			err:           errors.New("unexpected response"),
			wantCalls:     1,
			wantErrSubstr: "unexpected response",
		},
		{
			name:          "permanent wrapping transient stays permanent",
			err:           domain.NewPermanentError(domain.NewTransientError(errors.New("mixed"))),
			wantCalls:     1,
			wantErrSubstr: "mixed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := newStep(domain.StepMint, func(context.Context, int) (map[string]string, error) {
				return nil, tt.err
			})
			runner := NewRunner(discardLogger(), fastPolicy, nil, step)

			result := runner.Run(context.Background(), domain.StepMint, runningJob(t, domain.StepMint))

			assert.Equal(t, domain.OutcomeFailure, result.Outcome)
			assert.Equal(t, tt.wantCalls, step.Calls())
			assert.Equal(t, tt.wantCalls, result.Attempts)
			assert.Contains(t, result.Error, "mint failed")
			assert.Contains(t, result.Error, tt.wantErrSubstr)
			assert.False(t, result.Interrupted)
		})
	}
}

func TestRunner_TransientThenSuccess(t *testing.T) {
	step := newStep(domain.StepPin, func(_ context.Context, call int) (map[string]string, error) {
		if call < 3 {
			return nil, domain.NewTransientError(errors.New("gateway timeout"))
		}
		return map[string]string{domain.OutputCID: "bafy"}, nil
	})
	runner := NewRunner(discardLogger(), fastPolicy, nil, step)

	result := runner.Run(context.Background(), domain.StepPin, runningJob(t, domain.StepPin))

	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, step.Calls())
}

func TestRunner_WaitsBetweenAttempts(t *testing.T) {
	step := newStep(domain.StepPin, func(context.Context, int) (map[string]string, error) {
		return nil, domain.NewTransientError(errors.New("busy"))
	})
	policy := RetryPolicy{MaxAttempts: 3, Timeout: time.Second, BaseDelay: 10 * time.Millisecond, Multiplier: 2}
	runner := NewRunner(discardLogger(), policy, nil, step)

	start := time.Now()
	result := runner.Run(context.Background(), domain.StepPin, runningJob(t, domain.StepPin))

	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRunner_PerStepPolicy(t *testing.T) {
	step := newStep(domain.StepPin, func(context.Context, int) (map[string]string, error) {
		return nil, domain.NewTransientError(errors.New("busy"))
	})
	policies := map[string]RetryPolicy{
		domain.StepPin: {MaxAttempts: 5, Timeout: time.Second, BaseDelay: -1},
	}
	runner := NewRunner(discardLogger(), fastPolicy, policies, step)

	result := runner.Run(context.Background(), domain.StepPin, runningJob(t, domain.StepPin))

	assert.Equal(t, 5, result.Attempts)
	assert.Equal(t, 5, step.Calls())
}

func TestRunner_AttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	// ignores ctx so only the runner's own timeout can end the attempt
	step := newStep(domain.StepMint, func(context.Context, int) (map[string]string, error) {
		<-release
		return map[string]string{domain.OutputTokenID: "late"}, nil
	})
	policy := RetryPolicy{MaxAttempts: 2, Timeout: 20 * time.Millisecond, BaseDelay: -1}
	runner := NewRunner(discardLogger(), policy, nil, step)

	result := runner.Run(context.Background(), domain.StepMint, runningJob(t, domain.StepMint))

	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	assert.Equal(t, 2, result.Attempts)
	assert.Contains(t, result.Error, "timeout")
	assert.Empty(t, result.Output)
}

func TestRunner_PermanentErrorAtDeadlineIsNotRetried(t *testing.T) {
	step := newStep(domain.StepMint, func(ctx context.Context, _ int) (map[string]string, error) {
		<-ctx.Done()
		return nil, domain.NewPermanentError(errors.New("insufficient funds"))
	})
	policy := RetryPolicy{MaxAttempts: 3, Timeout: 20 * time.Millisecond, BaseDelay: -1}
	runner := NewRunner(discardLogger(), policy, nil, step)

	result := runner.Run(context.Background(), domain.StepMint, runningJob(t, domain.StepMint))

	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, step.Calls())
	assert.Contains(t, result.Error, "insufficient funds")
	assert.NotContains(t, result.Error, "timeout")
}

func TestRunner_PriorAttemptsCountAgainstBudget(t *testing.T) {
	tests := []struct {
		name         string
		prior        int
		wantCalls    int
		wantAttempts int
		wantErr      string
	}{
		{name: "one attempt left", prior: 2, wantCalls: 1, wantAttempts: 3, wantErr: "503"},
		{name: "budget already spent", prior: 3, wantCalls: 0, wantAttempts: 3, wantErr: "3 attempts used"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := newStep(domain.StepPin, func(context.Context, int) (map[string]string, error) {
				return nil, domain.NewTransientError(errors.New("pinning service returned 503"))
			})
			runner := NewRunner(discardLogger(), fastPolicy, nil, step)

			job := runningJob(t, domain.StepPin)
			job.Attempts[domain.StepPin] = tt.prior

			result := runner.Run(context.Background(), domain.StepPin, job)

			assert.Equal(t, domain.OutcomeFailure, result.Outcome)
			assert.Equal(t, tt.wantAttempts, result.Attempts)
			assert.Equal(t, tt.wantCalls, step.Calls())
			assert.Contains(t, result.Error, tt.wantErr)
		})
	}
}

func TestRunner_InterruptedResultIncludesPriorAttempts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	step := newStep(domain.StepPin, func(ctx context.Context, _ int) (map[string]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	runner := NewRunner(discardLogger(), fastPolicy, nil, step)

	job := runningJob(t, domain.StepPin)
	job.Attempts[domain.StepPin] = 1

	result := runner.Run(ctx, domain.StepPin, job)

	assert.True(t, result.Interrupted)
	assert.Equal(t, 2, result.Attempts)
}

func TestRunner_Skip(t *testing.T) {
	step := newStep(domain.StepTranscode, func(context.Context, int) (map[string]string, error) {
		return nil, domain.ErrSkipStep
	})
	runner := NewRunner(discardLogger(), fastPolicy, nil, step)

	result := runner.Run(context.Background(), domain.StepTranscode, runningJob(t, domain.StepTranscode))

	assert.Equal(t, domain.OutcomeSkipped, result.Outcome)
	assert.Equal(t, 1, step.Calls())
}

func TestRunner_IdempotentOnRecordedSuccess(t *testing.T) {
	step := okStep(domain.StepMint, map[string]string{domain.OutputTokenID: "second"})
	runner := NewRunner(discardLogger(), fastPolicy, nil, step)

	job := runningJob(t, domain.StepMint)
	recorded := domain.StepResult{
		Outcome:  domain.OutcomeSuccess,
		Output:   map[string]string{domain.OutputTokenID: "first"},
		Attempts: 2,
	}
	job.StepResults[domain.StepMint] = recorded

	result := runner.Run(context.Background(), domain.StepMint, job)

	assert.Equal(t, recorded, result)
	assert.Equal(t, 0, step.Calls(), "a recorded success must not call the collaborator again")
}

func TestRunner_UnknownStep(t *testing.T) {
	runner := NewRunner(discardLogger(), fastPolicy, nil)

	result := runner.Run(context.Background(), "render", runningJob(t, "render"))

	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	assert.Contains(t, result.Error, "unknown step")
	assert.False(t, runner.Has("render"))
}

func TestRunner_ParentCancellationInterrupts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	step := newStep(domain.StepPin, func(ctx context.Context, _ int) (map[string]string, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	runner := NewRunner(discardLogger(), fastPolicy, nil, step)

	go func() {
		<-started
		cancel()
	}()

	result := runner.Run(ctx, domain.StepPin, runningJob(t, domain.StepPin))

	assert.True(t, result.Interrupted)
	assert.Equal(t, 1, step.Calls())
}

func TestRunner_PanicIsPermanentFailure(t *testing.T) {
	step := newStep(domain.StepIndex, func(context.Context, int) (map[string]string, error) {
		panic("nil map")
	})
	runner := NewRunner(discardLogger(), fastPolicy, nil, step)

	result := runner.Run(context.Background(), domain.StepIndex, runningJob(t, domain.StepIndex))

	assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	assert.Equal(t, 1, step.Calls())
	assert.Contains(t, result.Error, "panicked")
}

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}.WithDefaults()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 0},
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 3, want: 400 * time.Millisecond},
		{attempt: 4, want: 800 * time.Millisecond},
		{attempt: 5, want: time.Second},
		{attempt: 10, want: time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicy_WithDefaults(t *testing.T) {
	p := RetryPolicy{}.WithDefaults()

	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultStepTimeout, p.Timeout)
	assert.Equal(t, DefaultBaseDelay, p.BaseDelay)
	assert.Equal(t, DefaultMultiplier, p.Multiplier)
	assert.Equal(t, DefaultMaxDelay, p.MaxDelay)

	noWait := RetryPolicy{BaseDelay: -1}.WithDefaults()
	assert.Equal(t, time.Duration(0), noWait.Backoff(3))
}
