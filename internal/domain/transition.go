package domain

import (
	"fmt"
	"math"
	"time"
)

// TransitionKind names a legal move of the job state machine
type TransitionKind string

const (
	// TransitionStart moves a queued job to running at its first step
	TransitionStart TransitionKind = "start"
	// TransitionRecordStep records the outcome of the current step
	TransitionRecordStep TransitionKind = "record_step"
	// TransitionFail fails a non-terminal job outside of step execution
	TransitionFail TransitionKind = "fail"
	// TransitionRecordAttempts stores the attempts an interrupted step already used
	TransitionRecordAttempts TransitionKind = "record_attempts"
	// TransitionClaim takes the execution lease of a non-terminal job
	TransitionClaim TransitionKind = "claim"
	// TransitionHeartbeat renews the lease held by Owner
	TransitionHeartbeat TransitionKind = "heartbeat"
	// TransitionRelease drops the lease held by Owner
	TransitionRelease TransitionKind = "release"
)

// Transition is a requested state change, validated by Job.Apply. A non-empty Owner
// requires the job's lease to be held by that worker.
type Transition struct {
	Kind     TransitionKind
	Step     string
	Result   StepResult
	Reason   string
	Attempts int
	Owner    string
	Lease    time.Duration
}

// Start returns the queued -> running transition
func Start() Transition {
	return Transition{Kind: TransitionStart}
}

// RecordStep returns the transition recording result for step
func RecordStep(step string, result StepResult) Transition {
	return Transition{Kind: TransitionRecordStep, Step: step, Result: result}
}

// Fail returns a transition failing the job with reason
func Fail(reason string) Transition {
	return Transition{Kind: TransitionFail, Reason: reason}
}

// RecordAttempts returns the transition storing attempts spent on step without a result
func RecordAttempts(step string, attempts int) Transition {
	return Transition{Kind: TransitionRecordAttempts, Step: step, Attempts: attempts}
}

// Claim returns the transition giving owner the lease. A lease renewed within the last
// lease duration by another worker blocks the claim.
func Claim(owner string, lease time.Duration) Transition {
	return Transition{Kind: TransitionClaim, Owner: owner, Lease: lease}
}

// Heartbeat returns the transition renewing owner's lease
func Heartbeat(owner string) Transition {
	return Transition{Kind: TransitionHeartbeat, Owner: owner}
}

// Release returns the transition dropping owner's lease
func Release(owner string) Transition {
	return Transition{Kind: TransitionRelease, Owner: owner}
}

// By returns t restricted to the holder of the lease
func (t Transition) By(owner string) Transition {
	t.Owner = owner
	return t
}

// Apply validates t against the job's current state and mutates the job in place.
// The job is left untouched when an error is returned.
func (j *Job) Apply(t Transition, now time.Time) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, j.ID, j.Status)
	}

	switch t.Kind {
	case TransitionClaim, TransitionHeartbeat, TransitionRelease:
		return j.applyLease(t, now)
	}

	if t.Owner != "" && j.ClaimedBy != t.Owner {
		return fmt.Errorf("%w: job %s is claimed by %q", ErrLeaseLost, j.ID, j.ClaimedBy)
	}

	switch t.Kind {
	case TransitionStart:
		if j.Status != JobStatusQueued {
			return fmt.Errorf("%w: cannot start job in status %s", ErrInvalidTransition, j.Status)
		}
		j.Status = JobStatusRunning
		j.CurrentStep = j.Steps[0]

	case TransitionRecordStep:
		if err := j.recordStep(t.Step, t.Result); err != nil {
			return err
		}

	case TransitionFail:
		reason := t.Reason
		if reason == "" {
			reason = "job failed"
		}
		j.Status = JobStatusFailed
		j.ErrorMessage = reason

	case TransitionRecordAttempts:
		return j.recordAttempts(t.Step, t.Attempts)

	default:
		return fmt.Errorf("%w: unknown transition %q", ErrInvalidTransition, t.Kind)
	}

	if j.Status.IsTerminal() {
		j.ClaimedBy = ""
		j.HeartbeatAt = time.Time{}
		j.Attempts = map[string]int{}
	}
	j.UpdatedAt = now
	return nil
}

// applyLease handles the lease transitions; they leave UpdatedAt alone
func (j *Job) applyLease(t Transition, now time.Time) error {
	if t.Owner == "" {
		return fmt.Errorf("%w: %s requires an owner", ErrInvalidTransition, t.Kind)
	}

	switch t.Kind {
	case TransitionClaim:
		if j.ClaimedBy != t.Owner && j.LeaseHeld(now, t.Lease) {
			return fmt.Errorf("%w: job %s is leased by %q", ErrJobBusy, j.ID, j.ClaimedBy)
		}
		j.ClaimedBy = t.Owner
		j.HeartbeatAt = now

	case TransitionHeartbeat:
		if j.ClaimedBy != t.Owner {
			return fmt.Errorf("%w: job %s is claimed by %q", ErrLeaseLost, j.ID, j.ClaimedBy)
		}
		j.HeartbeatAt = now

	case TransitionRelease:
		if j.ClaimedBy == t.Owner {
			j.ClaimedBy = ""
			j.HeartbeatAt = time.Time{}
		}
	}
	return nil
}

func (j *Job) recordAttempts(step string, attempts int) error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: cannot record attempts for job in status %s", ErrInvalidTransition, j.Status)
	}
	if step != j.CurrentStep {
		return fmt.Errorf("%w: step %q is not the current step %q", ErrInvalidTransition, step, j.CurrentStep)
	}
	if attempts < j.Attempts[step] {
		return fmt.Errorf("%w: attempts for step %q cannot decrease", ErrInvalidTransition, step)
	}
	if j.Attempts == nil {
		j.Attempts = map[string]int{}
	}
	j.Attempts[step] = attempts
	return nil
}

func (j *Job) recordStep(step string, result StepResult) error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: cannot record step %q for job in status %s", ErrInvalidTransition, step, j.Status)
	}
	if step != j.CurrentStep {
		return fmt.Errorf("%w: step %q is not the current step %q", ErrInvalidTransition, step, j.CurrentStep)
	}
	if result.Interrupted {
		return fmt.Errorf("%w: interrupted result for step %q", ErrInvalidTransition, step)
	}

	idx := j.StepIndex(step)

	switch result.Outcome {
	case OutcomeSuccess, OutcomeSkipped:
		j.StepResults[step] = result
		delete(j.Attempts, step)
		done := idx + 1
		if done == len(j.Steps) {
			j.Status = JobStatusCompleted
			j.CurrentStep = ""
			j.Progress = 100
			j.Result = j.buildArtifact()
			return nil
		}
		j.CurrentStep = j.Steps[done]
		j.Progress = nextProgress(j.Progress, done, len(j.Steps))

	case OutcomeFailure:
		if result.Error == "" {
			result.Error = fmt.Sprintf("step %s failed", step)
		}
		j.StepResults[step] = result
		j.Status = JobStatusFailed
		j.ErrorMessage = result.Error

	default:
		return fmt.Errorf("%w: unknown outcome %q for step %q", ErrInvalidTransition, result.Outcome, step)
	}

	return nil
}

// nextProgress is round(100*done/total), never decreasing and held below 100 until completion
func nextProgress(current, done, total int) int {
	p := int(math.Round(100 * float64(done) / float64(total)))
	if p > 99 {
		p = 99
	}
	if p < current {
		p = current
	}
	return p
}

func (j *Job) buildArtifact() *Artifact {
	a := &Artifact{}
	for _, step := range j.Steps {
		out := j.StepResults[step].Output
		if v := out[OutputContentURI]; v != "" {
			a.ContentURI = v
		}
		if v := out[OutputTokenID]; v != "" {
			a.TokenID = v
		}
		if v := out[OutputTxHash]; v != "" {
			a.TxHash = v
		}
	}
	return a
}
