package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Submission is the content a creator asked the pipeline to process
type Submission struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ContentType string   `json:"content_type"`
	SizeBytes   int64    `json:"size_bytes"`
	SourceURI   string   `json:"source_uri"`
	Tags        []string `json:"tags,omitempty"`
	License     string   `json:"license,omitempty"`
}

// StepResult records what happened the last time a step ran
type StepResult struct {
	Outcome    StepOutcome       `json:"outcome"`
	Output     map[string]string `json:"output,omitempty"`
	Error      string            `json:"error,omitempty"`
	Attempts   int               `json:"attempts"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`

	// Interrupted is set when the caller's context ended mid-step; such results are never persisted
	Interrupted bool `json:"-"`
}

// Artifact describes the registered IP-NFT produced by a completed job
type Artifact struct {
	TokenID    string `json:"token_id"`
	ContentURI string `json:"content_uri"`
	TxHash     string `json:"tx_hash"`
}

// Job is one content submission moving through an ordered pipeline
type Job struct {
	ID            string
	OwnerIdentity string
	JobType       string
	Status        JobStatus
	CurrentStep   string
	Steps         []string
	StepResults   map[string]StepResult
	Progress      int
	Result        *Artifact
	ErrorMessage  string
	Input         Submission
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Attempts counts attempts already spent on steps that have not recorded a result yet
	Attempts map[string]int

	// ClaimedBy is the worker holding the execution lease; HeartbeatAt is its last renewal
	ClaimedBy   string
	HeartbeatAt time.Time
}

// NewJob builds a queued job for owner with a fixed step sequence
func NewJob(owner, jobType string, steps []string, input Submission, now time.Time) (*Job, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, InvalidInputf("owner identity is required")
	}
	if len(steps) == 0 {
		return nil, InvalidInputf("step sequence must not be empty")
	}

	seen := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		if s == "" {
			return nil, InvalidInputf("step name must not be empty")
		}
		if _, dup := seen[s]; dup {
			return nil, InvalidInputf("step %q appears more than once", s)
		}
		seen[s] = struct{}{}
	}

	if jobType == "" {
		jobType = JobTypeVideo
	}

	return &Job{
		ID:            uuid.New().String(),
		OwnerIdentity: owner,
		JobType:       jobType,
		Status:        JobStatusQueued,
		Steps:         append([]string(nil), steps...),
		StepResults:   map[string]StepResult{},
		Attempts:      map[string]int{},
		Progress:      0,
		Input:         input,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// StepIndex returns the position of step in the job's sequence, or -1
func (j *Job) StepIndex(step string) int {
	for i, s := range j.Steps {
		if s == step {
			return i
		}
	}
	return -1
}

// OwnedBy reports whether identity submitted the job
func (j *Job) OwnedBy(identity string) bool {
	return identity != "" && strings.EqualFold(j.OwnerIdentity, identity)
}

// LeaseHeld reports whether a worker holds an unexpired execution lease at now
func (j *Job) LeaseHeld(now time.Time, lease time.Duration) bool {
	return j.ClaimedBy != "" && now.Before(j.HeartbeatAt.Add(lease))
}

// Clone returns a deep copy so callers never share maps or slices with a store
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}

	c := *j
	c.Steps = append([]string(nil), j.Steps...)
	c.Input.Tags = append([]string(nil), j.Input.Tags...)

	c.StepResults = make(map[string]StepResult, len(j.StepResults))
	for name, r := range j.StepResults {
		if r.Output != nil {
			out := make(map[string]string, len(r.Output))
			for k, v := range r.Output {
				out[k] = v
			}
			r.Output = out
		}
		c.StepResults[name] = r
	}

	c.Attempts = make(map[string]int, len(j.Attempts))
	for name, n := range j.Attempts {
		c.Attempts[name] = n
	}

	if j.Result != nil {
		res := *j.Result
		c.Result = &res
	}

	return &c
}
