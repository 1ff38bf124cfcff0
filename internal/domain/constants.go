package domain

// JobStatus is the lifecycle state of a processing job
type JobStatus string

// Job status constants
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no transition can leave this status
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// StepOutcome is the recorded result of one pipeline step
type StepOutcome string

// Step outcome constants
const (
	OutcomeSuccess StepOutcome = "success"
	OutcomeFailure StepOutcome = "failure"
	OutcomeSkipped StepOutcome = "skipped"
)

// Pipeline step names
const (
	StepValidate  = "validate"
	StepTranscode = "transcode"
	StepPin       = "pin"
	StepMint      = "mint"
	StepIndex     = "index"
)

// JobTypeVideo is the default job type for uploaded videos
const JobTypeVideo = "video"

// Step output keys that feed the final artifact
const (
	OutputContentURI = "content_uri"
	OutputCID        = "cid"
	OutputTokenID    = "token_id"
	OutputTxHash     = "tx_hash"
	OutputMediaURI   = "media_uri"
)
