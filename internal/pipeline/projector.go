package pipeline

import (
	"time"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

// StepStatus is the per-step state shown to a polling client
type StepStatus string

// Step status constants
const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

// StepView is one step in a StatusView
type StepView struct {
	Name     string     `json:"name"`
	Status   StepStatus `json:"status"`
	Attempts int        `json:"attempts,omitempty"`
}

// ResultView is the artifact of a completed job
type ResultView struct {
	TokenID         string `json:"tokenId"`
	ContentURI      string `json:"contentUri"`
	TransactionHash string `json:"transactionHash"`
}

// StatusView is the client-facing projection of a job
type StatusView struct {
	ProcessingID string           `json:"processingId"`
	JobType      string           `json:"jobType"`
	Status       domain.JobStatus `json:"status"`
	Progress     int              `json:"progress"`
	CurrentStep  *string          `json:"currentStep"`
	Steps        []StepView       `json:"perStepStatus"`
	Result       *ResultView      `json:"result,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// Project derives the status view of job. It reads nothing but the job itself.
func Project(job *domain.Job) StatusView {
	view := StatusView{
		ProcessingID: job.ID,
		JobType:      job.JobType,
		Status:       job.Status,
		Progress:     job.Progress,
		Steps:        make([]StepView, 0, len(job.Steps)),
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}

	if job.CurrentStep != "" {
		current := job.CurrentStep
		view.CurrentStep = &current
	}

	current := job.StepIndex(job.CurrentStep)
	for i, name := range job.Steps {
		view.Steps = append(view.Steps, StepView{
			Name:     name,
			Status:   stepStatus(job, i, current),
			Attempts: job.StepResults[name].Attempts,
		})
	}

	if job.Status == domain.JobStatusCompleted && job.Result != nil {
		view.Result = &ResultView{
			TokenID:         job.Result.TokenID,
			ContentURI:      job.Result.ContentURI,
			TransactionHash: job.Result.TxHash,
		}
	}

	return view
}

func stepStatus(job *domain.Job, i, current int) StepStatus {
	switch {
	case job.Status == domain.JobStatusCompleted:
		return StepCompleted
	case current >= 0 && i < current:
		return StepCompleted
	case i == current && job.Status == domain.JobStatusFailed:
		return StepError
	case i == current && job.Status == domain.JobStatusRunning:
		return StepProcessing
	default:
		return StepPending
	}
}

// ProjectAll projects a list of jobs, preserving order
func ProjectAll(jobs []*domain.Job) []StatusView {
	views := make([]StatusView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, Project(j))
	}
	return views
}
