package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

func projectedJob(t *testing.T, transitions ...domain.Transition) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(owner, domain.JobTypeVideo,
		[]string{domain.StepValidate, domain.StepPin, domain.StepMint}, domain.Submission{Title: "clip"}, time.Now().UTC())
	require.NoError(t, err)
	for _, tr := range transitions {
		require.NoError(t, job.Apply(tr, time.Now().UTC()))
	}
	return job
}

func success(output map[string]string) domain.StepResult {
	return domain.StepResult{Outcome: domain.OutcomeSuccess, Output: output, Attempts: 1}
}

func TestProject_StepStatuses(t *testing.T) {
	tests := []struct {
		name        string
		transitions []domain.Transition
		wantStatus  domain.JobStatus
		wantCurrent string
		wantSteps   []StepStatus
	}{
		{
			name:       "queued",
			wantStatus: domain.JobStatusQueued,
			wantSteps:  []StepStatus{StepPending, StepPending, StepPending},
		},
		{
			name:        "running first step",
			transitions: []domain.Transition{domain.Start()},
			wantStatus:  domain.JobStatusRunning,
			wantCurrent: domain.StepValidate,
			wantSteps:   []StepStatus{StepProcessing, StepPending, StepPending},
		},
		{
			name: "running middle step",
			transitions: []domain.Transition{
				domain.Start(),
				domain.RecordStep(domain.StepValidate, success(nil)),
			},
			wantStatus:  domain.JobStatusRunning,
			wantCurrent: domain.StepPin,
			wantSteps:   []StepStatus{StepCompleted, StepProcessing, StepPending},
		},
		{
			name: "failed at pin",
			transitions: []domain.Transition{
				domain.Start(),
				domain.RecordStep(domain.StepValidate, success(nil)),
				domain.RecordStep(domain.StepPin, domain.StepResult{Outcome: domain.OutcomeFailure, Error: "pin failed", Attempts: 3}),
			},
			wantStatus:  domain.JobStatusFailed,
			wantCurrent: domain.StepPin,
			wantSteps:   []StepStatus{StepCompleted, StepError, StepPending},
		},
		{
			name: "completed",
			transitions: []domain.Transition{
				domain.Start(),
				domain.RecordStep(domain.StepValidate, success(nil)),
				domain.RecordStep(domain.StepPin, success(map[string]string{domain.OutputContentURI: "ipfs://bafy"})),
				domain.RecordStep(domain.StepMint, success(map[string]string{domain.OutputTokenID: "9", domain.OutputTxHash: "0x1"})),
			},
			wantStatus: domain.JobStatusCompleted,
			wantSteps:  []StepStatus{StepCompleted, StepCompleted, StepCompleted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := projectedJob(t, tt.transitions...)

			view := Project(job)

			assert.Equal(t, job.ID, view.ProcessingID)
			assert.Equal(t, tt.wantStatus, view.Status)
			assert.Equal(t, job.Progress, view.Progress)
			if tt.wantCurrent == "" {
				assert.Nil(t, view.CurrentStep)
			} else {
				require.NotNil(t, view.CurrentStep)
				assert.Equal(t, tt.wantCurrent, *view.CurrentStep)
			}

			got := make([]StepStatus, 0, len(view.Steps))
			for _, s := range view.Steps {
				got = append(got, s.Status)
			}
			assert.Equal(t, tt.wantSteps, got)
		})
	}
}

func TestProject_CompletedResult(t *testing.T) {
	job := projectedJob(t,
		domain.Start(),
		domain.RecordStep(domain.StepValidate, success(nil)),
		domain.RecordStep(domain.StepPin, success(map[string]string{domain.OutputContentURI: "ipfs://bafy"})),
		domain.RecordStep(domain.StepMint, success(map[string]string{domain.OutputTokenID: "9", domain.OutputTxHash: "0x1"})),
	)

	view := Project(job)

	require.NotNil(t, view.Result)
	assert.Equal(t, ResultView{TokenID: "9", ContentURI: "ipfs://bafy", TransactionHash: "0x1"}, *view.Result)
	assert.Equal(t, 100, view.Progress)
}

func TestProject_JSONShape(t *testing.T) {
	job := projectedJob(t, domain.Start())

	raw, err := json.Marshal(Project(job))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, job.ID, decoded["processingId"])
	assert.Equal(t, "running", decoded["status"])
	assert.Equal(t, domain.StepValidate, decoded["currentStep"])
	assert.Contains(t, decoded, "perStepStatus")
	assert.NotContains(t, decoded, "steps")
	assert.NotContains(t, decoded, "result")
	assert.NotContains(t, decoded, "errorMessage")
}

func TestProject_DoesNotShareState(t *testing.T) {
	job := projectedJob(t, domain.Start())

	view := Project(job)
	*view.CurrentStep = "tampered"
	view.Steps[0].Name = "tampered"

	assert.Equal(t, domain.StepValidate, job.CurrentStep)
	assert.Equal(t, domain.StepValidate, job.Steps[0])
}

func TestProjectAll_PreservesOrder(t *testing.T) {
	a := projectedJob(t)
	b := projectedJob(t, domain.Start())

	views := ProjectAll([]*domain.Job{a, b})

	require.Len(t, views, 2)
	assert.Equal(t, a.ID, views[0].ProcessingID)
	assert.Equal(t, b.ID, views[1].ProcessingID)
}
