// Package jobstore persists processing jobs and applies their state transitions atomically.
package jobstore

import (
	"context"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

// Store is the single owner of job records. Transition is the only mutation after Create,
// and it is atomic per job: concurrent callers never interleave a read-modify-write.
type Store interface {
	// Create persists a freshly built queued job
	Create(ctx context.Context, job *domain.Job) error

	// Get returns a copy of the job or domain.ErrNotFound
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// Transition validates and applies t, returning the updated job once it is durable
	Transition(ctx context.Context, jobID string, t domain.Transition) (*domain.Job, error)

	// ListByOwner returns the owner's jobs, newest first
	ListByOwner(ctx context.Context, owner string) ([]*domain.Job, error)

	// ListUnfinished returns queued and running jobs, oldest first
	ListUnfinished(ctx context.Context) ([]*domain.Job, error)
}
