package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

// MemoryStore keeps jobs in process memory. It is the default for local runs and tests.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*domain.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("failed to create job: job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Transition(ctx context.Context, jobID string, t domain.Transition) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}

	next := job.Clone()
	if err := next.Apply(t, s.now()); err != nil {
		return nil, err
	}
	next.Version = job.Version + 1
	s.jobs[jobID] = next

	return next.Clone(), nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, owner string) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*domain.Job
	for _, job := range s.jobs {
		if job.OwnedBy(owner) {
			jobs = append(jobs, job.Clone())
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *MemoryStore) ListUnfinished(ctx context.Context) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*domain.Job
	for _, job := range s.jobs {
		if !job.Status.IsTerminal() {
			jobs = append(jobs, job.Clone())
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}
