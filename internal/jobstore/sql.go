package jobstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/shared/sqldb"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultCASRetries = 5

const jobColumns = `
	id, owner_identity, job_type, status, current_step, steps, step_results,
	progress, result, error_message, input, step_attempts, claimed_by, heartbeat_at,
	version, created_at, updated_at
`

// jobRow is the column layout of processing_jobs; structured fields are stored as JSON text
// so the same schema runs on Postgres and sqlite.
type jobRow struct {
	ID            string       `db:"id"`
	OwnerIdentity string       `db:"owner_identity"`
	JobType       string       `db:"job_type"`
	Status        string       `db:"status"`
	CurrentStep   string       `db:"current_step"`
	Steps         string       `db:"steps"`
	StepResults   string       `db:"step_results"`
	Progress      int          `db:"progress"`
	Result        string       `db:"result"`
	ErrorMessage  string       `db:"error_message"`
	Input         string       `db:"input"`
	StepAttempts  string       `db:"step_attempts"`
	ClaimedBy     string       `db:"claimed_by"`
	HeartbeatAt   sql.NullTime `db:"heartbeat_at"`
	Version       int64        `db:"version"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

// SQLStore persists jobs with sqlx. Transitions use compare-and-swap on the version column.
type SQLStore struct {
	db         *sqlx.DB
	logger     *slog.Logger
	now        func() time.Time
	casRetries int
}

// NewSQLStore creates a new SQLStore instance
func NewSQLStore(db *sqlx.DB, logger *slog.Logger) *SQLStore {
	return &SQLStore{
		db:         db,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		casRetries: defaultCASRetries,
	}
}

// Migrate creates the processing_jobs table if it does not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, e := range entries {
		content, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", e.Name(), err)
		}
		if err := sqldb.ExecScript(ctx, s.db, string(content)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", e.Name(), err)
		}
		s.logger.Debug("Applied migration", slog.String("name", e.Name()))
	}

	return nil
}

func (s *SQLStore) Create(ctx context.Context, job *domain.Job) error {
	row, err := toRow(job)
	if err != nil {
		return err
	}

	query := s.db.Rebind(`
		INSERT INTO processing_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = s.db.ExecContext(ctx, query,
		row.ID, row.OwnerIdentity, row.JobType, row.Status, row.CurrentStep, row.Steps, row.StepResults,
		row.Progress, row.Result, row.ErrorMessage, row.Input, row.StepAttempts, row.ClaimedBy, row.HeartbeatAt,
		row.Version, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *SQLStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var row jobRow
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM processing_jobs WHERE id = ?`)

	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return fromRow(&row)
}

func (s *SQLStore) Transition(ctx context.Context, jobID string, t domain.Transition) (*domain.Job, error) {
	query := s.db.Rebind(`
		UPDATE processing_jobs
		SET status = ?,
		    current_step = ?,
		    step_results = ?,
		    progress = ?,
		    result = ?,
		    error_message = ?,
		    step_attempts = ?,
		    claimed_by = ?,
		    heartbeat_at = ?,
		    version = ?,
		    updated_at = ?
		WHERE id = ? AND version = ?
	`)

	for attempt := 1; attempt <= s.casRetries; attempt++ {
		current, err := s.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		if err := next.Apply(t, s.now()); err != nil {
			return nil, err
		}
		next.Version = current.Version + 1

		row, err := toRow(next)
		if err != nil {
			return nil, err
		}

		res, err := s.db.ExecContext(ctx, query,
			row.Status, row.CurrentStep, row.StepResults, row.Progress, row.Result, row.ErrorMessage,
			row.StepAttempts, row.ClaimedBy, row.HeartbeatAt,
			row.Version, row.UpdatedAt, row.ID, current.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update job: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 1 {
			return next, nil
		}

		s.logger.Warn("Job transition lost compare-and-swap, retrying",
			slog.String("job_id", jobID),
			slog.String("transition", string(t.Kind)),
			slog.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("%w: job %s", domain.ErrConflict, jobID)
}

func (s *SQLStore) ListByOwner(ctx context.Context, owner string) ([]*domain.Job, error) {
	query := s.db.Rebind(`
		SELECT ` + jobColumns + `
		FROM processing_jobs
		WHERE owner_identity = ?
		ORDER BY created_at DESC, id DESC
	`)

	return s.selectJobs(ctx, query, owner)
}

func (s *SQLStore) ListUnfinished(ctx context.Context) ([]*domain.Job, error) {
	query := s.db.Rebind(`
		SELECT ` + jobColumns + `
		FROM processing_jobs
		WHERE status IN (?, ?)
		ORDER BY created_at ASC, id ASC
	`)

	return s.selectJobs(ctx, query, string(domain.JobStatusQueued), string(domain.JobStatusRunning))
}

func (s *SQLStore) selectJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		job, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func toRow(job *domain.Job) (*jobRow, error) {
	steps, err := json.Marshal(job.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal steps: %w", err)
	}
	results, err := json.Marshal(job.StepResults)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal step results: %w", err)
	}
	input, err := json.Marshal(job.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input: %w", err)
	}
	attempts := []byte("{}")
	if len(job.Attempts) > 0 {
		if attempts, err = json.Marshal(job.Attempts); err != nil {
			return nil, fmt.Errorf("failed to marshal step attempts: %w", err)
		}
	}

	var result []byte
	if job.Result != nil {
		if result, err = json.Marshal(job.Result); err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	return &jobRow{
		ID:            job.ID,
		OwnerIdentity: job.OwnerIdentity,
		JobType:       job.JobType,
		Status:        string(job.Status),
		CurrentStep:   job.CurrentStep,
		Steps:         string(steps),
		StepResults:   string(results),
		Progress:      job.Progress,
		Result:        string(result),
		ErrorMessage:  job.ErrorMessage,
		Input:         string(input),
		StepAttempts:  string(attempts),
		ClaimedBy:     job.ClaimedBy,
		HeartbeatAt:   sql.NullTime{Time: job.HeartbeatAt, Valid: !job.HeartbeatAt.IsZero()},
		Version:       job.Version,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}, nil
}

func fromRow(row *jobRow) (*domain.Job, error) {
	job := &domain.Job{
		ID:            row.ID,
		OwnerIdentity: row.OwnerIdentity,
		JobType:       row.JobType,
		Status:        domain.JobStatus(row.Status),
		CurrentStep:   row.CurrentStep,
		Progress:      row.Progress,
		ErrorMessage:  row.ErrorMessage,
		ClaimedBy:     row.ClaimedBy,
		Version:       row.Version,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}

	if err := json.Unmarshal([]byte(row.Steps), &job.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps of job %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.StepResults), &job.StepResults); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step results of job %s: %w", row.ID, err)
	}
	if job.StepResults == nil {
		job.StepResults = map[string]domain.StepResult{}
	}
	if err := json.Unmarshal([]byte(row.Input), &job.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input of job %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.StepAttempts), &job.Attempts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step attempts of job %s: %w", row.ID, err)
	}
	if job.Attempts == nil {
		job.Attempts = map[string]int{}
	}
	if row.HeartbeatAt.Valid {
		job.HeartbeatAt = row.HeartbeatAt.Time.UTC()
	}
	if row.Result != "" {
		job.Result = &domain.Artifact{}
		if err := json.Unmarshal([]byte(row.Result), job.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result of job %s: %w", row.ID, err)
		}
	}

	return job, nil
}
