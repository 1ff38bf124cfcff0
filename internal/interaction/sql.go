package interaction

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/shared/sqldb"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLStore keeps counters, actor sets and the audit log in SQL tables. The actor set's
// primary key makes each (content, kind, actor) row insertable once.
type SQLStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLStore creates a new SQLStore instance
func NewSQLStore(db *sqlx.DB, logger *slog.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Migrate creates the interaction tables if they do not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	content, err := migrationsFS.ReadFile("migrations/001_interactions.sql")
	if err != nil {
		return fmt.Errorf("failed to read migration: %w", err)
	}
	if err := sqldb.ExecScript(ctx, s.db, string(content)); err != nil {
		return fmt.Errorf("failed to apply interaction migration: %w", err)
	}
	return nil
}

func (s *SQLStore) Toggle(ctx context.Context, contentID string, kind domain.InteractionKind, actorID string) (bool, int64, error) {
	var (
		active bool
		count  int64
	)

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			DELETE FROM interaction_actors WHERE content_id = ? AND kind = ? AND actor_id = ?
		`), contentID, string(kind), actorID)
		if err != nil {
			return fmt.Errorf("failed to remove actor: %w", err)
		}

		removed, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		delta := int64(-1)
		if removed == 0 {
			added, err := s.insertActor(ctx, tx, contentID, kind, actorID)
			if err != nil {
				return err
			}
			if !added {
				// a concurrent toggle inserted the same actor first; leave the counter as it is
				count, err = s.readCount(ctx, tx, contentID, kind)
				active = true
				return err
			}
			delta = 1
			active = true
		}

		count, err = s.addToCounter(ctx, tx, contentID, kind, delta)
		return err
	})
	if err != nil {
		return false, 0, err
	}

	return active, count, nil
}

func (s *SQLStore) AddOnce(ctx context.Context, contentID string, kind domain.InteractionKind, actorID string) (bool, int64, error) {
	var (
		added bool
		count int64
	)

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		added, err = s.insertActor(ctx, tx, contentID, kind, actorID)
		if err != nil {
			return err
		}
		if !added {
			count, err = s.readCount(ctx, tx, contentID, kind)
			return err
		}
		count, err = s.addToCounter(ctx, tx, contentID, kind, 1)
		return err
	})
	if err != nil {
		return false, 0, err
	}

	return added, count, nil
}

func (s *SQLStore) Increment(ctx context.Context, event domain.InteractionEvent) (int64, error) {
	var count int64

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		createdAt := event.CreatedAt
		if createdAt.IsZero() {
			createdAt = s.now()
		}

		// v7 ids grow with insertion order and break created_at ties on read
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate event id: %w", err)
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO interaction_events (id, content_id, kind, actor_id, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`), id.String(), event.ContentID, string(event.Kind), event.ActorID, event.Detail, createdAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to append interaction event: %w", err)
		}

		count, err = s.addToCounter(ctx, tx, event.ContentID, event.Kind, 1)
		return err
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (s *SQLStore) Counts(ctx context.Context, contentID string) (map[domain.InteractionKind]int64, error) {
	var rows []struct {
		Kind  string `db:"kind"`
		Count int64  `db:"count"`
	}

	query := s.db.Rebind(`SELECT kind, count FROM interaction_counters WHERE content_id = ?`)
	if err := s.db.SelectContext(ctx, &rows, query, contentID); err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}

	counts := make(map[domain.InteractionKind]int64, len(allKinds))
	for _, kind := range allKinds {
		counts[kind] = 0
	}
	for _, r := range rows {
		counts[domain.InteractionKind(r.Kind)] = r.Count
	}
	return counts, nil
}

func (s *SQLStore) Has(ctx context.Context, contentID string, kind domain.InteractionKind, actorID string) (bool, error) {
	var n int
	query := s.db.Rebind(`
		SELECT COUNT(*) FROM interaction_actors WHERE content_id = ? AND kind = ? AND actor_id = ?
	`)
	if err := s.db.GetContext(ctx, &n, query, contentID, string(kind), actorID); err != nil {
		return false, fmt.Errorf("failed to read actor: %w", err)
	}
	return n > 0, nil
}

// Events keeps the full log on disk and bounds only what one read returns
func (s *SQLStore) Events(ctx context.Context, contentID string, limit int) ([]domain.InteractionEvent, error) {
	if limit <= 0 {
		limit = MaxRetainedEvents
	}

	var events []domain.InteractionEvent
	query := s.db.Rebind(`
		SELECT content_id, kind, actor_id, detail, created_at
		FROM interaction_events
		WHERE content_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`)
	if err := s.db.SelectContext(ctx, &events, query, contentID, limit); err != nil {
		return nil, fmt.Errorf("failed to list interaction events: %w", err)
	}

	slices.Reverse(events)
	for i := range events {
		events[i].CreatedAt = events[i].CreatedAt.UTC()
	}
	return events, nil
}

func (s *SQLStore) insertActor(ctx context.Context, tx *sqlx.Tx, contentID string, kind domain.InteractionKind, actorID string) (bool, error) {
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO interaction_actors (content_id, kind, actor_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (content_id, kind, actor_id) DO NOTHING
	`), contentID, string(kind), actorID, s.now())
	if err != nil {
		return false, fmt.Errorf("failed to add actor: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStore) addToCounter(ctx context.Context, tx *sqlx.Tx, contentID string, kind domain.InteractionKind, delta int64) (int64, error) {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO interaction_counters (content_id, kind, count)
		VALUES (?, ?, ?)
		ON CONFLICT (content_id, kind) DO UPDATE SET count = interaction_counters.count + excluded.count
	`), contentID, string(kind), delta)
	if err != nil {
		return 0, fmt.Errorf("failed to update counter: %w", err)
	}
	return s.readCount(ctx, tx, contentID, kind)
}

func (s *SQLStore) readCount(ctx context.Context, tx *sqlx.Tx, contentID string, kind domain.InteractionKind) (int64, error) {
	var count int64
	err := tx.GetContext(ctx, &count, tx.Rebind(`
		SELECT COALESCE(MAX(count), 0) FROM interaction_counters WHERE content_id = ? AND kind = ?
	`), contentID, string(kind))
	if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	return count, nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
