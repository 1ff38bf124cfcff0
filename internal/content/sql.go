package content

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/shared/sqldb"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const contentColumns = `id, owner, title, content_uri, token_id, tx_hash, created_at`

// SQLCatalog is a Catalog backed by the content_items table
type SQLCatalog struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewSQLCatalog creates a new SQLCatalog instance
func NewSQLCatalog(db *sqlx.DB, logger *slog.Logger) *SQLCatalog {
	return &SQLCatalog{db: db, logger: logger}
}

// Migrate creates the content_items table if it does not exist
func (c *SQLCatalog) Migrate(ctx context.Context) error {
	content, err := migrationsFS.ReadFile("migrations/001_content_items.sql")
	if err != nil {
		return fmt.Errorf("failed to read migration: %w", err)
	}
	if err := sqldb.ExecScript(ctx, c.db, string(content)); err != nil {
		return fmt.Errorf("failed to apply content migration: %w", err)
	}
	return nil
}

func (c *SQLCatalog) Publish(ctx context.Context, item domain.Content) error {
	if item.ID == "" {
		return domain.InvalidInputf("content id is required")
	}

	query := c.db.Rebind(`
		INSERT INTO content_items (` + contentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)

	res, err := c.db.ExecContext(ctx, query,
		item.ID, item.Owner, item.Title, item.ContentURI, item.TokenID, item.TxHash, item.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to publish content: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 1 {
		c.logger.Info("Content published",
			slog.String("content_id", item.ID),
			slog.String("token_id", item.TokenID),
		)
	}
	return nil
}

func (c *SQLCatalog) Get(ctx context.Context, id string) (*domain.Content, error) {
	var item domain.Content
	query := c.db.Rebind(`SELECT ` + contentColumns + ` FROM content_items WHERE id = ?`)

	if err := c.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("content %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get content: %w", err)
	}

	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func (c *SQLCatalog) ListByOwner(ctx context.Context, owner string) ([]domain.Content, error) {
	var items []domain.Content
	query := c.db.Rebind(`
		SELECT ` + contentColumns + `
		FROM content_items
		WHERE owner = ?
		ORDER BY created_at DESC, id DESC
	`)

	if err := c.db.SelectContext(ctx, &items, query, owner); err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}
	return items, nil
}
