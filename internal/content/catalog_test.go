package content

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/shared/sqldb"
)

const creator = "0x00000000000000000000000000000000000000a1"

func newSQLiteCatalog(t *testing.T) Catalog {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client, err := sqldb.NewClient(&sqldb.Config{Driver: sqldb.DriverSQLite, Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	catalog := NewSQLCatalog(client.GetDB(), logger)
	require.NoError(t, catalog.Migrate(context.Background()))
	return catalog
}

var backends = []struct {
	name string
	new  func(t *testing.T) Catalog
}{
	{name: "memory", new: func(*testing.T) Catalog { return NewMemoryCatalog() }},
	{name: "sqlite", new: newSQLiteCatalog},
}

func item(id string, createdAt time.Time) domain.Content {
	return domain.Content{
		ID:         id,
		Owner:      creator,
		Title:      "clip " + id,
		ContentURI: "ipfs://bafy" + id,
		TokenID:    id,
		TxHash:     "0x" + id,
		CreatedAt:  createdAt.UTC().Truncate(time.Second),
	}
}

func TestCatalog_PublishAndGet(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			catalog := b.new(t)
			first := item("1", time.Now())

			require.NoError(t, catalog.Publish(ctx, first))

			got, err := catalog.Get(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, first.Title, got.Title)
			assert.Equal(t, first.ContentURI, got.ContentURI)
			assert.Equal(t, first.CreatedAt.Unix(), got.CreatedAt.Unix())

			// republishing keeps the first registration
			again := first
			again.Title = "renamed"
			require.NoError(t, catalog.Publish(ctx, again))

			got, err = catalog.Get(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, first.Title, got.Title)
		})
	}
}

func TestCatalog_GetUnknown(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			_, err := b.new(t).Get(context.Background(), "missing")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrNotFound))
		})
	}
}

func TestCatalog_PublishRequiresID(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			err := b.new(t).Publish(context.Background(), domain.Content{Owner: creator})
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		})
	}
}

func TestCatalog_ListByOwner(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			catalog := b.new(t)
			base := time.Now().Add(-time.Hour)

			require.NoError(t, catalog.Publish(ctx, item("old", base)))
			require.NoError(t, catalog.Publish(ctx, item("new", base.Add(time.Minute))))
			other := item("other", base)
			other.Owner = "0x00000000000000000000000000000000000000b2"
			require.NoError(t, catalog.Publish(ctx, other))

			items, err := catalog.ListByOwner(ctx, creator)
			require.NoError(t, err)
			require.Len(t, items, 2)
			assert.Equal(t, "new", items[0].ID)
			assert.Equal(t, "old", items[1].ID)
		})
	}
}
