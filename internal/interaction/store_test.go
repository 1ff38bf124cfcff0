package interaction

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/shared/sqldb"
)

const (
	alice = "0x00000000000000000000000000000000000000a1"
	bob   = "0x00000000000000000000000000000000000000b2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSQLiteStore(t *testing.T) Store {
	t.Helper()

	client, err := sqldb.NewClient(&sqldb.Config{Driver: sqldb.DriverSQLite, Path: ":memory:"}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store := NewSQLStore(client.GetDB(), discardLogger())
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

// newRedisStore runs against an embedded miniredis, or a live server when
// PROVN_TEST_REDIS_ADDR is set
func newRedisStore(t *testing.T) Store {
	t.Helper()

	addr := os.Getenv("PROVN_TEST_REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	// a fresh prefix per test keeps runs independent without flushing the server
	return NewRedisStore(rdb, "provn-test-"+uuid.NewString(), discardLogger())
}

var backends = []struct {
	name string
	new  func(t *testing.T) Store
}{
	{name: "memory", new: func(*testing.T) Store { return NewMemoryStore() }},
	{name: "sqlite", new: newSQLiteStore},
	{name: "redis", new: newRedisStore},
}

func TestStore_ToggleTwiceRestoresState(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.new(t)

			active, count, err := store.Toggle(ctx, "c1", domain.InteractionLike, alice)
			require.NoError(t, err)
			assert.True(t, active)
			assert.Equal(t, int64(1), count)

			liked, err := store.Has(ctx, "c1", domain.InteractionLike, alice)
			require.NoError(t, err)
			assert.True(t, liked)

			active, count, err = store.Toggle(ctx, "c1", domain.InteractionLike, alice)
			require.NoError(t, err)
			assert.False(t, active)
			assert.Equal(t, int64(0), count)

			liked, err = store.Has(ctx, "c1", domain.InteractionLike, alice)
			require.NoError(t, err)
			assert.False(t, liked)
		})
	}
}

func TestStore_ConcurrentLikesByDifferentActors(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.new(t)

			var g errgroup.Group
			for _, actor := range []string{alice, bob} {
				g.Go(func() error {
					_, _, err := store.Toggle(ctx, "c1", domain.InteractionLike, actor)
					return err
				})
			}
			require.NoError(t, g.Wait())

			counts, err := store.Counts(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, int64(2), counts[domain.InteractionLike])
		})
	}
}

func TestStore_AddOnceCountsDistinctActors(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.new(t)

			const views = 25
			var g errgroup.Group
			for i := 0; i < views; i++ {
				g.Go(func() error {
					_, _, err := store.AddOnce(ctx, "c1", domain.InteractionView, alice)
					return err
				})
			}
			require.NoError(t, g.Wait())

			added, count, err := store.AddOnce(ctx, "c1", domain.InteractionView, alice)
			require.NoError(t, err)
			assert.False(t, added)
			assert.Equal(t, int64(1), count)

			added, count, err = store.AddOnce(ctx, "c1", domain.InteractionView, domain.AnonymousViewer("s-1"))
			require.NoError(t, err)
			assert.True(t, added)
			assert.Equal(t, int64(2), count)
		})
	}
}

func TestStore_IncrementCountsEveryCall(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.new(t)
			base := time.Now().UTC().Truncate(time.Millisecond)

			for i, platform := range []string{"x", "x", "telegram"} {
				count, err := store.Increment(ctx, domain.InteractionEvent{
					ContentID: "c1",
					Kind:      domain.InteractionShare,
					ActorID:   alice,
					Detail:    platform,
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				})
				require.NoError(t, err)
				assert.Equal(t, int64(i+1), count)
			}

			_, err := store.Increment(ctx, domain.InteractionEvent{
				ContentID: "c1", Kind: domain.InteractionTip, ActorID: bob, Detail: "1.5", CreatedAt: base.Add(time.Minute),
			})
			require.NoError(t, err)

			counts, err := store.Counts(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, map[domain.InteractionKind]int64{
				domain.InteractionView:  0,
				domain.InteractionLike:  0,
				domain.InteractionShare: 3,
				domain.InteractionTip:   1,
			}, counts)

			events, err := store.Events(ctx, "c1", 0)
			require.NoError(t, err)
			require.Len(t, events, 4)
			details := make([]string, 0, len(events))
			for _, e := range events {
				details = append(details, fmt.Sprintf("%s:%s", e.Kind, e.Detail))
			}
			assert.Equal(t, []string{"share:x", "share:x", "share:telegram", "tip:1.5"}, details)
		})
	}
}

func TestStore_EventsAreCapped(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.new(t)
			base := time.Now().UTC().Truncate(time.Millisecond)

			total := MaxRetainedEvents + 5
			for i := 0; i < total; i++ {
				_, err := store.Increment(ctx, domain.InteractionEvent{
					ContentID: "c1",
					Kind:      domain.InteractionTip,
					ActorID:   bob,
					Detail:    fmt.Sprintf("%d", i),
					CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
				})
				require.NoError(t, err)
			}

			counts, err := store.Counts(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, int64(total), counts[domain.InteractionTip])

			all, err := store.Events(ctx, "c1", 0)
			require.NoError(t, err)
			require.Len(t, all, MaxRetainedEvents)
			assert.Equal(t, "5", all[0].Detail)
			assert.Equal(t, fmt.Sprintf("%d", total-1), all[len(all)-1].Detail)

			newest, err := store.Events(ctx, "c1", 3)
			require.NoError(t, err)
			details := make([]string, 0, len(newest))
			for _, e := range newest {
				details = append(details, e.Detail)
			}
			assert.Equal(t, []string{
				fmt.Sprintf("%d", total-3), fmt.Sprintf("%d", total-2), fmt.Sprintf("%d", total-1),
			}, details)
		})
	}
}

func TestStore_EventsWithSameTimestampKeepInsertionOrder(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.new(t)
			at := time.Now().UTC().Truncate(time.Microsecond)

			for i := 0; i < 6; i++ {
				_, err := store.Increment(ctx, domain.InteractionEvent{
					ContentID: "c1",
					Kind:      domain.InteractionShare,
					ActorID:   alice,
					Detail:    fmt.Sprintf("%d", i),
					CreatedAt: at,
				})
				require.NoError(t, err)
			}

			for read := 0; read < 3; read++ {
				newest, err := store.Events(ctx, "c1", 3)
				require.NoError(t, err)
				details := make([]string, 0, len(newest))
				for _, e := range newest {
					details = append(details, e.Detail)
				}
				assert.Equal(t, []string{"3", "4", "5"}, details)
			}
		})
	}
}

func TestStore_CountsAreScopedPerContent(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.new(t)

			_, _, err := store.Toggle(ctx, "c1", domain.InteractionLike, alice)
			require.NoError(t, err)

			counts, err := store.Counts(ctx, "c2")
			require.NoError(t, err)
			assert.Equal(t, int64(0), counts[domain.InteractionLike])

			events, err := store.Events(ctx, "c2", 0)
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestParsePair(t *testing.T) {
	tests := []struct {
		name      string
		reply     any
		wantFlag  bool
		wantCount int64
		wantErr   bool
	}{
		{name: "active", reply: []any{int64(1), int64(4)}, wantFlag: true, wantCount: 4},
		{name: "inactive", reply: []any{int64(0), int64(3)}, wantFlag: false, wantCount: 3},
		{name: "wrong length", reply: []any{int64(1)}, wantErr: true},
		{name: "not integers", reply: []any{"1", "2"}, wantErr: true},
		{name: "not a list", reply: int64(1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag, count, err := parsePair(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFlag, flag)
			assert.Equal(t, tt.wantCount, count)
		})
	}
}

func TestRedisStore_Keys(t *testing.T) {
	store := NewRedisStore(nil, "", discardLogger())

	assert.Equal(t, "provn:content:{c1}:like:actors", store.actorsKey("c1", domain.InteractionLike))
	assert.Equal(t, "provn:content:{c1}:view:count", store.countKey("c1", domain.InteractionView))
	assert.Equal(t, "provn:content:{c1}:events", store.eventsKey("c1"))
}
