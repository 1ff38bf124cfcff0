// Package interaction counts engagement on published content. Likes and views count each
// actor at most once; shares and tips count every call and are kept in an audit log.
package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

// ContentLookup resolves published content items
type ContentLookup interface {
	Get(ctx context.Context, id string) (*domain.Content, error)
}

// ToggleResult is the like state of an actor after a toggle
type ToggleResult struct {
	Active bool
	Count  int64
}

// ViewResult reports whether a view was counted
type ViewResult struct {
	Counted bool
	Count   int64
}

// Stats are the engagement counters of one content item
type Stats struct {
	ContentID string
	Views     int64
	Likes     int64
	Shares    int64
	Tips      int64
	Liked     bool
}

// Aggregator is the only writer of interaction counters
type Aggregator struct {
	store   Store
	catalog ContentLookup
	logger  *slog.Logger
	now     func() time.Time
}

// NewAggregator creates a new Aggregator. With a nil catalog every content id is accepted.
func NewAggregator(store Store, catalog ContentLookup, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:   store,
		catalog: catalog,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Toggle flips actorID's like on contentID
func (a *Aggregator) Toggle(ctx context.Context, contentID, actorID string) (ToggleResult, error) {
	if err := a.check(ctx, contentID, actorID); err != nil {
		return ToggleResult{}, err
	}

	active, count, err := a.store.Toggle(ctx, contentID, domain.InteractionLike, actorID)
	if err != nil {
		return ToggleResult{}, err
	}

	a.logger.Debug("Like toggled",
		slog.String("content_id", contentID),
		slog.String("actor", actorID),
		slog.Bool("liked", active),
		slog.Int64("likes", count),
	)
	return ToggleResult{Active: active, Count: count}, nil
}

// Increment counts one share or tip. detail is the share platform or the tip amount.
func (a *Aggregator) Increment(ctx context.Context, contentID string, kind domain.InteractionKind, actorID, detail string) (int64, error) {
	if kind != domain.InteractionShare && kind != domain.InteractionTip {
		return 0, domain.InvalidInputf("interaction %q cannot be incremented", kind)
	}
	if err := a.checkContent(ctx, contentID); err != nil {
		return 0, err
	}

	count, err := a.store.Increment(ctx, domain.InteractionEvent{
		ContentID: contentID,
		Kind:      kind,
		ActorID:   actorID,
		Detail:    detail,
		CreatedAt: a.now(),
	})
	if err != nil {
		return 0, err
	}

	a.logger.Debug("Interaction counted",
		slog.String("content_id", contentID),
		slog.String("kind", string(kind)),
		slog.Int64("count", count),
	)
	return count, nil
}

// RecordViewOnce counts viewerID's first view of contentID; later views are not counted
func (a *Aggregator) RecordViewOnce(ctx context.Context, contentID, viewerID string) (ViewResult, error) {
	if err := a.check(ctx, contentID, viewerID); err != nil {
		return ViewResult{}, err
	}

	counted, count, err := a.store.AddOnce(ctx, contentID, domain.InteractionView, viewerID)
	if err != nil {
		return ViewResult{}, err
	}
	return ViewResult{Counted: counted, Count: count}, nil
}

// Stats returns the counters of contentID and whether actorID liked it. actorID may be empty.
func (a *Aggregator) Stats(ctx context.Context, contentID, actorID string) (Stats, error) {
	if err := a.checkContent(ctx, contentID); err != nil {
		return Stats{}, err
	}

	counts, err := a.store.Counts(ctx, contentID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		ContentID: contentID,
		Views:     counts[domain.InteractionView],
		Likes:     counts[domain.InteractionLike],
		Shares:    counts[domain.InteractionShare],
		Tips:      counts[domain.InteractionTip],
	}

	if actorID != "" {
		if stats.Liked, err = a.store.Has(ctx, contentID, domain.InteractionLike, actorID); err != nil {
			return Stats{}, err
		}
	}
	return stats, nil
}

// Events returns the newest entries of contentID's share and tip log, oldest first.
// A limit of zero means DefaultEventsLimit; larger limits are clamped to MaxEventsLimit.
func (a *Aggregator) Events(ctx context.Context, contentID string, limit int) ([]domain.InteractionEvent, error) {
	if limit < 0 {
		return nil, domain.InvalidInputf("limit must not be negative")
	}
	if err := a.checkContent(ctx, contentID); err != nil {
		return nil, err
	}
	return a.store.Events(ctx, contentID, clampLimit(limit))
}

func clampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultEventsLimit
	case limit > MaxEventsLimit:
		return MaxEventsLimit
	}
	return limit
}

func (a *Aggregator) check(ctx context.Context, contentID, actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return fmt.Errorf("actor identity is required: %w", domain.ErrUnauthorized)
	}
	return a.checkContent(ctx, contentID)
}

func (a *Aggregator) checkContent(ctx context.Context, contentID string) error {
	if strings.TrimSpace(contentID) == "" {
		return domain.InvalidInputf("content id is required")
	}
	if a.catalog == nil {
		return nil
	}
	if _, err := a.catalog.Get(ctx, contentID); err != nil {
		return err
	}
	return nil
}
