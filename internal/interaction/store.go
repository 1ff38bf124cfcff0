package interaction

import (
	"context"
	"sync"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

// Store holds interaction counters and the distinct actor sets behind them. Every
// method changes a counter together with its actor set in one atomic step.
type Store interface {
	// Toggle adds actorID to the kind's set when absent and removes it when present
	Toggle(ctx context.Context, contentID string, kind domain.InteractionKind, actorID string) (active bool, count int64, err error)

	// AddOnce adds actorID to the kind's set; added is false when it was already there
	AddOnce(ctx context.Context, contentID string, kind domain.InteractionKind, actorID string) (added bool, count int64, err error)

	// Increment counts every call and appends the event to the audit log
	Increment(ctx context.Context, event domain.InteractionEvent) (int64, error)

	// Counts returns the counter of every kind for contentID; missing kinds are zero
	Counts(ctx context.Context, contentID string) (map[domain.InteractionKind]int64, error)

	// Has reports whether actorID is in the kind's set
	Has(ctx context.Context, contentID string, kind domain.InteractionKind, actorID string) (bool, error)

	// Events returns the newest limit entries of contentID's audit log, oldest first
	Events(ctx context.Context, contentID string, limit int) ([]domain.InteractionEvent, error)
}

const (
	// MaxRetainedEvents bounds the audit log kept per content item by the memory and
	// Redis stores. Older entries are dropped as new ones arrive.
	MaxRetainedEvents = 1000

	DefaultEventsLimit = 50
	MaxEventsLimit     = 200
)

type counterKey struct {
	contentID string
	kind      domain.InteractionKind
}

// MemoryStore is an in-process Store guarded by a single mutex
type MemoryStore struct {
	mu       sync.Mutex
	actors   map[counterKey]map[string]struct{}
	counters map[counterKey]int64
	events   map[string][]domain.InteractionEvent
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actors:   make(map[counterKey]map[string]struct{}),
		counters: make(map[counterKey]int64),
		events:   make(map[string][]domain.InteractionEvent),
	}
}

func (s *MemoryStore) set(key counterKey) map[string]struct{} {
	set, ok := s.actors[key]
	if !ok {
		set = make(map[string]struct{})
		s.actors[key] = set
	}
	return set
}

func (s *MemoryStore) Toggle(_ context.Context, contentID string, kind domain.InteractionKind, actorID string) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey{contentID, kind}
	set := s.set(key)
	if _, ok := set[actorID]; ok {
		delete(set, actorID)
		s.counters[key]--
		return false, s.counters[key], nil
	}

	set[actorID] = struct{}{}
	s.counters[key]++
	return true, s.counters[key], nil
}

func (s *MemoryStore) AddOnce(_ context.Context, contentID string, kind domain.InteractionKind, actorID string) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey{contentID, kind}
	set := s.set(key)
	if _, ok := set[actorID]; ok {
		return false, s.counters[key], nil
	}

	set[actorID] = struct{}{}
	s.counters[key]++
	return true, s.counters[key], nil
}

func (s *MemoryStore) Increment(_ context.Context, event domain.InteractionEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey{event.ContentID, event.Kind}
	s.counters[key]++
	events := append(s.events[event.ContentID], event)
	if len(events) > MaxRetainedEvents {
		events = append([]domain.InteractionEvent(nil), events[len(events)-MaxRetainedEvents:]...)
	}
	s.events[event.ContentID] = events
	return s.counters[key], nil
}

func (s *MemoryStore) Counts(_ context.Context, contentID string) (map[domain.InteractionKind]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.InteractionKind]int64, len(allKinds))
	for _, kind := range allKinds {
		counts[kind] = s.counters[counterKey{contentID, kind}]
	}
	return counts, nil
}

func (s *MemoryStore) Has(_ context.Context, contentID string, kind domain.InteractionKind, actorID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.actors[counterKey{contentID, kind}][actorID]
	return ok, nil
}

func (s *MemoryStore) Events(_ context.Context, contentID string, limit int) ([]domain.InteractionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[contentID]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]domain.InteractionEvent(nil), events...), nil
}

var allKinds = []domain.InteractionKind{
	domain.InteractionView,
	domain.InteractionLike,
	domain.InteractionShare,
	domain.InteractionTip,
}
