// Package content keeps the registry of published content items. An item exists only once
// its processing job completed; engagement is accepted for registered items only.
package content

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

// Catalog stores published content items
type Catalog interface {
	// Publish registers c. Publishing an id again keeps the first registration.
	Publish(ctx context.Context, c domain.Content) error

	// Get returns the item or domain.ErrNotFound
	Get(ctx context.Context, id string) (*domain.Content, error)

	// ListByOwner returns the owner's items, newest first
	ListByOwner(ctx context.Context, owner string) ([]domain.Content, error)
}

// MemoryCatalog is an in-process Catalog
type MemoryCatalog struct {
	mu    sync.RWMutex
	items map[string]domain.Content
}

// NewMemoryCatalog creates an empty MemoryCatalog
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{items: make(map[string]domain.Content)}
}

func (c *MemoryCatalog) Publish(_ context.Context, item domain.Content) error {
	if item.ID == "" {
		return domain.InvalidInputf("content id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[item.ID]; !exists {
		c.items[item.ID] = item
	}
	return nil
}

func (c *MemoryCatalog) Get(_ context.Context, id string) (*domain.Content, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", id, domain.ErrNotFound)
	}
	return &item, nil
}

func (c *MemoryCatalog) ListByOwner(_ context.Context, owner string) ([]domain.Content, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var items []domain.Content
	for _, item := range c.items {
		if strings.EqualFold(item.Owner, owner) {
			items = append(items, item)
		}
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}
