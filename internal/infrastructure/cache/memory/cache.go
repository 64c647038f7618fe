// Package memory provides a bounded in-process stage cache.
package memory

import (
	"context"
	"sync"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

const DefaultCapacity = 1000

// Cache stores up to capacity entries and ignores inserts once full. Entries
// live until Clear.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string][]domain.SearchHit
}

func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{capacity: capacity, entries: make(map[string][]domain.SearchHit)}
}

func (c *Cache) Get(_ context.Context, key string) ([]domain.SearchHit, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hits, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return append([]domain.SearchHit(nil), hits...), true
}

func (c *Cache) Set(_ context.Context, key string, hits []domain.SearchHit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		return
	}
	c.entries[key] = append([]domain.SearchHit(nil), hits...)
}

func (c *Cache) Clear(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]domain.SearchHit)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
