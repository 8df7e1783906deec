package store

import (
	"context"
	"sync"

	"github.com/sctrl/eventstack/internal/es"
)

// MemoryViewCache keeps compiled views in process memory, keyed by their
// composition identity string. It is the default cache bound into a
// repository.
type MemoryViewCache struct {
	mu      sync.RWMutex
	entries map[string]es.CompiledView
}

// NewMemoryViewCache creates an empty in-memory view cache.
func NewMemoryViewCache() *MemoryViewCache {
	return &MemoryViewCache{entries: map[string]es.CompiledView{}}
}

// GetFromCache returns the cached compiled view for the identity. The
// stored state is cloned so callers can fold on it freely.
func (c *MemoryViewCache) GetFromCache(ctx context.Context, identity string) (es.CompiledView, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cv, ok := c.entries[identity]
	if !ok {
		return es.CompiledView{}, false, nil
	}
	return es.CompiledView{EventID: cv.EventID, View: cv.View.Clone()}, true, nil
}

// UpdateCache stores the compiled view if it advances the entry's event
// id. Stale writes from racing folds are dropped silently.
func (c *MemoryViewCache) UpdateCache(ctx context.Context, identity string, cv es.CompiledView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[identity]; ok && cv.EventID <= existing.EventID {
		return nil
	}
	c.entries[identity] = es.CompiledView{EventID: cv.EventID, View: cv.View.Clone()}
	return nil
}
