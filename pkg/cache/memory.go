package cache

import (
	"context"
	"sync"
	"time"

	iface "github.com/goliatone/go-credentials/pkg/interfaces/cache"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Memory is a TTL map cache guarded by a RWMutex. Expired entries are
// dropped lazily on read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

var _ iface.Cache = (*Memory)(nil)

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (c *Memory) Get(ctx context.Context, key string) (any, bool, error) {
	c.mu.RLock()
	ent, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !ent.expiresAt.IsZero() && c.now().After(ent.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return ent.value, true, nil
}

func (c *Memory) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	ent := entry{value: value}
	if ttl > 0 {
		ent.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = ent
	c.mu.Unlock()
	return nil
}

func (c *Memory) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len reports the number of live entries, expired included until read.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
