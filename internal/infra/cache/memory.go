package cache

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/handoff/internal/core/clock"
)

// MemoryCache is a mutex-guarded in-process Cache with lazy expiry plus a
// background janitor. Used by tests and by service runs without Redis.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	clk     clock.Clock

	hits      int64
	misses    int64
	evictions int64

	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates a memory cache and starts its janitor.
func NewMemory(clk clock.Clock) *MemoryCache {
	if clk == nil {
		clk = clock.System()
	}
	c := &MemoryCache{
		entries: make(map[string]entry),
		clk:     clk,
		stop:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

func (c *MemoryCache) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Prune()
		}
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.clk.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.evictions++
		c.misses++
		return nil, false, nil
	}
	c.hits++
	return e.data, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{data: value}
	if ttl > 0 {
		e.expiresAt = c.clk.Now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Prune drops expired entries and returns how many were removed.
func (c *MemoryCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	removed := 0
	for key, e := range c.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	c.evictions += int64(removed)
	return removed
}

func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   int64(len(c.entries)),
	}
}

func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}
