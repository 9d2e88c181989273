package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/feedsync/backend/internal/domain"
)

const defaultSweepInterval = 10 * time.Minute

// entry is one cached value and its deadline. A zero deadline never expires.
type entry struct {
	value    interface{}
	deadline time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// MemoryCache keeps fingerprints in process memory. It is used when no Redis
// URL is configured, so fingerprints only survive for the lifetime of the process.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates a new in-memory cache that sweeps expired entries every
// interval (10 minutes when interval is not positive)
func NewMemoryCache(interval time.Duration) *MemoryCache {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	c := &MemoryCache{
		entries: make(map[string]entry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go c.sweepEvery(interval)
	return c
}

// Get retrieves a live value
func (c *MemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		return nil, domain.ErrCacheMiss
	}
	return e.value, nil
}

// Set stores value for ttl. A non-positive ttl keeps the value until it is deleted.
// Values go through a JSON round trip so reads look the same as from Redis.
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var stored interface{}
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}

	e := entry{value: stored}
	if ttl > 0 {
		e.deadline = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Exists reports whether key holds a live value
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return ok && !e.expired(c.now()), nil
}

// Len returns the number of stored entries, expired ones included until the next sweep
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep drops expired entries and returns how many were removed
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Close stops the background sweeper
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryCache) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
