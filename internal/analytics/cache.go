package analytics

import (
	"sync"
	"time"
)

// cacheEntry holds cached stats and metadata
type cacheEntry struct {
	stats       []Stats
	lastRefresh time.Time
}

// statsCache provides thread-safe caching of aggregated stats, keyed by
// the workload filter ("" for all workloads)
type statsCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newStatsCache(ttl time.Duration) *statsCache {
	return &statsCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// get retrieves cached stats if available and fresh
func (c *statsCache) get(workload string) ([]Stats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[workload]
	if !exists {
		return nil, false
	}

	if time.Since(entry.lastRefresh) > c.ttl {
		return nil, false
	}

	return entry.stats, true
}

func (c *statsCache) set(workload string, stats []Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[workload] = &cacheEntry{
		stats:       stats,
		lastRefresh: time.Now(),
	}
}

// invalidate clears all cached data
func (c *statsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
}
