package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// recallCache holds recent recall results for a few seconds. Any write
// or delete clears the whole cache; the short TTL bounds staleness for
// unrelated owners.
type recallCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	results []RecallResult
	expires time.Time
}

func newRecallCache(ttl time.Duration) *recallCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &recallCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(owner, query string, limit int, filters RecallFilters) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s", owner, query, limit,
		strings.Join(filters.Categories, ","), strings.Join(filters.Tags, ","))
}

func (c *recallCache) get(key string) ([]RecallResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.results, true
}

func (c *recallCache) put(key string, results []RecallResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		results: results,
		expires: time.Now().Add(c.ttl),
	}
}

// invalidate drops every cached entry.
func (c *recallCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
