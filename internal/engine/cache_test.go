package engine

import (
	"testing"
	"time"
)

func TestRecallCacheExpiry(t *testing.T) {
	c := newRecallCache(10 * time.Millisecond)
	key := cacheKey("u1", "query", 5, RecallFilters{})

	c.put(key, []RecallResult{{TimeAgo: "today"}})
	if _, ok := c.get(key); !ok {
		t.Fatal("fresh entry not served")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.get(key); ok {
		t.Error("expired entry served")
	}
}

func TestRecallCacheInvalidate(t *testing.T) {
	c := newRecallCache(time.Minute)
	a := cacheKey("u1", "one", 5, RecallFilters{})
	b := cacheKey("u2", "two", 5, RecallFilters{})
	c.put(a, nil)
	c.put(b, nil)

	c.invalidate()
	if _, ok := c.get(a); ok {
		t.Error("entry survived invalidation")
	}
	if _, ok := c.get(b); ok {
		t.Error("entry survived invalidation")
	}
}

func TestCacheKeyDistinguishesFilters(t *testing.T) {
	base := cacheKey("u1", "query", 5, RecallFilters{})
	withCat := cacheKey("u1", "query", 5, RecallFilters{Categories: []string{"goal"}})
	withTag := cacheKey("u1", "query", 5, RecallFilters{Tags: []string{"auto"}})
	otherLimit := cacheKey("u1", "query", 10, RecallFilters{})

	keys := map[string]bool{base: true, withCat: true, withTag: true, otherLimit: true}
	if len(keys) != 4 {
		t.Errorf("cache keys collide: %v", keys)
	}
}
