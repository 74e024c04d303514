package catalog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DigestCache memoizes the category summary for ttl.
// Owned by the process, refreshed on demand, and dropped by Invalidate after a sync.
// A zero ttl disables caching but still collapses concurrent loads.
type DigestCache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	summaries []CategorySummary
	expires   time.Time
	// bumped by Invalidate; a load that started under an older gen is not stored
	gen uint64
}

// NewDigestCache creates a cache over store
func NewDigestCache(store Store, ttl time.Duration) *DigestCache {
	return &DigestCache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Summaries returns the cached summary or reloads it from the store
func (c *DigestCache) Summaries(ctx context.Context) ([]CategorySummary, error) {
	c.mu.RLock()
	if c.summaries != nil && c.now().Before(c.expires) {
		out := c.summaries
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("summaries", func() (any, error) {
		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()

		summaries, err := c.store.SummarizeByCategory(ctx)
		if err != nil {
			return nil, err
		}
		if summaries == nil {
			summaries = []CategorySummary{}
		}
		if c.ttl > 0 {
			c.mu.Lock()
			if c.gen == gen {
				c.summaries = summaries
				c.expires = c.now().Add(c.ttl)
			}
			c.mu.Unlock()
		}
		return summaries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]CategorySummary), nil
}

// Invalidate drops the cached summary so the next call reloads
func (c *DigestCache) Invalidate() {
	c.mu.Lock()
	c.summaries = nil
	c.expires = time.Time{}
	c.gen++
	c.mu.Unlock()
	c.group.Forget("summaries")
}
