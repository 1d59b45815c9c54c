package earnings

import (
	"context"
	"strings"
	"sync"
	"time"

	"thetagang-wheel/internal/interfaces"
	"thetagang-wheel/internal/logger"
)

// Cached memoizes successful lookups for ttl. Errors are never cached.
type Cached struct {
	inner interfaces.EarningsLookup
	ttl   time.Duration
	now   func() time.Time

	mu   sync.RWMutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	date      time.Time
	found     bool
	fetchedAt time.Time
}

func NewCached(inner interfaces.EarningsLookup, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
		data:  make(map[string]cacheEntry),
	}
}

func (c *Cached) NextEarnings(ctx context.Context, symbol string) (time.Time, bool, error) {
	key := strings.ToUpper(symbol)
	if e, ok := c.get(key); ok {
		logger.Debug(ctx, "Earnings cache hit", "symbol", key)
		return e.date, e.found, nil
	}

	date, found, err := c.inner.NextEarnings(ctx, symbol)
	if err != nil {
		return date, found, err
	}

	c.mu.Lock()
	c.data[key] = cacheEntry{date: date, found: found, fetchedAt: c.now()}
	c.mu.Unlock()
	return date, found, nil
}

func (c *Cached) get(key string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || c.now().Sub(e.fetchedAt) > c.ttl {
		return cacheEntry{}, false
	}
	return e, true
}
