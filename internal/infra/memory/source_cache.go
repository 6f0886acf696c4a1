package memory

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"peerquiz/internal/oracle"
	"golang.org/x/sync/singleflight"
)

// SourceCache caches raw source entries with a TTL to avoid refetching the
// collection on every host reload.
type SourceCache struct {
	loader oracle.SourceLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedSource
}

type cachedSource struct {
	entries   []json.RawMessage
	expiresAt time.Time
}

func NewSourceCache(loader oracle.SourceLoader, ttl time.Duration) *SourceCache {
	return &SourceCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSource),
	}
}

func (c *SourceCache) LoadSource(ctx context.Context, ref string) ([]json.RawMessage, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[ref]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.entries, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(ref, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[ref]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.entries, nil
		}
		c.mu.RUnlock()

		entries, err := c.loader.LoadSource(ctx, ref)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[ref] = cachedSource{
			entries:   entries,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]json.RawMessage), nil
}

func (c *SourceCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
