package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"peerquiz/internal/oracle"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// SourceCache caches raw source entries in Redis and falls back to a loader
// on cache miss, so every host reload of the same collection does not refetch
// it. The cache keyspace is server-side only; nothing here is ever written
// into a room's shared state hash.
// Entries are stored as: SET quizsrc:{ref} {json array}
type SourceCache struct {
	client *redis.Client
	loader oracle.SourceLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewSourceCache(client *redis.Client, loader oracle.SourceLoader, ttl time.Duration) *SourceCache {
	return &SourceCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *SourceCache) LoadSource(ctx context.Context, ref string) ([]json.RawMessage, error) {
	key := c.key(ref)

	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var entries []json.RawMessage
		if err := json.Unmarshal(cached, &entries); err == nil {
			return entries, nil
		}
	}

	result, err, _ := c.sf.Do(ref, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var entries []json.RawMessage
			if err := json.Unmarshal(cached, &entries); err == nil {
				return entries, nil
			}
		}

		entries, err := c.loader.LoadSource(ctx, ref)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("marshal source cache: %w", err)
		}
		_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()

		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]json.RawMessage), nil
}

func (c *SourceCache) key(ref string) string {
	return "quizsrc:" + ref
}

func (c *SourceCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
