package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/nhle/workcal/internal/model"
)

// IdempotencyCache remembers the record produced for each client-supplied
// idempotency key for a limited time, so a repeated create (a double click,
// a client retry after a lost response) returns the first record instead of
// adding a duplicate.
type IdempotencyCache struct {
	cache *ttlcache.Cache[string, model.Record]

	// mu serializes keyed creates so two requests carrying the same key
	// cannot both miss the cache.
	mu sync.Mutex
}

// NewIdempotencyCache creates a cache whose entries expire after ttl. The
// janitor goroutine stops when ctx is done.
func NewIdempotencyCache(ctx context.Context, ttl time.Duration) *IdempotencyCache {
	cache := ttlcache.New[string, model.Record](
		ttlcache.WithTTL[string, model.Record](ttl),
		ttlcache.WithCapacity[string, model.Record](10_000),
	)

	go cache.Start()

	go func() {
		<-ctx.Done()
		cache.Stop()
	}()

	return &IdempotencyCache{cache: cache}
}

// Do returns the record remembered for key, or runs create and remembers its
// result. replayed is true when the record came from the cache. Failed
// creates are not remembered.
func (c *IdempotencyCache) Do(
	key string,
	create func() (model.Record, error),
) (rec model.Record, replayed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item := c.cache.Get(key); item != nil {
		return item.Value(), true, nil
	}

	rec, err = create()
	if err != nil {
		return model.Record{}, false, err
	}
	c.cache.Set(key, rec, ttlcache.DefaultTTL)
	return rec, false, nil
}

// Len returns the number of live keys.
func (c *IdempotencyCache) Len() int {
	return c.cache.Len()
}
