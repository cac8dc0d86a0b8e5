package validator

import (
	"context"
	"time"

	"github.com/gridbase/gridbase/internal"
	"github.com/gridbase/gridbase/internal/util"
	"github.com/shopmonkeyus/go-common/logger"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes compiled validators. Entries are keyed by table id plus a
// content hash of the field list so an in-place field edit never serves a
// stale validator.
type Cache struct {
	logger logger.Logger
	cache  util.Cache
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache returns a validator cache with the given TTL and capacity. A
// zero TTL uses the default.
func NewCache(ctx context.Context, logger logger.Logger, ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = internal.DefaultConfig().ValidatorCacheTTL
	}
	return &Cache{
		logger: logger.WithPrefix("[validator]"),
		cache:  util.NewCache(ctx, time.Minute, capacity),
		ttl:    ttl,
	}
}

func cacheKey(table *internal.Table) string {
	return table.ID + ":" + FieldHash(table)
}

// Get returns the compiled validator for the table, compiling it on a miss.
// Concurrent misses for the same table compile once.
func (c *Cache) Get(table *internal.Table) (*Validator, error) {
	key := cacheKey(table)
	found, val, err := c.cache.Get(key)
	if err != nil {
		return nil, err
	}
	if found {
		internal.CacheHits.WithLabelValues("validator").Inc()
		return val.(*Validator), nil
	}
	internal.CacheMisses.WithLabelValues("validator").Inc()
	v, err, _ := c.group.Do(key, func() (any, error) {
		c.logger.Debug("compiling validator for table %s", table.ID)
		compiled, err := Compile(table)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(key, compiled, c.ttl); err != nil {
			return nil, err
		}
		return compiled, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Validator), nil
}

// Invalidate drops the cached validator for the table's current field list.
func (c *Cache) Invalidate(table *internal.Table) {
	c.cache.Delete(cacheKey(table))
}

// Close shuts the cache down.
func (c *Cache) Close() error {
	return c.cache.Close()
}
