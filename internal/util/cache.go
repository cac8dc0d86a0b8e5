package util

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type Cache interface {
	// Get a value from the cache and return true if found, any is the value if found and nil if no error
	Get(key string) (bool, any, error)

	// Set a value into the cache with a cache expiration
	Set(key string, val any, expires time.Duration) error

	// Delete removes a key, used for write invalidation
	Delete(key string) error

	// Close will shutdown the cache
	Close() error
}

type entry struct {
	key     string
	object  any
	expires time.Time
}

// inMemoryCache is a TTL cache bounded by capacity with least recently used
// eviction. Background expiry keeps the map from accumulating dead entries
// between reads.
type inMemoryCache struct {
	ctx         context.Context
	cancel      context.CancelFunc
	cache       map[string]*list.Element
	order       *list.List
	capacity    int
	mutex       sync.Mutex
	waitGroup   sync.WaitGroup
	once        sync.Once
	expiryCheck time.Duration
}

var _ Cache = (*inMemoryCache)(nil)

func (c *inMemoryCache) Get(key string) (bool, any, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	el, ok := c.cache[key]
	if !ok {
		return false, nil, nil
	}
	e := el.Value.(*entry)
	if e.expires.Before(time.Now()) {
		c.order.Remove(el)
		delete(c.cache, key)
		return false, nil, nil
	}
	c.order.MoveToFront(el)
	return true, e.object, nil
}

func (c *inMemoryCache) Set(key string, val any, expires time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if el, ok := c.cache[key]; ok {
		e := el.Value.(*entry)
		e.object = val
		e.expires = time.Now().Add(expires)
		c.order.MoveToFront(el)
		return nil
	}
	el := c.order.PushFront(&entry{key, val, time.Now().Add(expires)})
	c.cache[key] = el
	if c.capacity > 0 && c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.cache, oldest.Value.(*entry).key)
		}
	}
	return nil
}

func (c *inMemoryCache) Delete(key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if el, ok := c.cache[key]; ok {
		c.order.Remove(el)
		delete(c.cache, key)
	}
	return nil
}

func (c *inMemoryCache) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
	})
	return nil
}

func (c *inMemoryCache) run() {
	c.waitGroup.Add(1)
	timer := time.NewTicker(c.expiryCheck)
	defer func() {
		timer.Stop()
		c.waitGroup.Done()
	}()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-timer.C:
			now := time.Now()
			c.mutex.Lock()
			var expired []*list.Element
			for _, el := range c.cache {
				if el.Value.(*entry).expires.Before(now) {
					expired = append(expired, el)
				}
			}
			for _, el := range expired {
				c.order.Remove(el)
				delete(c.cache, el.Value.(*entry).key)
			}
			c.mutex.Unlock()
		}
	}
}

// NewCache returns a new Cache implementation bounded by capacity. A
// capacity of zero or less means unbounded.
func NewCache(parent context.Context, expiryCheck time.Duration, capacity int) Cache {
	ctx, cancel := context.WithCancel(parent)
	c := &inMemoryCache{
		ctx:         ctx,
		cancel:      cancel,
		cache:       make(map[string]*list.Element),
		order:       list.New(),
		capacity:    capacity,
		expiryCheck: expiryCheck,
	}
	go c.run()
	return c
}
