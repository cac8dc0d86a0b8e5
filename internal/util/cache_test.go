package util

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSimpleCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cache := NewCache(ctx, time.Second, 0)
	cache.Close()
	cancel()
}

func TestSetGetCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cache := NewCache(ctx, time.Minute, 0)
	found, val, err := cache.Get("test")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
	assert.NoError(t, cache.Set("test", "value", time.Millisecond*10))
	found, val, err = cache.Get("test")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", val)
	time.Sleep(time.Millisecond * 11)
	found, val, err = cache.Get("test")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
	cache.Close()
	cancel()
}

func TestDeleteCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cache := NewCache(ctx, time.Minute, 0)
	assert.NoError(t, cache.Set("test", "value", time.Minute))
	assert.NoError(t, cache.Delete("test"))
	found, val, err := cache.Get("test")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
	assert.NoError(t, cache.Delete("missing"))
	cache.Close()
	cancel()
}

func TestCacheCapacityEviction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cache := NewCache(ctx, time.Minute, 3)
	for i := 0; i < 3; i++ {
		assert.NoError(t, cache.Set(fmt.Sprintf("key%d", i), i, time.Minute))
	}
	// touch key0 so key1 becomes the least recently used
	found, _, err := cache.Get("key0")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.NoError(t, cache.Set("key3", 3, time.Minute))
	found, _, _ = cache.Get("key1")
	assert.False(t, found)
	found, _, _ = cache.Get("key0")
	assert.True(t, found)
	found, _, _ = cache.Get("key3")
	assert.True(t, found)
	cache.Close()
	cancel()
}

func TestCacheBackgroundExpire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cache := NewCache(ctx, time.Millisecond*100, 0)
	assert.NoError(t, cache.Set("test", "value", 90*time.Millisecond))
	found, val, err := cache.Get("test")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", val)
	time.Sleep(time.Millisecond * 200)
	c := cache.(*inMemoryCache)
	c.mutex.Lock()
	defer c.mutex.Unlock()
	assert.Empty(t, c.cache)
	cache.Close()
	cancel()
}
