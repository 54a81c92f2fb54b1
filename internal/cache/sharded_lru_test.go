package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
)

func newTestSharded(capacity int64) *Sharded[string, []byte] {
	return NewSharded[string, []byte](capacity, 4, xxhash.Sum64String, byteWeigher, nil)
}

func TestSharded_GetSet(t *testing.T) {
	c := newTestSharded(1 << 20)
	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("k%d", i), []byte{byte(i)})
	}
	for i := 0; i < 100; i++ {
		v, ok := c.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok)
		assert.Equal(t, []byte{byte(i)}, v)
	}

	stats := c.Stats()
	assert.Equal(t, int64(100), stats.Hits)
	assert.Equal(t, int64(100), stats.Count)
	assert.Equal(t, int64(100), stats.Weight)
	assert.Equal(t, int64(1<<20), stats.Capacity)
	assert.Len(t, c.ShardStats(), 4)
}

func TestSharded_BoundedWeight(t *testing.T) {
	c := newTestSharded(64)
	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("k%d", i), make([]byte, 4))
	}
	stats := c.Stats()
	assert.LessOrEqual(t, stats.Weight, int64(64))
	assert.Positive(t, stats.Evictions)
}

func TestSharded_RemoveInvalidate(t *testing.T) {
	c := newTestSharded(1 << 10)
	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))

	c.Remove("a")
	assert.False(t, c.Contains("a"))

	c.Invalidate(func(string) bool { return true })
	assert.False(t, c.Contains("b"))
}

func TestSharded_RemovalListener(t *testing.T) {
	c := newTestSharded(1 << 10)
	var mu sync.Mutex
	removed := map[string]bool{}
	c.OnRemove(func(k string, _ []byte) {
		mu.Lock()
		removed[k] = true
		mu.Unlock()
	})

	c.Set("a", []byte("1"))
	c.Purge()
	assert.True(t, removed["a"])
}

func TestSharded_Concurrent(t *testing.T) {
	c := newTestSharded(1 << 12)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", (g*500+i)%200)
				c.Set(key, []byte("value"))
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Stats().Weight, int64(1<<12))
}
