package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/segstore/internal/resource"
)

// LRU is a weight-bounded LRU cache.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	capacity  int64
	weight    int64
	items     map[K]*list.Element
	evictList *list.List
	weigh     Weigher[K, V]
	onRemove  RemovalListener[K, V]
	rc        *resource.Controller

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type entry[K comparable, V any] struct {
	key    K
	value  V
	weight int64
}

// NewLRU creates a new LRU cache bounded by capacity (in weigher units).
// A capacity <= 0 disables caching. If rc is provided, it will be used to
// account for the weight as memory.
func NewLRU[K comparable, V any](capacity int64, weigh Weigher[K, V], rc *resource.Controller) *LRU[K, V] {
	if weigh == nil {
		weigh = func(K, V) int64 { return 1 }
	}
	return &LRU[K, V]{
		capacity:  capacity,
		items:     make(map[K]*list.Element),
		evictList: list.New(),
		weigh:     weigh,
		rc:        rc,
	}
}

// OnRemove installs the removal listener. Must be called before first use.
func (c *LRU[K, V]) OnRemove(fn RemovalListener[K, V]) {
	c.onRemove = fn
}

// Get returns a cached value.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Contains reports whether key is cached without touching statistics or recency.
func (c *LRU[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// RecordHit counts a hit served outside of Get.
func (c *LRU[K, V]) RecordHit() {
	c.hits.Add(1)
}

// Set caches a value. Setting an existing key replaces its value and weight.
func (c *LRU[K, V]) Set(key K, value V) {
	w := c.weigh(key, value)
	if w > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		old := ent.Value.(*entry[K, V])
		if c.rc != nil && w > old.weight && !c.rc.TryAcquireMemory(w-old.weight) {
			// Keep the old value if the controller denies the growth.
			c.evictList.MoveToFront(ent)
			return
		}
		if c.rc != nil && w < old.weight {
			c.rc.ReleaseMemory(old.weight - w)
		}
		c.weight += w - old.weight
		if c.onRemove != nil {
			c.onRemove(old.key, old.value)
		}
		ent.Value = &entry[K, V]{key: key, value: value, weight: w}
		c.evictList.MoveToFront(ent)
		c.evict()
		return
	}

	// Make room locally first: this releases memory to the controller
	// before we try to acquire it back.
	for c.weight+w > c.capacity {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.removeElement(back, true)
	}

	if c.rc != nil && !c.rc.TryAcquireMemory(w) {
		return
	}

	c.items[key] = c.evictList.PushFront(&entry[K, V]{key: key, value: value, weight: w})
	c.weight += w
}

// Remove drops key from the cache.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ent, ok := c.items[key]; ok {
		c.removeElement(ent, false)
	}
}

// Invalidate removes entries matching the predicate.
func (c *LRU[K, V]) Invalidate(predicate func(key K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for key, element := range c.items {
		if predicate(key) {
			toRemove = append(toRemove, element)
		}
	}
	for _, e := range toRemove {
		c.removeElement(e, false)
	}
}

// Purge removes all entries.
func (c *LRU[K, V]) Purge() {
	c.Invalidate(func(K) bool { return true })
}

func (c *LRU[K, V]) evict() {
	for c.weight > c.capacity {
		back := c.evictList.Back()
		if back == nil {
			return
		}
		c.removeElement(back, true)
	}
}

func (c *LRU[K, V]) removeElement(e *list.Element, evicted bool) {
	c.evictList.Remove(e)
	kv := e.Value.(*entry[K, V])
	delete(c.items, kv.key)
	c.weight -= kv.weight
	if c.rc != nil {
		c.rc.ReleaseMemory(kv.weight)
	}
	if evicted {
		c.evictions.Add(1)
	}
	if c.onRemove != nil {
		c.onRemove(kv.key, kv.value)
	}
}

// Stats returns a snapshot of the cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	weight, count := c.weight, int64(len(c.items))
	c.mu.Unlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Weight:    weight,
		Count:     count,
		Capacity:  c.capacity,
	}
}
