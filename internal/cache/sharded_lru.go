package cache

import (
	"sync"

	"github.com/hupe1980/segstore/internal/resource"
)

const defaultShards = 16

// Sharded is a weight-bounded cache split over independent LRU shards to
// reduce lock contention. Recency is tracked per shard, so eviction order is
// only approximately LRU.
type Sharded[K comparable, V any] struct {
	shards []*LRU[K, V]
	hash   func(K) uint64
}

// NewSharded creates a sharded cache. The capacity is divided evenly across
// shards; hash selects the shard for a key.
func NewSharded[K comparable, V any](capacity int64, shards int, hash func(K) uint64, weigh Weigher[K, V], rc *resource.Controller) *Sharded[K, V] {
	if shards <= 0 {
		shards = defaultShards
	}
	shardCapacity := capacity / int64(shards)
	if capacity > 0 && shardCapacity < 1 {
		shardCapacity = 1
	}

	s := &Sharded[K, V]{
		shards: make([]*LRU[K, V], shards),
		hash:   hash,
	}
	for i := range s.shards {
		s.shards[i] = NewLRU(shardCapacity, weigh, rc)
	}
	return s
}

func (s *Sharded[K, V]) shard(key K) *LRU[K, V] {
	return s.shards[s.hash(key)%uint64(len(s.shards))]
}

// OnRemove installs the removal listener on every shard.
func (s *Sharded[K, V]) OnRemove(fn RemovalListener[K, V]) {
	for _, sh := range s.shards {
		sh.OnRemove(fn)
	}
}

// Get returns a cached value.
func (s *Sharded[K, V]) Get(key K) (V, bool) {
	return s.shard(key).Get(key)
}

// Set caches a value.
func (s *Sharded[K, V]) Set(key K, value V) {
	s.shard(key).Set(key, value)
}

// Contains reports whether key is cached.
func (s *Sharded[K, V]) Contains(key K) bool {
	return s.shard(key).Contains(key)
}

// Remove drops key from the cache.
func (s *Sharded[K, V]) Remove(key K) {
	s.shard(key).Remove(key)
}

// RecordHit counts a hit for key that was served outside of Get.
func (s *Sharded[K, V]) RecordHit(key K) {
	s.shard(key).RecordHit()
}

// Invalidate removes entries matching the predicate from all shards.
func (s *Sharded[K, V]) Invalidate(predicate func(key K) bool) {
	var wg sync.WaitGroup
	wg.Add(len(s.shards))
	for _, sh := range s.shards {
		go func(sh *LRU[K, V]) {
			defer wg.Done()
			sh.Invalidate(predicate)
		}(sh)
	}
	wg.Wait()
}

// Purge removes all entries from all shards.
func (s *Sharded[K, V]) Purge() {
	for _, sh := range s.shards {
		sh.Purge()
	}
}

// Stats returns aggregated statistics.
func (s *Sharded[K, V]) Stats() Stats {
	var total Stats
	for _, sh := range s.shards {
		total = total.add(sh.Stats())
	}
	return total
}

// ShardStats returns per-shard statistics.
func (s *Sharded[K, V]) ShardStats() []Stats {
	stats := make([]Stats, len(s.shards))
	for i, sh := range s.shards {
		stats[i] = sh.Stats()
	}
	return stats
}
