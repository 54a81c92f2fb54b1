package cache

// Stats is a point-in-time snapshot of cache statistics.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	// Weight is the summed weight of all cached entries.
	Weight int64
	// Count is the number of cached entries.
	Count int64
	// Capacity is the configured weight budget.
	Capacity int64
}

// Requests returns the number of lookups (hits + misses).
func (s Stats) Requests() int64 {
	return s.Hits + s.Misses
}

// HitRate returns hits / requests, or 1 when there were no requests.
func (s Stats) HitRate() float64 {
	if r := s.Requests(); r > 0 {
		return float64(s.Hits) / float64(r)
	}
	return 1
}

func (s Stats) add(o Stats) Stats {
	return Stats{
		Hits:      s.Hits + o.Hits,
		Misses:    s.Misses + o.Misses,
		Evictions: s.Evictions + o.Evictions,
		Weight:    s.Weight + o.Weight,
		Count:     s.Count + o.Count,
		Capacity:  s.Capacity + o.Capacity,
	}
}

// Weigher returns the weight of an entry.
type Weigher[K comparable, V any] func(key K, value V) int64

// RemovalListener is called whenever an entry leaves the cache (eviction,
// replacement, removal or purge). It runs under the shard lock and must not
// call back into the cache.
type RemovalListener[K comparable, V any] func(key K, value V)
