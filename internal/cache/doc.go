// Package cache provides weight-bounded LRU caches.
//
// [LRU] is a single-lock cache whose capacity is expressed in weigher units
// (bytes for segments and strings). [Sharded] spreads keys over independent
// LRU shards selected by a caller supplied hash; eviction order is therefore
// approximately, not exactly, LRU.
//
// Both integrate with [resource.Controller]: every cached unit of weight is
// reserved as memory, and an entry the controller refuses is simply not cached.
// Absence from a cache never changes results, only latency.
package cache
