// Package resource provides the shared resource controller.
//
// The controller bounds the memory held by the caches (a weighted semaphore)
// and throttles background reads (a token bucket). It never blocks on the
// memory side: a cache that cannot reserve memory simply does not cache.
package resource
