// Package testutil provides testing utilities for segstore.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded random source for segment ids and payloads, and
// generates random segment forests together with the graph and blob
// references a store is expected to derive from them.
//
// # Random Forests
//
//	rng := testutil.NewRNG(seed)
//	forest, err := rng.Forest(testutil.ForestOptions{Segments: 100, MaxRefs: 3})
//	for _, id := range forest.Order {
//		store.WriteSegment(id, forest.Data[id])
//	}
//	// forest.Edges and forest.BlobIDs hold the expected indexes.
package testutil
