package graph

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/segstore/model"
)

// Interner maps segment ids to dense indices and back.
type Interner interface {
	Intern(id model.SegmentID) uint32
	Resolve(index uint32) (model.SegmentID, bool)
}

// Graph is a directed graph of segment references. It is safe for concurrent use.
type Graph struct {
	mu       sync.RWMutex
	interner Interner
	edges    map[uint32]*roaring.Bitmap
}

// New creates an empty graph over the given interner.
func New(interner Interner) *Graph {
	return &Graph{
		interner: interner,
		edges:    make(map[uint32]*roaring.Bitmap),
	}
}

// AddEdge records the edge from -> to.
func (g *Graph) AddEdge(from, to model.SegmentID) {
	f := g.interner.Intern(from)
	t := g.interner.Intern(to)

	g.mu.Lock()
	defer g.mu.Unlock()

	bm, ok := g.edges[f]
	if !ok {
		bm = roaring.New()
		g.edges[f] = bm
	}
	bm.Add(t)
}

// HasEdge reports whether the edge from -> to is recorded.
func (g *Graph) HasEdge(from, to model.SegmentID) bool {
	f := g.interner.Intern(from)
	t := g.interner.Intern(to)

	g.mu.RLock()
	defer g.mu.RUnlock()
	bm, ok := g.edges[f]
	return ok && bm.Contains(t)
}

// Edges returns the targets of all edges leaving from.
func (g *Graph) Edges(from model.SegmentID) []model.SegmentID {
	f := g.interner.Intern(from)

	g.mu.RLock()
	bm, ok := g.edges[f]
	var targets []uint32
	if ok {
		targets = bm.ToArray()
	}
	g.mu.RUnlock()

	return g.resolveAll(targets)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var n uint64
	for _, bm := range g.edges {
		n += bm.GetCardinality()
	}
	return n
}

// ForEach calls fn for every segment with outgoing edges. Sources are visited
// in index order. Returning false stops the iteration.
func (g *Graph) ForEach(fn func(from model.SegmentID, to []model.SegmentID) bool) {
	g.mu.RLock()
	sources := make([]uint32, 0, len(g.edges))
	for f := range g.edges {
		sources = append(sources, f)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	targets := make([][]uint32, len(sources))
	for i, f := range sources {
		targets[i] = g.edges[f].ToArray()
	}
	g.mu.RUnlock()

	for i, f := range sources {
		from, ok := g.interner.Resolve(f)
		if !ok {
			continue
		}
		if !fn(from, g.resolveAll(targets[i])) {
			return
		}
	}
}

// Map returns the graph as an adjacency map.
func (g *Graph) Map() map[model.SegmentID][]model.SegmentID {
	m := make(map[model.SegmentID][]model.SegmentID)
	g.ForEach(func(from model.SegmentID, to []model.SegmentID) bool {
		m[from] = to
		return true
	})
	return m
}

// Merge adds all edges of other. Both graphs must share an interner.
func (g *Graph) Merge(other *Graph) {
	if other == g {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	for f, bm := range other.edges {
		if mine, ok := g.edges[f]; ok {
			mine.Or(bm)
		} else {
			g.edges[f] = bm.Clone()
		}
	}
}

// Reachable returns every segment reachable from roots, roots included.
func (g *Graph) Reachable(roots ...model.SegmentID) []model.SegmentID {
	visited := roaring.New()
	queue := make([]uint32, 0, len(roots))
	for _, r := range roots {
		idx := g.interner.Intern(r)
		if visited.CheckedAdd(idx) {
			queue = append(queue, idx)
		}
	}

	g.mu.RLock()
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		bm, ok := g.edges[cur]
		if !ok {
			continue
		}
		it := bm.Iterator()
		for it.HasNext() {
			next := it.Next()
			if visited.CheckedAdd(next) {
				queue = append(queue, next)
			}
		}
	}
	g.mu.RUnlock()

	return g.resolveAll(visited.ToArray())
}

func (g *Graph) resolveAll(indices []uint32) []model.SegmentID {
	if len(indices) == 0 {
		return nil
	}
	ids := make([]model.SegmentID, 0, len(indices))
	for _, idx := range indices {
		if id, ok := g.interner.Resolve(idx); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
