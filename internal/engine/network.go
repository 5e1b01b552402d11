package engine

import (
	"math"
	"sort"

	"github.com/lazypower/tiermem/internal/memory"
	"github.com/lazypower/tiermem/internal/vecmath"
)

// associate links a freshly stored trace to every existing trace above the
// association threshold, then to the explicitly related ids. Explicit links
// are weighted by similarity too, floored at zero. Unknown ids are skipped.
func (e *Engine) associate(t *memory.Trace, related []string) {
	for _, other := range e.store.All() {
		if other.ID == t.ID {
			continue
		}
		if sim := vecmath.Cosine(t.Vector, other.Vector); sim > e.cfg.AssociationThreshold {
			e.store.Link(t.ID, other.ID, sim)
		}
	}
	for _, id := range related {
		other, ok := e.store.Get(id)
		if !ok || id == t.ID {
			continue
		}
		e.store.Link(t.ID, id, math.Max(0, vecmath.Cosine(t.Vector, other.Vector)))
	}
}

// ShortestPath finds the fewest-hop association path from a to b, at most
// maxHops edges long. The path includes both ends. Unknown ids and
// unreachable pairs report false.
func (e *Engine) ShortestPath(a, b string, maxHops int) ([]string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shortestPath(a, b, maxHops)
}

func (e *Engine) shortestPath(a, b string, maxHops int) ([]string, bool) {
	start, ok := e.store.Get(a)
	if !ok {
		return nil, false
	}
	if _, ok := e.store.Get(b); !ok {
		return nil, false
	}
	if a == b {
		return []string{a}, true
	}
	if maxHops < 1 {
		return nil, false
	}
	if _, direct := start.Associations[b]; direct {
		return []string{a, b}, true
	}

	prev := map[string]string{a: ""}
	frontier := []string{a}
	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, n := range e.neighbors(id) {
				if _, seen := prev[n]; seen {
					continue
				}
				prev[n] = id
				if n == b {
					return unwind(prev, b), true
				}
				next = append(next, n)
			}
		}
		frontier = next
	}
	return nil, false
}

// reachable returns a path from start to every trace within depth hops,
// nearest first.
func (e *Engine) reachable(start string, depth int) [][]string {
	if depth < 1 {
		return nil
	}
	prev := map[string]string{start: ""}
	frontier := []string{start}
	var paths [][]string
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, n := range e.neighbors(id) {
				if _, seen := prev[n]; seen {
					continue
				}
				prev[n] = id
				paths = append(paths, unwind(prev, n))
				next = append(next, n)
			}
		}
		frontier = next
	}
	return paths
}

// neighbors returns the ids associated with id, sorted for stable walks.
func (e *Engine) neighbors(id string) []string {
	t, ok := e.store.Get(id)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(t.Associations))
	for n := range t.Associations {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func unwind(prev map[string]string, end string) []string {
	var path []string
	for id := end; id != ""; id = prev[id] {
		path = append(path, id)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
