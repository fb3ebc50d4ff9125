// Package version tracks the edit history of a single record. Versions are
// immutable and may declare which prior versions they supersede; the edges
// form a DAG. The current state of the record is its head set: every
// admitted version that no other admitted version supersedes. More than one
// head is a conflict, which is surfaced to users rather than auto-merged.
package version

import (
	"sort"

	"github.com/google/uuid"
)

// Version is one node of the history DAG.
type Version struct {
	ID         uuid.UUID
	Supersedes []uuid.UUID
}

// pending is a version whose supersedes references have not all been
// observed yet; missing counts the unobserved ones.
type pending struct {
	v       Version
	missing int
}

// Graph admits versions incrementally in topological order. Versions may
// arrive in any order; a version only takes effect once everything it
// supersedes has been observed, and each arrival costs O(new edges), not a
// rescan of the history.
type Graph struct {
	admitted   map[uuid.UUID]struct{}
	superseded map[uuid.UUID]struct{}
	blocked    map[uuid.UUID]*pending
	// waiters maps a missing version id to the pending versions waiting on it
	waiters map[uuid.UUID][]*pending
}

func NewGraph() *Graph {
	return &Graph{
		admitted:   make(map[uuid.UUID]struct{}),
		superseded: make(map[uuid.UUID]struct{}),
		blocked:    make(map[uuid.UUID]*pending),
		waiters:    make(map[uuid.UUID][]*pending),
	}
}

// Build constructs a graph from an unordered snapshot, for the
// initial-fetch path.
func Build(versions []Version) *Graph {
	g := NewGraph()
	for _, v := range versions {
		g.Add(v)
	}
	return g
}

// Add observes a version. Duplicate ids are ignored.
func (g *Graph) Add(v Version) {
	if _, ok := g.admitted[v.ID]; ok {
		return
	}
	if _, ok := g.blocked[v.ID]; ok {
		return
	}

	p := &pending{v: v}
	for _, dep := range v.Supersedes {
		if _, ok := g.admitted[dep]; ok {
			continue
		}
		p.missing++
		g.waiters[dep] = append(g.waiters[dep], p)
	}

	if p.missing > 0 {
		g.blocked[v.ID] = p
		return
	}
	g.admit(v)
}

func (g *Graph) admit(v Version) {
	g.admitted[v.ID] = struct{}{}
	for _, dep := range v.Supersedes {
		g.superseded[dep] = struct{}{}
	}

	// unblock anything that was waiting on this version
	for _, p := range g.waiters[v.ID] {
		p.missing--
		if p.missing == 0 {
			delete(g.blocked, p.v.ID)
			g.admit(p.v)
		}
	}
	delete(g.waiters, v.ID)
}

// Heads returns the admitted versions not superseded by any admitted
// version, sorted for deterministic output.
func (g *Graph) Heads() []uuid.UUID {
	heads := make([]uuid.UUID, 0, 1)
	for id := range g.admitted {
		if _, ok := g.superseded[id]; !ok {
			heads = append(heads, id)
		}
	}
	sort.Slice(heads, func(i, j int) bool {
		return heads[i].String() < heads[j].String()
	})
	return heads
}

// Conflicted reports whether the record currently has more than one head.
func (g *Graph) Conflicted() bool {
	return len(g.Heads()) > 1
}

// Blocked returns how many versions are still waiting on unobserved
// dependencies.
func (g *Graph) Blocked() int {
	return len(g.blocked)
}
