// Package retain computes the retention set: the packages a build
// configuration downloads and compiles.
package retain

import (
	"github.com/matzehuels/precache/pkg/features"
	"github.com/matzehuels/precache/pkg/graph"
)

// Set is a retention set.
//
// Source holds every package whose sources a build needs, keyed to its
// download cache location. Build holds every package that is compiled,
// tagged with the unit kinds compiled. Every Build key is also a Source key.
// Targets holds the declared targets of compiled packages.
type Set struct {
	Source  map[graph.PackageID]graph.Location
	Build   map[graph.PackageID]graph.Units
	Members map[graph.PackageID]bool
	Targets map[graph.PackageID][]graph.Target
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{
		Source:  make(map[graph.PackageID]graph.Location),
		Build:   make(map[graph.PackageID]graph.Units),
		Members: make(map[graph.PackageID]bool),
		Targets: make(map[graph.PackageID][]graph.Target),
	}
}

type visit struct {
	id    graph.PackageID
	units graph.Units
}

// Compute walks g breadth-first from the roots of res over active edges.
//
// Roots are retained with the units they declare. Every package reached
// through an edge is retained with the units that edge kind requires, plus
// its build script when it declares one. A (package, units) pair is expanded
// at most once.
func Compute(g *graph.Graph, res *features.Resolution) *Set {
	s := NewSet()
	seen := make(map[visit]bool)
	var queue []visit

	enqueue := func(id graph.PackageID, units graph.Units) {
		node := g.Node(id)
		if node.HasBuildScript() {
			units |= graph.UnitBuildScript
		}
		s.add(node, units)

		v := visit{id: id, units: units}
		if seen[v] {
			return
		}
		seen[v] = true
		queue = append(queue, v)
	}

	for _, id := range res.Roots() {
		s.Members[id] = true
		units := g.Node(id).Units
		if units == 0 {
			units = graph.UnitLib
		}
		enqueue(id, units)
	}

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, e := range g.Edges(v.id) {
			if !res.Active(e) {
				continue
			}
			enqueue(e.To, graph.UnitsFor(e.Kind))
		}
	}
	return s
}

func (s *Set) add(n *graph.Node, units graph.Units) {
	s.Source[n.ID] = n.Location
	s.Build[n.ID] |= units
	if len(n.Targets) > 0 {
		s.Targets[n.ID] = n.Targets
	}
}

// ArtifactNames returns the names id's compiled artifacts are written
// under: the package name and the name of every target whose units are
// compiled.
func (s *Set) ArtifactNames(id graph.PackageID) []string {
	units, ok := s.Build[id]
	if !ok {
		return nil
	}
	names := []string{id.Name}
	for _, t := range s.Targets[id] {
		if units&t.Units != 0 {
			names = append(names, t.Name)
		}
	}
	return names
}

// Contains reports whether id is retained.
func (s *Set) Contains(id graph.PackageID) bool {
	_, ok := s.Source[id]
	return ok
}

// IDs returns the retained package IDs, sorted.
func (s *Set) IDs() []graph.PackageID {
	ids := make([]graph.PackageID, 0, len(s.Source))
	for id := range s.Source {
		ids = append(ids, id)
	}
	graph.SortIDs(ids)
	return ids
}

// Len returns the number of retained packages.
func (s *Set) Len() int { return len(s.Source) }
