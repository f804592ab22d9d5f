package graph

import (
	"errors"
	"fmt"
	"slices"

	perrors "github.com/matzehuels/precache/pkg/errors"
)

var (
	// ErrInvalidPackageID is returned by [Builder.AddNode] when the package
	// name or version is empty.
	ErrInvalidPackageID = errors.New("package ID must have a name and version")

	// ErrDuplicatePackage is returned by [Builder.AddNode] when a node with the
	// same PackageID was already added.
	ErrDuplicatePackage = errors.New("duplicate package")

	// ErrUnknownPackage is returned by [Builder.Build] when an edge references
	// a package that was never added.
	ErrUnknownPackage = errors.New("unknown package")

	// ErrGraphHasCycle is returned by [Builder.Build] when the normal edges
	// form a cycle. Cycles are detected using depth-first search with
	// white/gray/black coloring.
	ErrGraphHasCycle = errors.New("normal dependencies contain a cycle")
)

// Builder accumulates nodes and edges. Edges may be added before their
// endpoints; endpoints are checked by Build.
//
// The zero value is not usable - use NewBuilder.
type Builder struct {
	nodes map[PackageID]*Node
	order []PackageID
	edges []Edge
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{nodes: make(map[PackageID]*Node)}
}

// AddNode adds a package. The node's Features map is initialized if nil.
func (b *Builder) AddNode(n Node) error {
	if n.ID.Name == "" || n.ID.Version == "" {
		return fmt.Errorf("%w: %q", ErrInvalidPackageID, n.ID.String())
	}
	if _, exists := b.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePackage, n.ID)
	}
	if n.Features == nil {
		n.Features = map[string][]string{}
	}
	node := n
	b.nodes[n.ID] = &node
	b.order = append(b.order, n.ID)
	return nil
}

// AddEdge records a dependency edge.
func (b *Builder) AddEdge(e Edge) {
	b.edges = append(b.edges, e)
}

// Build validates the accumulated nodes and edges and returns the immutable
// graph. Validation failures carry the MALFORMED_GRAPH code and wrap one of
// ErrUnknownPackage or ErrGraphHasCycle.
func (b *Builder) Build() (*Graph, error) {
	g := &Graph{
		nodes:    b.nodes,
		order:    slices.Clone(b.order),
		outgoing: make(map[PackageID][]Edge, len(b.nodes)),
	}

	for _, e := range b.edges {
		if _, ok := b.nodes[e.From]; !ok {
			return nil, perrors.Wrap(perrors.ErrCodeMalformedGraph,
				fmt.Errorf("%w: %s", ErrUnknownPackage, e.From), "edge %s", e)
		}
		if _, ok := b.nodes[e.To]; !ok {
			return nil, perrors.Wrap(perrors.ErrCodeMalformedGraph,
				fmt.Errorf("%w: %s", ErrUnknownPackage, e.To), "edge %s", e)
		}
		g.outgoing[e.From] = append(g.outgoing[e.From], e)
		g.edgeCount++
	}

	for _, id := range g.order {
		if g.nodes[id].Member {
			g.members = append(g.members, id)
		}
	}

	if cycle := g.normalCycle(); cycle != nil {
		return nil, perrors.Wrap(perrors.ErrCodeMalformedGraph, ErrGraphHasCycle,
			"cycle through %s", cycle)
	}
	return g, nil
}

// Graph is an immutable resolved package graph. It is safe for concurrent
// reads.
type Graph struct {
	nodes     map[PackageID]*Node
	order     []PackageID
	outgoing  map[PackageID][]Edge
	members   []PackageID
	edgeCount int
}

// Node returns the node for id, or nil if the package is unknown.
// The returned node must not be modified.
func (g *Graph) Node(id PackageID) *Node { return g.nodes[id] }

// Nodes returns all package IDs in insertion order.
func (g *Graph) Nodes() []PackageID { return slices.Clone(g.order) }

// Edges returns the outgoing edges of id in declaration order.
func (g *Graph) Edges(id PackageID) []Edge { return g.outgoing[id] }

// Members returns the workspace members in insertion order.
func (g *Graph) Members() []PackageID { return slices.Clone(g.members) }

// NodeCount returns the number of packages.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return g.edgeCount }

// Lookup returns every package named name, ordered by ID.
func (g *Graph) Lookup(name string) []PackageID {
	var ids []PackageID
	for _, id := range g.order {
		if id.Name == name {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, compareIDs)
	return ids
}

// normalCycle returns a package on a normal-edge cycle, or nil.
func (g *Graph) normalCycle() *PackageID {
	const (
		white = iota
		gray
		black
	)

	color := make(map[PackageID]int, len(g.nodes))
	var found *PackageID

	var dfs func(id PackageID)
	dfs = func(id PackageID) {
		color[id] = gray
		for _, e := range g.outgoing[id] {
			if e.Kind != DepNormal || found != nil {
				continue
			}
			switch color[e.To] {
			case white:
				dfs(e.To)
			case gray:
				to := e.To
				found = &to
				return
			}
		}
		color[id] = black
	}

	for _, id := range g.order {
		if color[id] == white {
			dfs(id)
			if found != nil {
				return found
			}
		}
	}
	return nil
}

func compareIDs(a, b PackageID) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

// SortIDs sorts ids by name, version and source.
func SortIDs(ids []PackageID) { slices.SortFunc(ids, compareIDs) }
