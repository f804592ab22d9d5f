package metadata

import (
	"io"
	"path/filepath"
	"strings"

	perrors "github.com/matzehuels/precache/pkg/errors"
	"github.com/matzehuels/precache/pkg/graph"
)

// Parse decodes a metadata document from r and builds its graph.
// Every failure carries the MALFORMED_GRAPH code.
func Parse(r io.Reader) (*Document, *graph.Graph, error) {
	doc, err := Decode(r)
	if err != nil {
		return nil, nil, perrors.Wrap(perrors.ErrCodeMalformedGraph, err, "read metadata")
	}
	g, err := doc.Graph()
	if err != nil {
		return nil, nil, err
	}
	return doc, g, nil
}

func malformed(format string, args ...any) error {
	return perrors.New(perrors.ErrCodeMalformedGraph, format, args...)
}

// Validate checks that every field the graph needs is present.
func (d *Document) Validate() error {
	switch {
	case d.Packages == nil:
		return malformed("missing \"packages\"")
	case d.WorkspaceMembers == nil:
		return malformed("missing \"workspace_members\"")
	case d.Resolve == nil:
		return malformed("missing \"resolve\" (was cargo metadata run with --no-deps?)")
	case d.Resolve.Nodes == nil:
		return malformed("missing \"resolve.nodes\"")
	}

	seen := make(map[string]bool, len(*d.Packages))
	for i, p := range *d.Packages {
		switch {
		case p.ID == "":
			return malformed("packages[%d]: missing \"id\"", i)
		case p.Name == "":
			return malformed("packages[%d]: missing \"name\"", i)
		case p.Version == "":
			return malformed("packages[%d]: missing \"version\"", i)
		case p.ManifestPath == "":
			return malformed("packages[%d]: missing \"manifest_path\"", i)
		case seen[p.ID]:
			return malformed("packages[%d]: duplicate id %q", i, p.ID)
		}
		if err := perrors.ValidatePackageName(p.Name); err != nil {
			return perrors.Wrap(perrors.ErrCodeMalformedGraph, err, "packages[%d]", i)
		}
		seen[p.ID] = true
	}

	for _, m := range *d.WorkspaceMembers {
		if !seen[m] {
			return malformed("workspace member %q is not a package", m)
		}
	}
	return nil
}

// Graph validates the document and builds the package graph.
func (d *Document) Graph() (*graph.Graph, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	members := make(map[string]bool, len(*d.WorkspaceMembers))
	for _, m := range *d.WorkspaceMembers {
		members[m] = true
	}

	pkgs := make(map[string]*Package, len(*d.Packages))
	ids := make(map[string]graph.PackageID, len(*d.Packages))
	b := graph.NewBuilder()

	for i := range *d.Packages {
		p := &(*d.Packages)[i]
		id := packageID(p)
		pkgs[p.ID] = p
		ids[p.ID] = id

		node := graph.Node{
			ID:           id,
			Features:     p.Features,
			Optional:     optionalKeys(p),
			Units:        units(p.Targets),
			Targets:      targets(p.Targets),
			Member:       members[p.ID],
			ManifestPath: p.ManifestPath,
			Location:     Locate(id, p.ManifestPath),
		}
		if err := b.AddNode(node); err != nil {
			return nil, perrors.Wrap(perrors.ErrCodeMalformedGraph, err, "package %s", p.ID)
		}
	}

	for _, n := range *d.Resolve.Nodes {
		from, ok := ids[n.ID]
		if !ok {
			return nil, malformed("resolve node %q is not a package", n.ID)
		}
		pkg := pkgs[n.ID]

		// cargo before 1.41 only lists dependency IDs.
		if n.Deps == nil {
			for _, dep := range n.Dependencies {
				to, ok := ids[dep]
				if !ok {
					return nil, malformed("%s: dependency %q is not a package", n.ID, dep)
				}
				b.AddEdge(graph.Edge{From: from, To: to, Name: to.Name, DefaultFeatures: true})
			}
			continue
		}

		for _, dep := range n.Deps {
			to, ok := ids[dep.Pkg]
			if !ok {
				return nil, malformed("%s: dependency %q is not a package", n.ID, dep.Pkg)
			}
			kinds := dep.DepKinds
			if len(kinds) == 0 {
				kinds = []DepKind{{}}
			}
			for _, k := range kinds {
				kind, err := graph.ParseDepKind(deref(k.Kind))
				if err != nil {
					return nil, perrors.Wrap(perrors.ErrCodeMalformedGraph, err, "%s -> %s", n.ID, dep.Pkg)
				}
				platform := deref(k.Target)

				e := graph.Edge{From: from, To: to, Kind: kind, Platform: platform}
				if decl := matchDeclaration(pkg, to.Name, dep.Name, deref(k.Kind), platform); decl != nil {
					e.Name = decl.Key()
					e.Optional = decl.Optional
					e.DefaultFeatures = decl.UsesDefaultFeatures
					e.Features = decl.Features
				} else {
					e.Name = to.Name
					e.DefaultFeatures = true
				}
				b.AddEdge(e)
			}
		}
	}

	return b.Build()
}

// packageID builds the graph identity of p. Local packages have no source
// in the document and are identified by their manifest directory.
func packageID(p *Package) graph.PackageID {
	source := deref(p.Source)
	if source == "" {
		source = "path+file://" + filepath.ToSlash(filepath.Dir(p.ManifestPath))
	}
	return graph.PackageID{Name: p.Name, Version: p.Version, Source: source}
}

func optionalKeys(p *Package) []string {
	var keys []string
	for _, d := range p.Dependencies {
		if d.Optional {
			keys = append(keys, d.Key())
		}
	}
	return keys
}

func units(targets []Target) graph.Units {
	var u graph.Units
	for _, t := range targets {
		u |= targetUnits(t)
	}
	return u
}

func targets(ts []Target) []graph.Target {
	out := make([]graph.Target, 0, len(ts))
	for _, t := range ts {
		if u := targetUnits(t); u != 0 && t.Name != "" {
			out = append(out, graph.Target{Name: t.Name, Units: u})
		}
	}
	return out
}

func targetUnits(t Target) graph.Units {
	var u graph.Units
	for _, k := range t.Kind {
		switch k {
		case "lib", "rlib", "dylib", "cdylib", "staticlib", "proc-macro":
			u |= graph.UnitLib
		case "bin":
			u |= graph.UnitBin
		case "custom-build":
			u |= graph.UnitBuildScript
		case "test", "bench", "example":
			u |= graph.UnitTest
		}
	}
	return u
}

// normalizeName maps a package or rename to the extern crate name cargo
// reports in resolve.nodes[].deps[].name.
func normalizeName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// matchDeclaration finds the manifest declaration behind a resolved edge.
// Declarations are matched on package name, kind and platform; when a
// package is declared more than once (e.g. under two renames) the extern
// name disambiguates.
func matchDeclaration(p *Package, pkgName, externName, kind, platform string) *Dependency {
	var first *Dependency
	for i := range p.Dependencies {
		d := &p.Dependencies[i]
		if d.Name != pkgName || deref(d.Kind) != kind || deref(d.Target) != platform {
			continue
		}
		if normalizeName(d.Key()) == externName {
			return d
		}
		if first == nil {
			first = d
		}
	}
	return first
}
