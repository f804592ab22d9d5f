package graph

import (
	"fmt"
	"strings"
)

// PackageID identifies one resolved package. Two IDs are equal iff name,
// version and source all match.
type PackageID struct {
	Name    string // Package name as published
	Version string // Exact resolved version
	Source  string // Cargo source string, or "path+file://..." for local packages
}

// String returns "name version (source)", or "name version" for packages
// without a source.
func (id PackageID) String() string {
	if id.Source == "" {
		return id.Name + " " + id.Version
	}
	return fmt.Sprintf("%s %s (%s)", id.Name, id.Version, id.Source)
}

// IsRegistry reports whether the package comes from a registry.
func (id PackageID) IsRegistry() bool {
	return strings.HasPrefix(id.Source, "registry+") || strings.HasPrefix(id.Source, "sparse+")
}

// IsGit reports whether the package comes from a git repository.
func (id PackageID) IsGit() bool { return strings.HasPrefix(id.Source, "git+") }

// IsLocal reports whether the package lives on the local filesystem.
func (id PackageID) IsLocal() bool {
	return id.Source == "" || strings.HasPrefix(id.Source, "path+")
}

// Less orders IDs by name, then version, then source.
func (id PackageID) Less(other PackageID) bool {
	if id.Name != other.Name {
		return id.Name < other.Name
	}
	if id.Version != other.Version {
		return id.Version < other.Version
	}
	return id.Source < other.Source
}

// DepKind is the kind of a dependency edge.
type DepKind int

const (
	DepNormal DepKind = iota
	DepBuild
	DepDev
)

func (k DepKind) String() string {
	switch k {
	case DepNormal:
		return "normal"
	case DepBuild:
		return "build"
	case DepDev:
		return "dev"
	default:
		return fmt.Sprintf("DepKind(%d)", int(k))
	}
}

// ParseDepKind converts Cargo's dependency kind label. Cargo encodes normal
// dependencies as null, which arrives here as the empty string.
func ParseDepKind(s string) (DepKind, error) {
	switch s {
	case "", "normal":
		return DepNormal, nil
	case "build":
		return DepBuild, nil
	case "dev":
		return DepDev, nil
	default:
		return 0, fmt.Errorf("unknown dependency kind %q", s)
	}
}

// Units is a set of compilation unit kinds.
type Units uint8

const (
	UnitLib Units = 1 << iota
	UnitBin
	UnitBuildScript
	UnitTest
)

var unitNames = []struct {
	unit Units
	name string
}{
	{UnitLib, "lib"},
	{UnitBin, "bin"},
	{UnitBuildScript, "build-script"},
	{UnitTest, "test"},
}

// UnitsFor returns the units a dependency edge of kind k requires from its
// target.
func UnitsFor(k DepKind) Units {
	switch k {
	case DepBuild:
		return UnitLib | UnitBuildScript
	case DepDev:
		return UnitLib | UnitTest
	default:
		return UnitLib
	}
}

// Has reports whether every unit in o is in u.
func (u Units) Has(o Units) bool { return u&o == o }

// String joins unit names with "+", e.g. "lib+build-script".
func (u Units) String() string {
	var parts []string
	for _, n := range unitNames {
		if u.Has(n.unit) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// LocationKind says which part of the download cache holds a package.
type LocationKind int

const (
	LocationNone LocationKind = iota
	LocationRegistry
	LocationGit
)

// Location is where a package's sources live inside $CARGO_HOME. It is
// derived from the package's manifest path.
type Location struct {
	Kind LocationKind

	// Registry directory under registry/src and registry/cache,
	// e.g. "index.crates.io-6f17d22bba15001f".
	Registry string
	// Dir is the "<name>-<version>" directory under the registry directory.
	Dir string

	// Repo is the checkout directory under git/checkouts and git/db,
	// e.g. "serde-1a2b3c4d5e6f7a8b".
	Repo string
	// Rev is the short revision directory under git/checkouts/<repo>.
	Rev string
}

// Target is one compilation target of a package. Its name is the stem of
// the artifacts cargo writes for it, which may differ from the package name
// (package "md-5" builds "libmd5-<hash>.rlib").
type Target struct {
	Name  string
	Units Units
}

// Node is one resolved package.
type Node struct {
	ID PackageID

	// Features maps each declared feature to the values it enables.
	Features map[string][]string
	// Optional lists the names of optional dependencies, as referenced from
	// feature values.
	Optional []string
	// Units holds the unit kinds the package declares.
	Units Units
	// Targets lists the package's targets in manifest order.
	Targets []Target

	Member       bool   // Workspace member
	ManifestPath string // Absolute path to Cargo.toml
	Location     Location
}

// IsOptional reports whether name is an optional dependency of n.
func (n *Node) IsOptional(name string) bool {
	for _, o := range n.Optional {
		if o == name {
			return true
		}
	}
	return false
}

// HasBuildScript reports whether n declares a custom build script.
func (n *Node) HasBuildScript() bool { return n.Units.Has(UnitBuildScript) }

// Edge is one declared dependency of From on To.
type Edge struct {
	From PackageID
	To   PackageID

	// Name is the dependency key used in feature values (the rename if the
	// dependency is renamed).
	Name string
	Kind DepKind

	// Optional edges are only active when From activates Name.
	Optional bool
	// Platform is a cfg(...) expression or target triple, empty when the
	// edge applies to every platform.
	Platform string

	DefaultFeatures bool     // Enables To's "default" feature
	Features        []string // Features requested on To
}

func (e Edge) String() string {
	s := fmt.Sprintf("%s -> %s [%s]", e.From.Name, e.To.Name, e.Kind)
	if e.Optional {
		s += " optional"
	}
	if e.Platform != "" {
		s += " " + e.Platform
	}
	return s
}
