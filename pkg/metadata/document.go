// Package metadata reads the output of `cargo metadata --format-version 1`
// and turns it into a [graph.Graph].
//
// The document lists every package in the resolved lock graph together with
// the dependencies its manifest declares. The resolve section links package
// IDs; declarations supply what the resolve section leaves out (optional
// flag, feature requests, the dependency key used in feature values).
package metadata

import (
	"encoding/json"
	"fmt"
	"io"
)

// Document is the subset of the cargo metadata format this package uses.
// Pointer fields are required; their absence is reported by [Parse].
type Document struct {
	Packages         *[]Package `json:"packages"`
	WorkspaceMembers *[]string  `json:"workspace_members"`
	Resolve          *Resolve   `json:"resolve"`
	TargetDirectory  string     `json:"target_directory"`
	WorkspaceRoot    string     `json:"workspace_root"`
	Version          int        `json:"version"`
}

// Package is one entry of "packages".
type Package struct {
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	ID           string              `json:"id"`
	Source       *string             `json:"source"`
	ManifestPath string              `json:"manifest_path"`
	Dependencies []Dependency        `json:"dependencies"`
	Targets      []Target            `json:"targets"`
	Features     map[string][]string `json:"features"`
}

// Dependency is a dependency declaration from a package manifest.
type Dependency struct {
	Name                string   `json:"name"`
	Source              *string  `json:"source"`
	Req                 string   `json:"req"`
	Kind                *string  `json:"kind"`
	Rename              *string  `json:"rename"`
	Optional            bool     `json:"optional"`
	UsesDefaultFeatures bool     `json:"uses_default_features"`
	Features            []string `json:"features"`
	Target              *string  `json:"target"`
}

// Key returns the name the dependency is referenced by in feature values.
func (d Dependency) Key() string {
	if d.Rename != nil && *d.Rename != "" {
		return *d.Rename
	}
	return d.Name
}

// Target is a compilation target of a package.
type Target struct {
	Name string   `json:"name"`
	Kind []string `json:"kind"`
}

// Resolve is the "resolve" section.
type Resolve struct {
	Nodes *[]ResolveNode `json:"nodes"`
	Root  *string        `json:"root"`
}

// ResolveNode is one resolved package and its resolved dependencies.
type ResolveNode struct {
	ID string `json:"id"`
	// Dependencies is the package ID list emitted by every cargo version.
	Dependencies []string `json:"dependencies"`
	// Deps carries dependency kinds and platforms; absent before cargo 1.41.
	Deps     []NodeDep `json:"deps"`
	Features []string  `json:"features"`
}

// NodeDep is a resolved dependency edge.
type NodeDep struct {
	Name     string    `json:"name"`
	Pkg      string    `json:"pkg"`
	DepKinds []DepKind `json:"dep_kinds"`
}

// DepKind is one (kind, platform) pair of a resolved dependency.
type DepKind struct {
	Kind   *string `json:"kind"`
	Target *string `json:"target"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Decode reads a document from r without validating it.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &doc, nil
}
