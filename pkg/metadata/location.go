package metadata

import (
	"path/filepath"
	"strings"

	"github.com/matzehuels/precache/pkg/graph"
)

// Locate derives where id's sources live in the download cache from its
// manifest path:
//
//	$CARGO_HOME/registry/src/<registry>/<name>-<version>/Cargo.toml
//	$CARGO_HOME/git/checkouts/<repo>/<rev>/[<subdir>/]Cargo.toml
//
// Packages outside these layouts (path dependencies, vendored sources) get
// a zero Location.
func Locate(id graph.PackageID, manifestPath string) graph.Location {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(manifestPath)), "/")

	switch {
	case id.IsRegistry():
		if i := lastPair(parts, "registry", "src"); i >= 0 && i+3 < len(parts) {
			return graph.Location{Kind: graph.LocationRegistry, Registry: parts[i+2], Dir: parts[i+3]}
		}
	case id.IsGit():
		if i := lastPair(parts, "git", "checkouts"); i >= 0 && i+3 < len(parts) {
			return graph.Location{Kind: graph.LocationGit, Repo: parts[i+2], Rev: parts[i+3]}
		}
	}
	return graph.Location{}
}

// lastPair returns the index of the last a immediately followed by b.
func lastPair(parts []string, a, b string) int {
	for i := len(parts) - 2; i >= 0; i-- {
		if parts[i] == a && parts[i+1] == b {
			return i
		}
	}
	return -1
}
