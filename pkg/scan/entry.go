package scan

import (
	"strings"

	perrors "github.com/matzehuels/precache/pkg/errors"
)

// Mode selects the kind of cache a root holds.
type Mode int

const (
	// ModeCargoCache scans a $CARGO_HOME download cache.
	ModeCargoCache Mode = iota
	// ModeTarget scans a cargo target directory.
	ModeTarget
)

func (m Mode) String() string {
	switch m {
	case ModeCargoCache:
		return "cargo-cache"
	case ModeTarget:
		return "target"
	default:
		return "unknown"
	}
}

// ParseMode parses "cargo-cache" or "target".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cargo-cache", "cargo_cache", "cache":
		return ModeCargoCache, nil
	case "target", "target-dir":
		return ModeTarget, nil
	default:
		return 0, perrors.New(perrors.ErrCodeInvalidMode, "unknown mode %q (want cargo-cache or target)", s)
	}
}

// Role is the directory an entry was found in.
type Role int

const (
	RoleRegistrySource  Role = iota // registry/src/<registry>/<name>-<version>
	RoleRegistryArchive             // registry/cache/<registry>/<name>-<version>.crate
	RoleGitCheckout                 // git/checkouts/<repo>/<rev>, or git/checkouts/<repo> when empty
	RoleGitDB                       // git/db/<repo>
	RoleFingerprint                 // <profile>/.fingerprint/<name>-<hash>
	RoleBuild                       // <profile>/build/<name>-<hash>
	RoleDeps                        // <profile>/deps/<name>-<hash>.<ext>
	RoleIncremental                 // <profile>/incremental/<name>-<hash>
)

var roleNames = map[Role]string{
	RoleRegistrySource:  "registry-src",
	RoleRegistryArchive: "registry-cache",
	RoleGitCheckout:     "git-checkout",
	RoleGitDB:           "git-db",
	RoleFingerprint:     "fingerprint",
	RoleBuild:           "build",
	RoleDeps:            "deps",
	RoleIncremental:     "incremental",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "unknown"
}

// Candidate is the package identity inferred from an entry name. Which
// fields are set depends on the entry's role.
type Candidate struct {
	Name    string // crate name; normalized for build artifacts, repository name for git entries
	Version string // registry entries
	Dir     string // "<name>-<version>" as found on disk, registry entries
	Source  string // registry directory, registry entries
	Repo    string // git entries
	Rev     string // git checkouts; empty for a whole repository
	Hash    string // build artifacts
}

// Entry is one cache entry found by a scan.
type Entry struct {
	Path string // root joined with Rel
	Rel  string // slash-separated path relative to the scan root
	Name string // base name
	Role Role
	Dir  bool
	// Candidate is nil for unclassifiable entries.
	Candidate *Candidate
}

// Classified reports whether a package identity could be inferred.
func (e Entry) Classified() bool { return e.Candidate != nil }
