package scan

import (
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

var (
	hexHash    = regexp.MustCompile(`^[0-9a-f]{16}$`)
	base36Hash = regexp.MustCompile(`^[0-9a-z]{8,16}$`)
	crateName  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
)

// SplitNameVersion splits "<name>-<version>" at the first '-' followed by a
// full semantic version, so "foo-bar-1.0.0-rc.1" yields ("foo-bar", "1.0.0-rc.1").
func SplitNameVersion(s string) (name, version string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			continue
		}
		name, version = s[:i], s[i+1:]
		if crateName.MatchString(name) && IsVersion(version) {
			return name, version, true
		}
	}
	return "", "", false
}

// IsVersion reports whether v is a complete semantic version
// (major.minor.patch with optional pre-release and build metadata).
func IsVersion(v string) bool {
	if !semver.IsValid("v" + v) {
		return false
	}
	core := v
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	return strings.Count(core, ".") == 2
}

// splitArtifact parses a target directory entry name. The stem (up to the
// first '.') must end in '-<hash>'; the prefix is normalized to underscores.
func splitArtifact(name string, role Role) (*Candidate, bool) {
	stem := name
	if i := strings.IndexByte(stem, '.'); i >= 0 {
		stem = stem[:i]
	}
	i := strings.LastIndexByte(stem, '-')
	if i <= 0 {
		return nil, false
	}
	prefix, hash := stem[:i], stem[i+1:]

	pattern := hexHash
	if role == RoleIncremental {
		pattern = base36Hash
	}
	if !pattern.MatchString(hash) || !crateName.MatchString(prefix) {
		return nil, false
	}
	return &Candidate{Name: NormalizeName(prefix), Hash: hash}, true
}

// repoName strips the "-<hash>" suffix cargo appends to git checkout and
// database directory names.
func repoName(dir string) string {
	i := strings.LastIndexByte(dir, '-')
	if i > 0 && hexHash.MatchString(dir[i+1:]) {
		return dir[:i]
	}
	return dir
}

// NormalizeName maps a crate name to the form used in artifact file names.
func NormalizeName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
