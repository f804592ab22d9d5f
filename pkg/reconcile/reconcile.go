// Package reconcile decides, for every scanned cache entry, whether it is
// kept or evicted given a retention set.
//
// [Reconcile] is a pure function: the same set and entry list always give
// the same actions in the same order. Entries without an inferred identity
// are always kept.
//
// Build artifacts are matched by name prefix only. Cargo's artifact hashes
// cannot be recomputed here, so every artifact whose name starts with a
// retained crate or target name is kept, including artifacts of other
// versions and of crates that merely share the prefix (a retained "foo"
// keeps "foo-utils").
//
// A git checkout repository none of whose revisions is retained is evicted
// as one directory.
package reconcile

import (
	"cmp"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/precache/pkg/graph"
	"github.com/matzehuels/precache/pkg/retain"
	"github.com/matzehuels/precache/pkg/scan"
)

// Decision is the outcome for one entry.
type Decision int

const (
	Keep Decision = iota
	Evict
)

func (d Decision) String() string {
	if d == Evict {
		return "evict"
	}
	return "keep"
}

// Reason explains a decision.
type Reason int

const (
	ReasonMatched Reason = iota
	ReasonUnclassifiable
	ReasonNoMatch
	ReasonPinned
)

func (r Reason) String() string {
	switch r {
	case ReasonMatched:
		return "matched"
	case ReasonUnclassifiable:
		return "unclassifiable"
	case ReasonNoMatch:
		return "no-match"
	case ReasonPinned:
		return "pinned"
	default:
		return "unknown"
	}
}

// Action is the decision for one entry.
type Action struct {
	Entry    scan.Entry
	Decision Decision
	Reason   Reason
	// Match names the retained package (or pin) that kept the entry.
	Match string
}

// Options tune matching.
type Options struct {
	// Keep lists crate names whose entries are never evicted.
	Keep []string
	// PruneMembers excludes workspace members from build artifact matching,
	// so their artifacts are evicted.
	PruneMembers bool
}

// Reconcile returns one action per entry, in entry order, except that the
// revisions of a fully evicted checkout repository share one action.
func Reconcile(set *retain.Set, entries []scan.Entry, opts Options) []Action {
	idx := newIndex(set, opts)
	actions := make([]Action, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, idx.decide(e))
	}
	return collapseCheckouts(actions)
}

// Evictions returns the actions that evict.
func Evictions(actions []Action) []Action {
	var out []Action
	for _, a := range actions {
		if a.Decision == Evict {
			out = append(out, a)
		}
	}
	return out
}

type index struct {
	// registry/<dir> -> label, for packages with a known registry location
	registry map[string]string
	// name-version -> label, for registry packages without a location
	unplaced map[string]string
	// repo/rev -> label and repo -> label
	checkouts map[string]string
	repos     map[string]string
	// an unplaced git package keeps every git entry
	unplacedGit string
	// normalized crate and target names -> label, sorted longest first
	artifacts []artifactName
	// normalized pinned names, as a set and sorted longest first
	pins    map[string]bool
	pinList []string
}

type artifactName struct {
	name  string
	label string
}

func newIndex(set *retain.Set, opts Options) *index {
	idx := &index{
		registry:  make(map[string]string),
		unplaced:  make(map[string]string),
		checkouts: make(map[string]string),
		repos:     make(map[string]string),
		pins:      make(map[string]bool),
	}
	for _, name := range opts.Keep {
		n := scan.NormalizeName(name)
		if n != "" && !idx.pins[n] {
			idx.pins[n] = true
			idx.pinList = append(idx.pinList, n)
		}
	}
	slices.SortFunc(idx.pinList, longestFirst)

	seen := make(map[string]bool)
	for _, id := range set.IDs() {
		label := id.Name + "-" + id.Version
		loc := set.Source[id]
		switch {
		case loc.Kind == graph.LocationRegistry:
			idx.registry[loc.Registry+"/"+loc.Dir] = label
		case loc.Kind == graph.LocationGit:
			idx.checkouts[loc.Repo+"/"+loc.Rev] = label
			idx.repos[loc.Repo] = label
		case id.IsRegistry():
			idx.unplaced[label] = label
		case id.IsGit() && idx.unplacedGit == "":
			idx.unplacedGit = label
		}

		if _, compiled := set.Build[id]; !compiled {
			continue
		}
		if opts.PruneMembers && set.Members[id] {
			continue
		}
		for _, name := range set.ArtifactNames(id) {
			n := scan.NormalizeName(name)
			if !seen[n] {
				seen[n] = true
				idx.artifacts = append(idx.artifacts, artifactName{name: n, label: label})
			}
		}
	}
	slices.SortStableFunc(idx.artifacts, func(a, b artifactName) int { return longestFirst(a.name, b.name) })
	return idx
}

func longestFirst(a, b string) int {
	if c := cmp.Compare(len(b), len(a)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func (idx *index) decide(e scan.Entry) Action {
	if !e.Classified() {
		return Action{Entry: e, Decision: Keep, Reason: ReasonUnclassifiable}
	}
	c := e.Candidate

	var label string
	var ok bool
	switch e.Role {
	case scan.RoleRegistrySource, scan.RoleRegistryArchive:
		if idx.pins[scan.NormalizeName(c.Name)] {
			return pinned(e, c.Name)
		}
		if label, ok = idx.registry[c.Source+"/"+c.Dir]; !ok {
			label, ok = idx.unplaced[c.Dir]
		}
	case scan.RoleGitCheckout, scan.RoleGitDB:
		if c.Name != "" && idx.pins[scan.NormalizeName(c.Name)] {
			return pinned(e, c.Name)
		}
		if c.Rev != "" {
			label, ok = idx.checkouts[c.Repo+"/"+c.Rev]
		} else {
			label, ok = idx.repos[c.Repo]
		}
		if !ok && idx.unplacedGit != "" {
			label, ok = idx.unplacedGit, true
		}
	default:
		if pin, isPin := idx.pinnedArtifact(c.Name); isPin {
			return pinned(e, pin)
		}
		label, ok = idx.matchArtifact(c.Name)
	}

	if ok {
		return Action{Entry: e, Decision: Keep, Reason: ReasonMatched, Match: label}
	}
	return Action{Entry: e, Decision: Evict, Reason: ReasonNoMatch}
}

func pinned(e scan.Entry, name string) Action {
	return Action{Entry: e, Decision: Keep, Reason: ReasonPinned, Match: name}
}

// matchArtifact finds a retained crate name that candidate (an artifact
// prefix, possibly carrying a "lib" prefix) equals or extends with '_'.
func (idx *index) matchArtifact(candidate string) (string, bool) {
	for _, a := range idx.artifacts {
		if prefixMatch(candidate, a.name) {
			return a.label, true
		}
	}
	return "", false
}

func (idx *index) pinnedArtifact(candidate string) (string, bool) {
	for _, name := range idx.pinList {
		if prefixMatch(candidate, name) {
			return name, true
		}
	}
	return "", false
}

func prefixMatch(candidate, name string) bool {
	for _, c := range []string{candidate, strings.TrimPrefix(candidate, "lib")} {
		if c == name || strings.HasPrefix(c, name+"_") {
			return true
		}
	}
	return false
}

// collapseCheckouts replaces the revision actions of each checkout
// repository whose entries are all evicted with one action evicting the
// repository directory, placed where its first revision was.
func collapseCheckouts(actions []Action) []Action {
	allEvicted := make(map[string]bool)
	for _, a := range actions {
		if !isRevision(a.Entry) {
			continue
		}
		dir := path.Dir(a.Entry.Rel)
		all, seen := allEvicted[dir]
		allEvicted[dir] = (all || !seen) && a.Decision == Evict
	}

	out := make([]Action, 0, len(actions))
	done := make(map[string]bool)
	for _, a := range actions {
		if !isRevision(a.Entry) || !allEvicted[path.Dir(a.Entry.Rel)] {
			out = append(out, a)
			continue
		}
		dir := path.Dir(a.Entry.Rel)
		if done[dir] {
			continue
		}
		done[dir] = true
		c := a.Entry.Candidate
		out = append(out, Action{
			Entry: scan.Entry{
				Path:      filepath.Dir(a.Entry.Path),
				Rel:       dir,
				Name:      path.Base(dir),
				Role:      scan.RoleGitCheckout,
				Dir:       true,
				Candidate: &scan.Candidate{Name: c.Name, Repo: c.Repo},
			},
			Decision: Evict,
			Reason:   ReasonNoMatch,
		})
	}
	return out
}

// isRevision reports whether e sits inside git/checkouts/<repo>. Unclassified
// files there count, so a kept lock file keeps the repository in place.
func isRevision(e scan.Entry) bool {
	return e.Role == scan.RoleGitCheckout && strings.Count(e.Rel, "/") == 3
}
