// Package scan lists the entries of a Cargo download cache or target
// directory and infers a package identity from each entry name.
//
// Listings are shallow: an entry is a directory or file that would be moved
// as a whole, so its contents are never read. Names that do not follow
// Cargo's conventions produce entries without a [Candidate]; those are
// unclassifiable and must be kept.
package scan

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5"

	perrors "github.com/matzehuels/precache/pkg/errors"
)

// Scanner lists cache entries below Root on FS.
type Scanner struct {
	FS     billy.Filesystem
	Root   string
	Logger *log.Logger
}

// New returns a scanner for root.
func New(fsys billy.Filesystem, root string, logger *log.Logger) *Scanner {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Scanner{FS: fsys, Root: root, Logger: logger}
}

// Scan lists the entries of the root for mode, sorted by relative path.
// Missing directories are skipped; any other listing failure aborts the scan
// with SCAN_FAILED.
func (s *Scanner) Scan(ctx context.Context, mode Mode) ([]Entry, error) {
	var (
		entries []Entry
		err     error
	)
	switch mode {
	case ModeCargoCache:
		entries, err = s.scanCargoCache(ctx)
	case ModeTarget:
		entries, err = s.scanTarget(ctx)
	default:
		return nil, perrors.New(perrors.ErrCodeInvalidMode, "unknown mode %d", int(mode))
	}
	if err != nil {
		return nil, err
	}

	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Rel, b.Rel) })
	s.Logger.Debug("scanned cache", "root", s.Root, "mode", mode, "entries", len(entries))
	return entries, nil
}

func (s *Scanner) scanCargoCache(ctx context.Context) ([]Entry, error) {
	var entries []Entry

	// registry/src/<registry>/<name>-<version> and
	// registry/cache/<registry>/<name>-<version>.crate
	for _, sub := range []struct {
		dir  string
		role Role
	}{
		{"registry/src", RoleRegistrySource},
		{"registry/cache", RoleRegistryArchive},
	} {
		registries, err := s.list(ctx, sub.dir)
		if err != nil {
			return nil, err
		}
		for _, reg := range registries {
			if !reg.IsDir() {
				continue
			}
			dir := path.Join(sub.dir, reg.Name())
			children, err := s.list(ctx, dir)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				e := s.entry(path.Join(dir, c.Name()), c, sub.role)
				e.Candidate = classifyRegistry(c.Name(), reg.Name(), sub.role)
				entries = append(entries, e)
			}
		}
	}

	// git/checkouts/<repo>/<rev>
	repos, err := s.list(ctx, "git/checkouts")
	if err != nil {
		return nil, err
	}
	for _, repo := range repos {
		if !repo.IsDir() {
			continue
		}
		dir := path.Join("git/checkouts", repo.Name())
		revs, err := s.list(ctx, dir)
		if err != nil {
			return nil, err
		}
		if len(revs) == 0 {
			// leftover repository directory without revisions
			e := s.entry(dir, repo, RoleGitCheckout)
			e.Candidate = &Candidate{Name: repoName(repo.Name()), Repo: repo.Name()}
			entries = append(entries, e)
			continue
		}
		for _, rev := range revs {
			e := s.entry(path.Join(dir, rev.Name()), rev, RoleGitCheckout)
			if rev.IsDir() {
				e.Candidate = &Candidate{Name: repoName(repo.Name()), Repo: repo.Name(), Rev: rev.Name()}
			}
			entries = append(entries, e)
		}
	}

	// git/db/<repo>
	dbs, err := s.list(ctx, "git/db")
	if err != nil {
		return nil, err
	}
	for _, db := range dbs {
		e := s.entry(path.Join("git/db", db.Name()), db, RoleGitDB)
		if db.IsDir() {
			e.Candidate = &Candidate{Name: repoName(db.Name()), Repo: db.Name()}
		}
		entries = append(entries, e)
	}

	return entries, nil
}

func classifyRegistry(name, registry string, role Role) *Candidate {
	dir := name
	if role == RoleRegistryArchive {
		dir = strings.TrimSuffix(name, ".crate")
	}
	n, v, ok := SplitNameVersion(dir)
	if !ok {
		return nil
	}
	return &Candidate{Name: n, Version: v, Dir: dir, Source: registry}
}

var artifactDirs = []struct {
	dir  string
	role Role
}{
	{".fingerprint", RoleFingerprint},
	{"build", RoleBuild},
	{"deps", RoleDeps},
	{"incremental", RoleIncremental},
}

func (s *Scanner) scanTarget(ctx context.Context) ([]Entry, error) {
	profiles, err := s.profiles(ctx)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, profile := range profiles {
		for _, a := range artifactDirs {
			dir := path.Join(profile, a.dir)
			children, err := s.list(ctx, dir)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				e := s.entry(path.Join(dir, c.Name()), c, a.role)
				if cand, ok := splitArtifact(c.Name(), a.role); ok {
					e.Candidate = cand
				}
				entries = append(entries, e)
			}
		}
	}
	return entries, nil
}

// profiles finds profile directories: <root>/<profile> or
// <root>/<triple>/<profile>, recognized by their .fingerprint directory.
func (s *Scanner) profiles(ctx context.Context) ([]string, error) {
	top, err := s.list(ctx, "")
	if err != nil {
		return nil, err
	}

	var profiles []string
	for _, d := range top {
		if !d.IsDir() {
			continue
		}
		if s.isProfile(d.Name()) {
			profiles = append(profiles, d.Name())
			continue
		}
		nested, err := s.list(ctx, d.Name())
		if err != nil {
			return nil, err
		}
		for _, n := range nested {
			rel := path.Join(d.Name(), n.Name())
			if n.IsDir() && s.isProfile(rel) {
				profiles = append(profiles, rel)
			}
		}
	}
	return profiles, nil
}

func (s *Scanner) isProfile(rel string) bool {
	fi, err := s.FS.Stat(s.abs(path.Join(rel, ".fingerprint")))
	return err == nil && fi.IsDir()
}

// list reads a directory relative to the root. A missing directory is empty.
func (s *Scanner) list(ctx context.Context, rel string) ([]os.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := s.FS.ReadDir(s.abs(rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, perrors.Wrap(perrors.ErrCodeScanFailed, err, "list %s", s.abs(rel))
	}
	return infos, nil
}

func (s *Scanner) abs(rel string) string {
	if rel == "" {
		return s.Root
	}
	return s.FS.Join(s.Root, rel)
}

func (s *Scanner) entry(rel string, fi os.FileInfo, role Role) Entry {
	return Entry{
		Path: s.abs(rel),
		Rel:  rel,
		Name: fi.Name(),
		Role: role,
		Dir:  fi.IsDir(),
	}
}
