package scan

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/matzehuels/precache/pkg/errors"
)

func touch(t *testing.T, fs billy.Filesystem, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, util.WriteFile(fs, p, []byte("x"), 0o644))
	}
}

func mkdir(t *testing.T, fs billy.Filesystem, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, fs.MkdirAll(p, 0o755))
	}
}

func rels(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Rel
	}
	return out
}

func byRel(entries []Entry) map[string]Entry {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Rel] = e
	}
	return m
}

func TestScanCargoCache(t *testing.T) {
	fs := memfs.New()
	mkdir(t, fs,
		"/cargo/registry/src/index.crates.io-6f17d22bba15001f/serde-1.0.200",
		"/cargo/registry/src/index.crates.io-6f17d22bba15001f/proc-macro2-1.0.81",
		"/cargo/registry/src/index.crates.io-6f17d22bba15001f/weird",
		"/cargo/registry/index/index.crates.io-6f17d22bba15001f/.cache",
		"/cargo/git/checkouts/mylib-1a2b3c4d5e6f7a8b/0123456",
		"/cargo/git/checkouts/gone-ffffffffffffffff",
		"/cargo/git/db/mylib-1a2b3c4d5e6f7a8b",
	)
	touch(t, fs,
		"/cargo/registry/cache/index.crates.io-6f17d22bba15001f/serde-1.0.200.crate",
		"/cargo/registry/cache/index.crates.io-6f17d22bba15001f/tokio-1.37.0-alpha.1.crate",
		"/cargo/registry/cache/index.crates.io-6f17d22bba15001f/readme.txt",
		"/cargo/git/checkouts/mylib-1a2b3c4d5e6f7a8b/.lock",
	)

	entries, err := New(fs, "/cargo", nil).Scan(context.Background(), ModeCargoCache)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"git/checkouts/gone-ffffffffffffffff",
		"git/checkouts/mylib-1a2b3c4d5e6f7a8b/.lock",
		"git/checkouts/mylib-1a2b3c4d5e6f7a8b/0123456",
		"git/db/mylib-1a2b3c4d5e6f7a8b",
		"registry/cache/index.crates.io-6f17d22bba15001f/readme.txt",
		"registry/cache/index.crates.io-6f17d22bba15001f/serde-1.0.200.crate",
		"registry/cache/index.crates.io-6f17d22bba15001f/tokio-1.37.0-alpha.1.crate",
		"registry/src/index.crates.io-6f17d22bba15001f/proc-macro2-1.0.81",
		"registry/src/index.crates.io-6f17d22bba15001f/serde-1.0.200",
		"registry/src/index.crates.io-6f17d22bba15001f/weird",
	}, rels(entries))

	m := byRel(entries)

	src := m["registry/src/index.crates.io-6f17d22bba15001f/proc-macro2-1.0.81"]
	require.NotNil(t, src.Candidate)
	assert.Equal(t, RoleRegistrySource, src.Role)
	assert.Equal(t, "proc-macro2", src.Candidate.Name)
	assert.Equal(t, "1.0.81", src.Candidate.Version)
	assert.Equal(t, "index.crates.io-6f17d22bba15001f", src.Candidate.Source)
	assert.True(t, src.Dir)
	assert.Equal(t, "/cargo/registry/src/index.crates.io-6f17d22bba15001f/proc-macro2-1.0.81", src.Path)

	archive := m["registry/cache/index.crates.io-6f17d22bba15001f/tokio-1.37.0-alpha.1.crate"]
	require.NotNil(t, archive.Candidate)
	assert.Equal(t, RoleRegistryArchive, archive.Role)
	assert.Equal(t, "tokio", archive.Candidate.Name)
	assert.Equal(t, "1.37.0-alpha.1", archive.Candidate.Version)
	assert.False(t, archive.Dir)

	assert.Nil(t, m["registry/cache/index.crates.io-6f17d22bba15001f/readme.txt"].Candidate)
	assert.Nil(t, m["registry/src/index.crates.io-6f17d22bba15001f/weird"].Candidate)
	assert.Nil(t, m["git/checkouts/mylib-1a2b3c4d5e6f7a8b/.lock"].Candidate)

	checkout := m["git/checkouts/mylib-1a2b3c4d5e6f7a8b/0123456"]
	require.NotNil(t, checkout.Candidate)
	assert.Equal(t, RoleGitCheckout, checkout.Role)
	assert.Equal(t, "mylib-1a2b3c4d5e6f7a8b", checkout.Candidate.Repo)
	assert.Equal(t, "0123456", checkout.Candidate.Rev)
	assert.Equal(t, "mylib", checkout.Candidate.Name)

	empty := m["git/checkouts/gone-ffffffffffffffff"]
	require.NotNil(t, empty.Candidate)
	assert.Equal(t, RoleGitCheckout, empty.Role)
	assert.Equal(t, "gone", empty.Candidate.Name)
	assert.Empty(t, empty.Candidate.Rev)

	db := m["git/db/mylib-1a2b3c4d5e6f7a8b"]
	require.NotNil(t, db.Candidate)
	assert.Equal(t, RoleGitDB, db.Role)
}

func TestScanMissingRoot(t *testing.T) {
	fs := memfs.New()

	entries, err := New(fs, "/nope", nil).Scan(context.Background(), ModeCargoCache)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = New(fs, "/nope", nil).Scan(context.Background(), ModeTarget)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScanTarget(t *testing.T) {
	fs := memfs.New()
	mkdir(t, fs,
		"/t/debug/.fingerprint/serde-0123456789abcdef",
		"/t/debug/.fingerprint/foo-utils-aaaaaaaaaaaaaaaa",
		"/t/debug/build/serde-fedcba9876543210",
		"/t/debug/incremental/app-1x2y3z4w5v6u7",
		"/t/debug/incremental/broken",
		"/t/x86_64-unknown-linux-gnu/release/.fingerprint/libc-1111111111111111",
		"/t/doc/serde",
		"/t/debug/examples",
	)
	touch(t, fs,
		"/t/debug/deps/libserde-0123456789abcdef.rlib",
		"/t/debug/deps/serde-0123456789abcdef.d",
		"/t/debug/deps/libfoo_utils-aaaaaaaaaaaaaaaa.rmeta",
		"/t/debug/deps/nohash.d",
		"/t/debug/deps/serde-XYZ.d",
		"/t/debug/app",
		"/t/CACHEDIR.TAG",
	)

	entries, err := New(fs, "/t", nil).Scan(context.Background(), ModeTarget)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"debug/.fingerprint/foo-utils-aaaaaaaaaaaaaaaa",
		"debug/.fingerprint/serde-0123456789abcdef",
		"debug/build/serde-fedcba9876543210",
		"debug/deps/libfoo_utils-aaaaaaaaaaaaaaaa.rmeta",
		"debug/deps/libserde-0123456789abcdef.rlib",
		"debug/deps/nohash.d",
		"debug/deps/serde-0123456789abcdef.d",
		"debug/deps/serde-XYZ.d",
		"debug/incremental/app-1x2y3z4w5v6u7",
		"debug/incremental/broken",
		"x86_64-unknown-linux-gnu/release/.fingerprint/libc-1111111111111111",
	}, rels(entries))

	tests := []struct {
		rel  string
		role Role
		name string // empty for unclassifiable
	}{
		{"debug/.fingerprint/foo-utils-aaaaaaaaaaaaaaaa", RoleFingerprint, "foo_utils"},
		{"debug/.fingerprint/serde-0123456789abcdef", RoleFingerprint, "serde"},
		{"debug/build/serde-fedcba9876543210", RoleBuild, "serde"},
		{"debug/deps/libfoo_utils-aaaaaaaaaaaaaaaa.rmeta", RoleDeps, "libfoo_utils"},
		{"debug/deps/libserde-0123456789abcdef.rlib", RoleDeps, "libserde"},
		{"debug/deps/nohash.d", RoleDeps, ""},
		{"debug/deps/serde-XYZ.d", RoleDeps, ""},
		{"debug/incremental/app-1x2y3z4w5v6u7", RoleIncremental, "app"},
		{"debug/incremental/broken", RoleIncremental, ""},
		{"x86_64-unknown-linux-gnu/release/.fingerprint/libc-1111111111111111", RoleFingerprint, "libc"},
	}

	m := byRel(entries)
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			e, ok := m[tt.rel]
			require.True(t, ok)
			assert.Equal(t, tt.role, e.Role)
			if tt.name == "" {
				assert.Nil(t, e.Candidate)
				return
			}
			require.NotNil(t, e.Candidate)
			assert.Equal(t, tt.name, e.Candidate.Name)
		})
	}
}

func TestScanCanceled(t *testing.T) {
	fs := memfs.New()
	mkdir(t, fs, "/cargo/registry/src/reg/serde-1.0.0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(fs, "/cargo", nil).Scan(ctx, ModeCargoCache)
	assert.ErrorIs(t, err, context.Canceled)
}

// failingFS fails every directory listing below a prefix.
type failingFS struct {
	billy.Filesystem
	prefix string
}

func (f failingFS) ReadDir(path string) ([]os.FileInfo, error) {
	if len(path) >= len(f.prefix) && path[:len(f.prefix)] == f.prefix {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrPermission}
	}
	return f.Filesystem.ReadDir(path)
}

func TestScanFailure(t *testing.T) {
	fs := memfs.New()
	mkdir(t, fs, "/cargo/registry/src/reg/serde-1.0.0")

	_, err := New(failingFS{Filesystem: fs, prefix: "/cargo/registry/src"}, "/cargo", nil).Scan(context.Background(), ModeCargoCache)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrCodeScanFailed))
	assert.True(t, errors.Is(err, os.ErrPermission))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"cargo-cache", ModeCargoCache, false},
		{"target", ModeTarget, false},
		{"TARGET", ModeTarget, false},
		{"sources", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.True(t, perrors.Is(err, perrors.ErrCodeInvalidMode), "ParseMode(%q)", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestSplitNameVersion(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		version string
		ok      bool
	}{
		{"serde-1.0.200", "serde", "1.0.200", true},
		{"proc-macro2-1.0.81", "proc-macro2", "1.0.81", true},
		{"foo-bar-1.0.0-rc.1", "foo-bar", "1.0.0-rc.1", true},
		{"wasm-bindgen-0.2.92+build.1", "wasm-bindgen", "0.2.92+build.1", true},
		{"p1-1.0.0", "p1", "1.0.0", true},

		{"readme.txt", "", "", false},
		{"serde-1.0", "", "", false},
		{"serde", "", "", false},
		{"-1.0.0", "", "", false},
		{"serde-v1.0.0", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, version, ok := SplitNameVersion(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.version, version)
		})
	}
}
