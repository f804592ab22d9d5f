package relocate

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"syscall"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/matzehuels/precache/pkg/errors"
	"github.com/matzehuels/precache/pkg/observability"
	"github.com/matzehuels/precache/pkg/reconcile"
	"github.com/matzehuels/precache/pkg/scan"
)

const root = "/cargo"

func evict(rel string) reconcile.Action {
	return reconcile.Action{
		Entry:    scan.Entry{Path: root + "/" + rel, Rel: rel},
		Decision: reconcile.Evict,
		Reason:   reconcile.ReasonNoMatch,
	}
}

func keep(rel string) reconcile.Action {
	return reconcile.Action{
		Entry:    scan.Entry{Path: root + "/" + rel, Rel: rel},
		Decision: reconcile.Keep,
		Reason:   reconcile.ReasonMatched,
	}
}

func seed(t *testing.T, fs billy.Filesystem, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		require.NoError(t, util.WriteFile(fs, root+"/"+rel+"/Cargo.toml", []byte("[package]"), 0o644))
	}
}

func exists(fs billy.Filesystem, p string) bool {
	_, err := fs.Stat(p)
	return err == nil
}

// failingFS fails renames of one source path with err, EXDEV by default.
type failingFS struct {
	billy.Filesystem
	fail string
	err  error
}

func (f failingFS) Rename(from, to string) error {
	if from == f.fail {
		err := f.err
		if err == nil {
			err = syscall.EXDEV
		}
		return &os.LinkError{Op: "rename", Old: from, New: to, Err: err}
	}
	return f.Filesystem.Rename(from, to)
}

func TestRelocatePartialFailure(t *testing.T) {
	mem := memfs.New()
	seed(t, mem,
		"registry/src/reg/a-1.0.0",
		"registry/src/reg/b-1.0.0",
		"registry/src/reg/c-1.0.0",
		"registry/src/reg/keep-1.0.0",
	)

	r := New(failingFS{Filesystem: mem, fail: root + "/registry/src/reg/b-1.0.0"}, "/tmp", nil)
	r.RunID = "precache-test"

	sum, err := r.Relocate(context.Background(), []reconcile.Action{
		evict("registry/src/reg/a-1.0.0"),
		evict("registry/src/reg/b-1.0.0"),
		keep("registry/src/reg/keep-1.0.0"),
		evict("registry/src/reg/c-1.0.0"),
	})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/precache-test", sum.RunDir)
	assert.Equal(t, 2, sum.Moved)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Results, 3)

	failures := sum.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "registry/src/reg/b-1.0.0", failures[0].Action.Entry.Rel)
	assert.True(t, perrors.Is(failures[0].Err, perrors.ErrCodeRelocationFailed))
	assert.True(t, errors.Is(failures[0].Err, syscall.EXDEV))

	runErr := sum.Err()
	require.Error(t, runErr)
	assert.True(t, perrors.Is(runErr, perrors.ErrCodeRelocationFailed))
	assert.False(t, perrors.IsFatal(runErr))

	assert.True(t, exists(mem, "/tmp/precache-test/registry/src/reg/a-1.0.0/Cargo.toml"))
	assert.True(t, exists(mem, "/tmp/precache-test/registry/src/reg/c-1.0.0/Cargo.toml"))
	assert.False(t, exists(mem, root+"/registry/src/reg/a-1.0.0"))
	assert.False(t, exists(mem, root+"/registry/src/reg/c-1.0.0"))

	assert.True(t, exists(mem, root+"/registry/src/reg/b-1.0.0/Cargo.toml"), "failed entry stays in place")
	assert.True(t, exists(mem, root+"/registry/src/reg/keep-1.0.0/Cargo.toml"))
}

func TestRelocatePermissionDenied(t *testing.T) {
	mem := memfs.New()
	seed(t, mem,
		"registry/src/reg/a-1.0.0",
		"registry/src/reg/b-1.0.0",
		"registry/src/reg/c-1.0.0",
	)

	r := New(failingFS{
		Filesystem: mem,
		fail:       root + "/registry/src/reg/b-1.0.0",
		err:        fs.ErrPermission,
	}, "/tmp", nil)
	r.RunID = "precache-perm"

	sum, err := r.Relocate(context.Background(), []reconcile.Action{
		evict("registry/src/reg/a-1.0.0"),
		evict("registry/src/reg/b-1.0.0"),
		evict("registry/src/reg/c-1.0.0"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Moved)
	assert.Equal(t, 1, sum.Failed)
	failures := sum.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "registry/src/reg/b-1.0.0", failures[0].Action.Entry.Rel)
	assert.True(t, errors.Is(failures[0].Err, fs.ErrPermission))
	assert.True(t, perrors.Is(sum.Err(), perrors.ErrCodeRelocationFailed))

	assert.True(t, exists(mem, "/tmp/precache-perm/registry/src/reg/a-1.0.0/Cargo.toml"))
	assert.True(t, exists(mem, "/tmp/precache-perm/registry/src/reg/c-1.0.0/Cargo.toml"))
	assert.True(t, exists(mem, root+"/registry/src/reg/b-1.0.0/Cargo.toml"))
}

func TestRelocateDryRun(t *testing.T) {
	mem := memfs.New()
	seed(t, mem, "registry/src/reg/a-1.0.0")

	r := New(mem, "/tmp", nil)
	r.RunID = "precache-dry"
	r.DryRun = true

	sum, err := r.Relocate(context.Background(), []reconcile.Action{
		evict("registry/src/reg/a-1.0.0"),
		keep("registry/src/reg/keep-1.0.0"),
	})
	require.NoError(t, err)
	require.NoError(t, sum.Err())

	require.Len(t, sum.Results, 1)
	assert.Equal(t, "/tmp/precache-dry/registry/src/reg/a-1.0.0", sum.Results[0].Dest)
	assert.True(t, exists(mem, root+"/registry/src/reg/a-1.0.0/Cargo.toml"))
	assert.False(t, exists(mem, "/tmp"))
	assert.Contains(t, sum.String(), "would move 1 entries")
}

func TestRelocateVanishedSource(t *testing.T) {
	mem := memfs.New()
	seed(t, mem, "registry/src/reg/a-1.0.0")

	r := New(mem, "/tmp", nil)
	sum, err := r.Relocate(context.Background(), []reconcile.Action{
		evict("registry/src/reg/a-1.0.0"),
		evict("registry/src/reg/gone-1.0.0"),
	})
	require.NoError(t, err)
	require.NoError(t, sum.Err())
	assert.Equal(t, 2, sum.Moved)
	assert.Equal(t, 1, sum.Vanished)
	assert.True(t, sum.Results[1].Vanished)
}

func TestRelocateRejectsUnsafePaths(t *testing.T) {
	mem := memfs.New()
	r := New(mem, "/tmp", nil)

	sum, err := r.Relocate(context.Background(), []reconcile.Action{
		evict("../../etc"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.True(t, perrors.Is(sum.Err(), perrors.ErrCodeRelocationFailed))
	assert.False(t, exists(mem, "/tmp"))
}

func TestRelocateCanceled(t *testing.T) {
	mem := memfs.New()
	seed(t, mem, "registry/src/reg/a-1.0.0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := New(mem, "/tmp", nil).Relocate(ctx, []reconcile.Action{evict("registry/src/reg/a-1.0.0")})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, sum)
	assert.Empty(t, sum.Results)
	assert.True(t, exists(mem, root+"/registry/src/reg/a-1.0.0/Cargo.toml"))
}

func TestRelocateRequiresTempRoot(t *testing.T) {
	_, err := New(memfs.New(), "", nil).Relocate(context.Background(), nil)
	assert.True(t, perrors.Is(err, perrors.ErrCodeInvalidPath))
}

func TestRunIDsAreUnique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^precache-[0-9a-f-]{36}$`, a)
}

type moveRecorder struct {
	moved, failed, vanished []string
}

func (m *moveRecorder) OnMove(_ context.Context, rel string, err error) {
	if err != nil {
		m.failed = append(m.failed, rel)
		return
	}
	m.moved = append(m.moved, rel)
}

func (m *moveRecorder) OnVanished(_ context.Context, rel string) {
	m.vanished = append(m.vanished, rel)
}

func TestRelocateHooks(t *testing.T) {
	rec := &moveRecorder{}
	observability.SetRelocationHooks(rec)
	defer observability.Reset()

	mem := memfs.New()
	seed(t, mem, "registry/src/reg/a-1.0.0", "registry/src/reg/b-1.0.0")

	r := New(failingFS{Filesystem: mem, fail: root + "/registry/src/reg/b-1.0.0"}, "/tmp", nil)
	_, err := r.Relocate(context.Background(), []reconcile.Action{
		evict("registry/src/reg/a-1.0.0"),
		evict("registry/src/reg/b-1.0.0"),
		evict("registry/src/reg/gone-1.0.0"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"registry/src/reg/a-1.0.0"}, rec.moved)
	assert.Equal(t, []string{"registry/src/reg/b-1.0.0"}, rec.failed)
	assert.Equal(t, []string{"registry/src/reg/gone-1.0.0"}, rec.vanished)
}
