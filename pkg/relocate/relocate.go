// Package relocate moves evicted cache entries into a holding area instead
// of deleting them.
//
// Each run gets its own directory, <TempRoot>/precache-<uuid>, and every
// entry keeps its path relative to the scanned root below it. A failed move
// is recorded and the run continues; the caller decides what a partial
// failure means through [Summary.Err].
package relocate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"

	perrors "github.com/matzehuels/precache/pkg/errors"
	"github.com/matzehuels/precache/pkg/observability"
	"github.com/matzehuels/precache/pkg/reconcile"
)

// RunPrefix prefixes every run directory name.
const RunPrefix = "precache-"

// Relocator moves entries on FS into a run directory below TempRoot.
type Relocator struct {
	FS       billy.Filesystem
	TempRoot string
	DryRun   bool
	Logger   *log.Logger
	// RunID names the run directory. Empty means RunPrefix plus a random UUID.
	RunID string
}

// New returns a relocator with a fresh run id.
func New(fsys billy.Filesystem, tempRoot string, logger *log.Logger) *Relocator {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Relocator{
		FS:       fsys,
		TempRoot: tempRoot,
		Logger:   logger,
		RunID:    NewRunID(),
	}
}

// NewRunID returns "precache-<uuid>".
func NewRunID() string { return RunPrefix + uuid.NewString() }

// Result is the outcome of one eviction.
type Result struct {
	Action reconcile.Action
	Dest   string
	// Vanished is set when the source no longer existed; that counts as moved.
	Vanished bool
	Err      error
}

// Summary collects the results of a run.
type Summary struct {
	RunDir   string
	DryRun   bool
	Moved    int
	Vanished int
	Failed   int
	Results  []Result
	Elapsed  time.Duration
}

// Err returns ENTRY_RELOCATION_FAILED when any move failed, wrapping the
// first failure.
func (s *Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	var first error
	for _, r := range s.Results {
		if r.Err != nil {
			first = r.Err
			break
		}
	}
	return perrors.Wrap(perrors.ErrCodeRelocationFailed, first,
		"%d of %d evicted entries could not be moved", s.Failed, len(s.Results))
}

// Failures returns the failed results.
func (s *Summary) Failures() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Relocate moves the entry of every Evict action. Keep actions are ignored.
//
// The returned error is non-nil only when the run could not start or ctx was
// canceled; in the latter case the summary covers the moves done so far.
// Per-entry failures are reported through the summary.
func (r *Relocator) Relocate(ctx context.Context, actions []reconcile.Action) (*Summary, error) {
	if r.RunID == "" {
		r.RunID = NewRunID()
	}
	if r.Logger == nil {
		r.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if r.TempRoot == "" {
		return nil, perrors.New(perrors.ErrCodeInvalidPath, "no holding area configured")
	}

	hooks := observability.Relocation()
	start := time.Now()
	sum := &Summary{RunDir: r.FS.Join(r.TempRoot, r.RunID), DryRun: r.DryRun}
	defer func() { sum.Elapsed = time.Since(start) }()

	for _, a := range actions {
		if a.Decision != reconcile.Evict {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res := r.move(sum.RunDir, a)
		sum.Results = append(sum.Results, res)
		switch {
		case res.Err != nil:
			sum.Failed++
			r.Logger.Warn("could not move entry", "entry", a.Entry.Rel, "err", res.Err)
			hooks.OnMove(ctx, a.Entry.Rel, res.Err)
		case res.Vanished:
			sum.Vanished++
			sum.Moved++
			r.Logger.Debug("entry already gone", "entry", a.Entry.Rel)
			hooks.OnVanished(ctx, a.Entry.Rel)
		case r.DryRun:
			r.Logger.Debug("would move", "entry", a.Entry.Rel, "dest", res.Dest)
		default:
			sum.Moved++
			r.Logger.Debug("moved", "entry", a.Entry.Rel, "dest", res.Dest)
			hooks.OnMove(ctx, a.Entry.Rel, nil)
		}
	}
	return sum, nil
}

func (r *Relocator) move(runDir string, a reconcile.Action) Result {
	res := Result{Action: a}
	if err := perrors.ValidatePath(a.Entry.Rel); err != nil {
		res.Err = perrors.Wrap(perrors.ErrCodeRelocationFailed, err, "%s", a.Entry.Rel)
		return res
	}
	res.Dest = r.FS.Join(runDir, path.Clean(a.Entry.Rel))
	if r.DryRun {
		return res
	}

	if _, err := r.FS.Lstat(a.Entry.Path); errors.Is(err, fs.ErrNotExist) {
		res.Vanished = true
		return res
	}
	if err := r.FS.MkdirAll(r.FS.Join(runDir, path.Dir(a.Entry.Rel)), 0o755); err != nil {
		res.Err = wrapMove(a, err)
		return res
	}
	if err := r.FS.Rename(a.Entry.Path, res.Dest); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Raced with another process removing it.
			if _, statErr := r.FS.Lstat(a.Entry.Path); errors.Is(statErr, fs.ErrNotExist) {
				res.Vanished = true
				return res
			}
		}
		res.Err = wrapMove(a, err)
	}
	return res
}

func wrapMove(a reconcile.Action, err error) error {
	return perrors.Wrap(perrors.ErrCodeRelocationFailed, err, "move %s", a.Entry.Path)
}

// String renders a one-line summary.
func (s *Summary) String() string {
	if s.DryRun {
		return fmt.Sprintf("would move %d entries to %s", len(s.Results), s.RunDir)
	}
	return fmt.Sprintf("moved %d entries to %s (%d failed, %d already gone) in %s",
		s.Moved, s.RunDir, s.Failed, s.Vanished, s.Elapsed.Round(time.Millisecond))
}
