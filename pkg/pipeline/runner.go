package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5"
	jbilly "github.com/jmgilman/go/fs/billy"

	perrors "github.com/matzehuels/precache/pkg/errors"
	"github.com/matzehuels/precache/pkg/features"
	"github.com/matzehuels/precache/pkg/observability"
	"github.com/matzehuels/precache/pkg/reconcile"
	"github.com/matzehuels/precache/pkg/relocate"
	"github.com/matzehuels/precache/pkg/retain"
	"github.com/matzehuels/precache/pkg/scan"
)

// Runner executes pipeline stages against one filesystem.
//
// The Runner is stateless except for the filesystem and logger; it doesn't
// store pipeline results, so one Runner can serve several runs.
type Runner struct {
	FS     billy.Filesystem
	Logger *log.Logger
}

// NewRunner creates a runner. A nil filesystem means the local disk; a nil
// logger means log.Default().
func NewRunner(fsys billy.Filesystem, logger *log.Logger) *Runner {
	if fsys == nil {
		fsys = jbilly.NewLocal().Unwrap()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{FS: fsys, Logger: logger}
}

// Retain loads the metadata and computes the retention set.
func (r *Runner) Retain(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForRetain(); err != nil {
		return nil, err
	}
	result := &Result{}

	hooks := observability.Pipeline()

	// Stage 1: Load
	loadStart := time.Now()
	hooks.OnStageStart(ctx, observability.StageLoad)
	doc, g, err := r.Load(ctx, opts)
	if err != nil {
		hooks.OnStageComplete(ctx, observability.StageLoad, 0, time.Since(loadStart), err)
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	result.Document = doc
	result.Graph = g
	result.Stats.LoadTime = time.Since(loadStart)
	result.Stats.PackageCount = g.NodeCount()
	result.Stats.EdgeCount = g.EdgeCount()
	hooks.OnStageComplete(ctx, observability.StageLoad, g.NodeCount(), result.Stats.LoadTime, nil)

	r.Logger.Info("loaded metadata",
		"packages", g.NodeCount(),
		"edges", g.EdgeCount(),
		"duration", result.Stats.LoadTime)

	// Stage 2: Resolve
	resolveStart := time.Now()
	hooks.OnStageStart(ctx, observability.StageResolve)
	res, err := features.Resolve(g, features.Config{
		Selection: opts.Selection(),
		Target:    opts.Target(),
		Members:   opts.Packages,
		Logger:    r.Logger,
	})
	if err != nil {
		hooks.OnStageComplete(ctx, observability.StageResolve, 0, time.Since(resolveStart), err)
		return nil, fmt.Errorf("resolve features: %w", err)
	}
	result.Resolution = res
	result.Set = retain.Compute(g, res)
	result.Stats.ResolveTime = time.Since(resolveStart)
	result.Stats.Retained = result.Set.Len()
	result.Stats.Compiled = len(result.Set.Build)
	hooks.OnStageComplete(ctx, observability.StageResolve, result.Stats.Retained, result.Stats.ResolveTime, nil)

	r.Logger.Info("computed retention set",
		"roots", len(res.Roots()),
		"retained", result.Stats.Retained,
		"compiled", result.Stats.Compiled,
		"duration", result.Stats.ResolveTime)
	return result, nil
}

// Plan runs Retain, scans the cache root and reconciles its entries.
func (r *Runner) Plan(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForPlan(); err != nil {
		return nil, err
	}
	result, err := r.Retain(ctx, opts)
	if err != nil {
		return nil, err
	}

	if opts.Root == "" {
		opts.Root = result.Document.TargetDirectory
		if opts.Root == "" {
			return nil, perrors.New(perrors.ErrCodeInvalidPath, "metadata has no target_directory; pass the target directory explicitly")
		}
	}
	result.Root = opts.Root

	// Stage 3: Scan and reconcile
	hooks := observability.Pipeline()
	scanStart := time.Now()
	hooks.OnStageStart(ctx, observability.StageScan)
	entries, err := scan.New(r.FS, opts.Root, r.Logger).Scan(ctx, opts.Mode)
	if err != nil {
		hooks.OnStageComplete(ctx, observability.StageScan, 0, time.Since(scanStart), err)
		return nil, fmt.Errorf("scan %s: %w", opts.Root, err)
	}
	result.Entries = entries
	result.Actions = reconcile.Reconcile(result.Set, entries, opts.ReconcileOptions())
	result.Stats.ScanTime = time.Since(scanStart)
	result.Stats.Entries = len(entries)
	result.Stats.Evicted = len(result.Evictions())
	result.Stats.Kept = len(result.Actions) - result.Stats.Evicted
	hooks.OnStageComplete(ctx, observability.StageScan, len(entries), result.Stats.ScanTime, nil)

	r.Logger.Info("reconciled cache",
		"mode", opts.Mode,
		"entries", result.Stats.Entries,
		"kept", result.Stats.Kept,
		"evicted", result.Stats.Evicted,
		"duration", result.Stats.ScanTime)
	return result, nil
}

// Prune runs Plan and moves every evicted entry into the holding area. In
// dry-run mode nothing is moved and the summary lists the planned
// destinations.
//
// Per-entry failures do not fail the run; check Result.Summary.Err.
func (r *Runner) Prune(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	result, err := r.Plan(ctx, opts)
	if err != nil {
		return nil, err
	}
	if opts.TempRoot == "" {
		// dry run without a holding area: the plan is the result
		return result, nil
	}

	// Stage 4: Relocate
	hooks := observability.Pipeline()
	relocateStart := time.Now()
	hooks.OnStageStart(ctx, observability.StageRelocate)
	reloc := relocate.New(r.FS, opts.TempRoot, r.Logger)
	reloc.DryRun = opts.DryRun
	summary, err := reloc.Relocate(ctx, result.Actions)
	result.Summary = summary
	result.Stats.RelocateTime = time.Since(relocateStart)
	if err != nil {
		hooks.OnStageComplete(ctx, observability.StageRelocate, 0, result.Stats.RelocateTime, err)
		return result, err
	}
	hooks.OnStageComplete(ctx, observability.StageRelocate, summary.Moved, result.Stats.RelocateTime, summary.Err())

	if summary.Failed > 0 {
		r.Logger.Warn("relocation incomplete",
			"moved", summary.Moved,
			"failed", summary.Failed,
			"dest", summary.RunDir)
	} else {
		r.Logger.Info("relocated entries",
			"moved", summary.Moved,
			"dry_run", summary.DryRun,
			"dest", summary.RunDir,
			"duration", result.Stats.RelocateTime)
	}
	return result, nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
