// Package pipeline runs the precache stages end to end.
//
// This package implements the load → resolve → scan → reconcile → relocate
// pipeline behind every CLI command. By centralizing the stage order here,
// the commands only differ in how far they run and what they print.
//
// # Architecture
//
// The pipeline consists of four stages:
//
//  1. Load: decode `cargo metadata` output (run on demand, or read from a file)
//  2. Retain: resolve features and platforms, then compute the retention set
//  3. Plan: scan the cache root and decide keep or evict for every entry
//  4. Prune: move evicted entries into the holding area
//
// Each stage includes the ones before it.
//
// # Usage
//
//	runner := pipeline.NewRunner(nil, logger)
//	result, err := runner.Prune(ctx, pipeline.Options{
//	    Mode:     scan.ModeCargoCache,
//	    Root:     cargoHome,
//	    TempRoot: os.TempDir(),
//	})
//	if err != nil {
//	    return err
//	}
//	if err := result.Summary.Err(); err != nil {
//	    // some entries could not be moved
//	}
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jmgilman/go/exec"

	"github.com/matzehuels/precache/pkg/cfgexpr"
	perrors "github.com/matzehuels/precache/pkg/errors"
	"github.com/matzehuels/precache/pkg/features"
	"github.com/matzehuels/precache/pkg/graph"
	"github.com/matzehuels/precache/pkg/metadata"
	"github.com/matzehuels/precache/pkg/reconcile"
	"github.com/matzehuels/precache/pkg/relocate"
	"github.com/matzehuels/precache/pkg/retain"
	"github.com/matzehuels/precache/pkg/scan"
)

// StdinPath selects standard input as the metadata source.
const StdinPath = "-"

// Options contains all configuration for a pipeline run.
type Options struct {
	// Metadata source. MetadataPath reads a saved document ("-" for Stdin);
	// otherwise cargo is run.
	MetadataPath string
	Stdin        io.Reader
	Cargo        string
	ManifestPath string
	CargoArgs    []string
	Executor     exec.Executor

	// Build configuration
	Features          []string
	AllFeatures       bool
	NoDefaultFeatures bool
	Platform          string // target triple; empty keeps every platform
	Packages          []string

	// Cache
	Mode         scan.Mode
	Root         string
	TempRoot     string
	DryRun       bool
	Keep         []string
	PruneMembers bool

	Logger *log.Logger

	target    *cfgexpr.Target
	validated bool
}

// Result contains the outputs of a pipeline run. Fields of stages that did
// not run are nil.
type Result struct {
	Document   *metadata.Document
	Graph      *graph.Graph
	Resolution *features.Resolution
	Set        *retain.Set
	Entries    []scan.Entry
	Actions    []reconcile.Action
	Summary    *relocate.Summary
	Stats      Stats

	// Root is the scanned cache root, after defaults.
	Root string
}

// Stats contains pipeline execution statistics.
type Stats struct {
	PackageCount int
	EdgeCount    int
	Retained     int
	Compiled     int
	Entries      int
	Kept         int
	Evicted      int

	LoadTime     time.Duration
	ResolveTime  time.Duration
	ScanTime     time.Duration
	RelocateTime time.Duration
}

// Evictions returns the planned evictions.
func (r *Result) Evictions() []reconcile.Action {
	return reconcile.Evictions(r.Actions)
}

// ValidateForRetain checks the build configuration and applies defaults.
func (o *Options) ValidateForRetain() error {
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if o.Platform != "" && o.target == nil {
		t, err := cfgexpr.ParseTriple(o.Platform)
		if err != nil {
			return err
		}
		o.target = t
	}
	if o.AllFeatures && o.NoDefaultFeatures && len(o.Features) > 0 {
		o.Logger.Debug("--all-features overrides --no-default-features and --features")
	}
	for _, p := range o.Packages {
		if err := perrors.ValidateCratesPackageName(p); err != nil {
			return err
		}
	}
	if o.MetadataPath == StdinPath && o.Stdin == nil {
		return perrors.New(perrors.ErrCodeInvalidInput, "metadata from stdin requested but no input attached")
	}
	return nil
}

// ValidateForPlan additionally requires a cache root. In target mode an
// empty Root is filled from the metadata's target_directory during Plan.
func (o *Options) ValidateForPlan() error {
	if err := o.ValidateForRetain(); err != nil {
		return err
	}
	if o.Root == "" && o.Mode != scan.ModeTarget {
		return perrors.New(perrors.ErrCodeInvalidPath, "no %s root configured", o.Mode)
	}
	return nil
}

// ValidateAndSetDefaults checks everything a full prune needs. It is
// idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := o.ValidateForPlan(); err != nil {
		return err
	}
	if o.TempRoot == "" && !o.DryRun {
		return perrors.New(perrors.ErrCodeInvalidPath, "no holding area configured")
	}
	o.validated = true
	return nil
}

// Target returns the parsed platform, or nil when every platform is kept.
func (o *Options) Target() *cfgexpr.Target { return o.target }

// Selection returns the feature selection.
func (o *Options) Selection() features.Selection {
	return features.Selection{
		All:       o.AllFeatures,
		NoDefault: o.NoDefaultFeatures,
		Features:  o.Features,
	}
}

// ReconcileOptions returns the matching options.
func (o *Options) ReconcileOptions() reconcile.Options {
	return reconcile.Options{Keep: o.Keep, PruneMembers: o.PruneMembers}
}
