// Package features decides which dependency edges of a resolved graph are
// active for a build configuration.
//
// Cargo's metadata document lists every dependency a package declares,
// whatever features or platform end up selected. [Resolve] replays feature
// activation from the workspace members to a fixpoint and evaluates platform
// guards for one target, so later stages only follow edges a real build
// would compile.
//
// Feature activation is unified across dependency kinds, as with Cargo's
// version 1 resolver. This can only enable more than a build needs, never
// less.
package features

import (
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/precache/pkg/cfgexpr"
	perrors "github.com/matzehuels/precache/pkg/errors"
	"github.com/matzehuels/precache/pkg/graph"
)

// Selection is the requested feature set, mirroring Cargo's
// --features / --all-features / --no-default-features flags.
type Selection struct {
	All       bool
	NoDefault bool
	// Features lists "feat" (applied to every selected member) or
	// "member/feat" entries.
	Features []string
}

// Config is a build configuration.
type Config struct {
	Selection Selection
	// Target restricts platform-guarded edges to one triple. Nil keeps every
	// platform-guarded edge.
	Target *cfgexpr.Target
	// Members restricts the roots to the named workspace members. Empty
	// selects every member.
	Members []string
	Logger  *log.Logger
}

// Resolution is the outcome of [Resolve]. Platform guard results are
// memoised on first use, so a Resolution is not safe for concurrent use.
type Resolution struct {
	g        *graph.Graph
	target   *cfgexpr.Target
	logger   *log.Logger
	roots    []graph.PackageID
	isRoot   map[graph.PackageID]bool
	reached  map[graph.PackageID]bool
	enabled  map[graph.PackageID]map[string]bool
	deps     map[graph.PackageID]map[string]bool
	depFeats map[graph.PackageID]map[string][]string
	guards   map[string]guardResult
	warnings []string
}

type guardResult struct {
	active bool
	err    error
}

// Resolve computes feature activation for cfg over g.
func Resolve(g *graph.Graph, cfg Config) (*Resolution, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	r := &Resolution{
		g:        g,
		target:   cfg.Target,
		logger:   logger,
		isRoot:   make(map[graph.PackageID]bool),
		reached:  make(map[graph.PackageID]bool),
		enabled:  make(map[graph.PackageID]map[string]bool),
		deps:     make(map[graph.PackageID]map[string]bool),
		depFeats: make(map[graph.PackageID]map[string][]string),
		guards:   make(map[string]guardResult),
	}

	roots, err := selectRoots(g, cfg.Members)
	if err != nil {
		return nil, err
	}
	r.roots = roots

	w := &worklist{queued: make(map[graph.PackageID]bool)}
	for _, id := range roots {
		r.isRoot[id] = true
		r.reached[id] = true
		node := g.Node(id)

		switch {
		case cfg.Selection.All:
			for f := range node.Features {
				r.enable(w, id, f)
			}
			for _, o := range node.Optional {
				r.activate(w, id, o)
			}
		case !cfg.Selection.NoDefault:
			r.enable(w, id, "default")
		}
		w.push(id)
	}

	for _, f := range cfg.Selection.Features {
		r.requestFeature(w, f)
	}

	for {
		id, ok := w.pop()
		if !ok {
			break
		}
		r.propagate(w, id)
	}
	return r, nil
}

func selectRoots(g *graph.Graph, names []string) ([]graph.PackageID, error) {
	members := g.Members()
	if len(names) == 0 {
		return members, nil
	}

	var roots []graph.PackageID
	for _, name := range names {
		found := false
		for _, m := range members {
			if m.Name == name {
				roots = append(roots, m)
				found = true
			}
		}
		if !found {
			return nil, perrors.New(perrors.ErrCodeInvalidPackage, "package %q is not a workspace member", name)
		}
	}
	return roots, nil
}

// requestFeature applies one explicitly requested feature.
func (r *Resolution) requestFeature(w *worklist, f string) {
	if pkg, feat, ok := strings.Cut(f, "/"); ok {
		for _, id := range r.roots {
			if id.Name == pkg {
				r.enable(w, id, feat)
				return
			}
		}
	}
	for _, id := range r.roots {
		r.apply(w, id, f)
	}
}

// propagate walks the active edges of a reached package and pushes
// requested features onto their targets.
func (r *Resolution) propagate(w *worklist, id graph.PackageID) {
	if !r.reached[id] {
		return
	}
	for _, e := range r.g.Edges(id) {
		if !r.Active(e) {
			continue
		}
		changed := false
		if !r.reached[e.To] {
			r.reached[e.To] = true
			changed = true
		}
		if e.DefaultFeatures && r.enable(w, e.To, "default") {
			changed = true
		}
		for _, f := range e.Features {
			if r.enable(w, e.To, f) {
				changed = true
			}
		}
		for _, f := range r.depFeats[id][e.Name] {
			if r.enable(w, e.To, f) {
				changed = true
			}
		}
		if changed {
			w.push(e.To)
		}
	}
}

// enable turns on feature f of id and everything it lists. It reports
// whether f was newly enabled.
func (r *Resolution) enable(w *worklist, id graph.PackageID, f string) bool {
	node := r.g.Node(id)
	if node == nil || r.enabled[id][f] {
		return false
	}
	if r.enabled[id] == nil {
		r.enabled[id] = make(map[string]bool)
	}

	values, declared := node.Features[f]
	switch {
	case declared:
		r.enabled[id][f] = true
		for _, v := range values {
			r.apply(w, id, v)
		}
	case node.IsOptional(f):
		r.enabled[id][f] = true
		r.activate(w, id, f)
	default:
		if f != "default" {
			r.logger.Debug("feature not declared", "package", id.Name, "feature", f)
		}
		return false
	}
	w.push(id)
	return true
}

// apply interprets one feature value in the context of id.
func (r *Resolution) apply(w *worklist, id graph.PackageID, v string) {
	switch {
	case strings.HasPrefix(v, "dep:"):
		r.activate(w, id, strings.TrimPrefix(v, "dep:"))
	case strings.Contains(v, "/"):
		dep, feat, _ := strings.Cut(v, "/")
		weak := strings.HasSuffix(dep, "?")
		dep = strings.TrimSuffix(dep, "?")
		if !weak && r.g.Node(id).IsOptional(dep) {
			r.activate(w, id, dep)
		}
		r.requestDepFeature(w, id, dep, feat)
	default:
		r.enable(w, id, v)
	}
}

func (r *Resolution) activate(w *worklist, id graph.PackageID, dep string) {
	if r.deps[id][dep] {
		return
	}
	if r.deps[id] == nil {
		r.deps[id] = make(map[string]bool)
	}
	r.deps[id][dep] = true
	w.push(id)
}

func (r *Resolution) requestDepFeature(w *worklist, id graph.PackageID, dep, feat string) {
	if slices.Contains(r.depFeats[id][dep], feat) {
		return
	}
	if r.depFeats[id] == nil {
		r.depFeats[id] = make(map[string][]string)
	}
	r.depFeats[id][dep] = append(r.depFeats[id][dep], feat)
	w.push(id)
}

// Active reports whether e is followed by a build under this configuration.
// Dev edges are only active from selected workspace members, optional edges
// only when their parent activated them, and platform-guarded edges only
// when the guard matches the target (or when no target is set).
func (r *Resolution) Active(e graph.Edge) bool {
	if !r.reached[e.From] {
		return false
	}
	if e.Kind == graph.DepDev && !r.isRoot[e.From] {
		return false
	}
	if e.Optional && !r.deps[e.From][e.Name] {
		return false
	}
	return r.platformActive(e.Platform)
}

func (r *Resolution) platformActive(platform string) bool {
	if platform == "" || r.target == nil {
		return true
	}
	if res, ok := r.guards[platform]; ok {
		return res.active
	}

	var res guardResult
	guard, err := cfgexpr.Parse(platform)
	if err != nil {
		res = guardResult{active: true, err: err}
	} else {
		res.active, res.err = guard.Eval(r.target)
	}
	if res.err != nil {
		err := perrors.Wrap(perrors.ErrCodeUnresolvedPlatform, res.err, "platform guard %q", platform)
		r.warnings = append(r.warnings, err.Error())
		r.logger.Warn("keeping dependency with unresolved platform guard", "guard", platform, "target", r.target.Triple, "err", res.err)
		res.active = true
	}
	r.guards[platform] = res
	return res.active
}

// Roots returns the selected workspace members.
func (r *Resolution) Roots() []graph.PackageID { return slices.Clone(r.roots) }

// IsRoot reports whether id is a selected workspace member.
func (r *Resolution) IsRoot(id graph.PackageID) bool { return r.isRoot[id] }

// Reached reports whether id is reachable from a root over active edges.
func (r *Resolution) Reached(id graph.PackageID) bool { return r.reached[id] }

// Features returns the enabled features of id, sorted.
func (r *Resolution) Features(id graph.PackageID) []string {
	var out []string
	for f := range r.enabled[id] {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Warnings returns one message per platform guard that could not be
// evaluated, in the order they were met.
func (r *Resolution) Warnings() []string { return slices.Clone(r.warnings) }

// Target returns the platform filter, or nil.
func (r *Resolution) Target() *cfgexpr.Target { return r.target }

type worklist struct {
	items  []graph.PackageID
	queued map[graph.PackageID]bool
}

func (w *worklist) push(id graph.PackageID) {
	if w.queued[id] {
		return
	}
	w.queued[id] = true
	w.items = append(w.items, id)
}

func (w *worklist) pop() (graph.PackageID, bool) {
	if len(w.items) == 0 {
		return graph.PackageID{}, false
	}
	id := w.items[0]
	w.items = w.items[1:]
	w.queued[id] = false
	return id, true
}
