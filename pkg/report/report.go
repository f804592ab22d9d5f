// Package report turns pipeline results into text, JSON or YAML output.
//
// # Formats
//
// The JSON and YAML encodings share one document shape:
//
//	{
//	  "mode": "cargo-cache",
//	  "root": "/home/ci/.cargo",
//	  "dry_run": true,
//	  "stats": {"packages": 10, "retained": 8, "entries": 16, "kept": 10, "evicted": 6},
//	  "actions": [
//	    {"path": "registry/src/.../serde-1.0.150", "role": "registry-src",
//	     "decision": "evict", "reason": "no-match",
//	     "dest": "/tmp/precache-.../registry/src/.../serde-1.0.150"}
//	  ]
//	}
//
// Kept entries are listed for dry runs or when requested. The text format prints the
// same information as aligned lines, styled with lipgloss when the writer
// is a terminal.
package report

import (
	"github.com/matzehuels/precache/pkg/features"
	"github.com/matzehuels/precache/pkg/pipeline"
	"github.com/matzehuels/precache/pkg/reconcile"
	"github.com/matzehuels/precache/pkg/relocate"
	"github.com/matzehuels/precache/pkg/retain"
)

// Report is the serialized form of a run.
type Report struct {
	Mode     string    `json:"mode,omitempty" yaml:"mode,omitempty"`
	Root     string    `json:"root,omitempty" yaml:"root,omitempty"`
	DryRun   bool      `json:"dry_run" yaml:"dry_run"`
	RunDir   string    `json:"run_dir,omitempty" yaml:"run_dir,omitempty"`
	Stats    Stats     `json:"stats" yaml:"stats"`
	Retained []Package `json:"retained,omitempty" yaml:"retained,omitempty"`
	Actions  []Action  `json:"actions,omitempty" yaml:"actions,omitempty"`
	Warnings []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Stats mirrors pipeline.Stats without timings.
type Stats struct {
	Packages int `json:"packages" yaml:"packages"`
	Retained int `json:"retained" yaml:"retained"`
	Compiled int `json:"compiled" yaml:"compiled"`
	Entries  int `json:"entries" yaml:"entries"`
	Kept     int `json:"kept" yaml:"kept"`
	Evicted  int `json:"evicted" yaml:"evicted"`
	Moved    int `json:"moved" yaml:"moved"`
	Failed   int `json:"failed" yaml:"failed"`
}

// Package is one retained package.
type Package struct {
	Name     string   `json:"name" yaml:"name"`
	Version  string   `json:"version" yaml:"version"`
	Source   string   `json:"source,omitempty" yaml:"source,omitempty"`
	Units    string   `json:"units,omitempty" yaml:"units,omitempty"`
	Features []string `json:"features,omitempty" yaml:"features,omitempty"`
	Member   bool     `json:"member,omitempty" yaml:"member,omitempty"`
}

// Action is one reconciled entry.
type Action struct {
	Path     string `json:"path" yaml:"path"`
	Role     string `json:"role" yaml:"role"`
	Decision string `json:"decision" yaml:"decision"`
	Reason   string `json:"reason" yaml:"reason"`
	Match    string `json:"match,omitempty" yaml:"match,omitempty"`
	Dest     string `json:"dest,omitempty" yaml:"dest,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Options selects what goes into a report.
type Options struct {
	// Kept lists kept entries next to evictions. Dry runs always list them.
	Kept bool
	// Packages lists the retention set.
	Packages bool

	Mode string
	Root string
}

// FromResult builds a report from whatever stages the result covers.
func FromResult(r *pipeline.Result, opts Options) *Report {
	rep := &Report{
		Mode: opts.Mode,
		Root: opts.Root,
		Stats: Stats{
			Packages: r.Stats.PackageCount,
			Retained: r.Stats.Retained,
			Compiled: r.Stats.Compiled,
			Entries:  r.Stats.Entries,
			Kept:     r.Stats.Kept,
			Evicted:  r.Stats.Evicted,
		},
	}
	if r.Resolution != nil {
		rep.Warnings = r.Resolution.Warnings()
	}
	if opts.Packages && r.Set != nil {
		rep.Retained = packages(r.Set, r.Resolution)
	}

	results := make(map[string]relocate.Result)
	if s := r.Summary; s != nil {
		rep.DryRun = s.DryRun
		rep.RunDir = s.RunDir
		rep.Stats.Moved = s.Moved
		rep.Stats.Failed = s.Failed
		for _, res := range s.Results {
			results[res.Action.Entry.Rel] = res
		}
	}

	for _, a := range r.Actions {
		if a.Decision == reconcile.Keep && !opts.Kept && !rep.DryRun {
			continue
		}
		rep.Actions = append(rep.Actions, action(a, results[a.Entry.Rel]))
	}
	return rep
}

// FromSet builds a report listing a retention set only.
func FromSet(set *retain.Set, res *features.Resolution) *Report {
	rep := &Report{
		Stats:    Stats{Retained: set.Len(), Compiled: len(set.Build)},
		Retained: packages(set, res),
	}
	if res != nil {
		rep.Warnings = res.Warnings()
	}
	return rep
}

func packages(set *retain.Set, res *features.Resolution) []Package {
	var out []Package
	for _, id := range set.IDs() {
		p := Package{
			Name:    id.Name,
			Version: id.Version,
			Source:  id.Source,
			Member:  set.Members[id],
		}
		if units, ok := set.Build[id]; ok {
			p.Units = units.String()
		}
		if res != nil {
			p.Features = res.Features(id)
		}
		out = append(out, p)
	}
	return out
}

func action(a reconcile.Action, res relocate.Result) Action {
	out := Action{
		Path:     a.Entry.Rel,
		Role:     a.Entry.Role.String(),
		Decision: a.Decision.String(),
		Reason:   a.Reason.String(),
		Match:    a.Match,
		Dest:     res.Dest,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}
