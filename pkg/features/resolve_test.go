package features

import (
	"slices"
	"testing"

	"github.com/matzehuels/precache/pkg/cfgexpr"
	perrors "github.com/matzehuels/precache/pkg/errors"
	"github.com/matzehuels/precache/pkg/graph"
)

const crates = "registry+https://github.com/rust-lang/crates.io-index"

func id(name string) graph.PackageID {
	return graph.PackageID{Name: name, Version: "1.0.0", Source: crates}
}

type fixture struct {
	nodes []graph.Node
	edges []graph.Edge
}

func (f fixture) build(t *testing.T) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder()
	for _, n := range f.nodes {
		if err := b.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s): %v", n.ID, err)
		}
	}
	for _, e := range f.edges {
		b.AddEdge(e)
	}
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build(): %v", err)
	}
	return g
}

func reached(r *Resolution, g *graph.Graph) []string {
	var names []string
	for _, n := range g.Nodes() {
		if r.Reached(n) {
			names = append(names, n.Name)
		}
	}
	slices.Sort(names)
	return names
}

// scenarioA: root R depends on P1 and, behind feature "x", on P2.
func scenarioA() fixture {
	return fixture{
		nodes: []graph.Node{
			{ID: id("r"), Member: true, Features: map[string][]string{"default": {}, "x": {"dep:p2"}}, Optional: []string{"p2"}},
			{ID: id("p1")},
			{ID: id("p2")},
		},
		edges: []graph.Edge{
			{From: id("r"), To: id("p1"), Name: "p1", DefaultFeatures: true},
			{From: id("r"), To: id("p2"), Name: "p2", Optional: true, DefaultFeatures: true},
		},
	}
}

func TestScenarioA(t *testing.T) {
	g := scenarioA().build(t)

	tests := []struct {
		name string
		sel  Selection
		want []string
	}{
		{"default", Selection{}, []string{"p1", "r"}},
		{"all features", Selection{All: true}, []string{"p1", "p2", "r"}},
		{"explicit x", Selection{Features: []string{"x"}}, []string{"p1", "p2", "r"}},
		{"member/x", Selection{Features: []string{"r/x"}}, []string{"p1", "p2", "r"}},
		{"implicit optional feature", Selection{Features: []string{"p2"}}, []string{"p1", "p2", "r"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Resolve(g, Config{Selection: tt.sel})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := reached(r, g); !slices.Equal(got, tt.want) {
				t.Errorf("reached = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFeatureValues(t *testing.T) {
	f := fixture{
		nodes: []graph.Node{
			{
				ID:     id("app"),
				Member: true,
				Features: map[string][]string{
					"default": {"json"},
					"json":    {"serde/derive", "serde_json"},
					"tls":     {"rustls?/ring"},
				},
				Optional: []string{"serde", "serde_json", "rustls"},
			},
			{ID: id("serde"), Features: map[string][]string{"default": {"std"}, "std": {}, "derive": {"dep:serde_derive"}}, Optional: []string{"serde_derive"}},
			{ID: id("serde_derive")},
			{ID: id("serde_json")},
			{ID: id("rustls"), Features: map[string][]string{"ring": {"dep:ring"}}, Optional: []string{"ring"}},
			{ID: id("ring")},
		},
		edges: []graph.Edge{
			{From: id("app"), To: id("serde"), Name: "serde", Optional: true, DefaultFeatures: true},
			{From: id("app"), To: id("serde_json"), Name: "serde_json", Optional: true, DefaultFeatures: true},
			{From: id("app"), To: id("rustls"), Name: "rustls", Optional: true},
			{From: id("serde"), To: id("serde_derive"), Name: "serde_derive", Optional: true},
			{From: id("rustls"), To: id("ring"), Name: "ring", Optional: true},
		},
	}
	g := f.build(t)

	t.Run("dep feature activates optional dep", func(t *testing.T) {
		r, err := Resolve(g, Config{})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		want := []string{"app", "serde", "serde_derive", "serde_json"}
		if got := reached(r, g); !slices.Equal(got, want) {
			t.Errorf("reached = %v, want %v", got, want)
		}
		if got := r.Features(id("serde")); !slices.Equal(got, []string{"default", "derive", "std"}) {
			t.Errorf("Features(serde) = %v", got)
		}
	})

	t.Run("weak feature does not activate", func(t *testing.T) {
		r, err := Resolve(g, Config{Selection: Selection{NoDefault: true, Features: []string{"tls"}}})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got := reached(r, g); !slices.Equal(got, []string{"app"}) {
			t.Errorf("reached = %v, want [app]", got)
		}
	})

	t.Run("weak feature applies once active", func(t *testing.T) {
		r, err := Resolve(g, Config{Selection: Selection{NoDefault: true, Features: []string{"tls", "rustls"}}})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		want := []string{"app", "ring", "rustls"}
		if got := reached(r, g); !slices.Equal(got, want) {
			t.Errorf("reached = %v, want %v", got, want)
		}
	})
}

func TestDevDependencyIsolation(t *testing.T) {
	f := fixture{
		nodes: []graph.Node{
			{ID: id("app"), Member: true},
			{ID: id("lib")},
			{ID: id("app-test-helper")},
			{ID: id("lib-test-helper")},
		},
		edges: []graph.Edge{
			{From: id("app"), To: id("lib"), Name: "lib"},
			{From: id("app"), To: id("app-test-helper"), Name: "app-test-helper", Kind: graph.DepDev},
			{From: id("lib"), To: id("lib-test-helper"), Name: "lib-test-helper", Kind: graph.DepDev},
		},
	}
	g := f.build(t)

	for _, sel := range []Selection{{}, {All: true}, {NoDefault: true}} {
		r, err := Resolve(g, Config{Selection: sel})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if r.Reached(id("lib-test-helper")) {
			t.Errorf("%+v: dev-dependency of non-member reached", sel)
		}
		if !r.Reached(id("app-test-helper")) {
			t.Errorf("%+v: dev-dependency of member not reached", sel)
		}
	}
}

func TestPlatformGuards(t *testing.T) {
	f := fixture{
		nodes: []graph.Node{
			{ID: id("app"), Member: true},
			{ID: id("libc")},
			{ID: id("winapi")},
			{ID: id("odd")},
			{ID: id("pinned")},
		},
		edges: []graph.Edge{
			{From: id("app"), To: id("libc"), Name: "libc", Platform: "cfg(unix)"},
			{From: id("app"), To: id("winapi"), Name: "winapi", Platform: "cfg(windows)"},
			{From: id("app"), To: id("odd"), Name: "odd", Platform: `cfg(target_feature = "crt-static")`},
			{From: id("app"), To: id("pinned"), Name: "pinned", Platform: "x86_64-pc-windows-msvc"},
		},
	}
	g := f.build(t)

	t.Run("no filter keeps all", func(t *testing.T) {
		r, err := Resolve(g, Config{})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		want := []string{"app", "libc", "odd", "pinned", "winapi"}
		if got := reached(r, g); !slices.Equal(got, want) {
			t.Errorf("reached = %v, want %v", got, want)
		}
		if len(r.Warnings()) != 0 {
			t.Errorf("Warnings() = %v, want none", r.Warnings())
		}
	})

	t.Run("linux", func(t *testing.T) {
		target, err := cfgexpr.ParseTriple("x86_64-unknown-linux-gnu")
		if err != nil {
			t.Fatal(err)
		}
		r, err := Resolve(g, Config{Target: target})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		want := []string{"app", "libc", "odd"}
		if got := reached(r, g); !slices.Equal(got, want) {
			t.Errorf("reached = %v, want %v", got, want)
		}
		if len(r.Warnings()) != 1 {
			t.Errorf("Warnings() = %v, want one unresolved guard", r.Warnings())
		}
	})
}

func TestMonotonicity(t *testing.T) {
	g := scenarioA().build(t)

	base, err := Resolve(g, Config{Selection: Selection{NoDefault: true}})
	if err != nil {
		t.Fatal(err)
	}
	more, err := Resolve(g, Config{Selection: Selection{NoDefault: true, Features: []string{"x"}}})
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range g.Nodes() {
		if base.Reached(n) && !more.Reached(n) {
			t.Errorf("%s reached without x but not with x", n)
		}
	}
}

func TestMemberFilter(t *testing.T) {
	f := fixture{
		nodes: []graph.Node{
			{ID: id("a"), Member: true},
			{ID: id("b"), Member: true},
			{ID: id("dep-a")},
			{ID: id("dep-b")},
		},
		edges: []graph.Edge{
			{From: id("a"), To: id("dep-a"), Name: "dep-a"},
			{From: id("b"), To: id("dep-b"), Name: "dep-b"},
		},
	}
	g := f.build(t)

	r, err := Resolve(g, Config{Members: []string{"b"}})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := reached(r, g); !slices.Equal(got, []string{"b", "dep-b"}) {
		t.Errorf("reached = %v, want [b dep-b]", got)
	}

	_, err = Resolve(g, Config{Members: []string{"nope"}})
	if !perrors.Is(err, perrors.ErrCodeInvalidPackage) {
		t.Errorf("Resolve(unknown member) error = %v, want %s", err, perrors.ErrCodeInvalidPackage)
	}
}
