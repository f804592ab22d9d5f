package graph_test

import (
	"fmt"

	"github.com/matzehuels/precache/pkg/graph"
)

func ExampleBuilder() {
	crates := "registry+https://github.com/rust-lang/crates.io-index"
	app := graph.PackageID{Name: "app", Version: "0.1.0", Source: "path+file:///work/app"}
	serde := graph.PackageID{Name: "serde", Version: "1.0.200", Source: crates}
	cc := graph.PackageID{Name: "cc", Version: "1.0.90", Source: crates}

	b := graph.NewBuilder()
	_ = b.AddNode(graph.Node{ID: app, Member: true, Units: graph.UnitLib | graph.UnitBin})
	_ = b.AddNode(graph.Node{ID: serde, Units: graph.UnitLib | graph.UnitBuildScript})
	_ = b.AddNode(graph.Node{ID: cc, Units: graph.UnitLib})
	b.AddEdge(graph.Edge{From: app, To: serde, Name: "serde", DefaultFeatures: true})
	b.AddEdge(graph.Edge{From: app, To: cc, Name: "cc", Kind: graph.DepBuild})

	g, err := b.Build()
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	for _, e := range g.Edges(app) {
		fmt.Println(e, "needs", graph.UnitsFor(e.Kind))
	}
	// Output:
	// app -> serde [normal] needs lib
	// app -> cc [build] needs lib+build-script
}
