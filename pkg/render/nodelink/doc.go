// Package nodelink renders the retention graph as a node-link diagram.
//
// # Overview
//
// This package produces directed graph visualizations using Graphviz, where
// packages appear as boxes connected by arrows. It answers "why is this
// crate kept?" by showing the active edges that reach it.
//
// # Usage
//
// Convert a graph and its retention set to DOT format, then render to SVG:
//
//	dot := nodelink.ToDOT(g, set, res, nodelink.Options{Detailed: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// # Options
//
// The [Options] struct controls diagram generation:
//
//   - Detailed: node labels include compiled units and enabled features
//   - All: packages outside the retention set are drawn dashed and grey
//
// # DOT Format
//
// The [ToDOT] function produces Graphviz DOT source that can be:
//
//   - Rendered directly via [RenderSVG]
//   - Saved and processed with external Graphviz tools
//   - Customized before rendering
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering.
package nodelink
