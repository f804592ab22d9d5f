// Package render groups the renderers for precache output.
//
// The [nodelink] subpackage draws the retention graph with Graphviz:
//
//	dot := nodelink.ToDOT(g, set, res, nodelink.Options{})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// Textual reports (text, JSON, YAML) live in package report.
//
// [nodelink]: github.com/matzehuels/precache/pkg/render/nodelink
package render
