package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/precache/pkg/features"
	"github.com/matzehuels/precache/pkg/graph"
	"github.com/matzehuels/precache/pkg/retain"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed adds unit kinds and enabled features to node labels.
	// When false, only name and version are shown.
	Detailed bool
	// All includes packages outside the retention set, drawn dashed.
	All bool
}

// ToDOT converts the package graph to Graphviz DOT format. Only retained
// packages and the active edges between them are drawn unless opts.All is
// set. res may be nil, in which case every edge counts as active.
//
// Workspace members are filled blue, build dependency edges are dashed and
// dev dependency edges dotted.
func ToDOT(g *graph.Graph, set *retain.Set, res *features.Resolution, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	shown := func(id graph.PackageID) bool { return opts.All || set.Contains(id) }

	ids := g.Nodes()
	graph.SortIDs(ids)
	for _, id := range ids {
		if !shown(id) {
			continue
		}
		n := g.Node(id)
		label := fmtLabel(n, set, res, opts.Detailed)
		attrs := fmtAttrs(n, set, label)
		fmt.Fprintf(&buf, "  %q [%s];\n", nodeName(id), strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, id := range ids {
		if !shown(id) {
			continue
		}
		for _, e := range g.Edges(id) {
			if !shown(e.To) {
				continue
			}
			active := res == nil || res.Active(e)
			if !active && !opts.All {
				continue
			}
			attrs := edgeAttrs(e, active)
			if len(attrs) == 0 {
				fmt.Fprintf(&buf, "  %q -> %q;\n", nodeName(e.From), nodeName(e.To))
				continue
			}
			fmt.Fprintf(&buf, "  %q -> %q [%s];\n", nodeName(e.From), nodeName(e.To), strings.Join(attrs, ", "))
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// nodeName is unique per PackageID; two versions of one crate get two nodes.
func nodeName(id graph.PackageID) string {
	return id.Name + "@" + id.Version + " " + id.Source
}

func fmtLabel(n *graph.Node, set *retain.Set, res *features.Resolution, detailed bool) string {
	label := n.ID.Name + " " + n.ID.Version
	if !detailed {
		return label
	}

	var parts []string
	if units, ok := set.Build[n.ID]; ok {
		parts = append(parts, "units: "+units.String())
	}
	if res != nil {
		if feats := res.Features(n.ID); len(feats) > 0 {
			parts = append(parts, "features: "+strings.Join(feats, ","))
		}
	}
	if len(parts) == 0 {
		return label
	}
	return label + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(n *graph.Node, set *retain.Set, label string) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	switch {
	case !set.Contains(n.ID):
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=lightgrey", "fontcolor=dimgrey")
	case n.Member:
		attrs = append(attrs, "fillcolor=lightblue")
	}
	return attrs
}

func edgeAttrs(e graph.Edge, active bool) []string {
	var attrs []string
	switch e.Kind {
	case graph.DepBuild:
		attrs = append(attrs, "style=dashed", "label=\"build\"")
	case graph.DepDev:
		attrs = append(attrs, "style=dotted", "label=\"dev\"")
	}
	if !active {
		attrs = append(attrs, "color=lightgrey")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces the root tag so the SVG scales with its container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
