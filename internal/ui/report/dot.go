package report

import (
	"fmt"
	"strings"

	"yangkit/internal/engine/graph"
)

type DOTGenerator struct {
	graph *graph.Graph
}

func NewDOTGenerator(g *graph.Graph) *DOTGenerator {
	return &DOTGenerator{graph: g}
}

// Generate renders the module graph. Edges inside a cycle are drawn red and
// targets that were never compiled are drawn as missing.
func (d *DOTGenerator) Generate(cycles [][]string) (string, error) {
	var buf strings.Builder

	buf.WriteString("digraph modules {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, style=rounded, fontname=\"Helvetica\", fontsize=10];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=8, penwidth=1.2];\n")
	buf.WriteString("  overlap=false;\n\n")

	cycleEdges := cycleEdgeSet(cycles)
	inCycle := cycleModuleSet(cycles)

	names := d.graph.ModuleNames()
	buf.WriteString("  subgraph cluster_compiled {\n")
	buf.WriteString("    label=\"Compiled Modules\";\n")
	buf.WriteString("    style=filled;\n")
	buf.WriteString("    color=\"whitesmoke\";\n")
	buf.WriteString("    node [fillcolor=\"white\", style=\"rounded,filled\"];\n")
	for _, name := range names {
		mod, _ := d.graph.GetModule(name)
		label := name
		if mod.Submodule {
			label += "\\n(submodule)"
		}
		switch {
		case inCycle[name]:
			buf.WriteString(fmt.Sprintf("    %q [label=\"%s\", fillcolor=\"mistyrose\", color=\"red\", penwidth=2.0];\n", name, label))
		case mod.Submodule:
			buf.WriteString(fmt.Sprintf("    %q [label=\"%s\", color=\"steelblue\"];\n", name, label))
		default:
			buf.WriteString(fmt.Sprintf("    %q [label=\"%s\", color=\"darkslategrey\"];\n", name, label))
		}
	}
	buf.WriteString("  }\n\n")

	missing := make(map[string]bool)
	for _, e := range d.graph.MissingTargets() {
		missing[e.To] = true
	}
	if len(missing) > 0 {
		buf.WriteString("  // Not compiled\n")
		buf.WriteString("  node [fillcolor=\"gainsboro\", style=\"rounded,filled,dashed\", color=\"grey\"];\n")
		for _, name := range sortedKeys(missing) {
			buf.WriteString(fmt.Sprintf("  %q;\n", name))
		}
		buf.WriteString("\n")
	}

	for _, from := range names {
		for _, e := range d.graph.Edges(from) {
			switch {
			case cycleEdges[from+"->"+e.To]:
				buf.WriteString(fmt.Sprintf("  %q -> %q [color=\"red\", penwidth=3.0, label=\"CYCLE\"];\n", from, e.To))
			case e.Kind == graph.EdgeInclude:
				buf.WriteString(fmt.Sprintf("  %q -> %q [color=\"steelblue\", style=dashed, label=\"include\"];\n", from, e.To))
			case missing[e.To]:
				buf.WriteString(fmt.Sprintf("  %q -> %q [color=\"grey\", style=dashed];\n", from, e.To))
			default:
				buf.WriteString(fmt.Sprintf("  %q -> %q [color=\"forestgreen\", penwidth=1.8];\n", from, e.To))
			}
		}
	}

	buf.WriteString("}\n")
	return buf.String(), nil
}
