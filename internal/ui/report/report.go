// Package report renders the module import graph as DOT, Mermaid, TSV or a
// per-module metrics table.
package report

import (
	"fmt"
	"sort"

	"yangkit/internal/engine/graph"
)

// Formats lists the accepted Render formats.
var Formats = []string{"dot", "mermaid", "tsv", "metrics"}

// Render dispatches on format.
func Render(g *graph.Graph, format string) (string, error) {
	switch format {
	case "dot":
		return NewDOTGenerator(g).Generate(g.DetectCycles())
	case "mermaid":
		return NewMermaidGenerator(g).Generate(g.DetectCycles())
	case "tsv":
		return NewTSVGenerator(g).Generate()
	case "metrics":
		return NewMetricsGenerator(g).Generate()
	default:
		return "", fmt.Errorf("unknown graph format %q", format)
	}
}

func cycleEdgeSet(cycles [][]string) map[string]bool {
	out := make(map[string]bool)
	for _, cycle := range cycles {
		for i := range cycle {
			out[cycle[i]+"->"+cycle[(i+1)%len(cycle)]] = true
		}
	}
	return out
}

func cycleModuleSet(cycles [][]string) map[string]bool {
	out := make(map[string]bool)
	for _, cycle := range cycles {
		for _, m := range cycle {
			out[m] = true
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
