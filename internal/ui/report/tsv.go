package report

import (
	"fmt"
	"strings"

	"yangkit/internal/engine/graph"
)

type TSVGenerator struct {
	graph *graph.Graph
}

func NewTSVGenerator(g *graph.Graph) *TSVGenerator {
	return &TSVGenerator{graph: g}
}

// Generate writes one row per edge, sorted by source then target.
func (t *TSVGenerator) Generate() (string, error) {
	var buf strings.Builder

	buf.WriteString("From\tTo\tKind\tOrigin\n")
	for _, from := range t.graph.ModuleNames() {
		mod, _ := t.graph.GetModule(from)
		for _, e := range t.graph.Edges(from) {
			buf.WriteString(fmt.Sprintf("%s\t%s\t%s\t%s\n", from, e.To, e.Kind, mod.Origin))
		}
	}

	return buf.String(), nil
}
