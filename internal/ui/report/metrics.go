package report

import (
	"fmt"
	"strings"

	"yangkit/internal/engine/graph"
)

// MetricsGenerator lists per-module depth and fan-in/fan-out in dependency
// order, dependencies first.
type MetricsGenerator struct {
	graph *graph.Graph
}

func NewMetricsGenerator(g *graph.Graph) *MetricsGenerator {
	return &MetricsGenerator{graph: g}
}

func (m *MetricsGenerator) Generate() (string, error) {
	var buf strings.Builder
	metrics := m.graph.ComputeModuleMetrics()

	buf.WriteString("Module\tDepth\tFanIn\tFanOut\n")
	for _, name := range m.graph.TopologicalOrder() {
		mm := metrics[name]
		buf.WriteString(fmt.Sprintf("%s\t%d\t%d\t%d\n", name, mm.Depth, mm.FanIn, mm.FanOut))
	}
	return buf.String(), nil
}
