package report

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"yangkit/internal/engine/graph"
)

type MermaidGenerator struct {
	graph *graph.Graph
}

func NewMermaidGenerator(g *graph.Graph) *MermaidGenerator {
	return &MermaidGenerator{graph: g}
}

func (m *MermaidGenerator) Generate(cycles [][]string) (string, error) {
	var buf strings.Builder
	buf.WriteString("flowchart LR\n")
	buf.WriteString("  classDef submodule fill:#eef5fb,stroke:#4682b4\n")
	buf.WriteString("  classDef cycle fill:#ffe4e1,stroke:#ff0000,stroke-width:2px\n")
	buf.WriteString("  classDef missing fill:#dcdcdc,stroke:#808080,stroke-dasharray: 4 2\n")

	names := m.graph.ModuleNames()
	all := append([]string(nil), names...)
	missing := make(map[string]bool)
	for _, e := range m.graph.MissingTargets() {
		if !missing[e.To] {
			missing[e.To] = true
			all = append(all, e.To)
		}
	}
	ids := makeMermaidIDs(all)
	inCycle := cycleModuleSet(cycles)
	cycleEdges := cycleEdgeSet(cycles)

	for _, name := range names {
		mod, _ := m.graph.GetModule(name)
		buf.WriteString(fmt.Sprintf("  %s[\"%s\"]\n", ids[name], escapeMermaidLabel(name)))
		switch {
		case inCycle[name]:
			buf.WriteString(fmt.Sprintf("  class %s cycle\n", ids[name]))
		case mod.Submodule:
			buf.WriteString(fmt.Sprintf("  class %s submodule\n", ids[name]))
		}
	}
	for _, name := range sortedKeys(missing) {
		buf.WriteString(fmt.Sprintf("  %s[\"%s\"]\n", ids[name], escapeMermaidLabel(name)))
		buf.WriteString(fmt.Sprintf("  class %s missing\n", ids[name]))
	}

	edgeIndex := 0
	var cycleLinks []int
	for _, from := range names {
		for _, e := range m.graph.Edges(from) {
			arrow := "-->"
			if e.Kind == graph.EdgeInclude {
				arrow = "-.->|include|"
			}
			buf.WriteString(fmt.Sprintf("  %s %s %s\n", ids[from], arrow, ids[e.To]))
			if cycleEdges[from+"->"+e.To] {
				cycleLinks = append(cycleLinks, edgeIndex)
			}
			edgeIndex++
		}
	}
	if len(cycleLinks) > 0 {
		buf.WriteString(fmt.Sprintf("  linkStyle %s stroke:#ff0000,stroke-width:3px\n", joinInts(cycleLinks)))
	}
	return buf.String(), nil
}

func sanitizeMermaidID(module string) string {
	var b strings.Builder
	for _, r := range module {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	id := b.String()
	if id == "" || unicode.IsDigit(rune(id[0])) {
		id = "m_" + id
	}
	return id
}

// makeMermaidIDs assigns unique ids; names that sanitize alike get a suffix.
func makeMermaidIDs(names []string) map[string]string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	ids := make(map[string]string, len(sorted))
	used := make(map[string]int, len(sorted))
	for _, name := range sorted {
		base := sanitizeMermaidID(name)
		id := base
		if n := used[base]; n > 0 {
			id = fmt.Sprintf("%s_%d", base, n+1)
		}
		used[base]++
		ids[name] = id
	}
	return ids
}

func escapeMermaidLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
