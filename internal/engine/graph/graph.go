// Package graph tracks import and include edges between schema modules.
package graph

import (
	"sort"
	"sync"
)

// EdgeKind distinguishes import edges from include edges.
type EdgeKind string

const (
	EdgeImport  EdgeKind = "import"
	EdgeInclude EdgeKind = "include"
)

type Graph struct {
	mu sync.RWMutex

	modules map[string]*Module

	// Relationships
	imports    map[string]map[string]*ImportEdge // from -> to -> edge
	importedBy map[string]map[string]bool        // to -> from
}

type Module struct {
	Name      string
	Submodule bool
	Origin    string
}

type ImportEdge struct {
	From string
	To   string
	Kind EdgeKind
	Line int
	Col  int
}

type ModuleMetrics struct {
	Depth  int
	FanIn  int
	FanOut int
}

func NewGraph() *Graph {
	return &Graph{
		modules:    make(map[string]*Module),
		imports:    make(map[string]map[string]*ImportEdge),
		importedBy: make(map[string]map[string]bool),
	}
}

// AddModule records mod and replaces its outgoing edges.
func (g *Graph) AddModule(mod Module, edges []ImportEdge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.removeEdgesLocked(mod.Name)
	m := mod
	g.modules[mod.Name] = &m
	for i := range edges {
		e := edges[i]
		e.From = mod.Name
		if g.imports[mod.Name] == nil {
			g.imports[mod.Name] = make(map[string]*ImportEdge)
		}
		g.imports[mod.Name][e.To] = &e
		if g.importedBy[e.To] == nil {
			g.importedBy[e.To] = make(map[string]bool)
		}
		g.importedBy[e.To][mod.Name] = true
	}
}

// RemoveModule drops mod and its outgoing edges. Edges pointing at it stay,
// so dependents still report the missing target.
func (g *Graph) RemoveModule(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeEdgesLocked(name)
	delete(g.modules, name)
}

func (g *Graph) removeEdgesLocked(name string) {
	for to := range g.imports[name] {
		delete(g.importedBy[to], name)
		if len(g.importedBy[to]) == 0 {
			delete(g.importedBy, to)
		}
	}
	delete(g.imports, name)
}

func (g *Graph) GetModule(name string) (*Module, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.modules[name]
	if !ok {
		return nil, false
	}
	cp := *m
	return &cp, true
}

func (g *Graph) ModuleCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.modules)
}

// ModuleNames returns every module in sorted order.
func (g *Graph) ModuleNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.modules))
	for name := range g.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Edges returns the outgoing edges of name sorted by target.
func (g *Graph) Edges(name string) []ImportEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]ImportEdge, 0, len(g.imports[name]))
	for _, e := range g.imports[name] {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
	return out
}

// MissingTargets lists edges whose target module was never added.
func (g *Graph) MissingTargets() []ImportEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []ImportEdge
	for _, targets := range g.imports {
		for to, e := range targets {
			if _, ok := g.modules[to]; !ok {
				out = append(out, *e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

func (g *Graph) adjacencyLocked() ([]string, map[string][]string) {
	names := make([]string, 0, len(g.modules))
	for name := range g.modules {
		names = append(names, name)
	}
	sort.Strings(names)

	adjacency := make(map[string][]string, len(names))
	for _, name := range names {
		targets := make([]string, 0, len(g.imports[name]))
		for to := range g.imports[name] {
			if _, ok := g.modules[to]; ok {
				targets = append(targets, to)
			}
		}
		sort.Strings(targets)
		adjacency[name] = targets
	}
	return names, adjacency
}

// ComputeModuleMetrics reports fan-in, fan-out and dependency depth. Modules
// in one strongly connected component share a depth.
func (g *Graph) ComputeModuleMetrics() map[string]ModuleMetrics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	moduleNames, adjacency := g.adjacencyLocked()

	fanIn := make(map[string]int, len(moduleNames))
	fanOut := make(map[string]int, len(moduleNames))
	for _, from := range moduleNames {
		fanOut[from] = len(adjacency[from])
		for _, to := range adjacency[from] {
			fanIn[to]++
		}
	}

	componentOf, components := stronglyConnectedComponents(moduleNames, adjacency)
	componentEdges := make(map[int]map[int]bool, len(components))
	for _, from := range moduleNames {
		fromComp := componentOf[from]
		for _, to := range adjacency[from] {
			toComp := componentOf[to]
			if fromComp == toComp {
				continue
			}
			if componentEdges[fromComp] == nil {
				componentEdges[fromComp] = make(map[int]bool)
			}
			componentEdges[fromComp][toComp] = true
		}
	}

	depthByComp := make(map[int]int, len(components))
	var computeDepth func(int) int
	computeDepth = func(comp int) int {
		if depth, ok := depthByComp[comp]; ok {
			return depth
		}
		maxDepth := 0
		for next := range componentEdges[comp] {
			if candidate := 1 + computeDepth(next); candidate > maxDepth {
				maxDepth = candidate
			}
		}
		depthByComp[comp] = maxDepth
		return maxDepth
	}

	metrics := make(map[string]ModuleMetrics, len(moduleNames))
	for _, name := range moduleNames {
		metrics[name] = ModuleMetrics{
			Depth:  computeDepth(componentOf[name]),
			FanIn:  fanIn[name],
			FanOut: fanOut[name],
		}
	}
	return metrics
}

// TopologicalOrder returns modules with dependencies before dependents.
// Members of a cycle are emitted together in sorted order.
func (g *Graph) TopologicalOrder() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names, adjacency := g.adjacencyLocked()
	// Tarjan emits components in reverse topological order of the edge
	// direction, which for import edges means dependencies first.
	_, components := stronglyConnectedComponents(names, adjacency)
	out := make([]string, 0, len(names))
	for _, comp := range components {
		out = append(out, comp...)
	}
	return out
}

func stronglyConnectedComponents(nodes []string, adjacency map[string][]string) (map[string]int, [][]string) {
	index := 0
	stack := make([]string, 0, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	indexByNode := make(map[string]int, len(nodes))
	lowLink := make(map[string]int, len(nodes))
	componentOf := make(map[string]int, len(nodes))
	components := make([][]string, 0)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indexByNode[v] = index
		lowLink[v] = index
		index++

		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adjacency[v] {
			if _, seen := indexByNode[w]; !seen {
				strongConnect(w)
				if lowLink[w] < lowLink[v] {
					lowLink[v] = lowLink[w]
				}
			} else if onStack[w] && indexByNode[w] < lowLink[v] {
				lowLink[v] = indexByNode[w]
			}
		}

		if lowLink[v] != indexByNode[v] {
			return
		}

		component := make([]string, 0)
		for {
			last := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[last] = false
			component = append(component, last)
			if last == v {
				break
			}
		}
		sort.Strings(component)
		compID := len(components)
		components = append(components, component)
		for _, n := range component {
			componentOf[n] = compID
		}
	}

	for _, node := range nodes {
		if _, seen := indexByNode[node]; !seen {
			strongConnect(node)
		}
	}

	return componentOf, components
}
