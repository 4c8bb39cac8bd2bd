package graph

import "sort"

// DetectCycles returns every elementary cycle found by a depth-first walk,
// starting from modules in sorted order so results are stable.
func (g *Graph) DetectCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names, adjacency := g.adjacencyLocked()
	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	for _, modName := range names {
		if !visited[modName] {
			findCycles(adjacency, modName, visited, onStack, []string{}, &cycles)
		}
	}

	return cycles
}

func findCycles(adjacency map[string][]string, curr string, visited, onStack map[string]bool, path []string, cycles *[][]string) {
	visited[curr] = true
	onStack[curr] = true
	path = append(path, curr)

	for _, next := range adjacency[curr] {
		if onStack[next] {
			cycleStart := -1
			for i, mod := range path {
				if mod == next {
					cycleStart = i
					break
				}
			}
			if cycleStart != -1 {
				cycle := make([]string, len(path)-cycleStart)
				copy(cycle, path[cycleStart:])
				*cycles = append(*cycles, cycle)
			}
		} else if !visited[next] {
			findCycles(adjacency, next, visited, onStack, path, cycles)
		}
	}

	onStack[curr] = false
}

// FindImportChain returns the shortest path of edges from one module to
// another.
func (g *Graph) FindImportChain(from, to string) ([]string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.modules[from]; !ok {
		return nil, false
	}
	if _, ok := g.modules[to]; !ok {
		return nil, false
	}
	if from == to {
		return []string{from}, true
	}

	queue := []string{from}
	visited := map[string]bool{from: true}
	prev := make(map[string]string)

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		neighbors := make([]string, 0, len(g.imports[curr]))
		for next := range g.imports[curr] {
			if _, ok := g.modules[next]; !ok {
				continue
			}
			neighbors = append(neighbors, next)
		}
		sort.Strings(neighbors)

		for _, next := range neighbors {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = curr

			if next == to {
				path := []string{to}
				for node := to; node != from; {
					p, ok := prev[node]
					if !ok {
						return nil, false
					}
					path = append(path, p)
					node = p
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path, true
			}

			queue = append(queue, next)
		}
	}

	return nil, false
}

// TransitiveDependents returns every module that reaches name through imports
// or includes, in breadth-first order.
func (g *Graph) TransitiveDependents(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	seen := map[string]bool{name: true}
	queue := []string{name}
	for len(queue) > 0 {
		mod := queue[0]
		queue = queue[1:]

		importers := make([]string, 0, len(g.importedBy[mod]))
		for importer := range g.importedBy[mod] {
			importers = append(importers, importer)
		}
		sort.Strings(importers)
		for _, importer := range importers {
			if seen[importer] {
				continue
			}
			seen[importer] = true
			out = append(out, importer)
			queue = append(queue, importer)
		}
	}
	return out
}
