package assemble

import (
	"sort"
	"strings"

	"sqlverify/internal/domain"
)

// depGraph models a statement's components as a directed graph keyed by
// small integer handles, with consumes edges. Cycles are a hard assembly
// error, never infinite recursion.
type depGraph struct {
	names []string       // handle → component name
	index map[string]int // component name → handle
	deps  [][]int        // handle → handles it consumes
}

// buildGraph indexes the components into an arena and resolves consumes
// edges. An edge to an unknown component is an assembly error.
func buildGraph(components map[string]*domain.Component) (*depGraph, error) {
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	g := &depGraph{
		names: names,
		index: make(map[string]int, len(names)),
		deps:  make([][]int, len(names)),
	}
	for i, name := range names {
		g.index[name] = i
	}
	for i, name := range names {
		for _, consumed := range components[name].Interfaces.Consumes {
			j, ok := g.index[consumed]
			if !ok {
				return nil, domain.ErrAssembly("component %q consumes unknown component %q", name, consumed)
			}
			g.deps[i] = append(g.deps[i], j)
		}
	}
	return g, nil
}

// topoOrder computes a deterministic topological order (Kahn's algorithm,
// lexicographic tie-break) or reports the cycle.
func (g *depGraph) topoOrder() ([]string, error) {
	// indegree counts unmet dependencies of each component.
	indegree := make([]int, len(g.names))
	for i := range g.names {
		indegree[i] = len(g.deps[i])
	}
	consumers := make([][]int, len(g.names))
	for i := range g.names {
		for _, j := range g.deps[i] {
			consumers[j] = append(consumers[j], i)
		}
	}

	var ready []int
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]string, 0, len(g.names))
	for len(ready) > 0 {
		sort.Ints(ready)
		h := ready[0]
		ready = ready[1:]
		order = append(order, g.names[h])
		for _, consumer := range consumers[h] {
			indegree[consumer]--
			if indegree[consumer] == 0 {
				ready = append(ready, consumer)
			}
		}
	}

	if len(order) != len(g.names) {
		var stuck []string
		for i, d := range indegree {
			if d > 0 {
				stuck = append(stuck, g.names[i])
			}
		}
		return nil, domain.ErrAssembly("component dependency cycle involving: %s", strings.Join(stuck, ", "))
	}
	return order, nil
}

// isValidOrder reports whether order is a permutation of the components in
// which every component appears after everything it consumes.
func (g *depGraph) isValidOrder(order []string) bool {
	if len(order) != len(g.names) {
		return false
	}
	pos := make(map[string]int, len(order))
	for i, name := range order {
		if _, dup := pos[name]; dup {
			return false
		}
		if _, known := g.index[name]; !known {
			return false
		}
		pos[name] = i
	}
	for i, name := range g.names {
		for _, j := range g.deps[i] {
			if pos[g.names[j]] >= pos[name] {
				return false
			}
		}
	}
	return true
}
