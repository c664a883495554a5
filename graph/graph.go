// Package graph builds the in-memory dependency graph behind a pipeline
// document and sequences it for code generation and simulation.
//
// Loop edges are control-flow back-edges: they are kept on the graph for
// rendering and loop-body discovery, but excluded from the acyclicity check
// and from the topological order.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/twingraph/twingraph/model"
)

// Node is a vertex in the graph.
type Node struct {
	ID    string
	Label string
	Type  model.NodeType
}

// Edge is a directed connection between two nodes.
type Edge struct {
	From  string
	To    string
	Type  model.EdgeType
	Label string
}

// Graph is a directed graph composed of nodes and edges.
type Graph struct {
	Nodes []*Node
	Edges []*Edge

	index    map[string]int      // node id -> declaration order
	children map[string][]string // non-loop out-edges
	parents  map[string][]string // non-loop in-edges
	loopOut  map[string][]string // loop out-edges
}

// Build creates a Graph from the given pipeline. Duplicate node ids and
// edges referencing undeclared nodes are rejected.
func Build(p *model.Pipeline) (*Graph, error) {
	g := &Graph{
		index:    make(map[string]int),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
		loopOut:  make(map[string][]string),
	}
	for i, n := range p.Nodes {
		if _, dup := g.index[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		g.index[n.ID] = i
		label := n.Label
		if label == "" {
			label = n.ID
		}
		g.Nodes = append(g.Nodes, &Node{ID: n.ID, Label: label, Type: n.Type})
	}
	for _, e := range p.Edges {
		if _, ok := g.index[e.From]; !ok {
			return nil, fmt.Errorf("edge %s -> %s references undeclared node %q", e.From, e.To, e.From)
		}
		if _, ok := g.index[e.To]; !ok {
			return nil, fmt.Errorf("edge %s -> %s references undeclared node %q", e.From, e.To, e.To)
		}
		label := e.Condition
		if label == "" && e.Type != model.EdgeSequential {
			label = string(e.Type)
		}
		g.Edges = append(g.Edges, &Edge{From: e.From, To: e.To, Type: e.Type, Label: label})
		if e.Type == model.EdgeLoop {
			g.loopOut[e.From] = append(g.loopOut[e.From], e.To)
			continue
		}
		g.children[e.From] = append(g.children[e.From], e.To)
		g.parents[e.To] = append(g.parents[e.To], e.From)
	}
	if cycle := g.findCycle(); cycle != nil {
		return nil, fmt.Errorf("pipeline contains a cycle: %s", strings.Join(cycle, " -> "))
	}
	return g, nil
}

// Parents returns the dependency parents of a node (non-loop in-edges),
// ordered by declaration.
func (g *Graph) Parents(id string) []string {
	return g.sorted(g.parents[id])
}

// Children returns the dependents of a node (non-loop out-edges), ordered
// by declaration.
func (g *Graph) Children(id string) []string {
	return g.sorted(g.children[id])
}

// LoopBody returns the nodes of a loop node's body: everything reachable
// from its outgoing loop edges through non-loop edges, in topological order.
// Only edges between body members count, so a node whose remaining parents
// sit outside the body is immediately ready.
func (g *Graph) LoopBody(loopID string) []string {
	seen := map[string]bool{loopID: true}
	var stack []string
	stack = append(stack, g.loopOut[loopID]...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, g.children[id]...)
	}
	delete(seen, loopID)
	body := make([]string, 0, len(seen))
	for id := range seen {
		body = append(body, id)
	}
	body = g.sorted(body)

	indeg := make(map[string]int, len(body))
	for _, id := range body {
		for _, p := range g.parents[id] {
			if seen[p] {
				indeg[id]++
			}
		}
	}
	var ready []string
	for _, id := range body {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	order := make([]string, 0, len(body))
	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			if g.index[ready[i]] < g.index[ready[best]] {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, id)
		for _, child := range g.children[id] {
			if !seen[child] {
				continue
			}
			indeg[child]--
			if indeg[child] == 0 {
				ready = append(ready, child)
			}
		}
	}
	return order
}

// Sort returns a deterministic topological order over all nodes. Among
// ready nodes, declaration order wins.
func (g *Graph) Sort() ([]string, error) {
	indeg := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		indeg[n.ID] = len(g.parents[n.ID])
	}
	var ready []string
	for _, n := range g.Nodes {
		if indeg[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}
	var order []string
	for len(ready) > 0 {
		// Pick the earliest-declared ready node for stable output.
		best := 0
		for i := 1; i < len(ready); i++ {
			if g.index[ready[i]] < g.index[ready[best]] {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, id)
		for _, child := range g.children[id] {
			indeg[child]--
			if indeg[child] == 0 {
				ready = append(ready, child)
			}
		}
	}
	if len(order) != len(g.Nodes) {
		// Build guards against this, but a graph mutated after Build could
		// still close a cycle.
		if cycle := g.findCycle(); cycle != nil {
			return nil, fmt.Errorf("pipeline contains a cycle: %s", strings.Join(cycle, " -> "))
		}
		return nil, fmt.Errorf("topological sort left %d nodes unordered", len(g.Nodes)-len(order))
	}
	return order, nil
}

// BranchPoints returns node ids with more than one outgoing non-loop edge
// (fan-out), ordered by declaration.
func (g *Graph) BranchPoints() []string {
	var out []string
	for id, ch := range g.children {
		if len(ch) > 1 {
			out = append(out, id)
		}
	}
	return g.sorted(out)
}

// MergePoints returns node ids with more than one incoming non-loop edge
// (fan-in), ordered by declaration.
func (g *Graph) MergePoints() []string {
	var out []string
	for id, pa := range g.parents {
		if len(pa) > 1 {
			out = append(out, id)
		}
	}
	return g.sorted(out)
}

// ParallelGroups partitions a topological order into waves of mutually
// independent nodes: every node's parents land in strictly earlier waves.
// The simulator executes each wave concurrently.
func (g *Graph) ParallelGroups(order []string) [][]string {
	depth := make(map[string]int, len(order))
	maxDepth := 0
	for _, id := range order {
		d := 0
		for _, p := range g.parents[id] {
			if depth[p]+1 > d {
				d = depth[p] + 1
			}
		}
		depth[id] = d
		if d > maxDepth {
			maxDepth = d
		}
	}
	groups := make([][]string, maxDepth+1)
	for _, id := range order {
		groups[depth[id]] = append(groups[depth[id]], id)
	}
	return groups
}

// findCycle walks the non-loop edges depth-first and returns the node ids
// on the first back-edge cycle found, or nil when the graph is acyclic.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))
	parent := make(map[string]string)
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, child := range g.sorted(g.children[id]) {
			switch color[child] {
			case white:
				parent[child] = id
				if visit(child) {
					return true
				}
			case gray:
				// Back edge: reconstruct the cycle child -> ... -> id -> child.
				cycle = []string{child}
				for cur := id; cur != child; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, child)
				// Reverse into traversal order.
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, n := range g.Nodes {
		if color[n.ID] == white && visit(n.ID) {
			return cycle
		}
	}
	return nil
}

// sorted returns a copy of ids ordered by declaration index.
func (g *Graph) sorted(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool {
		return g.index[out[i]] < g.index[out[j]]
	})
	return out
}
