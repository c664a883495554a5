package graph

import (
	"fmt"
	"strings"
)

// Renderer renders a Graph into a specific output format.
type Renderer interface {
	Render(g *Graph) (string, error)
}

// MermaidRenderer outputs Graphs in Mermaid flowchart syntax.
type MermaidRenderer struct{}

// Render renders the graph using Mermaid syntax.
func (r *MermaidRenderer) Render(g *Graph) (string, error) {
	if len(g.Nodes) == 0 {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	for _, node := range g.Nodes {
		switch node.Type {
		case "conditional":
			sb.WriteString(fmt.Sprintf("%s{%s}\n", node.ID, node.Label))
		case "start":
			sb.WriteString(fmt.Sprintf("%s((%s))\n", node.ID, node.Label))
		default:
			sb.WriteString(fmt.Sprintf("%s[%s]\n", node.ID, node.Label))
		}
	}
	for _, edge := range g.Edges {
		if edge.Label != "" {
			sb.WriteString(fmt.Sprintf("%s -->|%s| %s\n", edge.From, edge.Label, edge.To))
		} else {
			sb.WriteString(fmt.Sprintf("%s --> %s\n", edge.From, edge.To))
		}
	}
	return sb.String(), nil
}

// DOTRenderer outputs Graphs in Graphviz DOT syntax.
type DOTRenderer struct{}

// Render renders the graph as a Graphviz digraph.
func (r *DOTRenderer) Render(g *Graph) (string, error) {
	if len(g.Nodes) == 0 {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("digraph pipeline {\n")
	sb.WriteString("  rankdir=TB;\n")
	for _, node := range g.Nodes {
		shape := "box"
		switch node.Type {
		case "conditional":
			shape = "diamond"
		case "start":
			shape = "circle"
		case "loop":
			shape = "hexagon"
		}
		sb.WriteString(fmt.Sprintf("  %q [label=%q shape=%s];\n", node.ID, node.Label, shape))
	}
	for _, edge := range g.Edges {
		if edge.Label != "" {
			sb.WriteString(fmt.Sprintf("  %q -> %q [label=%q];\n", edge.From, edge.To, edge.Label))
		} else {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", edge.From, edge.To))
		}
	}
	sb.WriteString("}\n")
	return sb.String(), nil
}

// ExportMermaid is a helper to render a built graph as a Mermaid diagram.
func ExportMermaid(g *Graph) (string, error) {
	renderer := &MermaidRenderer{}
	return renderer.Render(g)
}

// ExportDOT is a helper to render a built graph as Graphviz DOT.
func ExportDOT(g *Graph) (string, error) {
	renderer := &DOTRenderer{}
	return renderer.Render(g)
}
