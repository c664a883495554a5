package dsl

import (
	"encoding/json"
	"fmt"

	"github.com/twingraph/twingraph/model"
)

// FromCanvas converts the visual editor's node/edge JSON export into a
// Pipeline. The canvas emits react-flow style documents:
//
//	{"nodes": [{"id": "...", "type": "component", "data": {...}}, ...],
//	 "edges": [{"source": "a", "target": "b", "data": {"type": "..."}}, ...]}
//
// Optional fields may be missing; unknown fields are ignored.
func FromCanvas(canvas map[string]any) (*model.Pipeline, error) {
	nodesData, ok := canvas["nodes"]
	if !ok {
		return nil, fmt.Errorf("no nodes data provided")
	}
	nodes := asSlice(nodesData)
	if nodes == nil {
		return nil, fmt.Errorf("invalid nodes data format")
	}

	p := &model.Pipeline{Name: "editor_pipeline"}
	if name := getString(canvas, "name"); name != "" {
		p.Name = name
	}
	for _, nodeData := range nodes {
		node, err := extractNode(nodeData)
		if err != nil {
			return nil, err
		}
		p.Nodes = append(p.Nodes, *node)
	}
	for _, edgeData := range asSlice(canvas["edges"]) {
		edge, err := extractEdge(edgeData)
		if err != nil {
			return nil, err
		}
		p.Edges = append(p.Edges, *edge)
	}
	return p, nil
}

// ToCanvas converts a Pipeline into the canvas document format, for loading
// saved pipelines back into the editor.
func ToCanvas(p *model.Pipeline) (map[string]any, error) {
	nodes := make([]any, 0, len(p.Nodes))
	for i, n := range p.Nodes {
		data := map[string]any{
			"label": n.Label,
		}
		if n.Source != "" {
			data["source"] = n.Source
		}
		if n.Condition != "" {
			data["condition"] = n.Condition
		}
		if n.Iterations > 0 {
			data["iterations"] = n.Iterations
		}
		if n.Inputs != nil {
			data["inputs"] = n.Inputs
		}
		if !n.Config.Zero() {
			cfg, err := toMap(n.Config)
			if err != nil {
				return nil, err
			}
			data["config"] = cfg
		}
		nodes = append(nodes, map[string]any{
			"id":   n.ID,
			"type": string(n.Type),
			"data": data,
			// Simple vertical layout; the editor re-layouts on load.
			"position": map[string]any{"x": 0, "y": i * 120},
		})
	}
	edges := make([]any, 0, len(p.Edges))
	for i, e := range p.Edges {
		edges = append(edges, map[string]any{
			"id":     fmt.Sprintf("e%d", i),
			"source": e.From,
			"target": e.To,
			"data": map[string]any{
				"type":      string(e.Type),
				"condition": e.Condition,
			},
		})
	}
	return map[string]any{
		"name":  p.Name,
		"nodes": nodes,
		"edges": edges,
	}, nil
}

func extractNode(nodeData any) (*model.Node, error) {
	raw, ok := nodeData.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid node entry: %T", nodeData)
	}
	id := getString(raw, "id")
	if id == "" {
		return nil, fmt.Errorf("canvas node missing id")
	}
	node := &model.Node{
		ID:   id,
		Type: model.NodeType(getString(raw, "type")),
	}
	if node.Type == "" {
		node.Type = model.NodeComponent
	}
	data, _ := raw["data"].(map[string]any)
	if data == nil {
		return node, nil
	}
	node.Label = getString(data, "label")
	node.Source = getString(data, "source")
	node.Condition = getString(data, "condition")
	if iter, ok := data["iterations"].(float64); ok {
		node.Iterations = int(iter)
	}
	if inputs, ok := data["inputs"].(map[string]any); ok {
		node.Inputs = inputs
	}
	if cfg, ok := data["config"].(map[string]any); ok {
		if err := fromMap(cfg, &node.Config); err != nil {
			return nil, fmt.Errorf("node %s: invalid config: %w", id, err)
		}
	}
	return node, nil
}

func extractEdge(edgeData any) (*model.Edge, error) {
	raw, ok := edgeData.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid edge entry: %T", edgeData)
	}
	edge := &model.Edge{
		From: getString(raw, "source"),
		To:   getString(raw, "target"),
		Type: model.EdgeSequential,
	}
	if edge.From == "" || edge.To == "" {
		return nil, fmt.Errorf("canvas edge missing source or target")
	}
	if data, ok := raw["data"].(map[string]any); ok {
		if t := getString(data, "type"); t != "" {
			edge.Type = model.EdgeType(t)
		}
		edge.Condition = getString(data, "condition")
	}
	return edge, nil
}

// asSlice normalizes the two shapes the canvas export can carry.
func asSlice(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case []map[string]any:
		out := make([]any, len(x))
		for i, m := range x {
			out[i] = m
		}
		return out
	default:
		return nil
	}
}

func getString(data map[string]any, key string) string {
	if value, exists := data[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return ""
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any, out any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
