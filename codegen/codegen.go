// Package codegen walks a pipeline's dependency graph and emits equivalent
// Python source: one decorated function per component node plus a pipeline
// wrapper that calls them in topological order, wiring parent output hashes
// into each call. Output is deterministic for a given pipeline document.
package codegen

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/twingraph/twingraph/dsl"
	"github.com/twingraph/twingraph/graph"
	"github.com/twingraph/twingraph/model"
)

//go:embed pipeline.py.tmpl
var pipelineTmpl string

const indent = "    "

// Generator synthesizes pipeline source from a pipeline document.
type Generator struct {
	templater *dsl.Templater
}

// NewGenerator creates a Generator backed by the shared templater.
func NewGenerator() *Generator {
	return &Generator{templater: dsl.NewTemplater()}
}

// Generate emits the Python source for the pipeline.
func (gen *Generator) Generate(p *model.Pipeline) (string, error) {
	g, err := graph.Build(p)
	if err != nil {
		return "", err
	}
	order, err := g.Sort()
	if err != nil {
		return "", err
	}

	var components []map[string]any
	for _, id := range order {
		node := p.Node(id)
		if node.Type != model.NodeComponent {
			continue
		}
		components = append(components, map[string]any{
			"name":      pyIdent(node.ID),
			"decorator": decoratorArgs(node.Config),
			"body":      functionBody(node.Source),
		})
	}

	wrapper, err := gen.wrapperBody(p, g, order)
	if err != nil {
		return "", err
	}

	return gen.templater.Render(pipelineTmpl, map[string]any{
		"name":       p.Name,
		"func_name":  pyIdent(p.Name),
		"components": components,
		"wrapper":    wrapper,
	})
}

// wrapperBody emits the pipeline function: one call per component in
// topological order, conditional nodes as if/else guards, loop nodes as
// for-loops over their body subgraph.
func (gen *Generator) wrapperBody(p *model.Pipeline, g *graph.Graph, order []string) (string, error) {
	// Nodes emitted inside an if/else branch or a loop body must not be
	// emitted again at the top level.
	nested := map[string]bool{}
	for _, id := range order {
		node := p.Node(id)
		switch node.Type {
		case model.NodeConditional:
			for _, child := range g.Children(id) {
				nested[child] = true
			}
		case model.NodeLoop:
			for _, b := range g.LoopBody(id) {
				nested[b] = true
			}
		}
	}

	var lines []string
	for _, id := range order {
		if nested[id] {
			continue
		}
		node := p.Node(id)
		switch node.Type {
		case model.NodeStart:
			// Nothing to emit.
		case model.NodeComponent:
			call, err := gen.callLine(p, g, node)
			if err != nil {
				return "", err
			}
			lines = append(lines, indent+call)
		case model.NodeConditional:
			branchLines, err := gen.conditionalLines(p, g, node)
			if err != nil {
				return "", err
			}
			lines = append(lines, branchLines...)
		case model.NodeLoop:
			loopLines, err := gen.loopLines(p, g, node)
			if err != nil {
				return "", err
			}
			lines = append(lines, loopLines...)
		}
	}
	if len(lines) == 0 {
		lines = append(lines, indent+"pass")
	}
	return strings.Join(lines, "\n"), nil
}

func (gen *Generator) conditionalLines(p *model.Pipeline, g *graph.Graph, node *model.Node) ([]string, error) {
	var taken, untaken []string
	for _, e := range p.Edges {
		if e.From != node.ID || e.Type == model.EdgeLoop {
			continue
		}
		if e.Condition == "false" {
			untaken = append(untaken, e.To)
		} else {
			taken = append(taken, e.To)
		}
	}
	lines := []string{fmt.Sprintf("%sif %s:", indent, node.Condition)}
	calls, err := branchCalls(gen, p, g, taken, indent+indent)
	if err != nil {
		return nil, err
	}
	lines = append(lines, calls...)
	if len(untaken) > 0 {
		calls, err = branchCalls(gen, p, g, untaken, indent+indent)
		if err != nil {
			return nil, err
		}
		lines = append(lines, indent+"else:")
		lines = append(lines, calls...)
	}
	return lines, nil
}

func branchCalls(gen *Generator, p *model.Pipeline, g *graph.Graph, ids []string, prefix string) ([]string, error) {
	if len(ids) == 0 {
		return []string{prefix + "pass"}, nil
	}
	var lines []string
	for _, id := range ids {
		node := p.Node(id)
		if node == nil || node.Type != model.NodeComponent {
			continue
		}
		call, err := gen.callLine(p, g, node)
		if err != nil {
			return nil, err
		}
		lines = append(lines, prefix+call)
	}
	if len(lines) == 0 {
		lines = []string{prefix + "pass"}
	}
	return lines, nil
}

func (gen *Generator) loopLines(p *model.Pipeline, g *graph.Graph, node *model.Node) ([]string, error) {
	lines := []string{fmt.Sprintf("%sfor iteration in range(%d):", indent, node.Iterations)}
	body := g.LoopBody(node.ID)
	if len(body) == 0 {
		return append(lines, indent+indent+"pass"), nil
	}
	for _, id := range body {
		child := p.Node(id)
		if child.Type != model.NodeComponent {
			continue
		}
		call, err := gen.callLine(p, g, child)
		if err != nil {
			return nil, err
		}
		lines = append(lines, indent+indent+call)
	}
	return lines, nil
}

// callLine emits "<id>_out = <id>(parent_hash=[...], k=v, ...)".
func (gen *Generator) callLine(p *model.Pipeline, g *graph.Graph, node *model.Node) (string, error) {
	var hashes []string
	for _, parent := range componentAncestors(p, g, node.ID) {
		hashes = append(hashes, fmt.Sprintf("%s_out['hash']", pyIdent(parent)))
	}
	args := []string{fmt.Sprintf("parent_hash=[%s]", strings.Join(hashes, ", "))}

	keys := make([]string, 0, len(node.Inputs))
	for k := range node.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rendered := gen.renderInput(p, node.Inputs[k])
		args = append(args, fmt.Sprintf("%s=%s", k, pyLiteral(rendered)))
	}
	ident := pyIdent(node.ID)
	return fmt.Sprintf("%s_out = %s(%s)", ident, ident, strings.Join(args, ", ")), nil
}

// renderInput resolves pipeline-level vars in string inputs. Expressions
// referencing runtime outputs fail to resolve here and pass through
// verbatim, so they render at execution time instead.
func (gen *Generator) renderInput(p *model.Pipeline, v any) any {
	s, ok := v.(string)
	if !ok || !strings.Contains(s, "{{") {
		return v
	}
	data := map[string]any{"vars": p.Vars}
	for k, val := range p.Vars {
		data[k] = val
	}
	rendered, err := gen.templater.Render(s, data)
	if err != nil || rendered == "" {
		return v
	}
	return rendered
}

// componentAncestors climbs through control-flow nodes to the nearest
// component ancestors, preserving parent order (parent-hash propagation).
func componentAncestors(p *model.Pipeline, g *graph.Graph, id string) []string {
	var out []string
	seen := map[string]bool{}
	var climb func(id string)
	climb = func(id string) {
		for _, parent := range g.Parents(id) {
			if seen[parent] {
				continue
			}
			seen[parent] = true
			node := p.Node(parent)
			if node != nil && node.Type == model.NodeComponent {
				out = append(out, parent)
				continue
			}
			climb(parent)
		}
	}
	climb(id)
	return out
}

// decoratorArgs renders the platform decorator arguments for a component.
// Field order is fixed so generation stays byte-stable.
func decoratorArgs(cfg model.ComputeConfig) string {
	platform := cfg.Platform
	if platform == "" {
		platform = model.PlatformLocal
	}
	args := []string{fmt.Sprintf("platform='%s'", platform)}
	for _, f := range []struct{ key, val string }{
		{"image", cfg.Image},
		{"namespace", cfg.Namespace},
		{"queue", cfg.Queue},
		{"partition", cfg.Partition},
		{"host", cfg.Host},
		{"user", cfg.User},
		{"cpu", cfg.CPU},
		{"memory", cfg.Memory},
	} {
		if f.val != "" {
			args = append(args, fmt.Sprintf("%s='%s'", f.key, f.val))
		}
	}
	if cfg.TimeoutS > 0 {
		args = append(args, fmt.Sprintf("timeout_s=%d", cfg.TimeoutS))
	}
	return strings.Join(args, ", ")
}

// functionBody indents the node's source; empty sources become a bare
// return so the generated file always parses.
func functionBody(source string) string {
	source = strings.TrimRight(source, "\n")
	if strings.TrimSpace(source) == "" {
		return indent + "return {}"
	}
	var lines []string
	for _, line := range strings.Split(source, "\n") {
		if strings.TrimSpace(line) == "" {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, indent+line)
	}
	return strings.Join(lines, "\n")
}

var identRe = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// pyIdent converts a node or pipeline name into a valid Python identifier.
func pyIdent(name string) string {
	out := identRe.ReplaceAllString(name, "_")
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "_" + out
	}
	return out
}
