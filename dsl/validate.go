package dsl

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/twingraph/twingraph/model"
)

//go:embed pipeline.schema.json
var schemaJSON []byte

// Validate runs JSON-Schema validation against the embedded pipeline
// schema, then the structural checks the schema cannot express.
func Validate(p *model.Pipeline) error {
	jsonBytes, err := json.Marshal(p)
	if err != nil {
		return err
	}
	schema, err := jsonschema.CompileString("pipeline.schema.json", string(schemaJSON))
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}
	return validateStructure(p)
}

func validateStructure(p *model.Pipeline) error {
	seen := make(map[string]bool, len(p.Nodes))
	starts := 0
	for _, n := range p.Nodes {
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
		switch n.Type {
		case model.NodeStart:
			starts++
		case model.NodeConditional:
			if n.Condition == "" {
				return fmt.Errorf("conditional node %q has no condition", n.ID)
			}
		case model.NodeLoop:
			if n.Iterations <= 0 {
				return fmt.Errorf("loop node %q needs iterations > 0", n.ID)
			}
		}
	}
	if starts != 1 {
		return fmt.Errorf("pipeline needs exactly one start node, found %d", starts)
	}
	for _, e := range p.Edges {
		if !seen[e.From] {
			return fmt.Errorf("edge %s -> %s references undeclared node %q", e.From, e.To, e.From)
		}
		if !seen[e.To] {
			return fmt.Errorf("edge %s -> %s references undeclared node %q", e.From, e.To, e.To)
		}
		if e.Type == model.EdgeConditional {
			from := p.Node(e.From)
			if from != nil && from.Type == model.NodeConditional && e.Condition == "" {
				return fmt.Errorf("conditional edge %s -> %s has no branch condition", e.From, e.To)
			}
		}
	}
	return nil
}
