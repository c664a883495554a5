package dsl

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/twingraph/twingraph/model"
)

// Parse reads a YAML pipeline file from the given path and unmarshals it
// into a Pipeline struct.
func Parse(path string) (*model.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFromString(string(data))
}

// ParseFromString unmarshals a YAML string into a Pipeline struct.
func ParseFromString(yamlStr string) (*model.Pipeline, error) {
	var p model.Pipeline
	if err := yaml.Unmarshal([]byte(yamlStr), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PipelineToYAML converts a Pipeline struct to YAML bytes.
func PipelineToYAML(p *model.Pipeline) ([]byte, error) {
	return yaml.Marshal(p)
}
