package dsl

import (
	"fmt"
	"maps"

	pongo2 "github.com/flosch/pongo2/v6"
)

// Templater provides Jinja2-style (pongo2) template rendering. Node inputs
// and generated-code fragments both go through here, so canvas-side
// {{ expressions }} behave identically in simulation and in emitted code.
type Templater struct{}

// NewTemplater creates a new Templater.
func NewTemplater() *Templater {
	return &Templater{}
}

// Render renders a template string with the provided data using pongo2.
func (t *Templater) Render(tmpl string, data map[string]any) (string, error) {
	if data == nil {
		return "", fmt.Errorf("template data is nil")
	}
	pl, err := pongo2.FromString(tmpl)
	if err != nil {
		return "", err
	}
	out, err := pl.Execute(flattenContext(data))
	if err != nil {
		return "", err
	}
	return out, nil
}

// RenderValue recursively renders template strings in nested values.
func (t *Templater) RenderValue(val any, data map[string]any) (any, error) {
	switch x := val.(type) {
	case string:
		return t.Render(x, data)
	case []any:
		out := make([]any, len(x))
		for i, elem := range x {
			rendered, err := t.RenderValue(elem, data)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, elem := range x {
			rendered, err := t.RenderValue(elem, data)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	default:
		return val, nil
	}
}

// RegisterFilters allows registering custom pongo2 filters.
func (t *Templater) RegisterFilters(filters map[string]pongo2.FilterFunction) {
	for name, fn := range filters {
		_ = pongo2.RegisterFilter(name, fn)
	}
}

// flattenContext converts the map for pongo2 compatibility.
func flattenContext(data map[string]any) pongo2.Context {
	converted := make(pongo2.Context, len(data))
	maps.Copy(converted, data)
	return converted
}
