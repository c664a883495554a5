package dsl

import (
	"strings"
	"testing"

	"github.com/twingraph/twingraph/model"
)

func validPipeline() *model.Pipeline {
	return &model.Pipeline{
		Name: "ok",
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "work", Type: model.NodeComponent, Config: model.ComputeConfig{Platform: model.PlatformLocal}},
		},
		Edges: []model.Edge{
			{From: "start", To: "work", Type: model.EdgeSequential},
		},
	}
}

func TestValidateOK(t *testing.T) {
	if err := Validate(validPipeline()); err != nil {
		t.Errorf("expected valid pipeline, got %v", err)
	}
}

func TestValidateEmptyPipeline(t *testing.T) {
	err := Validate(&model.Pipeline{Name: "empty"})
	if err == nil {
		t.Errorf("expected error for pipeline without nodes")
	}
}

func TestValidateNoStartNode(t *testing.T) {
	p := validPipeline()
	p.Nodes = p.Nodes[1:]
	p.Edges = nil
	err := Validate(p)
	if err == nil || !strings.Contains(err.Error(), "start") {
		t.Errorf("expected start-node error, got %v", err)
	}
}

func TestValidateBadPlatform(t *testing.T) {
	p := validPipeline()
	p.Nodes[1].Config.Platform = "mainframe"
	if err := Validate(p); err == nil {
		t.Errorf("expected error for unknown platform")
	}
}

func TestValidateUndeclaredEdgeEndpoint(t *testing.T) {
	p := validPipeline()
	p.Edges = append(p.Edges, model.Edge{From: "work", To: "ghost", Type: model.EdgeSequential})
	err := Validate(p)
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Errorf("expected undeclared-node error, got %v", err)
	}
}

func TestValidateConditionalWithoutCondition(t *testing.T) {
	p := validPipeline()
	p.Nodes = append(p.Nodes, model.Node{ID: "gate", Type: model.NodeConditional})
	p.Edges = append(p.Edges, model.Edge{From: "work", To: "gate", Type: model.EdgeSequential})
	err := Validate(p)
	if err == nil || !strings.Contains(err.Error(), "condition") {
		t.Errorf("expected condition error, got %v", err)
	}
}

func TestValidateLoopWithoutIterations(t *testing.T) {
	p := validPipeline()
	p.Nodes = append(p.Nodes, model.Node{ID: "repeat", Type: model.NodeLoop})
	p.Edges = append(p.Edges, model.Edge{From: "work", To: "repeat", Type: model.EdgeSequential})
	err := Validate(p)
	if err == nil || !strings.Contains(err.Error(), "iterations") {
		t.Errorf("expected iterations error, got %v", err)
	}
}

func TestValidateDuplicateIDs(t *testing.T) {
	p := validPipeline()
	p.Nodes = append(p.Nodes, model.Node{ID: "work", Type: model.NodeComponent})
	err := Validate(p)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate error, got %v", err)
	}
}
