package dsl

import (
	"encoding/json"
	"testing"

	"github.com/twingraph/twingraph/model"
)

const canvasJSON = `{
  "name": "anomaly_detector",
  "nodes": [
    {"id": "start", "type": "start", "data": {"label": "Start"}},
    {"id": "ingest", "type": "component", "position": {"x": 10, "y": 120},
     "data": {"label": "Ingest", "source": "return {'batch': 1}",
              "config": {"platform": "batch", "queue": "gpu-queue"},
              "inputs": {"bucket": "raw-data"}}},
    {"id": "gate", "type": "conditional", "data": {"condition": "batch > 0"}}
  ],
  "edges": [
    {"id": "e0", "source": "start", "target": "ingest"},
    {"id": "e1", "source": "ingest", "target": "gate",
     "data": {"type": "conditional", "condition": "true"}}
  ]
}`

func TestFromCanvas(t *testing.T) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(canvasJSON), &doc); err != nil {
		t.Fatal(err)
	}
	p, err := FromCanvas(doc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.Name != "anomaly_detector" {
		t.Errorf("expected canvas name, got %q", p.Name)
	}
	if len(p.Nodes) != 3 || len(p.Edges) != 2 {
		t.Fatalf("expected 3 nodes / 2 edges, got %d / %d", len(p.Nodes), len(p.Edges))
	}
	ingest := p.Node("ingest")
	if ingest == nil {
		t.Fatal("ingest node missing")
	}
	if ingest.Config.Platform != model.PlatformBatch || ingest.Config.Queue != "gpu-queue" {
		t.Errorf("config not imported: %+v", ingest.Config)
	}
	if ingest.Inputs["bucket"] != "raw-data" {
		t.Errorf("inputs not imported: %+v", ingest.Inputs)
	}
	if p.Edges[1].Type != model.EdgeConditional || p.Edges[1].Condition != "true" {
		t.Errorf("edge data not imported: %+v", p.Edges[1])
	}
}

func TestFromCanvasMissingNodes(t *testing.T) {
	if _, err := FromCanvas(map[string]any{}); err == nil {
		t.Errorf("expected error when nodes are missing")
	}
}

func TestFromCanvasNodeWithoutID(t *testing.T) {
	doc := map[string]any{
		"nodes": []any{map[string]any{"type": "component"}},
	}
	if _, err := FromCanvas(doc); err == nil {
		t.Errorf("expected error for node without id")
	}
}

func TestCanvasRoundTrip(t *testing.T) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(canvasJSON), &doc); err != nil {
		t.Fatal(err)
	}
	p, err := FromCanvas(doc)
	if err != nil {
		t.Fatal(err)
	}
	out, err := ToCanvas(p)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	p2, err := FromCanvas(out)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if len(p2.Nodes) != len(p.Nodes) || len(p2.Edges) != len(p.Edges) {
		t.Errorf("round trip changed shape")
	}
	if p2.Node("ingest").Config.Queue != "gpu-queue" {
		t.Errorf("config lost in round trip: %+v", p2.Node("ingest").Config)
	}
}
