package dsl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/twingraph/twingraph/model"
)

const sampleYAML = `
name: training
nodes:
  - id: start
    type: start
  - id: fetch
    type: component
    source: "return {'rows': 100}"
    config:
      platform: docker
      image: python:3.11
  - id: train
    type: component
    inputs:
      epochs: 10
edges:
  - "start -> fetch"
  - from: fetch
    to: train
    type: sequential
`

func TestParseFromString(t *testing.T) {
	p, err := ParseFromString(sampleYAML)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.Name != "training" {
		t.Errorf("expected name training, got %q", p.Name)
	}
	if len(p.Nodes) != 3 || len(p.Edges) != 2 {
		t.Fatalf("expected 3 nodes / 2 edges, got %d / %d", len(p.Nodes), len(p.Edges))
	}
	if p.Edges[0].From != "start" || p.Edges[0].To != "fetch" {
		t.Errorf("shorthand edge not parsed: %+v", p.Edges[0])
	}
	fetch := p.Node("fetch")
	if fetch == nil || fetch.Config.Platform != model.PlatformDocker {
		t.Errorf("expected docker platform on fetch, got %+v", fetch)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := Parse(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.Name != "training" {
		t.Errorf("expected name training, got %q", p.Name)
	}
}

func TestParseMissingFile(t *testing.T) {
	if _, err := Parse("does/not/exist.yaml"); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestRoundTripYAML(t *testing.T) {
	p, err := ParseFromString(sampleYAML)
	if err != nil {
		t.Fatal(err)
	}
	out, err := PipelineToYAML(p)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	p2, err := ParseFromString(string(out))
	if err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}
	if len(p2.Nodes) != len(p.Nodes) || len(p2.Edges) != len(p.Edges) {
		t.Errorf("round trip changed shape: %d/%d vs %d/%d",
			len(p2.Nodes), len(p2.Edges), len(p.Nodes), len(p.Edges))
	}
}
