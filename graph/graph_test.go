package graph

import (
	"strings"
	"testing"

	"github.com/twingraph/twingraph/model"
)

func diamond() *model.Pipeline {
	return &model.Pipeline{
		Name: "diamond",
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "prep", Type: model.NodeComponent},
			{ID: "train_a", Type: model.NodeComponent},
			{ID: "train_b", Type: model.NodeComponent},
			{ID: "merge", Type: model.NodeComponent},
		},
		Edges: []model.Edge{
			{From: "start", To: "prep", Type: model.EdgeSequential},
			{From: "prep", To: "train_a", Type: model.EdgeParallel},
			{From: "prep", To: "train_b", Type: model.EdgeParallel},
			{From: "train_a", To: "merge", Type: model.EdgeSequential},
			{From: "train_b", To: "merge", Type: model.EdgeSequential},
		},
	}
}

func TestBuildRejectsUndeclaredEndpoint(t *testing.T) {
	p := &model.Pipeline{
		Nodes: []model.Node{{ID: "a", Type: model.NodeComponent}},
		Edges: []model.Edge{{From: "a", To: "ghost", Type: model.EdgeSequential}},
	}
	if _, err := Build(p); err == nil {
		t.Errorf("expected error for undeclared edge endpoint")
	}
}

func TestBuildRejectsDuplicateIDs(t *testing.T) {
	p := &model.Pipeline{
		Nodes: []model.Node{
			{ID: "a", Type: model.NodeComponent},
			{ID: "a", Type: model.NodeComponent},
		},
	}
	if _, err := Build(p); err == nil {
		t.Errorf("expected error for duplicate node id")
	}
}

func TestSortDeterministic(t *testing.T) {
	g, err := Build(diamond())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for i := 0; i < 5; i++ {
		order, err := g.Sort()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := []string{"start", "prep", "train_a", "train_b", "merge"}
		for j, id := range want {
			if order[j] != id {
				t.Fatalf("run %d: expected %v, got %v", i, want, order)
			}
		}
	}
}

func TestCycleDetection(t *testing.T) {
	p := diamond()
	p.Edges = append(p.Edges, model.Edge{From: "merge", To: "prep", Type: model.EdgeSequential})
	_, err := Build(p)
	if err == nil {
		t.Fatalf("expected cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("expected cycle in error, got %v", err)
	}
	// The message names the nodes on the cycle.
	for _, id := range []string{"prep", "merge"} {
		if !strings.Contains(err.Error(), id) {
			t.Errorf("expected %s in cycle message, got %v", id, err)
		}
	}
}

func TestLoopEdgeDoesNotCycle(t *testing.T) {
	p := &model.Pipeline{
		Name: "looped",
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "repeat", Type: model.NodeLoop, Iterations: 3},
			{ID: "step", Type: model.NodeComponent},
		},
		Edges: []model.Edge{
			{From: "start", To: "repeat", Type: model.EdgeSequential},
			{From: "repeat", To: "step", Type: model.EdgeLoop},
			{From: "step", To: "repeat", Type: model.EdgeLoop},
		},
	}
	g, err := Build(p)
	if err != nil {
		t.Fatalf("loop back-edge should be legal, got %v", err)
	}
	body := g.LoopBody("repeat")
	if len(body) != 1 || body[0] != "step" {
		t.Errorf("expected loop body [step], got %v", body)
	}
}

func TestLoopBodyDependencyOrder(t *testing.T) {
	// post is declared before work but depends on it inside the body.
	p := &model.Pipeline{
		Name: "looped",
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "sweep", Type: model.NodeLoop, Iterations: 2},
			{ID: "post", Type: model.NodeComponent},
			{ID: "work", Type: model.NodeComponent},
		},
		Edges: []model.Edge{
			{From: "start", To: "sweep", Type: model.EdgeSequential},
			{From: "sweep", To: "work", Type: model.EdgeLoop},
			{From: "work", To: "post", Type: model.EdgeSequential},
			{From: "post", To: "sweep", Type: model.EdgeLoop},
		},
	}
	g, err := Build(p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	body := g.LoopBody("sweep")
	if len(body) != 2 || body[0] != "work" || body[1] != "post" {
		t.Errorf("expected loop body [work post], got %v", body)
	}
}

func TestBranchAndMergePoints(t *testing.T) {
	g, err := Build(diamond())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	bp := g.BranchPoints()
	if len(bp) != 1 || bp[0] != "prep" {
		t.Errorf("expected branch point [prep], got %v", bp)
	}
	mp := g.MergePoints()
	if len(mp) != 1 || mp[0] != "merge" {
		t.Errorf("expected merge point [merge], got %v", mp)
	}
}

func TestParallelGroups(t *testing.T) {
	g, err := Build(diamond())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	order, err := g.Sort()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	groups := g.ParallelGroups(order)
	if len(groups) != 4 {
		t.Fatalf("expected 4 waves, got %d: %v", len(groups), groups)
	}
	if len(groups[2]) != 2 {
		t.Errorf("expected train_a/train_b in one wave, got %v", groups[2])
	}
}

func TestParentsOrdered(t *testing.T) {
	g, err := Build(diamond())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	parents := g.Parents("merge")
	if len(parents) != 2 || parents[0] != "train_a" || parents[1] != "train_b" {
		t.Errorf("expected [train_a train_b], got %v", parents)
	}
}

func TestExportMermaid(t *testing.T) {
	g, err := Build(diamond())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	s, err := ExportMermaid(g)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(s, "graph TD\n") {
		t.Errorf("expected mermaid header, got %q", s)
	}
	if !strings.Contains(s, "prep --> train_a") && !strings.Contains(s, "prep -->|parallel| train_a") {
		t.Errorf("output missing prep->train_a edge: %q", s)
	}
}

func TestExportDOT(t *testing.T) {
	g, err := Build(diamond())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	s, err := ExportDOT(g)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if !strings.Contains(s, "digraph pipeline {") {
		t.Errorf("expected digraph header, got %q", s)
	}
	if !strings.Contains(s, `"prep" -> "train_a"`) {
		t.Errorf("output missing prep->train_a edge: %q", s)
	}
}

func TestExportEmpty(t *testing.T) {
	g, err := Build(&model.Pipeline{Name: "empty"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	s, err := ExportMermaid(g)
	if err != nil || s != "" {
		t.Errorf("expected empty render, got %q err %v", s, err)
	}
}
