package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/twingraph/twingraph/model"
)

func linearPipeline() *model.Pipeline {
	return &model.Pipeline{
		Name: "training",
		Vars: map[string]any{"bucket": "datasets"},
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "fetch", Type: model.NodeComponent, Inputs: map[string]any{
				"path": "s3://{{ bucket }}/train",
			}},
			{ID: "train", Type: model.NodeComponent, Inputs: map[string]any{
				"epochs": 10,
			}},
		},
		Edges: []model.Edge{
			{From: "start", To: "fetch", Type: model.EdgeSequential},
			{From: "fetch", To: "train", Type: model.EdgeSequential},
		},
	}
}

func branchingPipeline() *model.Pipeline {
	return &model.Pipeline{
		Name: "deploy-gate",
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "score", Type: model.NodeComponent, Inputs: map[string]any{"metric": "auc"}},
			{ID: "gate", Type: model.NodeConditional, Condition: "quality > 5"},
			{ID: "deploy", Type: model.NodeComponent},
			{ID: "notify", Type: model.NodeComponent},
			{ID: "retrain", Type: model.NodeComponent},
		},
		Edges: []model.Edge{
			{From: "start", To: "score", Type: model.EdgeSequential},
			{From: "score", To: "gate", Type: model.EdgeSequential},
			{From: "gate", To: "deploy", Type: model.EdgeConditional, Condition: "true"},
			{From: "gate", To: "retrain", Type: model.EdgeConditional, Condition: "false"},
			{From: "deploy", To: "notify", Type: model.EdgeSequential},
		},
	}
}

func loopPipeline() *model.Pipeline {
	return &model.Pipeline{
		Name: "sweep",
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "sweep", Type: model.NodeLoop, Iterations: 3},
			{ID: "trial", Type: model.NodeComponent, Inputs: map[string]any{"seed": 42}},
		},
		Edges: []model.Edge{
			{From: "start", To: "sweep", Type: model.EdgeSequential},
			{From: "sweep", To: "trial", Type: model.EdgeLoop},
		},
	}
}

func nodeRunsByID(exec *model.Execution) map[string][]model.NodeRun {
	out := map[string][]model.NodeRun{}
	for _, nr := range exec.NodeRuns {
		out[nr.NodeID] = append(out[nr.NodeID], nr)
	}
	return out
}

func TestExecuteLinear(t *testing.T) {
	e := NewDefaultEngine()
	exec, err := e.Execute(context.Background(), linearPipeline(), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if exec.Status != model.ExecSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", exec.Status)
	}
	if exec.EndedAt == nil {
		t.Error("EndedAt not set")
	}
	if len(exec.Vertices) != 3 {
		t.Fatalf("got %d vertices, want 3", len(exec.Vertices))
	}
	if len(exec.ProvEdges) != 2 {
		t.Fatalf("got %d provenance edges, want 2", len(exec.ProvEdges))
	}
	runs := nodeRunsByID(exec)
	fetch := runs["fetch"][0]
	train := runs["train"][0]
	if len(fetch.Hash) != hashLen {
		t.Errorf("fetch hash %q, want %d hex chars", fetch.Hash, hashLen)
	}
	if len(train.ParentHashes) != 1 || train.ParentHashes[0] != fetch.Hash {
		t.Errorf("train parent hashes = %v, want [%s]", train.ParentHashes, fetch.Hash)
	}
	if got := fetch.Outputs["path"]; got != "s3://datasets/train" {
		t.Errorf("fetch output path = %v, want rendered var", got)
	}
	if fetch.Outputs["hash"] != fetch.Hash {
		t.Errorf("fetch outputs missing own hash")
	}
}

func TestExecuteDeterministicHashes(t *testing.T) {
	e := NewDefaultEngine()
	first, err := e.Execute(context.Background(), linearPipeline(), nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := e.Execute(context.Background(), linearPipeline(), nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	a, b := nodeRunsByID(first), nodeRunsByID(second)
	for _, id := range []string{"fetch", "train"} {
		if a[id][0].Hash != b[id][0].Hash {
			t.Errorf("hash for %s changed across runs: %s vs %s", id, a[id][0].Hash, b[id][0].Hash)
		}
	}
}

func TestExecuteConditionalSkipsUntakenBranch(t *testing.T) {
	e := NewDefaultEngine()
	exec, err := e.Execute(context.Background(), branchingPipeline(), map[string]any{"quality": 3})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	runs := nodeRunsByID(exec)
	if got := runs["retrain"][0].Status; got != model.NodeSucceeded {
		t.Errorf("retrain status = %s, want SUCCEEDED", got)
	}
	if got := runs["deploy"][0].Status; got != model.NodeSkipped {
		t.Errorf("deploy status = %s, want SKIPPED", got)
	}
	if runs["deploy"][0].Outputs != nil {
		t.Errorf("skipped node has outputs: %v", runs["deploy"][0].Outputs)
	}
	// Skips cascade through the untaken subtree.
	if got := runs["notify"][0].Status; got != model.NodeSkipped {
		t.Errorf("notify status = %s, want SKIPPED", got)
	}
	// Skipped nodes still appear in provenance.
	labels := map[string]bool{}
	for _, v := range exec.Vertices {
		labels[v.Label] = true
	}
	for _, want := range []string{"start", "score", "gate", "deploy", "notify", "retrain"} {
		if !labels[want] {
			t.Errorf("vertex for %s missing", want)
		}
	}
}

func TestExecuteConditionalTakenBranch(t *testing.T) {
	e := NewDefaultEngine()
	exec, err := e.Execute(context.Background(), branchingPipeline(), map[string]any{"quality": 9})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	runs := nodeRunsByID(exec)
	if got := runs["deploy"][0].Status; got != model.NodeSucceeded {
		t.Errorf("deploy status = %s, want SUCCEEDED", got)
	}
	if got := runs["retrain"][0].Status; got != model.NodeSkipped {
		t.Errorf("retrain status = %s, want SKIPPED", got)
	}
}

func TestExecuteLoopIterations(t *testing.T) {
	e := NewDefaultEngine()
	exec, err := e.Execute(context.Background(), loopPipeline(), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	runs := nodeRunsByID(exec)["trial"]
	if len(runs) != 3 {
		t.Fatalf("got %d trial runs, want 3", len(runs))
	}
	seen := map[string]bool{}
	for i, nr := range runs {
		if nr.Iteration != i {
			t.Errorf("run %d has iteration %d", i, nr.Iteration)
		}
		if seen[nr.Hash] {
			t.Errorf("iteration %d reused hash %s", i, nr.Hash)
		}
		seen[nr.Hash] = true
	}
}

func TestExecuteLoopBodyDependencyOrder(t *testing.T) {
	// post is declared before work but depends on it inside the body;
	// each iteration must still link post to the same iteration's work run.
	p := &model.Pipeline{
		Name: "sweep",
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "sweep", Type: model.NodeLoop, Iterations: 2},
			{ID: "post", Type: model.NodeComponent},
			{ID: "work", Type: model.NodeComponent, Inputs: map[string]any{"seed": 7}},
		},
		Edges: []model.Edge{
			{From: "start", To: "sweep", Type: model.EdgeSequential},
			{From: "sweep", To: "work", Type: model.EdgeLoop},
			{From: "work", To: "post", Type: model.EdgeSequential},
			{From: "post", To: "sweep", Type: model.EdgeLoop},
		},
	}
	e := NewDefaultEngine()
	exec, err := e.Execute(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	runs := nodeRunsByID(exec)
	works, posts := runs["work"], runs["post"]
	if len(works) != 2 || len(posts) != 2 {
		t.Fatalf("got %d work and %d post runs, want 2 and 2", len(works), len(posts))
	}
	for i := range posts {
		if len(posts[i].ParentHashes) != 1 || posts[i].ParentHashes[0] != works[i].Hash {
			t.Errorf("iteration %d: post parents = %v, want [%s]",
				i, posts[i].ParentHashes, works[i].Hash)
		}
	}
}

func TestSkippedLoopRecordsBody(t *testing.T) {
	p := &model.Pipeline{
		Name: "gated-sweep",
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "score", Type: model.NodeComponent},
			{ID: "gate", Type: model.NodeConditional, Condition: "quality > 5"},
			{ID: "sweep", Type: model.NodeLoop, Iterations: 2},
			{ID: "trial", Type: model.NodeComponent},
			{ID: "retrain", Type: model.NodeComponent},
		},
		Edges: []model.Edge{
			{From: "start", To: "score", Type: model.EdgeSequential},
			{From: "score", To: "gate", Type: model.EdgeSequential},
			{From: "gate", To: "sweep", Type: model.EdgeConditional, Condition: "true"},
			{From: "gate", To: "retrain", Type: model.EdgeConditional, Condition: "false"},
			{From: "sweep", To: "trial", Type: model.EdgeLoop},
		},
	}
	e := NewDefaultEngine()
	exec, err := e.Execute(context.Background(), p, map[string]any{"quality": 3})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	runs := nodeRunsByID(exec)
	sweep, ok := runs["sweep"]
	if !ok || sweep[0].Status != model.NodeSkipped {
		t.Fatalf("sweep runs = %v, want one SKIPPED run", runs["sweep"])
	}
	// The skipped loop takes its body with it, vertices included.
	trial, ok := runs["trial"]
	if !ok {
		t.Fatal("no run recorded for loop-body node trial under a skipped loop")
	}
	if trial[0].Status != model.NodeSkipped {
		t.Errorf("trial status = %s, want SKIPPED", trial[0].Status)
	}
	if trial[0].Outputs != nil {
		t.Errorf("skipped trial has outputs: %v", trial[0].Outputs)
	}
	if len(trial[0].ParentHashes) != 1 || trial[0].ParentHashes[0] != sweep[0].Hash {
		t.Errorf("trial parents = %v, want [%s]", trial[0].ParentHashes, sweep[0].Hash)
	}
	labels := map[string]bool{}
	for _, v := range exec.Vertices {
		labels[v.Label] = true
	}
	for _, want := range []string{"sweep", "trial"} {
		if !labels[want] {
			t.Errorf("vertex for %s missing", want)
		}
	}
}

func TestExecuteTemplateFailure(t *testing.T) {
	p := linearPipeline()
	p.Nodes[1].Inputs["path"] = "{{ bucket |"
	e := NewDefaultEngine()
	exec, err := e.Execute(context.Background(), p, nil)
	if err == nil {
		t.Fatal("expected error for broken template")
	}
	if exec.Status != model.ExecFailed {
		t.Errorf("status = %s, want FAILED", exec.Status)
	}
	runs := nodeRunsByID(exec)
	if got := runs["fetch"][0].Status; got != model.NodeFailed {
		t.Errorf("fetch status = %s, want FAILED", got)
	}
}

type failingMirror struct{}

func (failingMirror) MirrorExecution(ctx context.Context, exec *model.Execution) error {
	return errors.New("gremlin unreachable")
}

func TestMirrorFailureIsWarningOnly(t *testing.T) {
	e := NewDefaultEngine()
	e.Mirror = failingMirror{}
	exec, err := e.Execute(context.Background(), linearPipeline(), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if exec.Status != model.ExecSucceeded {
		t.Errorf("status = %s, want SUCCEEDED despite mirror failure", exec.Status)
	}
	if len(exec.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(exec.Warnings))
	}
}

func TestExecuteRejectsInvalidPipeline(t *testing.T) {
	e := NewDefaultEngine()
	if _, err := e.Execute(context.Background(), nil, nil); err == nil {
		t.Error("expected error for nil pipeline")
	}
	p := linearPipeline()
	p.Nodes = p.Nodes[1:] // drop the start node
	if _, err := e.Execute(context.Background(), p, nil); err == nil {
		t.Error("expected error for pipeline without start node")
	}
}

func TestGetExecutionByID(t *testing.T) {
	e := NewDefaultEngine()
	exec, err := e.Execute(context.Background(), linearPipeline(), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	got, err := e.GetExecutionByID(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("GetExecutionByID failed: %v", err)
	}
	if got.PipelineName != "training" {
		t.Errorf("pipeline name = %q", got.PipelineName)
	}
	if len(got.NodeRuns) != 2 {
		t.Errorf("got %d node runs, want 2", len(got.NodeRuns))
	}
	if len(got.Vertices) != 3 {
		t.Errorf("got %d vertices, want 3", len(got.Vertices))
	}
}
