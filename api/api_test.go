package api

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/twingraph/twingraph/config"
	"github.com/twingraph/twingraph/model"
	"github.com/twingraph/twingraph/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Storage: config.StorageConfig{Driver: "memory"},
		Blob:    config.BlobConfig{Driver: "filesystem", Directory: filepath.Join(t.TempDir(), "artifacts")},
	}
}

func newTestService(t *testing.T) PipelineService {
	t.Helper()
	svc, err := NewService(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func samplePipeline() *model.Pipeline {
	return &model.Pipeline{
		Name: "training",
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "prep", Type: model.NodeComponent, Inputs: map[string]any{"rows": 100}},
			{ID: "train", Type: model.NodeComponent, Config: model.ComputeConfig{Platform: model.PlatformDocker, Image: "trainer:latest"}},
		},
		Edges: []model.Edge{
			{From: "start", To: "prep", Type: model.EdgeSequential},
			{From: "prep", To: "train", Type: model.EdgeSequential},
		},
	}
}

func TestListPipelinesFromDirectory(t *testing.T) {
	dir := t.TempDir()
	doc := "name: demo\nnodes:\n  - id: start\n    type: start\nedges: []\n"
	if err := os.WriteFile(filepath.Join(dir, "demo.pipeline.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	SetPipelinesDir(dir)
	t.Cleanup(func() { SetPipelinesDir(config.DefaultPipelinesDir) })

	svc := newTestService(t)
	names, err := svc.ListPipelines(context.Background())
	if err != nil {
		t.Fatalf("ListPipelines failed: %v", err)
	}
	if len(names) != 1 || names[0] != "demo" {
		t.Errorf("names = %v, want [demo]", names)
	}
	p, err := svc.GetPipeline(context.Background(), "demo")
	if err != nil {
		t.Fatalf("GetPipeline failed: %v", err)
	}
	if p.Name != "demo" {
		t.Errorf("pipeline name = %q", p.Name)
	}
}

func TestListPipelinesMissingDirectory(t *testing.T) {
	SetPipelinesDir(filepath.Join(t.TempDir(), "nope"))
	t.Cleanup(func() { SetPipelinesDir(config.DefaultPipelinesDir) })
	svc := newTestService(t)
	names, err := svc.ListPipelines(context.Background())
	if err != nil {
		t.Fatalf("ListPipelines failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("names = %v, want empty", names)
	}
}

func TestGraphPipelineFormats(t *testing.T) {
	svc := newTestService(t)
	out, err := svc.GraphPipeline(context.Background(), samplePipeline(), "mermaid")
	if err != nil {
		t.Fatalf("mermaid export failed: %v", err)
	}
	if !strings.Contains(out, "flowchart TD") {
		t.Errorf("mermaid output missing header: %s", out)
	}
	out, err = svc.GraphPipeline(context.Background(), samplePipeline(), "dot")
	if err != nil {
		t.Fatalf("dot export failed: %v", err)
	}
	if !strings.Contains(out, "digraph") {
		t.Errorf("dot output missing digraph: %s", out)
	}
	if _, err := svc.GraphPipeline(context.Background(), samplePipeline(), "png"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestGeneratePipelineWithArtifact(t *testing.T) {
	svc := newTestService(t)
	result, err := svc.GeneratePipeline(context.Background(), samplePipeline(), true)
	if err != nil {
		t.Fatalf("GeneratePipeline failed: %v", err)
	}
	if !strings.Contains(result.Code, "def training():") {
		t.Errorf("generated code missing pipeline function:\n%s", result.Code)
	}
	if !strings.HasPrefix(result.ArtifactURL, "file://") {
		t.Errorf("artifact URL = %q", result.ArtifactURL)
	}
	data, err := os.ReadFile(strings.TrimPrefix(result.ArtifactURL, "file://"))
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if string(data) != result.Code {
		t.Error("stored artifact does not match generated code")
	}
}

func TestSimulateAndInspect(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	exec, err := svc.Simulate(ctx, samplePipeline(), map[string]any{"dataset": "mnist"})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if exec.Status != model.ExecSucceeded {
		t.Fatalf("status = %s", exec.Status)
	}

	got, err := svc.GetExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if len(got.Vertices) != 3 {
		t.Errorf("got %d vertices, want 3", len(got.Vertices))
	}

	list, err := svc.ListExecutions(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListExecutions = %v, %v", list, err)
	}

	stats, err := svc.Stats(ctx, exec.ID)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Vertices != 3 || stats.Edges != 2 {
		t.Errorf("stats = %+v", stats)
	}

	vs, err := svc.SearchVertices(ctx, storage.Filter{ExecutionID: exec.ID, Platform: model.PlatformDocker})
	if err != nil {
		t.Fatalf("SearchVertices failed: %v", err)
	}
	if len(vs) != 1 || vs[0].Label != "train" {
		t.Errorf("search result = %v", vs)
	}

	if err := svc.DeleteExecution(ctx, exec.ID); err != nil {
		t.Fatalf("DeleteExecution failed: %v", err)
	}
	if _, err := svc.GetExecution(ctx, exec.ID); err == nil {
		t.Error("expected error after delete")
	}
}

func TestQueryWithoutEndpoint(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Query(context.Background(), "g.V().count()"); err == nil {
		t.Error("expected error when no gremlin endpoint is configured")
	}
}

func TestStoreFromConfigUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "dynamo"
	if _, err := NewService(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown storage driver")
	}
}
