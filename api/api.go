// Package api is the transport-independent operation surface. The HTTP
// handlers and the CLI both call through PipelineService, so behavior stays
// identical across surfaces.
package api

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/twingraph/twingraph/blob"
	"github.com/twingraph/twingraph/codegen"
	"github.com/twingraph/twingraph/config"
	"github.com/twingraph/twingraph/dsl"
	"github.com/twingraph/twingraph/engine"
	"github.com/twingraph/twingraph/event"
	"github.com/twingraph/twingraph/graph"
	"github.com/twingraph/twingraph/gremlin"
	"github.com/twingraph/twingraph/model"
	"github.com/twingraph/twingraph/storage"
	"github.com/twingraph/twingraph/telemetry"
	"github.com/twingraph/twingraph/utils"
)

// GenerateResult is the outcome of a code generation request.
type GenerateResult struct {
	Code        string `json:"code"`
	ArtifactURL string `json:"artifact_url,omitempty"`
}

// PipelineService defines the full API surface for pipelines, simulated
// executions, and provenance.
type PipelineService interface {
	ListPipelines(ctx context.Context) ([]string, error)
	GetPipeline(ctx context.Context, name string) (*model.Pipeline, error)
	ValidatePipeline(ctx context.Context, p *model.Pipeline) error
	GraphPipeline(ctx context.Context, p *model.Pipeline, format string) (string, error)
	GeneratePipeline(ctx context.Context, p *model.Pipeline, store bool) (*GenerateResult, error)
	Simulate(ctx context.Context, p *model.Pipeline, inputs map[string]any) (*model.Execution, error)
	GetExecution(ctx context.Context, id uuid.UUID) (*model.Execution, error)
	ListExecutions(ctx context.Context) ([]*model.Execution, error)
	DeleteExecution(ctx context.Context, id uuid.UUID) error
	Provenance(ctx context.Context, id uuid.UUID) ([]*model.Vertex, []*model.ProvEdge, error)
	SearchVertices(ctx context.Context, f storage.Filter) ([]*model.Vertex, error)
	Stats(ctx context.Context, executionID uuid.UUID) (*storage.Stats, error)
	Query(ctx context.Context, query string) (json.RawMessage, error)
	PublishEvent(ctx context.Context, topic string, payload map[string]any) error
	Close() error
}

type service struct {
	cfg       *config.Config
	store     storage.Store
	bus       event.Bus
	engine    *engine.Engine
	generator *codegen.Generator
	gremlin   *gremlin.Client
	artifacts blob.Store
}

var _ PipelineService = (*service)(nil)

// NewService assembles the service from config: storage driver, event bus,
// simulator, artifact store, and the optional Gremlin mirror.
func NewService(ctx context.Context, cfg *config.Config) (PipelineService, error) {
	store, err := storeFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	bus, err := event.NewBusFromConfig(&cfg.Event)
	if err != nil {
		return nil, err
	}
	artifacts, err := blob.NewDefaultStore(ctx, &cfg.Blob)
	if err != nil {
		return nil, err
	}
	eng := engine.NewEngine(store, bus, dsl.NewTemplater())
	client := gremlin.NewClient(cfg.Gremlin)
	if client != nil {
		eng.Mirror = client
	}
	return &service{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		engine:    eng,
		generator: codegen.NewGenerator(),
		gremlin:   client,
		artifacts: artifacts,
	}, nil
}

// storeFromConfig returns a storage instance based on config, falling back
// to memory when the configured backend cannot be opened.
func storeFromConfig(cfg *config.Config) (storage.Store, error) {
	driver := strings.ToLower(cfg.Storage.Driver)
	dsn := cfg.Storage.DSN
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = config.DefaultSQLiteDSN
		}
		store, err := storage.NewSqliteStore(dsn)
		if err != nil {
			utils.Warn("sqlite store unavailable (%v), using in-memory fallback", err)
			return storage.NewMemoryStore(), nil
		}
		return store, nil
	case "postgres":
		store, err := storage.NewPostgresStore(dsn)
		if err != nil {
			utils.Warn("postgres store unavailable (%v), using in-memory fallback", err)
			return storage.NewMemoryStore(), nil
		}
		return store, nil
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, utils.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}

// pipelinesDir is the base directory for pipeline documents; overridable
// via CLI flag or config.
var pipelinesDir = config.DefaultPipelinesDir

// SetPipelinesDir overrides the base directory for pipeline documents.
func SetPipelinesDir(dir string) {
	if dir != "" {
		pipelinesDir = dir
	}
}

const pipelineSuffix = ".pipeline.yaml"

func (s *service) ListPipelines(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(pipelinesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(entry.Name(), pipelineSuffix); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *service) GetPipeline(ctx context.Context, name string) (*model.Pipeline, error) {
	return dsl.Parse(filepath.Join(pipelinesDir, name+pipelineSuffix))
}

func (s *service) ValidatePipeline(ctx context.Context, p *model.Pipeline) error {
	return dsl.Validate(p)
}

func (s *service) GraphPipeline(ctx context.Context, p *model.Pipeline, format string) (string, error) {
	g, err := graph.Build(p)
	if err != nil {
		return "", err
	}
	switch format {
	case "", "mermaid":
		return graph.ExportMermaid(g)
	case "dot":
		return graph.ExportDOT(g)
	default:
		return "", utils.Errorf("unsupported graph format: %s", format)
	}
}

func (s *service) GeneratePipeline(ctx context.Context, p *model.Pipeline, store bool) (*GenerateResult, error) {
	code, err := s.generator.Generate(p)
	if err != nil {
		return nil, err
	}
	telemetry.ObserveGeneration()
	result := &GenerateResult{Code: code}
	if store {
		key := blob.ScriptKey(p.Name, []byte(code))
		url, err := s.artifacts.Put(ctx, []byte(code), "text/x-python", key)
		if err != nil {
			return nil, utils.Errorf("storing generated script: %w", err)
		}
		result.ArtifactURL = url
	}
	return result, nil
}

func (s *service) Simulate(ctx context.Context, p *model.Pipeline, inputs map[string]any) (*model.Execution, error) {
	start := time.Now()
	exec, err := s.engine.Execute(ctx, p, inputs)
	if exec != nil {
		telemetry.ObserveSimulation(string(exec.Status), time.Since(start))
	}
	return exec, err
}

func (s *service) GetExecution(ctx context.Context, id uuid.UUID) (*model.Execution, error) {
	return s.engine.GetExecutionByID(ctx, id)
}

func (s *service) ListExecutions(ctx context.Context) ([]*model.Execution, error) {
	return s.engine.ListExecutions(ctx)
}

func (s *service) DeleteExecution(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteExecution(ctx, id)
}

// Provenance returns the vertex/edge lists the visualizer renders.
func (s *service) Provenance(ctx context.Context, id uuid.UUID) ([]*model.Vertex, []*model.ProvEdge, error) {
	return s.store.GetProvenance(ctx, id)
}

func (s *service) SearchVertices(ctx context.Context, f storage.Filter) ([]*model.Vertex, error) {
	return s.store.SearchVertices(ctx, f)
}

func (s *service) Stats(ctx context.Context, executionID uuid.UUID) (*storage.Stats, error) {
	return s.store.Stats(ctx, executionID)
}

// Query forwards a raw traversal to the configured graph database.
func (s *service) Query(ctx context.Context, query string) (json.RawMessage, error) {
	if s.gremlin == nil {
		return nil, utils.Errorf("no gremlin endpoint configured")
	}
	return s.gremlin.Submit(ctx, query)
}

func (s *service) PublishEvent(ctx context.Context, topic string, payload map[string]any) error {
	return s.bus.Publish(topic, payload)
}

func (s *service) Close() error {
	if closer, ok := s.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
