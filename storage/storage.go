// Package storage persists executions, node runs, and the provenance
// vertex/edge lists the visualizer consumes. The in-memory store is the
// default; SQLite and Postgres are selected through config.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/twingraph/twingraph/model"
)

type Store interface {
	SaveExecution(ctx context.Context, exec *model.Execution) error
	GetExecution(ctx context.Context, id uuid.UUID) (*model.Execution, error)
	ListExecutions(ctx context.Context) ([]*model.Execution, error)
	DeleteExecution(ctx context.Context, id uuid.UUID) error

	SaveNodeRun(ctx context.Context, run *model.NodeRun) error
	GetNodeRuns(ctx context.Context, executionID uuid.UUID) ([]*model.NodeRun, error)

	SaveVertex(ctx context.Context, v *model.Vertex) error
	SaveProvEdge(ctx context.Context, e *model.ProvEdge) error
	// GetProvenance returns the recorded vertex and edge lists of one
	// execution, vertices in insertion order.
	GetProvenance(ctx context.Context, executionID uuid.UUID) ([]*model.Vertex, []*model.ProvEdge, error)

	SearchVertices(ctx context.Context, f Filter) ([]*model.Vertex, error)
	Stats(ctx context.Context, executionID uuid.UUID) (*Stats, error)
}

// Filter narrows a vertex search; zero fields match everything.
type Filter struct {
	ExecutionID uuid.UUID
	Label       string
	Platform    model.Platform
	Status      model.NodeStatus
	Since       time.Time
	Limit       int
}

// Stats summarizes one execution for the statistics widget.
type Stats struct {
	ExecutionID uuid.UUID      `json:"execution_id"`
	Vertices    int            `json:"vertices"`
	Edges       int            `json:"edges"`
	ByPlatform  map[string]int `json:"by_platform"`
	ByStatus    map[string]int `json:"by_status"`
	WallTime    time.Duration  `json:"wall_time_ns"`
	Extra       map[string]any `json:"extra,omitempty"`
}
