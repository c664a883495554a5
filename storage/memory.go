package storage

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"

	"github.com/twingraph/twingraph/model"
)

// MemoryStore implements Store in-memory (for fallback/dev mode and tests).
type MemoryStore struct {
	mu       sync.Mutex
	execs    map[uuid.UUID]*model.Execution
	runs     map[uuid.UUID][]*model.NodeRun
	vertices map[uuid.UUID][]*model.Vertex
	edges    map[uuid.UUID][]*model.ProvEdge
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		execs:    make(map[uuid.UUID]*model.Execution),
		runs:     make(map[uuid.UUID][]*model.NodeRun),
		vertices: make(map[uuid.UUID][]*model.Vertex),
		edges:    make(map[uuid.UUID][]*model.ProvEdge),
	}
}

func (m *MemoryStore) SaveExecution(ctx context.Context, exec *model.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs[exec.ID] = exec
	return nil
}

func (m *MemoryStore) GetExecution(ctx context.Context, id uuid.UUID) (*model.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.execs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return exec, nil
}

func (m *MemoryStore) ListExecutions(ctx context.Context) ([]*model.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Execution, 0, len(m.execs))
	for _, exec := range m.execs {
		out = append(out, exec)
	}
	return out, nil
}

func (m *MemoryStore) DeleteExecution(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.execs, id)
	delete(m.runs, id)
	delete(m.vertices, id)
	delete(m.edges, id)
	return nil
}

func (m *MemoryStore) SaveNodeRun(ctx context.Context, run *model.NodeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Upsert by run id so status transitions replace the earlier record.
	for i, existing := range m.runs[run.ExecutionID] {
		if existing.ID == run.ID {
			m.runs[run.ExecutionID][i] = run
			return nil
		}
	}
	m.runs[run.ExecutionID] = append(m.runs[run.ExecutionID], run)
	return nil
}

func (m *MemoryStore) GetNodeRuns(ctx context.Context, executionID uuid.UUID) ([]*model.NodeRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[executionID], nil
}

func (m *MemoryStore) SaveVertex(ctx context.Context, v *model.Vertex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vertices[v.ExecutionID] = append(m.vertices[v.ExecutionID], v)
	return nil
}

func (m *MemoryStore) SaveProvEdge(ctx context.Context, e *model.ProvEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[e.ExecutionID] = append(m.edges[e.ExecutionID], e)
	return nil
}

func (m *MemoryStore) GetProvenance(ctx context.Context, executionID uuid.UUID) ([]*model.Vertex, []*model.ProvEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vertices[executionID], m.edges[executionID], nil
}

func (m *MemoryStore) SearchVertices(ctx context.Context, f Filter) ([]*model.Vertex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Vertex
	for execID, vs := range m.vertices {
		if f.ExecutionID != uuid.Nil && execID != f.ExecutionID {
			continue
		}
		for _, v := range vs {
			if !matches(v, f) {
				continue
			}
			out = append(out, v)
			if f.Limit > 0 && len(out) >= f.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func matches(v *model.Vertex, f Filter) bool {
	if f.Label != "" && v.Label != f.Label {
		return false
	}
	if f.Platform != "" && v.Platform != f.Platform {
		return false
	}
	if f.Status != "" && v.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && v.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

func (m *MemoryStore) Stats(ctx context.Context, executionID uuid.UUID) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &Stats{
		ExecutionID: executionID,
		ByPlatform:  map[string]int{},
		ByStatus:    map[string]int{},
	}
	for _, v := range m.vertices[executionID] {
		stats.Vertices++
		if v.Platform != "" {
			stats.ByPlatform[string(v.Platform)]++
		}
		stats.ByStatus[string(v.Status)]++
	}
	stats.Edges = len(m.edges[executionID])
	if exec, ok := m.execs[executionID]; ok && exec.EndedAt != nil {
		stats.WallTime = exec.EndedAt.Sub(exec.StartedAt)
	}
	return stats, nil
}
