package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/twingraph/twingraph/model"
)

// PostgresStore implements Store using PostgreSQL as the backend.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	sqlStmt := `
CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	pipeline_name TEXT,
	inputs JSONB,
	status TEXT,
	started_at BIGINT,
	ended_at BIGINT,
	warnings JSONB
);
CREATE TABLE IF NOT EXISTS node_runs (
	id TEXT PRIMARY KEY,
	execution_id TEXT,
	node_id TEXT,
	hash TEXT,
	parent_hashes JSONB,
	iteration INTEGER,
	platform TEXT,
	status TEXT,
	started_at BIGINT,
	ended_at BIGINT,
	outputs JSONB,
	error TEXT
);
CREATE TABLE IF NOT EXISTS vertices (
	seq BIGSERIAL PRIMARY KEY,
	hash TEXT,
	execution_id TEXT,
	label TEXT,
	type TEXT,
	platform TEXT,
	status TEXT,
	iteration INTEGER,
	ts BIGINT,
	outputs JSONB
);
CREATE TABLE IF NOT EXISTS prov_edges (
	execution_id TEXT,
	from_hash TEXT,
	to_hash TEXT,
	label TEXT
);
`
	if _, err := db.Exec(sqlStmt); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveExecution(ctx context.Context, exec *model.Execution) error {
	inputs, err := json.Marshal(exec.Inputs)
	if err != nil {
		return err
	}
	warnings, err := json.Marshal(exec.Warnings)
	if err != nil {
		return err
	}
	var endedAt any
	if exec.EndedAt != nil {
		endedAt = exec.EndedAt.Unix()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO executions (id, pipeline_name, inputs, status, started_at, ended_at, warnings)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT(id) DO UPDATE SET pipeline_name=excluded.pipeline_name, inputs=excluded.inputs, status=excluded.status, started_at=excluded.started_at, ended_at=excluded.ended_at, warnings=excluded.warnings
`, exec.ID.String(), exec.PipelineName, inputs, exec.Status, exec.StartedAt.Unix(), endedAt, warnings)
	return err
}

func (s *PostgresStore) GetExecution(ctx context.Context, id uuid.UUID) (*model.Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, pipeline_name, inputs, status, started_at, ended_at, warnings FROM executions WHERE id=$1`, id.String())
	return scanExecution(row)
}

func (s *PostgresStore) ListExecutions(ctx context.Context) ([]*model.Execution, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, pipeline_name, inputs, status, started_at, ended_at, warnings FROM executions ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var execs []*model.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			continue
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func (s *PostgresStore) DeleteExecution(ctx context.Context, id uuid.UUID) error {
	for _, stmt := range []string{
		`DELETE FROM node_runs WHERE execution_id=$1`,
		`DELETE FROM vertices WHERE execution_id=$1`,
		`DELETE FROM prov_edges WHERE execution_id=$1`,
		`DELETE FROM executions WHERE id=$1`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt, id.String()); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) SaveNodeRun(ctx context.Context, run *model.NodeRun) error {
	parents, err := json.Marshal(run.ParentHashes)
	if err != nil {
		return err
	}
	outputs, err := json.Marshal(run.Outputs)
	if err != nil {
		return err
	}
	var endedAt any
	if run.EndedAt != nil {
		endedAt = run.EndedAt.Unix()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO node_runs (id, execution_id, node_id, hash, parent_hashes, iteration, platform, status, started_at, ended_at, outputs, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT(id) DO UPDATE SET hash=excluded.hash, parent_hashes=excluded.parent_hashes, status=excluded.status, ended_at=excluded.ended_at, outputs=excluded.outputs, error=excluded.error
`, run.ID.String(), run.ExecutionID.String(), run.NodeID, run.Hash, parents, run.Iteration, run.Platform, run.Status, run.StartedAt.Unix(), endedAt, outputs, run.Error)
	return err
}

func (s *PostgresStore) GetNodeRuns(ctx context.Context, executionID uuid.UUID) ([]*model.NodeRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, execution_id, node_id, hash, parent_hashes, iteration, platform, status, started_at, ended_at, outputs, error FROM node_runs WHERE execution_id=$1`, executionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []*model.NodeRun
	for rows.Next() {
		var run model.NodeRun
		var idStr, execIDStr string
		var parents, outputs []byte
		var startedAt int64
		var endedAt sql.NullInt64
		if err := rows.Scan(&idStr, &execIDStr, &run.NodeID, &run.Hash, &parents, &run.Iteration, &run.Platform, &run.Status, &startedAt, &endedAt, &outputs, &run.Error); err != nil {
			continue
		}
		if id, err := uuid.Parse(idStr); err == nil {
			run.ID = id
		}
		if id, err := uuid.Parse(execIDStr); err == nil {
			run.ExecutionID = id
		}
		if err := json.Unmarshal(parents, &run.ParentHashes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(outputs, &run.Outputs); err != nil {
			return nil, err
		}
		run.StartedAt = time.Unix(startedAt, 0)
		if endedAt.Valid {
			t := time.Unix(endedAt.Int64, 0)
			run.EndedAt = &t
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) SaveVertex(ctx context.Context, v *model.Vertex) error {
	outputs, err := json.Marshal(v.Outputs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO vertices (hash, execution_id, label, type, platform, status, iteration, ts, outputs)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, v.Hash, v.ExecutionID.String(), v.Label, v.Type, v.Platform, v.Status, v.Iteration, v.Timestamp.Unix(), outputs)
	return err
}

func (s *PostgresStore) SaveProvEdge(ctx context.Context, e *model.ProvEdge) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO prov_edges (execution_id, from_hash, to_hash, label)
VALUES ($1, $2, $3, $4)
`, e.ExecutionID.String(), e.FromHash, e.ToHash, e.Label)
	return err
}

func (s *PostgresStore) GetProvenance(ctx context.Context, executionID uuid.UUID) ([]*model.Vertex, []*model.ProvEdge, error) {
	vrows, err := s.db.QueryContext(ctx, `SELECT hash, execution_id, label, type, platform, status, iteration, ts, outputs FROM vertices WHERE execution_id=$1 ORDER BY seq`, executionID.String())
	if err != nil {
		return nil, nil, err
	}
	defer vrows.Close()
	var vertices []*model.Vertex
	for vrows.Next() {
		v, err := scanVertex(vrows)
		if err != nil {
			continue
		}
		vertices = append(vertices, v)
	}
	erows, err := s.db.QueryContext(ctx, `SELECT execution_id, from_hash, to_hash, label FROM prov_edges WHERE execution_id=$1`, executionID.String())
	if err != nil {
		return nil, nil, err
	}
	defer erows.Close()
	var edges []*model.ProvEdge
	for erows.Next() {
		var e model.ProvEdge
		var execIDStr string
		if err := erows.Scan(&execIDStr, &e.FromHash, &e.ToHash, &e.Label); err != nil {
			continue
		}
		if id, err := uuid.Parse(execIDStr); err == nil {
			e.ExecutionID = id
		}
		edges = append(edges, &e)
	}
	return vertices, edges, nil
}

func (s *PostgresStore) SearchVertices(ctx context.Context, f Filter) ([]*model.Vertex, error) {
	query := `SELECT hash, execution_id, label, type, platform, status, iteration, ts, outputs FROM vertices WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}
	if f.ExecutionID != uuid.Nil {
		query += ` AND execution_id=` + arg(f.ExecutionID.String())
	}
	if f.Label != "" {
		query += ` AND label=` + arg(f.Label)
	}
	if f.Platform != "" {
		query += ` AND platform=` + arg(string(f.Platform))
	}
	if f.Status != "" {
		query += ` AND status=` + arg(string(f.Status))
	}
	if !f.Since.IsZero() {
		query += ` AND ts>=` + arg(f.Since.Unix())
	}
	query += ` ORDER BY seq`
	if f.Limit > 0 {
		query += ` LIMIT ` + arg(f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Vertex
	for rows.Next() {
		v, err := scanVertex(rows)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context, executionID uuid.UUID) (*Stats, error) {
	stats := &Stats{
		ExecutionID: executionID,
		ByPlatform:  map[string]int{},
		ByStatus:    map[string]int{},
	}
	rows, err := s.db.QueryContext(ctx, `SELECT platform, status FROM vertices WHERE execution_id=$1`, executionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var platform, status string
		if err := rows.Scan(&platform, &status); err != nil {
			continue
		}
		stats.Vertices++
		if platform != "" {
			stats.ByPlatform[platform]++
		}
		stats.ByStatus[status]++
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prov_edges WHERE execution_id=$1`, executionID.String()).Scan(&stats.Edges); err != nil {
		return nil, err
	}
	var startedAt int64
	var endedAt sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT started_at, ended_at FROM executions WHERE id=$1`, executionID.String()).Scan(&startedAt, &endedAt)
	if err == nil && endedAt.Valid {
		stats.WallTime = time.Unix(endedAt.Int64, 0).Sub(time.Unix(startedAt, 0))
	}
	return stats, nil
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// Close closes the underlying SQL database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
