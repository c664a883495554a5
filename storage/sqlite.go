package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/twingraph/twingraph/model"
	"github.com/twingraph/twingraph/utils"
)

// SqliteStore implements Store using SQLite as the backend.
type SqliteStore struct {
	db *sql.DB
}

var _ Store = (*SqliteStore)(nil)

func NewSqliteStore(dsn string) (*SqliteStore, error) {
	// Only create parent directories if not using in-memory SQLite (":memory:").
	if dsn != ":memory:" && dsn != "" {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, utils.Errorf("failed to create db directory %q: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqlStmt := `
CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	pipeline_name TEXT,
	inputs JSON,
	status TEXT,
	started_at INTEGER,
	ended_at INTEGER,
	warnings JSON
);
CREATE TABLE IF NOT EXISTS node_runs (
	id TEXT PRIMARY KEY,
	execution_id TEXT,
	node_id TEXT,
	hash TEXT,
	parent_hashes JSON,
	iteration INTEGER,
	platform TEXT,
	status TEXT,
	started_at INTEGER,
	ended_at INTEGER,
	outputs JSON,
	error TEXT
);
CREATE TABLE IF NOT EXISTS vertices (
	hash TEXT,
	execution_id TEXT,
	label TEXT,
	type TEXT,
	platform TEXT,
	status TEXT,
	iteration INTEGER,
	ts INTEGER,
	outputs JSON,
	seq INTEGER PRIMARY KEY AUTOINCREMENT
);
CREATE TABLE IF NOT EXISTS prov_edges (
	execution_id TEXT,
	from_hash TEXT,
	to_hash TEXT,
	label TEXT
);
`
	_, err = db.Exec(sqlStmt)
	if err != nil {
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) SaveExecution(ctx context.Context, exec *model.Execution) error {
	inputs, err := json.Marshal(exec.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal execution inputs: %w", err)
	}
	warnings, err := json.Marshal(exec.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal execution warnings: %w", err)
	}
	var endedAt any
	if exec.EndedAt != nil {
		endedAt = exec.EndedAt.Unix()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO executions (id, pipeline_name, inputs, status, started_at, ended_at, warnings)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET pipeline_name=excluded.pipeline_name, inputs=excluded.inputs, status=excluded.status, started_at=excluded.started_at, ended_at=excluded.ended_at, warnings=excluded.warnings
`, exec.ID.String(), exec.PipelineName, inputs, exec.Status, exec.StartedAt.Unix(), endedAt, warnings)
	return err
}

func (s *SqliteStore) GetExecution(ctx context.Context, id uuid.UUID) (*model.Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, pipeline_name, inputs, status, started_at, ended_at, warnings FROM executions WHERE id=?`, id.String())
	return scanExecution(row)
}

func (s *SqliteStore) ListExecutions(ctx context.Context) ([]*model.Execution, error) {
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*model.Execution, error) {
	var exec model.Execution
	var idStr string
	var inputs, warnings []byte
	var startedAt int64
	var endedAt sql.NullInt64
	if err := row.Scan(&idStr, &exec.PipelineName, &inputs, &exec.Status, &startedAt, &endedAt, &warnings); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	exec.ID = id
	if err := json.Unmarshal(inputs, &exec.Inputs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(warnings, &exec.Warnings); err != nil {
		return nil, err
	}
	exec.StartedAt = time.Unix(startedAt, 0)
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0)
		exec.EndedAt = &t
	}
	return &exec, nil
}

func (s *SqliteStore) DeleteExecution(ctx context.Context, id uuid.UUID) error {
	for _, stmt := range []string{
		`DELETE FROM node_runs WHERE execution_id=?`,
		`DELETE FROM vertices WHERE execution_id=?`,
		`DELETE FROM prov_edges WHERE execution_id=?`,
		`DELETE FROM executions WHERE id=?`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt, id.String()); err != nil {
			return err
		}
	}
	return nil
}

func (s *SqliteStore) SaveNodeRun(ctx context.Context, run *model.NodeRun) error {
	parents, err := json.Marshal(run.ParentHashes)
	if err != nil {
		return err
	}
	outputs, err := json.Marshal(run.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal node run outputs: %w", err)
	}
	var endedAt any
	if run.EndedAt != nil {
		endedAt = run.EndedAt.Unix()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO node_runs (id, execution_id, node_id, hash, parent_hashes, iteration, platform, status, started_at, ended_at, outputs, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET hash=excluded.hash, parent_hashes=excluded.parent_hashes, status=excluded.status, ended_at=excluded.ended_at, outputs=excluded.outputs, error=excluded.error
`, run.ID.String(), run.ExecutionID.String(), run.NodeID, run.Hash, parents, run.Iteration, run.Platform, run.Status, run.StartedAt.Unix(), endedAt, outputs, run.Error)
	return err
}

func (s *SqliteStore) GetNodeRuns(ctx context.Context, executionID uuid.UUID) ([]*model.NodeRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, execution_id, node_id, hash, parent_hashes, iteration, platform, status, started_at, ended_at, outputs, error FROM node_runs WHERE execution_id=?`, executionID.String())
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

func (s *SqliteStore) SaveVertex(ctx context.Context, v *model.Vertex) error {
	outputs, err := json.Marshal(v.Outputs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO vertices (hash, execution_id, label, type, platform, status, iteration, ts, outputs)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, v.Hash, v.ExecutionID.String(), v.Label, v.Type, v.Platform, v.Status, v.Iteration, v.Timestamp.Unix(), outputs)
	return err
}

func (s *SqliteStore) SaveProvEdge(ctx context.Context, e *model.ProvEdge) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO prov_edges (execution_id, from_hash, to_hash, label)
VALUES (?, ?, ?, ?)
`, e.ExecutionID.String(), e.FromHash, e.ToHash, e.Label)
	return err
}

func (s *SqliteStore) GetProvenance(ctx context.Context, executionID uuid.UUID) ([]*model.Vertex, []*model.ProvEdge, error) {
	vrows, err := s.db.QueryContext(ctx, `SELECT hash, execution_id, label, type, platform, status, iteration, ts, outputs FROM vertices WHERE execution_id=? ORDER BY seq`, executionID.String())
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
	erows, err := s.db.QueryContext(ctx, `SELECT execution_id, from_hash, to_hash, label FROM prov_edges WHERE execution_id=?`, executionID.String())
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

func scanVertex(rows *sql.Rows) (*model.Vertex, error) {
	var v model.Vertex
	var execIDStr string
	var ts int64
	var outputs []byte
	if err := rows.Scan(&v.Hash, &execIDStr, &v.Label, &v.Type, &v.Platform, &v.Status, &v.Iteration, &ts, &outputs); err != nil {
		return nil, err
	}
	if id, err := uuid.Parse(execIDStr); err == nil {
		v.ExecutionID = id
	}
	v.Timestamp = time.Unix(ts, 0)
	if err := json.Unmarshal(outputs, &v.Outputs); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *SqliteStore) SearchVertices(ctx context.Context, f Filter) ([]*model.Vertex, error) {
	query := `SELECT hash, execution_id, label, type, platform, status, iteration, ts, outputs FROM vertices WHERE 1=1`
	var args []any
	if f.ExecutionID != uuid.Nil {
		query += ` AND execution_id=?`
		args = append(args, f.ExecutionID.String())
	}
	if f.Label != "" {
		query += ` AND label=?`
		args = append(args, f.Label)
	}
	if f.Platform != "" {
		query += ` AND platform=?`
		args = append(args, string(f.Platform))
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		query += ` AND ts>=?`
		args = append(args, f.Since.Unix())
	}
	query += ` ORDER BY seq`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
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

func (s *SqliteStore) Stats(ctx context.Context, executionID uuid.UUID) (*Stats, error) {
	stats := &Stats{
		ExecutionID: executionID,
		ByPlatform:  map[string]int{},
		ByStatus:    map[string]int{},
	}
	rows, err := s.db.QueryContext(ctx, `SELECT platform, status FROM vertices WHERE execution_id=?`, executionID.String())
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
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prov_edges WHERE execution_id=?`, executionID.String()).Scan(&stats.Edges); err != nil {
		return nil, err
	}
	var startedAt int64
	var endedAt sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT started_at, ended_at FROM executions WHERE id=?`, executionID.String()).Scan(&startedAt, &endedAt)
	if err == nil && endedAt.Valid {
		stats.WallTime = time.Unix(endedAt.Int64, 0).Sub(time.Unix(startedAt, 0))
	}
	return stats, nil
}

// Close closes the underlying SQL database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}
