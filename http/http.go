// Package http exposes the pipeline service over plain net/http. The
// visual editor's frontend is the primary client; everything speaks JSON.
package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/twingraph/twingraph/api"
	"github.com/twingraph/twingraph/config"
	"github.com/twingraph/twingraph/dsl"
	"github.com/twingraph/twingraph/model"
	"github.com/twingraph/twingraph/storage"
	"github.com/twingraph/twingraph/telemetry"
	"github.com/twingraph/twingraph/utils"
)

// Server wraps the pipeline service with HTTP handlers.
type Server struct {
	svc api.PipelineService
	mux *http.ServeMux
}

// NewServer builds the routing table. Handlers are wrapped with the
// telemetry middleware.
func NewServer(svc api.PipelineService) *Server {
	s := &Server{svc: svc, mux: http.NewServeMux()}
	route := func(pattern string, h http.HandlerFunc) {
		s.mux.Handle(pattern, telemetry.WrapHandler(pattern, h))
	}
	route("GET /pipelines", s.listPipelines)
	route("POST /pipelines/validate", s.validatePipeline)
	route("POST /pipelines/generate", s.generatePipeline)
	route("POST /pipelines/graph", s.graphPipeline)
	route("POST /executions", s.simulate)
	route("GET /executions", s.listExecutions)
	route("GET /executions/{id}", s.getExecution)
	route("DELETE /executions/{id}", s.deleteExecution)
	route("GET /executions/{id}/provenance", s.executionProvenance)
	route("GET /executions/{id}/stats", s.executionStats)
	route("GET /vertices", s.searchVertices)
	route("POST /query", s.query)
	route("GET /healthz", s.healthz)
	s.mux.Handle("GET /metrics", telemetry.MetricsHandler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe loads config, assembles the service, and serves until the
// context is canceled.
func ListenAndServe(ctx context.Context, cfg *config.Config) error {
	svc, err := api.NewService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	host := cfg.HTTP.Host
	port := cfg.HTTP.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewServer(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	utils.Info("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// pipelineRequest accepts the three document shapes clients send: an
// inline pipeline, a raw YAML string, or the canvas JSON the editor holds.
type pipelineRequest struct {
	Pipeline *model.Pipeline `json:"pipeline,omitempty"`
	YAML     string          `json:"yaml,omitempty"`
	Canvas   map[string]any  `json:"canvas,omitempty"`
	Inputs   map[string]any  `json:"inputs,omitempty"`
}

func (pr *pipelineRequest) resolve() (*model.Pipeline, error) {
	switch {
	case pr.Canvas != nil:
		return dsl.FromCanvas(pr.Canvas)
	case pr.YAML != "":
		return dsl.ParseFromString(pr.YAML)
	case pr.Pipeline != nil:
		return pr.Pipeline, nil
	default:
		return nil, fmt.Errorf("request carries no pipeline, yaml, or canvas document")
	}
}

func decodePipelineRequest(r *http.Request) (*pipelineRequest, error) {
	var req pipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return &req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Error("response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) listPipelines(w http.ResponseWriter, r *http.Request) {
	names, err := s.svc.ListPipelines(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pipelines": names})
}

func (s *Server) validatePipeline(w http.ResponseWriter, r *http.Request) {
	req, err := decodePipelineRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := req.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.svc.ValidatePipeline(r.Context(), p); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) generatePipeline(w http.ResponseWriter, r *http.Request) {
	req, err := decodePipelineRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := req.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	store := r.URL.Query().Get("store") == "true"
	result, err := s.svc.GeneratePipeline(r.Context(), p, store)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) graphPipeline(w http.ResponseWriter, r *http.Request) {
	req, err := decodePipelineRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := req.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := s.svc.GraphPipeline(r.Context(), p, r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"graph": out})
}

func (s *Server) simulate(w http.ResponseWriter, r *http.Request) {
	req, err := decodePipelineRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := req.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	exec, err := s.svc.Simulate(r.Context(), p, req.Inputs)
	if err != nil {
		if exec == nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		// Partial failure still produced provenance worth returning.
		writeJSON(w, http.StatusUnprocessableEntity, exec)
		return
	}
	writeJSON(w, http.StatusCreated, exec)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := s.svc.ListExecutions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if execs == nil {
		execs = []*model.Execution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("id"))
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	exec, err := s.svc.GetExecution(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sql.ErrNoRows) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) deleteExecution(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.svc.DeleteExecution(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) executionProvenance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	vs, es, err := s.svc.Provenance(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if vs == nil {
		vs = []*model.Vertex{}
	}
	if es == nil {
		es = []*model.ProvEdge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"vertices": vs, "edges": es})
}

func (s *Server) executionStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stats, err := s.svc.Stats(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) searchVertices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.Filter{
		Label:    q.Get("label"),
		Platform: model.Platform(q.Get("platform")),
		Status:   model.NodeStatus(q.Get("status")),
	}
	raw := q.Get("execution_id")
	if raw == "" {
		raw = q.Get("execution")
	}
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		f.ExecutionID = id
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		f.Limit = limit
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		f.Since = since
	}
	vs, err := s.svc.SearchVertices(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if vs == nil {
		vs = []*model.Vertex{}
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("body must carry a query"))
		return
	}
	data, err := s.svc.Query(r.Context(), req.Query)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": data})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
