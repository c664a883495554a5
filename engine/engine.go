// Package engine replays a pipeline's dependency graph as a synthetic
// execution: content hashes per node run, parent-hash propagation, and the
// provenance vertex/edge list the visualizer consumes.
package engine

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/twingraph/twingraph/dsl"
	"github.com/twingraph/twingraph/event"
	"github.com/twingraph/twingraph/graph"
	"github.com/twingraph/twingraph/model"
	"github.com/twingraph/twingraph/storage"
	"github.com/twingraph/twingraph/utils"
)

// Mirror forwards a finished execution's provenance to an external graph
// database. Mirror failures surface as warnings, never as execution errors.
type Mirror interface {
	MirrorExecution(ctx context.Context, exec *model.Execution) error
}

// Engine is the execution simulator. Dependencies are injected; the
// in-memory store and in-proc bus are the defaults.
type Engine struct {
	Store     storage.Store
	Bus       event.Bus
	Templater *dsl.Templater
	Mirror    Mirror
}

// NewEngine creates a new Engine with all dependencies injected.
func NewEngine(store storage.Store, bus event.Bus, templater *dsl.Templater) *Engine {
	return &Engine{
		Store:     store,
		Bus:       bus,
		Templater: templater,
	}
}

// NewDefaultEngine creates a new Engine with default dependencies
// (in-memory store, in-proc event bus, shared templater).
func NewDefaultEngine() *Engine {
	return NewEngine(storage.NewMemoryStore(), event.NewInProcBus(), dsl.NewTemplater())
}

// Execute replays the pipeline wave by wave. Nodes within a wave run
// concurrently; conditional gates and loop bodies are handled in their
// wave's turn. The returned Execution carries the full provenance lists
// even when the run fails partway.
func (e *Engine) Execute(ctx context.Context, p *model.Pipeline, inputs map[string]any) (*model.Execution, error) {
	if p == nil {
		return nil, utils.Errorf("nil pipeline")
	}
	if err := dsl.Validate(p); err != nil {
		return nil, fmt.Errorf("invalid pipeline %q: %w", p.Name, err)
	}
	g, err := graph.Build(p)
	if err != nil {
		return nil, err
	}
	order, err := g.Sort()
	if err != nil {
		return nil, err
	}

	exec := &model.Execution{
		ID:           uuid.New(),
		PipelineName: p.Name,
		Inputs:       inputs,
		Status:       model.ExecRunning,
		StartedAt:    time.Now(),
	}
	e.saveExec(ctx, exec)
	e.publish("execution.started", map[string]any{
		"execution_id": exec.ID.String(),
		"pipeline":     p.Name,
	})

	run := &execRun{
		engine:  e,
		p:       p,
		g:       g,
		exec:    exec,
		ec:      newExecContext(inputs, p.Vars),
		nested:  nestedNodes(p, g),
		skipped: map[string]bool{},
	}
	execErr := run.walk(ctx, order)

	status := model.ExecSucceeded
	if execErr != nil {
		status = model.ExecFailed
	}
	exec.Status = status
	exec.EndedAt = ptrTime(time.Now())
	e.saveExec(ctx, exec)

	if execErr == nil && e.Mirror != nil {
		if err := e.Mirror.MirrorExecution(ctx, exec); err != nil {
			utils.Warn("provenance mirror failed: %v", err)
			exec.Warnings = append(exec.Warnings, fmt.Sprintf("provenance mirror failed: %v", err))
			e.saveExec(ctx, exec)
		}
	}

	e.publish("execution.finished", map[string]any{
		"execution_id": exec.ID.String(),
		"pipeline":     p.Name,
		"status":       string(status),
	})
	return exec, execErr
}

// execRun holds the state of one Execute call.
type execRun struct {
	engine    *Engine
	p         *model.Pipeline
	g         *graph.Graph
	exec      *model.Execution
	ec        *execContext
	nested    map[string]bool // loop-body nodes, replayed by their loop
	skipped   map[string]bool
	startHash string
}

// nestedNodes collects every loop body so the wave walk does not run those
// nodes directly.
func nestedNodes(p *model.Pipeline, g *graph.Graph) map[string]bool {
	nested := map[string]bool{}
	for _, n := range p.Nodes {
		if n.Type != model.NodeLoop {
			continue
		}
		for _, id := range g.LoopBody(n.ID) {
			nested[id] = true
		}
	}
	return nested
}

func (r *execRun) walk(ctx context.Context, order []string) error {
	for _, wave := range r.g.ParallelGroups(order) {
		var components []*model.Node
		var gates []*model.Node
		var loops []*model.Node
		for _, id := range wave {
			if r.nested[id] {
				continue
			}
			node := r.p.Node(id)
			if r.propagateSkip(id) {
				r.recordSkip(ctx, node, nil)
				continue
			}
			switch node.Type {
			case model.NodeStart:
				r.runStart(ctx, node)
			case model.NodeComponent:
				components = append(components, node)
			case model.NodeConditional:
				gates = append(gates, node)
			case model.NodeLoop:
				loops = append(loops, node)
			}
		}

		if err := r.runComponents(ctx, components); err != nil {
			return err
		}
		for _, gate := range gates {
			if err := r.runConditional(ctx, gate); err != nil {
				return err
			}
		}
		for _, loop := range loops {
			if err := r.runLoop(ctx, loop); err != nil {
				return err
			}
		}
	}
	return nil
}

// propagateSkip reports whether a node is on an untaken branch: either
// marked directly by a conditional gate, or with every parent skipped.
func (r *execRun) propagateSkip(id string) bool {
	if r.skipped[id] {
		return true
	}
	parents := r.g.Parents(id)
	if len(parents) == 0 {
		return false
	}
	for _, parent := range parents {
		if !r.skipped[parent] {
			return false
		}
	}
	r.skipped[id] = true
	return true
}

func (r *execRun) runStart(ctx context.Context, node *model.Node) {
	hash := contentHash(node.ID, r.ec.SnapshotInputs(), nil, 0)
	r.ec.SetHash(node.ID, hash)
	r.startHash = hash
	r.appendVertex(ctx, &model.Vertex{
		Hash:        hash,
		ExecutionID: r.exec.ID,
		Label:       labelOf(node),
		Type:        node.Type,
		Status:      model.NodeSucceeded,
		Timestamp:   time.Now(),
	}, nil)
}

// runComponents executes one wave's component nodes concurrently.
func (r *execRun) runComponents(ctx context.Context, nodes []*model.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	var wg sync.WaitGroup
	errChan := make(chan error, len(nodes))
	for _, node := range nodes {
		wg.Add(1)
		go func(node *model.Node) {
			defer wg.Done()
			if err := r.runComponent(ctx, node, 0, nil); err != nil {
				errChan <- err
			}
		}(node)
	}
	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return err
		}
	}
	return nil
}

// runComponent replays one node. fallbackParents links nodes without graph
// parents (loop bodies, detached components) back into the provenance
// chain; when nil the start vertex is the fallback.
func (r *execRun) runComponent(ctx context.Context, node *model.Node, iteration int, fallbackParents []string) error {
	parents := r.g.Parents(node.ID)
	parentHashes := r.ec.HashesOf(parents)
	if len(parentHashes) == 0 {
		if fallbackParents != nil {
			parentHashes = fallbackParents
		} else if r.startHash != "" {
			parentHashes = []string{r.startHash}
		}
	}
	hash := contentHash(node.ID, node.Inputs, parentHashes, iteration)

	nrun := &model.NodeRun{
		ID:           uuid.New(),
		ExecutionID:  r.exec.ID,
		NodeID:       node.ID,
		Hash:         hash,
		ParentHashes: parentHashes,
		Iteration:    iteration,
		Platform:     platformOf(node),
		Status:       model.NodeRunning,
		StartedAt:    time.Now(),
	}
	r.saveNodeRun(ctx, nrun)

	outputs, err := r.renderOutputs(node, hash, iteration)
	if err != nil {
		nrun.Status = model.NodeFailed
		nrun.Error = err.Error()
		nrun.EndedAt = ptrTime(time.Now())
		r.saveNodeRun(ctx, nrun)
		r.appendVertex(ctx, r.vertexFor(node, hash, model.NodeFailed, iteration, nil), parentHashes)
		return utils.Errorf("node %s failed: %w", node.ID, err)
	}

	r.ec.SetHash(loopKey(node.ID, iteration), hash)
	// Downstream parent lookups resolve the plain id; on loop replays the
	// latest iteration wins.
	r.ec.SetHash(node.ID, hash)
	r.ec.SetOutput(node.ID, outputs)

	nrun.Status = model.NodeSucceeded
	nrun.Outputs = outputs
	nrun.EndedAt = ptrTime(time.Now())
	r.saveNodeRun(ctx, nrun)
	r.appendVertex(ctx, r.vertexFor(node, hash, model.NodeSucceeded, iteration, outputs), parentHashes)
	r.engine.publish("node.finished", map[string]any{
		"execution_id": r.exec.ID.String(),
		"node_id":      node.ID,
		"hash":         hash,
		"status":       string(model.NodeSucceeded),
	})
	return nil
}

// runConditional evaluates the gate and marks the untaken branch skipped.
func (r *execRun) runConditional(ctx context.Context, node *model.Node) error {
	result, err := r.evalCondition(node.Condition)
	if err != nil {
		return utils.Errorf("conditional node %s: %w", node.ID, err)
	}
	parents := r.g.Parents(node.ID)
	parentHashes := r.ec.HashesOf(parents)
	hash := contentHash(node.ID, map[string]any{"condition": node.Condition}, parentHashes, 0)
	r.ec.SetHash(node.ID, hash)
	r.appendVertex(ctx, r.vertexFor(node, hash, model.NodeSucceeded, 0, map[string]any{"result": result}), parentHashes)

	for _, e := range r.p.Edges {
		if e.From != node.ID || e.Type != model.EdgeConditional {
			continue
		}
		taken := e.Condition != "false"
		if taken != result {
			r.skipped[e.To] = true
		}
	}
	return nil
}

// runLoop replays the loop body the configured number of iterations,
// sequentially, hashing each iteration with its index.
func (r *execRun) runLoop(ctx context.Context, node *model.Node) error {
	parents := r.g.Parents(node.ID)
	parentHashes := r.ec.HashesOf(parents)
	hash := contentHash(node.ID, map[string]any{"iterations": node.Iterations}, parentHashes, 0)
	r.ec.SetHash(node.ID, hash)
	r.appendVertex(ctx, r.vertexFor(node, hash, model.NodeSucceeded, 0, nil), parentHashes)

	body := r.g.LoopBody(node.ID)
	for iteration := 0; iteration < node.Iterations; iteration++ {
		r.ec.SetVar("iteration", iteration)
		for _, id := range body {
			child := r.p.Node(id)
			if child.Type != model.NodeComponent {
				continue
			}
			if err := r.runComponent(ctx, child, iteration, []string{hash}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *execRun) recordSkip(ctx context.Context, node *model.Node, fallbackParents []string) {
	parents := r.g.Parents(node.ID)
	parentHashes := r.ec.HashesOf(parents)
	if len(parentHashes) == 0 && fallbackParents != nil {
		parentHashes = fallbackParents
	}
	hash := contentHash(node.ID, node.Inputs, parentHashes, 0)
	r.ec.SetHash(node.ID, hash)
	nrun := &model.NodeRun{
		ID:           uuid.New(),
		ExecutionID:  r.exec.ID,
		NodeID:       node.ID,
		Hash:         hash,
		ParentHashes: parentHashes,
		Platform:     platformOf(node),
		Status:       model.NodeSkipped,
		StartedAt:    time.Now(),
		EndedAt:      ptrTime(time.Now()),
	}
	r.saveNodeRun(ctx, nrun)
	// Skipped nodes get a vertex but no synthetic outputs.
	r.appendVertex(ctx, r.vertexFor(node, hash, model.NodeSkipped, 0, nil), parentHashes)

	// A skipped loop takes its whole body with it; the wave walk never
	// visits body nodes directly, so record them here.
	if node.Type == model.NodeLoop {
		for _, id := range r.g.LoopBody(node.ID) {
			r.skipped[id] = true
			r.recordSkip(ctx, r.p.Node(id), []string{hash})
		}
	}
}

// renderOutputs echoes the node's configured inputs through the templater
// so downstream {{ outputs.<node>.<key> }} references resolve.
func (r *execRun) renderOutputs(node *model.Node, hash string, iteration int) (map[string]any, error) {
	data := r.templateData()
	data["iteration"] = iteration
	rendered := make(map[string]any, len(node.Inputs)+1)
	for k, v := range node.Inputs {
		out, err := r.engine.Templater.RenderValue(v, data)
		if err != nil {
			return nil, fmt.Errorf("template error in input %q: %w", k, err)
		}
		rendered[k] = out
	}
	rendered["hash"] = hash
	return rendered, nil
}

// evalCondition renders the condition through a pongo2 if-block and checks
// which side fired.
func (r *execRun) evalCondition(cond string) (bool, error) {
	tmpl := "{% if " + cond + " %}1{% endif %}"
	out, err := r.engine.Templater.Render(tmpl, r.templateData())
	if err != nil {
		return false, fmt.Errorf("condition %q did not evaluate: %w", cond, err)
	}
	return out == "1", nil
}

func (r *execRun) templateData() map[string]any {
	inputs := r.ec.SnapshotInputs()
	vars := r.ec.SnapshotVars()
	outputs := r.ec.SnapshotOutputs()
	data := map[string]any{
		"inputs":  inputs,
		"vars":    vars,
		"outputs": outputs,
	}
	// Flatten for direct references like {{ epochs }} or {{ fetch.rows }}.
	maps.Copy(data, outputs)
	maps.Copy(data, vars)
	maps.Copy(data, inputs)
	return data
}

func (r *execRun) vertexFor(node *model.Node, hash string, status model.NodeStatus, iteration int, outputs map[string]any) *model.Vertex {
	return &model.Vertex{
		Hash:        hash,
		ExecutionID: r.exec.ID,
		Label:       labelOf(node),
		Type:        node.Type,
		Platform:    platformOf(node),
		Status:      status,
		Iteration:   iteration,
		Timestamp:   time.Now(),
		Outputs:     outputs,
	}
}

// appendVertex records the vertex plus one provenance edge per parent hash.
func (r *execRun) appendVertex(ctx context.Context, v *model.Vertex, parentHashes []string) {
	r.ec.mu.Lock()
	r.exec.Vertices = append(r.exec.Vertices, *v)
	r.ec.mu.Unlock()
	if err := r.engine.Store.SaveVertex(ctx, v); err != nil {
		utils.Error("SaveVertex failed: %v", err)
	}
	for _, parent := range parentHashes {
		edge := &model.ProvEdge{
			ExecutionID: r.exec.ID,
			FromHash:    parent,
			ToHash:      v.Hash,
		}
		r.ec.mu.Lock()
		r.exec.ProvEdges = append(r.exec.ProvEdges, *edge)
		r.ec.mu.Unlock()
		if err := r.engine.Store.SaveProvEdge(ctx, edge); err != nil {
			utils.Error("SaveProvEdge failed: %v", err)
		}
	}
}

func (r *execRun) saveNodeRun(ctx context.Context, nrun *model.NodeRun) {
	r.ec.mu.Lock()
	found := false
	for i := range r.exec.NodeRuns {
		if r.exec.NodeRuns[i].ID == nrun.ID {
			r.exec.NodeRuns[i] = *nrun
			found = true
			break
		}
	}
	if !found {
		r.exec.NodeRuns = append(r.exec.NodeRuns, *nrun)
	}
	r.ec.mu.Unlock()
	if err := r.engine.Store.SaveNodeRun(ctx, nrun); err != nil {
		utils.Error("SaveNodeRun failed: %v", err)
	}
}

// saveExec persists the execution record without its embedded slices; node
// runs and provenance live in their own tables and are rejoined on read.
func (e *Engine) saveExec(ctx context.Context, exec *model.Execution) {
	slim := *exec
	slim.NodeRuns = nil
	slim.Vertices = nil
	slim.ProvEdges = nil
	if err := e.Store.SaveExecution(ctx, &slim); err != nil {
		utils.Error("SaveExecution failed: %v", err)
	}
}

func (e *Engine) publish(topic string, payload map[string]any) {
	if e.Bus == nil {
		return
	}
	if err := e.Bus.Publish(topic, payload); err != nil {
		utils.Debug("publish %s failed: %v", topic, err)
	}
}

func labelOf(node *model.Node) string {
	if node.Label != "" {
		return node.Label
	}
	return node.ID
}

func platformOf(node *model.Node) model.Platform {
	if node.Type != model.NodeComponent {
		return ""
	}
	if node.Config.Platform == "" {
		return model.PlatformLocal
	}
	return node.Config.Platform
}

func loopKey(id string, iteration int) string {
	if iteration == 0 {
		return id
	}
	return fmt.Sprintf("%s#%d", id, iteration)
}

// Helper to get pointer to time.Time.
func ptrTime(t time.Time) *time.Time {
	return &t
}

// ListExecutions returns all recorded executions.
func (e *Engine) ListExecutions(ctx context.Context) ([]*model.Execution, error) {
	return e.Store.ListExecutions(ctx)
}

// GetExecutionByID returns an execution with its node runs and provenance
// attached.
func (e *Engine) GetExecutionByID(ctx context.Context, id uuid.UUID) (*model.Execution, error) {
	exec, err := e.Store.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	full := *exec
	if runs, err := e.Store.GetNodeRuns(ctx, id); err == nil {
		full.NodeRuns = nil
		for _, nr := range runs {
			full.NodeRuns = append(full.NodeRuns, *nr)
		}
	}
	if vs, es, err := e.Store.GetProvenance(ctx, id); err == nil {
		full.Vertices, full.ProvEdges = nil, nil
		for _, v := range vs {
			full.Vertices = append(full.Vertices, *v)
		}
		for _, pe := range es {
			full.ProvEdges = append(full.ProvEdges, *pe)
		}
	}
	return &full, nil
}
