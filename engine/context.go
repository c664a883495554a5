package engine

import (
	"maps"
	"sync"
)

// execContext holds the mutable state of a running simulation: resolved
// content hashes and synthetic outputs per node. Concurrent wave workers
// share one instance, so all access goes through the mutex.
type execContext struct {
	mu      sync.Mutex
	inputs  map[string]any
	vars    map[string]any
	hashes  map[string]string
	outputs map[string]map[string]any
}

func newExecContext(inputs, vars map[string]any) *execContext {
	ec := &execContext{
		inputs:  map[string]any{},
		vars:    map[string]any{},
		hashes:  map[string]string{},
		outputs: map[string]map[string]any{},
	}
	maps.Copy(ec.inputs, inputs)
	maps.Copy(ec.vars, vars)
	return ec
}

func (ec *execContext) SetHash(id, hash string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.hashes[id] = hash
}

// HashesOf returns the recorded hashes of the given nodes, in order,
// omitting nodes that never ran.
func (ec *execContext) HashesOf(ids []string) []string {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	var out []string
	for _, id := range ids {
		if h, ok := ec.hashes[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

func (ec *execContext) SetOutput(id string, outputs map[string]any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.outputs[id] = outputs
}

func (ec *execContext) SetVar(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.vars[key] = value
}

// SnapshotInputs returns a copy safe to hand to templates.
func (ec *execContext) SnapshotInputs() map[string]any {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make(map[string]any, len(ec.inputs))
	maps.Copy(out, ec.inputs)
	return out
}

func (ec *execContext) SnapshotVars() map[string]any {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make(map[string]any, len(ec.vars))
	maps.Copy(out, ec.vars)
	return out
}

func (ec *execContext) SnapshotOutputs() map[string]any {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make(map[string]any, len(ec.outputs))
	for id, o := range ec.outputs {
		inner := make(map[string]any, len(o))
		maps.Copy(inner, o)
		out[id] = inner
	}
	return out
}
