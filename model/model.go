package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Pipeline mirrors the state of the visual canvas: typed nodes wired by
// typed control-flow edges.
type Pipeline struct {
	Name    string         `yaml:"name" json:"name"`
	Version string         `yaml:"version,omitempty" json:"version,omitempty"`
	Vars    map[string]any `yaml:"vars,omitempty" json:"vars,omitempty"`
	Nodes   []Node         `yaml:"nodes" json:"nodes"`
	Edges   []Edge         `yaml:"edges" json:"edges"`
}

type NodeType string

const (
	NodeStart       NodeType = "start"
	NodeComponent   NodeType = "component"
	NodeConditional NodeType = "conditional"
	NodeLoop        NodeType = "loop"
)

type Node struct {
	ID     string         `yaml:"id" json:"id"`
	Type   NodeType       `yaml:"type" json:"type"`
	Label  string         `yaml:"label,omitempty" json:"label,omitempty"`
	Source string         `yaml:"source,omitempty" json:"source,omitempty"`
	Config ComputeConfig  `yaml:"config,omitempty" json:"config,omitempty"`
	Inputs map[string]any `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	// Condition guards the outgoing conditional branches of a conditional
	// node; Iterations bounds a loop node's body replay.
	Condition  string `yaml:"condition,omitempty" json:"condition,omitempty"`
	Iterations int    `yaml:"iterations,omitempty" json:"iterations,omitempty"`
}

type EdgeType string

const (
	EdgeSequential  EdgeType = "sequential"
	EdgeConditional EdgeType = "conditional"
	EdgeLoop        EdgeType = "loop"
	EdgeParallel    EdgeType = "parallel"
)

type Edge struct {
	From string   `yaml:"from" json:"from"`
	To   string   `yaml:"to" json:"to"`
	Type EdgeType `yaml:"type,omitempty" json:"type,omitempty"`
	// Condition holds the branch value ("true"/"false" or a match
	// expression) for conditional edges.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// UnmarshalYAML accepts both the mapping form and the scalar shorthand
// "from -> to" used in hand-written pipeline files.
func (e *Edge) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parts := strings.Split(value.Value, "->")
		if len(parts) != 2 {
			return fmt.Errorf("invalid edge shorthand %q, want \"from -> to\"", value.Value)
		}
		e.From = strings.TrimSpace(parts[0])
		e.To = strings.TrimSpace(parts[1])
		e.Type = EdgeSequential
		return nil
	}
	type edgeAlias Edge // prevent recursion
	var raw edgeAlias
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*e = Edge(raw)
	if e.Type == "" {
		e.Type = EdgeSequential
	}
	return nil
}

// Platform identifies the compute environment a component node runs on.
type Platform string

const (
	PlatformLocal      Platform = "local"
	PlatformDocker     Platform = "docker"
	PlatformKubernetes Platform = "kubernetes"
	PlatformLambda     Platform = "lambda"
	PlatformBatch      Platform = "batch"
	PlatformCelery     Platform = "celery"
	PlatformSlurm      Platform = "slurm"
	PlatformSSH        Platform = "ssh"
)

// Platforms lists every supported compute environment.
var Platforms = []Platform{
	PlatformLocal, PlatformDocker, PlatformKubernetes, PlatformLambda,
	PlatformBatch, PlatformCelery, PlatformSlurm, PlatformSSH,
}

// ComputeConfig carries the per-node execution environment settings the
// canvas attaches to a component node. Only the fields relevant to the
// chosen platform need to be set.
type ComputeConfig struct {
	Platform  Platform `yaml:"platform,omitempty" json:"platform,omitempty"`
	Image     string   `yaml:"image,omitempty" json:"image,omitempty"`
	Namespace string   `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Queue     string   `yaml:"queue,omitempty" json:"queue,omitempty"`
	Partition string   `yaml:"partition,omitempty" json:"partition,omitempty"`
	Host      string   `yaml:"host,omitempty" json:"host,omitempty"`
	User      string   `yaml:"user,omitempty" json:"user,omitempty"`
	CPU       string   `yaml:"cpu,omitempty" json:"cpu,omitempty"`
	Memory    string   `yaml:"memory,omitempty" json:"memory,omitempty"`
	TimeoutS  int      `yaml:"timeout_s,omitempty" json:"timeout_s,omitempty"`
}

// Zero reports whether no configuration was set on the node.
func (c ComputeConfig) Zero() bool {
	return c == ComputeConfig{}
}

type Execution struct {
	ID           uuid.UUID      `json:"id"`
	PipelineName string         `json:"pipeline_name"`
	Inputs       map[string]any `json:"inputs"`
	Status       ExecStatus     `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	NodeRuns     []NodeRun      `json:"node_runs,omitempty"`
	Vertices     []Vertex       `json:"vertices,omitempty"`
	ProvEdges    []ProvEdge     `json:"prov_edges,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
}

type NodeRun struct {
	ID           uuid.UUID      `json:"id"`
	ExecutionID  uuid.UUID      `json:"execution_id"`
	NodeID       string         `json:"node_id"`
	Hash         string         `json:"hash"`
	ParentHashes []string       `json:"parent_hashes,omitempty"`
	Iteration    int            `json:"iteration,omitempty"`
	Platform     Platform       `json:"platform,omitempty"`
	Status       NodeStatus     `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	Outputs      map[string]any `json:"outputs,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Vertex is one provenance record: a single synthetic execution of a node.
// The visualizer renders these directly.
type Vertex struct {
	Hash        string         `json:"hash"`
	ExecutionID uuid.UUID      `json:"execution_id"`
	Label       string         `json:"label"`
	Type        NodeType       `json:"type"`
	Platform    Platform       `json:"platform,omitempty"`
	Status      NodeStatus     `json:"status"`
	Iteration   int            `json:"iteration,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Outputs     map[string]any `json:"outputs,omitempty"`
}

// ProvEdge links a vertex to one of its parents by content hash.
type ProvEdge struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	FromHash    string    `json:"from_hash"`
	ToHash      string    `json:"to_hash"`
	Label       string    `json:"label,omitempty"`
}

type ExecStatus string

type NodeStatus string

const (
	ExecPending   ExecStatus = "PENDING"
	ExecRunning   ExecStatus = "RUNNING"
	ExecSucceeded ExecStatus = "SUCCEEDED"
	ExecFailed    ExecStatus = "FAILED"

	NodePending   NodeStatus = "PENDING"
	NodeRunning   NodeStatus = "RUNNING"
	NodeSucceeded NodeStatus = "SUCCEEDED"
	NodeFailed    NodeStatus = "FAILED"
	NodeSkipped   NodeStatus = "SKIPPED"
)

// Node returns the node with the given id, or nil.
func (p *Pipeline) Node(id string) *Node {
	for i := range p.Nodes {
		if p.Nodes[i].ID == id {
			return &p.Nodes[i]
		}
	}
	return nil
}

// Start returns the pipeline's start node, or nil when absent.
func (p *Pipeline) Start() *Node {
	for i := range p.Nodes {
		if p.Nodes[i].Type == NodeStart {
			return &p.Nodes[i]
		}
	}
	return nil
}

// Components returns the component nodes in declaration order.
func (p *Pipeline) Components() []Node {
	var out []Node
	for _, n := range p.Nodes {
		if n.Type == NodeComponent {
			out = append(out, n)
		}
	}
	return out
}
