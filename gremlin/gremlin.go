// Package gremlin is a thin HTTP client for Gremlin-server compatible
// graph databases (TinkerPop, Neptune). The simulator mirrors provenance
// into it after each run, and the query console submits raw traversals.
package gremlin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/twingraph/twingraph/config"
	"github.com/twingraph/twingraph/model"
)

const defaultTimeout = 10 * time.Second

// Client submits Gremlin traversals over the HTTP channel.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns nil when no endpoint is configured, which disables
// mirroring and the query surface.
func NewClient(cfg config.GremlinConfig) *Client {
	if cfg.Endpoint == "" {
		return nil
	}
	timeout := defaultTimeout
	if cfg.TimeoutS > 0 {
		timeout = time.Duration(cfg.TimeoutS) * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// response is the Gremlin-server HTTP channel envelope.
type response struct {
	Status struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Result struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
}

// Submit posts a raw traversal and returns the result data untouched.
func (c *Client) Submit(ctx context.Context, query string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"gremlin": query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gremlin request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gremlin server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var env response
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("gremlin response decode: %w", err)
	}
	if env.Status.Code != 0 && env.Status.Code != http.StatusOK {
		return nil, fmt.Errorf("gremlin query failed (%d): %s", env.Status.Code, env.Status.Message)
	}
	return env.Result.Data, nil
}

// MirrorExecution writes an execution's provenance vertices and edges as
// one traversal per record. The first failing mutation aborts the mirror.
func (c *Client) MirrorExecution(ctx context.Context, exec *model.Execution) error {
	for i := range exec.Vertices {
		if _, err := c.Submit(ctx, vertexTraversal(&exec.Vertices[i])); err != nil {
			return fmt.Errorf("mirror vertex %s: %w", exec.Vertices[i].Hash, err)
		}
	}
	for i := range exec.ProvEdges {
		if _, err := c.Submit(ctx, edgeTraversal(&exec.ProvEdges[i])); err != nil {
			return fmt.Errorf("mirror edge %s->%s: %w", exec.ProvEdges[i].FromHash, exec.ProvEdges[i].ToHash, err)
		}
	}
	return nil
}

// vertexTraversal upserts a provenance vertex keyed by content hash.
func vertexTraversal(v *model.Vertex) string {
	var b strings.Builder
	fmt.Fprintf(&b, "g.V().has('node','hash',%s).fold().coalesce(unfold(), addV('node').property('hash',%s))", gq(v.Hash), gq(v.Hash))
	fmt.Fprintf(&b, ".property('execution_id',%s)", gq(v.ExecutionID.String()))
	fmt.Fprintf(&b, ".property('label_name',%s)", gq(v.Label))
	fmt.Fprintf(&b, ".property('type',%s)", gq(string(v.Type)))
	if v.Platform != "" {
		fmt.Fprintf(&b, ".property('platform',%s)", gq(string(v.Platform)))
	}
	fmt.Fprintf(&b, ".property('status',%s)", gq(string(v.Status)))
	fmt.Fprintf(&b, ".property('iteration',%d)", v.Iteration)
	fmt.Fprintf(&b, ".property('timestamp',%s)", gq(v.Timestamp.UTC().Format(time.RFC3339)))
	if len(v.Outputs) > 0 {
		if blob, err := json.Marshal(v.Outputs); err == nil {
			fmt.Fprintf(&b, ".property('outputs',%s)", gq(string(blob)))
		}
	}
	return b.String()
}

// edgeTraversal links a vertex to one parent by hash.
func edgeTraversal(e *model.ProvEdge) string {
	return fmt.Sprintf(
		"g.V().has('node','hash',%s).as('a').V().has('node','hash',%s).coalesce(inE('parent').where(outV().as('a')), addE('parent').from('a'))",
		gq(e.FromHash), gq(e.ToHash),
	)
}

// gq quotes a string for inline use in a Groovy traversal.
func gq(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)
	return "'" + r.Replace(s) + "'"
}
