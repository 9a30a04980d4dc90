// Package engine is the graph execution scheduler: it walks a validated
// GraphDefinition from its entry point, dispatches each FUNCTION node's
// tool through a registry, selects successors by evaluating edge
// conditions, tracks loop re-entries, and terminates on a sink, an
// error, or the iteration safety cap (spec.md §4.2).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowlattice/workflow-engine/services/condition"
	"github.com/flowlattice/workflow-engine/services/graph"
	"github.com/flowlattice/workflow-engine/services/registry"
)

// defaultWorkerPoolSize bounds how many synchronous tools may run
// concurrently across every active run sharing this Engine, so one slow
// blocking tool cannot starve the others.
const defaultWorkerPoolSize = 32

// Engine executes graphs against a tool registry.
type Engine struct {
	registry *registry.Registry
	metrics  *Metrics
	workers  chan struct{}
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithMetrics attaches a Metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithWorkerPoolSize overrides the default concurrency cap for
// synchronous tool dispatch.
func WithWorkerPoolSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = make(chan struct{}, n)
		}
	}
}

// New builds an Engine that resolves FUNCTION node tools from reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		workers:  make(chan struct{}, defaultWorkerPoolSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs graph g against initialState until it reaches a sink, a
// node error, or maxIterations. It always returns a Run, even on
// failure — the caller is expected to inspect run.Status.
func (e *Engine) Execute(ctx context.Context, g *graph.GraphDefinition, initialState map[string]any, maxIterations int) *graph.Run {
	startedAt := time.Now().UTC()
	run := &graph.Run{
		RunID:       uuid.New(),
		GraphID:     g.GraphID,
		Status:      graph.StatusRunning,
		CurrentNode: ptr(g.EntryPoint),
		CurrentState: graph.State{
			Data:     graph.CloneData(initialState),
			Metadata: map[string]any{"graph_name": g.Name},
		},
		StartedAt:      &startedAt,
		IterationCount: 0,
		MaxIterations:  maxIterations,
	}

	slog.Info("starting graph execution", "graph_id", g.GraphID, "run_id", run.RunID, "graph_name", g.Name)

	defer func() {
		if r := recover(); r != nil {
			e.failRun(run, fmt.Sprintf("panic: %v", r))
		}
	}()

	nodeMap := make(map[string]graph.NodeDefinition, len(g.Nodes))
	for _, n := range g.Nodes {
		nodeMap[n.Name] = n
	}
	adjacency := buildAdjacency(g.Edges)
	visited := make(map[string]bool)

	currentNode := g.EntryPoint

	for {
		if ctx.Err() != nil {
			e.failRun(run, fmt.Sprintf("cancelled: %s", ctx.Err()))
			return run
		}

		if run.IterationCount >= run.MaxIterations {
			e.failRun(run, fmt.Sprintf("possible infinite loop: maximum iterations (%d) exceeded", run.MaxIterations))
			return run
		}

		node, ok := nodeMap[currentNode]
		if !ok {
			e.failRun(run, fmt.Sprintf("node %q not found in graph", currentNode))
			return run
		}
		run.CurrentNode = ptr(currentNode)

		log := e.executeNode(ctx, node, run.CurrentState.Data)
		run.ExecutionLogs = append(run.ExecutionLogs, log)

		if !log.Success {
			run.Status = graph.StatusFailed
			run.Error = log.Error
			stampCompleted(run)
			e.metrics.recordRun(string(graph.StatusFailed), run.IterationCount)
			slog.Error("node execution failed", "run_id", run.RunID, "node", node.Name, "error", *log.Error)
			return run
		}

		run.CurrentState.Data = log.OutputState
		visited[currentNode] = true

		next := selectNext(adjacency[currentNode], run.CurrentState.Data)

		if next != "" && visited[next] {
			run.IterationCount++
		}

		if next == "" {
			run.Status = graph.StatusCompleted
			stampCompleted(run)
			e.metrics.recordRun(string(graph.StatusCompleted), run.IterationCount)
			slog.Info("graph execution completed", "run_id", run.RunID, "nodes_executed", len(run.ExecutionLogs), "iterations", run.IterationCount)
			return run
		}

		currentNode = next
	}
}

func (e *Engine) failRun(run *graph.Run, errMsg string) {
	run.Status = graph.StatusFailed
	run.Error = &errMsg
	stampCompleted(run)
	e.metrics.recordRun(string(graph.StatusFailed), run.IterationCount)
}

func stampCompleted(run *graph.Run) {
	now := time.Now().UTC()
	run.CompletedAt = &now
}

// executeNode runs one node per spec.md §4.2.1: it snapshots the
// payload, dispatches by node_type, and always returns a log — success
// or failure — never an error, so the caller can append it
// unconditionally before deciding whether to halt the run.
func (e *Engine) executeNode(ctx context.Context, node graph.NodeDefinition, data map[string]any) graph.ExecutionLog {
	input := graph.CloneData(data)
	start := time.Now()

	output, err := e.dispatch(ctx, node, data)

	elapsed := time.Since(start)
	e.metrics.recordNode(string(node.NodeType), err == nil, elapsed)

	if err != nil {
		errText := err.Error()
		return graph.ExecutionLog{
			NodeName:        node.Name,
			Timestamp:       time.Now().UTC(),
			InputState:      input,
			OutputState:     input,
			ExecutionTimeMs: elapsed.Milliseconds(),
			Success:         false,
			Error:           &errText,
		}
	}

	return graph.ExecutionLog{
		NodeName:        node.Name,
		Timestamp:       time.Now().UTC(),
		InputState:      input,
		OutputState:     output,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Success:         true,
	}
}

func (e *Engine) dispatch(ctx context.Context, node graph.NodeDefinition, data map[string]any) (map[string]any, error) {
	switch node.NodeType {
	case graph.NodeFunction:
		if node.ToolName == nil || *node.ToolName == "" {
			return nil, fmt.Errorf("no tool configured for function node %q", node.Name)
		}
		return e.callTool(ctx, *node.ToolName, data)

	case graph.NodeConditional, graph.NodeStart, graph.NodeEnd:
		return data, nil

	default:
		return nil, fmt.Errorf("unknown node type %q", node.NodeType)
	}
}

// callTool resolves name in the registry and runs it. Async tools are
// awaited directly; synchronous tools are offloaded to the worker pool
// so a blocking call doesn't stall the caller's run loop (spec.md
// §4.2.1, §5).
func (e *Engine) callTool(ctx context.Context, name string, data map[string]any) (map[string]any, error) {
	fn, err := e.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("tool not found: %w", err)
	}
	kind, err := e.registry.Kind(name)
	if err != nil {
		return nil, fmt.Errorf("tool not found: %w", err)
	}

	if kind == registry.KindAsync {
		return fn(ctx, data)
	}

	type result struct {
		data map[string]any
		err  error
	}
	done := make(chan result, 1)

	select {
	case e.workers <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// If ctx is cancelled below, this goroutine is abandoned but keeps
	// running; it must not keep mutating the caller's live state map
	// after callTool has returned, so it works on a private copy.
	isolated := graph.CloneData(data)
	go func() {
		defer func() { <-e.workers }()
		out, callErr := fn(ctx, isolated)
		done <- result{data: out, err: callErr}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func buildAdjacency(edges []graph.EdgeDefinition) map[string][]graph.EdgeDefinition {
	adjacency := make(map[string][]graph.EdgeDefinition)
	for _, e := range edges {
		adjacency[e.FromNode] = append(adjacency[e.FromNode], e)
	}
	return adjacency
}

// selectNext implements spec.md §4.2.2: conditional edges are
// evaluated in declared order and the first truthy one wins;
// otherwise the first unconditional edge (declared anywhere) is the
// fallback; otherwise the node is terminal.
func selectNext(edges []graph.EdgeDefinition, data map[string]any) string {
	var unconditional []graph.EdgeDefinition

	for _, e := range edges {
		if e.Condition == nil {
			unconditional = append(unconditional, e)
			continue
		}
		if condition.Evaluate(*e.Condition, data) {
			return e.ToNode
		}
	}

	if len(unconditional) > 0 {
		return unconditional[0].ToNode
	}
	return ""
}

func ptr(s string) *string { return &s }
