// Package graph holds the core data model for workflow graphs: nodes,
// edges, the shared state payload, and the record of a single run.
//
// Everything here is a value type. A GraphDefinition is immutable after
// New returns it; the engine reads it but never mutates it. A Run owns
// its execution logs and its current state exclusively.
package graph

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NodeType is the kind of a graph node.
type NodeType string

const (
	NodeFunction    NodeType = "FUNCTION"
	NodeConditional NodeType = "CONDITIONAL"
	NodeStart       NodeType = "START"
	NodeEnd         NodeType = "END"
)

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	StatusPending   RunStatus = "PENDING"
	StatusRunning   RunStatus = "RUNNING"
	StatusCompleted RunStatus = "COMPLETED"
	StatusFailed    RunStatus = "FAILED"
)

// State is the payload threaded through node executions: Data is what
// tools read and write, Metadata is reserved for engine annotations
// (e.g. graph_name) and is not expected to be read by tools.
type State struct {
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata"`
}

// NewState wraps data with empty metadata.
func NewState(data map[string]any) State {
	if data == nil {
		data = map[string]any{}
	}
	return State{Data: data, Metadata: map[string]any{}}
}

// CloneData deep-copies Data via a JSON round-trip. This is the cheapest
// correct way to snapshot an arbitrary JSON-shaped map[string]any tree in
// Go without hand-rolling a recursive copier for every value kind the
// payload might contain.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		// Payload values are expected to be JSON-compatible; if marshaling
		// fails there is nothing sound to return but an empty copy.
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// NodeDefinition is a vertex in the workflow graph.
type NodeDefinition struct {
	Name     string         `json:"name"`
	NodeType NodeType       `json:"node_type"`
	ToolName *string        `json:"tool_name,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
}

// EdgeDefinition is a directed connection between two node names,
// optionally guarded by a boolean Condition in the condition package's
// expression dialect.
type EdgeDefinition struct {
	FromNode  string  `json:"from_node"`
	ToNode    string  `json:"to_node"`
	Condition *string `json:"condition,omitempty"`
	Label     *string `json:"label,omitempty"`
}

// GraphDefinition is a complete, named workflow graph.
type GraphDefinition struct {
	GraphID     uuid.UUID        `json:"graph_id"`
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	Nodes       []NodeDefinition `json:"nodes"`
	Edges       []EdgeDefinition `json:"edges"`
	EntryPoint  string           `json:"entry_point"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ExecutionLog is the per-node record of one execution step.
type ExecutionLog struct {
	NodeName        string         `json:"node_name"`
	Timestamp       time.Time      `json:"timestamp"`
	InputState      map[string]any `json:"input_state"`
	OutputState     map[string]any `json:"output_state"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	Success         bool           `json:"success"`
	Error           *string        `json:"error,omitempty"`
}

// Run is one execution of one graph from entry to termination.
type Run struct {
	RunID          uuid.UUID      `json:"run_id"`
	GraphID        uuid.UUID      `json:"graph_id"`
	Status         RunStatus      `json:"status"`
	CurrentNode    *string        `json:"current_node,omitempty"`
	CurrentState   State          `json:"current_state"`
	ExecutionLogs  []ExecutionLog `json:"execution_logs"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	Error          *string        `json:"error,omitempty"`
	IterationCount int            `json:"iteration_count"`
	MaxIterations  int            `json:"max_iterations"`
}
