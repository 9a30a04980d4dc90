package graph

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New constructs a GraphDefinition, assigning a fresh graph_id and
// created_at, and validates it per the structural invariants: node
// names unique, entry_point exists, every edge endpoint exists. Tool
// existence is intentionally not checked here — the registry is
// mutable, so that check happens at run time.
func New(name string, description *string, nodes []NodeDefinition, edges []EdgeDefinition, entryPoint string) (*GraphDefinition, error) {
	g := &GraphDefinition{
		GraphID:     uuid.New(),
		Name:        name,
		Description: description,
		Nodes:       nodes,
		Edges:       edges,
		EntryPoint:  entryPoint,
		CreatedAt:   time.Now().UTC(),
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks the structural invariants of spec.md §3. It does not
// check that FUNCTION nodes reference a tool that currently exists in
// the registry; that is an execution-time concern.
func (g *GraphDefinition) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("graph: name is required")
	}
	if len(g.Nodes) == 0 {
		return fmt.Errorf("graph: must have at least one node")
	}

	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Name == "" {
			return fmt.Errorf("graph: node has blank name")
		}
		if seen[n.Name] {
			return fmt.Errorf("graph: duplicate node name %q", n.Name)
		}
		seen[n.Name] = true

		switch n.NodeType {
		case NodeFunction:
			if n.ToolName == nil || *n.ToolName == "" {
				return fmt.Errorf("graph: function node %q requires a tool_name", n.Name)
			}
		case NodeConditional, NodeStart, NodeEnd:
			if n.ToolName != nil && *n.ToolName != "" {
				return fmt.Errorf("graph: node %q of type %s must not specify a tool_name", n.Name, n.NodeType)
			}
		default:
			return fmt.Errorf("graph: node %q has unknown node_type %q", n.Name, n.NodeType)
		}
	}

	if g.EntryPoint == "" {
		return fmt.Errorf("graph: entry_point is required")
	}
	if !seen[g.EntryPoint] {
		return fmt.Errorf("graph: entry_point %q does not reference an existing node", g.EntryPoint)
	}

	for _, e := range g.Edges {
		if !seen[e.FromNode] {
			return fmt.Errorf("graph: edge references non-existent source node %q", e.FromNode)
		}
		if !seen[e.ToNode] {
			return fmt.Errorf("graph: edge references non-existent target node %q", e.ToNode)
		}
	}

	return nil
}
