package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/flowlattice/workflow-engine/services/graph"
)

// MemoryStore is an in-process Storage backed by mutex-guarded maps.
// It is used for local development without a database and in tests
// that exercise the server and engine without a live Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	graphs map[uuid.UUID]*graph.GraphDefinition
	runs   map[uuid.UUID]*graph.Run
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		graphs: make(map[uuid.UUID]*graph.GraphDefinition),
		runs:   make(map[uuid.UUID]*graph.Run),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) SaveGraph(ctx context.Context, g *graph.GraphDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.graphs[g.GraphID]; exists {
		return fmt.Errorf("storage: graph %s already exists", g.GraphID)
	}
	cp := *g
	m.graphs[g.GraphID] = &cp
	return nil
}

func (m *MemoryStore) GetGraph(ctx context.Context, id uuid.UUID) (*graph.GraphDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.graphs[id]
	if !ok {
		return nil, fmt.Errorf("storage: graph %s not found", id)
	}
	cp := *g
	return &cp, nil
}

func (m *MemoryStore) ListGraphs(ctx context.Context) ([]*graph.GraphDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*graph.GraphDefinition, 0, len(m.graphs))
	for _, g := range m.graphs {
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteGraph(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.graphs[id]; !ok {
		return fmt.Errorf("storage: graph %s not found", id)
	}
	delete(m.graphs, id)
	return nil
}

func (m *MemoryStore) SaveRun(ctx context.Context, r *graph.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.runs[r.RunID] = &cp
	return nil
}

func (m *MemoryStore) UpdateRun(ctx context.Context, r *graph.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[r.RunID]; !ok {
		return fmt.Errorf("storage: run %s not found", r.RunID)
	}
	cp := *r
	m.runs[r.RunID] = &cp
	return nil
}

func (m *MemoryStore) GetRun(ctx context.Context, runID uuid.UUID) (*graph.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("storage: run %s not found", runID)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListRunsByGraph(ctx context.Context, graphID uuid.UUID, limit int) ([]*graph.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var out []*graph.Run
	for _, r := range m.runs {
		if r.GraphID == graphID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt == nil || out[j].StartedAt == nil {
			return false
		}
		return out[i].StartedAt.After(*out[j].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
