package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/flowlattice/workflow-engine/services/engine"
	"github.com/flowlattice/workflow-engine/services/graph"
	"github.com/flowlattice/workflow-engine/services/registry"
	"github.com/flowlattice/workflow-engine/services/storage"
)

func newTestService() (*Service, *storage.MemoryStore) {
	reg := registry.New()
	reg.MustRegister("noop", func(ctx context.Context, s map[string]any) (map[string]any, error) {
		return s, nil
	})
	store := storage.NewMemory()
	eng := engine.New(reg)
	return New(store, eng, 10), store
}

func newTestRouter(svc *Service) *mux.Router {
	router := mux.NewRouter()
	svc.LoadRoutes(router)
	return router
}

func TestHandleCreateGraph(t *testing.T) {
	svc, _ := newTestService()
	router := newTestRouter(svc)

	body := `{
		"name": "sample",
		"nodes": [
			{"name": "start", "node_type": "START"},
			{"name": "step", "node_type": "FUNCTION", "tool_name": "noop"}
		],
		"edges": [{"from_node": "start", "to_node": "step"}],
		"entry_point": "start"
	}`
	req := httptest.NewRequest(http.MethodPost, "/graph/create", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["graph_id"] == nil {
		t.Fatal("expected graph_id in response")
	}
}

func TestHandleCreateGraph_InvalidStructure(t *testing.T) {
	svc, _ := newTestService()
	router := newTestRouter(svc)

	body := `{"name": "", "nodes": [], "edges": [], "entry_point": ""}`
	req := httptest.NewRequest(http.MethodPost, "/graph/create", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleRunGraph_EndToEnd(t *testing.T) {
	svc, store := newTestService()
	router := newTestRouter(svc)

	tool := "noop"
	g, err := graph.New("sample", nil,
		[]graph.NodeDefinition{
			{Name: "start", NodeType: graph.NodeStart},
			{Name: "step", NodeType: graph.NodeFunction, ToolName: &tool},
		},
		[]graph.EdgeDefinition{{FromNode: "start", ToNode: "step"}},
		"start",
	)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	if err := store.SaveGraph(context.Background(), g); err != nil {
		t.Fatalf("SaveGraph: %v", err)
	}

	body, _ := json.Marshal(map[string]any{
		"graph_id":      g.GraphID,
		"initial_state": map[string]any{"x": 1.0},
	})
	req := httptest.NewRequest(http.MethodPost, "/graph/run", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["status"] != "completed" {
		t.Fatalf("status = %v, want completed", resp["status"])
	}
	if resp["run_id"] == nil {
		t.Fatal("expected run_id in response")
	}
}

func TestHandleRunGraph_UsesConfiguredDefaultMaxIterations(t *testing.T) {
	reg := registry.New()
	reg.MustRegister("noop", func(ctx context.Context, s map[string]any) (map[string]any, error) {
		return s, nil
	})
	store := storage.NewMemory()
	eng := engine.New(reg)
	svc := New(store, eng, 2) // custom cap below the fallback of 10
	router := newTestRouter(svc)

	tool := "noop"
	cond := "true"
	g, err := graph.New("looping", nil,
		[]graph.NodeDefinition{
			{Name: "a", NodeType: graph.NodeFunction, ToolName: &tool},
			{Name: "b", NodeType: graph.NodeFunction, ToolName: &tool},
		},
		[]graph.EdgeDefinition{
			{FromNode: "a", ToNode: "b"},
			{FromNode: "b", ToNode: "a", Condition: &cond},
		},
		"a",
	)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	if err := store.SaveGraph(context.Background(), g); err != nil {
		t.Fatalf("SaveGraph: %v", err)
	}

	body, _ := json.Marshal(map[string]any{
		"graph_id":      g.GraphID,
		"initial_state": map[string]any{},
	})
	req := httptest.NewRequest(http.MethodPost, "/graph/run", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["status"] != "failed" {
		t.Fatalf("status = %v, want failed (run should hit the configured cap of 2)", resp["status"])
	}
	if resp["iterations_completed"].(float64) != 2 {
		t.Fatalf("iterations_completed = %v, want 2", resp["iterations_completed"])
	}
}

func TestHandleRunGraph_UnknownGraph(t *testing.T) {
	svc, _ := newTestService()
	router := newTestRouter(svc)

	body, _ := json.Marshal(map[string]any{
		"graph_id":      "550e8400-e29b-41d4-a716-446655440000",
		"initial_state": map[string]any{},
	})
	req := httptest.NewRequest(http.MethodPost, "/graph/run", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleGetRunState_NotFound(t *testing.T) {
	svc, _ := newTestService()
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/graph/state/550e8400-e29b-41d4-a716-446655440000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleListGraphs_Empty(t *testing.T) {
	svc, _ := newTestService()
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/graph/list", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["count"].(float64) != 0 {
		t.Fatalf("count = %v, want 0", resp["count"])
	}
}

func TestHandleHealth(t *testing.T) {
	svc, _ := newTestService()
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["storage"] != "connected" {
		t.Fatalf("storage = %v, want connected", resp["storage"])
	}
}
