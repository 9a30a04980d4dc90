package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/flowlattice/workflow-engine/services/graph"
)

// maxRequestBody limits request bodies to prevent abuse.
const maxRequestBody = 1 << 20 // 1MB

type createGraphRequest struct {
	Name        string                 `json:"name"`
	Description *string                `json:"description"`
	Nodes       []graph.NodeDefinition `json:"nodes"`
	Edges       []graph.EdgeDefinition `json:"edges"`
	EntryPoint  string                 `json:"entry_point"`
}

// HandleCreateGraph validates and persists a new graph definition.
func (s *Service) HandleCreateGraph(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req createGraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("failed to decode create-graph body", "requestId", rid, "error", err)
		writeErrorJSON(w, "INVALID_BODY", "invalid request body", http.StatusBadRequest)
		return
	}

	g, err := graph.New(req.Name, req.Description, req.Nodes, req.Edges, req.EntryPoint)
	if err != nil {
		slog.Warn("graph structurally invalid", "requestId", rid, "error", err)
		writeErrorJSON(w, "INVALID_GRAPH", err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.storage.SaveGraph(r.Context(), g); err != nil {
		slog.Error("failed to save graph", "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"graph_id": g.GraphID,
		"message":  "graph created",
	})
}

type runGraphRequest struct {
	GraphID       uuid.UUID      `json:"graph_id"`
	InitialState  map[string]any `json:"initial_state"`
	MaxIterations *int           `json:"max_iterations"`
}

// HandleRunGraph loads a graph, executes it synchronously to
// termination, and returns the finished run (spec.md §6: the request
// blocks for the duration of the workflow).
func (s *Service) HandleRunGraph(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req runGraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("failed to decode run-graph body", "requestId", rid, "error", err)
		writeErrorJSON(w, "INVALID_BODY", "invalid request body", http.StatusBadRequest)
		return
	}

	g, err := s.storage.GetGraph(r.Context(), req.GraphID)
	if err != nil {
		slog.Warn("graph not found for run", "graph_id", req.GraphID, "requestId", rid, "error", err)
		writeErrorJSON(w, "NOT_FOUND", "graph not found", http.StatusNotFound)
		return
	}

	maxIterations := s.maxIterations
	if req.MaxIterations != nil && *req.MaxIterations > 0 {
		maxIterations = *req.MaxIterations
	}

	start := time.Now()
	run := s.engine.Execute(r.Context(), g, req.InitialState, maxIterations)
	totalMs := time.Since(start).Milliseconds()

	if err := s.storage.SaveRun(r.Context(), run); err != nil {
		slog.Error("failed to save run", "run_id", run.RunID, "requestId", rid, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":                 run.RunID,
		"status":                 wireStatus(run.Status),
		"final_state":            run.CurrentState.Data,
		"execution_logs":         run.ExecutionLogs,
		"total_execution_time_ms": totalMs,
		"iterations_completed":   run.IterationCount,
	})
}

// HandleGetRunState returns the persisted state of a single run.
func (s *Service) HandleGetRunState(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	idStr := mux.Vars(r)["run_id"]

	runID, err := uuid.Parse(idStr)
	if err != nil {
		slog.Warn("invalid run id", "id", idStr, "requestId", rid, "error", err)
		writeErrorJSON(w, "INVALID_ID", "invalid run id", http.StatusBadRequest)
		return
	}

	run, err := s.storage.GetRun(r.Context(), runID)
	if err != nil {
		slog.Warn("run not found", "run_id", runID, "requestId", rid, "error", err)
		writeErrorJSON(w, "NOT_FOUND", "run not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":               run.RunID,
		"status":               wireStatus(run.Status),
		"current_node":         run.CurrentNode,
		"current_state":        run.CurrentState.Data,
		"iterations_completed": run.IterationCount,
		"started_at":           run.StartedAt,
		"completed_at":         run.CompletedAt,
	})
}

// HandleListGraphs returns a summary of every stored graph.
func (s *Service) HandleListGraphs(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)

	graphs, err := s.storage.ListGraphs(r.Context())
	if err != nil {
		slog.Error("failed to list graphs", "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	summaries := make([]map[string]any, 0, len(graphs))
	for _, g := range graphs {
		summaries = append(summaries, map[string]any{
			"graph_id":    g.GraphID,
			"name":        g.Name,
			"description": g.Description,
			"node_count":  len(g.Nodes),
			"edge_count":  len(g.Edges),
			"entry_point": g.EntryPoint,
			"created_at":  g.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(summaries),
		"graphs": summaries,
	})
}

// HandleListRuns returns up to limit runs for a graph, most recent first.
func (s *Service) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	idStr := mux.Vars(r)["graph_id"]

	graphID, err := uuid.Parse(idStr)
	if err != nil {
		slog.Warn("invalid graph id", "id", idStr, "requestId", rid, "error", err)
		writeErrorJSON(w, "INVALID_ID", "invalid graph id", http.StatusBadRequest)
		return
	}

	g, err := s.storage.GetGraph(r.Context(), graphID)
	if err != nil {
		slog.Warn("graph not found for run listing", "graph_id", graphID, "requestId", rid, "error", err)
		writeErrorJSON(w, "NOT_FOUND", "graph not found", http.StatusNotFound)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := s.storage.ListRunsByGraph(r.Context(), graphID, limit)
	if err != nil {
		slog.Error("failed to list runs", "graph_id", graphID, "requestId", rid, "error", err)
		writeErrorJSON(w, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"graph_id":   g.GraphID,
		"graph_name": g.Name,
		"count":      len(runs),
		"runs":       runs,
	})
}

// HandleHealth reports process liveness and storage connectivity, the
// way the original's main.py checks its database before answering OK.
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	storageStatus := "connected"

	if err := s.storage.Ping(r.Context()); err != nil {
		storageStatus = "disconnected"
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"storage": storageStatus,
	})
}

func wireStatus(status graph.RunStatus) string {
	switch status {
	case graph.StatusPending:
		return "pending"
	case graph.StatusRunning:
		return "running"
	case graph.StatusCompleted:
		return "completed"
	case graph.StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeErrorJSON(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, map[string]any{"code": code, "message": message})
}
