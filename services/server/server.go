// Package server is the HTTP request surface for the workflow engine:
// graph creation, run execution, run/graph lookups, and a health
// check (spec.md §6). It is a thin collaborator adapter — structural
// validation lives in the graph package, execution in the engine
// package; this package only translates between JSON and those calls.
package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/flowlattice/workflow-engine/services/engine"
	"github.com/flowlattice/workflow-engine/services/storage"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// fallbackMaxIterations is used if New is called with maxIterations <= 0,
// matching spec.md §6's documented default.
const fallbackMaxIterations = 10

// Service wires the HTTP layer to the engine and storage collaborators.
type Service struct {
	storage       storage.Storage
	engine        *engine.Engine
	maxIterations int
}

// New builds a Service. store and eng must both be non-nil.
// maxIterations is applied to /graph/run requests that don't specify
// their own cap (spec.md §6); if it is <= 0, fallbackMaxIterations is
// used instead.
func New(store storage.Storage, eng *engine.Engine, maxIterations int) *Service {
	if maxIterations <= 0 {
		maxIterations = fallbackMaxIterations
	}
	return &Service{storage: store, engine: eng, maxIterations: maxIterations}
}

// LoadRoutes registers every route from spec.md §6 onto router.
func (s *Service) LoadRoutes(router *mux.Router) {
	router.Use(requestIDMiddleware)
	router.Use(jsonMiddleware)

	router.HandleFunc("/graph/create", s.HandleCreateGraph).Methods(http.MethodPost)
	router.HandleFunc("/graph/run", s.HandleRunGraph).Methods(http.MethodPost)
	router.HandleFunc("/graph/state/{run_id}", s.HandleGetRunState).Methods(http.MethodGet)
	router.HandleFunc("/graph/list", s.HandleListGraphs).Methods(http.MethodGet)
	router.HandleFunc("/graph/runs/{graph_id}", s.HandleListRuns).Methods(http.MethodGet)
	router.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func reqID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}
