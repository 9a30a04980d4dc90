// Package storage persists graph definitions and their runs. It
// defines a Storage interface so the server and engine stay decoupled
// from the backing store, plus a PostgreSQL implementation and an
// in-memory one for local development and tests (spec.md §4.4, §6).
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowlattice/workflow-engine/services/graph"
)

// Storage defines the interface for workflow graph and run persistence.
// This abstraction keeps the server and engine decoupled from the
// backing store, making them testable and swappable.
type Storage interface {
	SaveGraph(ctx context.Context, g *graph.GraphDefinition) error
	GetGraph(ctx context.Context, id uuid.UUID) (*graph.GraphDefinition, error)
	ListGraphs(ctx context.Context) ([]*graph.GraphDefinition, error)
	DeleteGraph(ctx context.Context, id uuid.UUID) error

	SaveRun(ctx context.Context, r *graph.Run) error
	UpdateRun(ctx context.Context, r *graph.Run) error
	GetRun(ctx context.Context, runID uuid.UUID) (*graph.Run, error)
	ListRunsByGraph(ctx context.Context, graphID uuid.UUID, limit int) ([]*graph.Run, error)

	Ping(ctx context.Context) error
}

// DB abstracts the database operations used by the storage layer.
// Satisfied by *pgxpool.Pool in production and pgxmock in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// pgStorage implements Storage using PostgreSQL.
type pgStorage struct {
	db DB
}

// NewPostgres creates a PostgreSQL-backed Storage implementation.
func NewPostgres(db *pgxpool.Pool) (Storage, error) {
	if db == nil {
		return nil, fmt.Errorf("storage: db connection cannot be nil")
	}
	return &pgStorage{db: db}, nil
}

func (s *pgStorage) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// SaveGraph inserts a new graph. Graph definitions are immutable once
// created (spec.md §3), so this never updates an existing row.
func (s *pgStorage) SaveGraph(ctx context.Context, g *graph.GraphDefinition) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	nodesJSON, err := json.Marshal(g.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(g.Edges)
	if err != nil {
		return fmt.Errorf("marshal edges: %w", err)
	}

	_, err = s.db.Exec(timeoutCtx, `
        INSERT INTO graphs (graph_id, name, description, nodes, edges, entry_point, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.GraphID, g.Name, g.Description, nodesJSON, edgesJSON, g.EntryPoint, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert graph: %w", err)
	}
	return nil
}

func scanGraph(row pgx.Row) (*graph.GraphDefinition, error) {
	var g graph.GraphDefinition
	var nodesJSON, edgesJSON []byte

	if err := row.Scan(&g.GraphID, &g.Name, &g.Description, &nodesJSON, &edgesJSON, &g.EntryPoint, &g.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(nodesJSON, &g.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &g.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	return &g, nil
}

func (s *pgStorage) GetGraph(ctx context.Context, id uuid.UUID) (*graph.GraphDefinition, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := s.db.QueryRow(timeoutCtx, `
        SELECT graph_id, name, description, nodes, edges, entry_point, created_at
        FROM graphs WHERE graph_id = $1`, id)
	return scanGraph(row)
}

func (s *pgStorage) ListGraphs(ctx context.Context) ([]*graph.GraphDefinition, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.Query(timeoutCtx, `
        SELECT graph_id, name, description, nodes, edges, entry_point, created_at
        FROM graphs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query graphs: %w", err)
	}
	defer rows.Close()

	var out []*graph.GraphDefinition
	for rows.Next() {
		g, err := scanGraph(rows)
		if err != nil {
			return nil, fmt.Errorf("scan graph: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteGraph removes a graph row by id.
func (s *pgStorage) DeleteGraph(ctx context.Context, id uuid.UUID) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := s.db.Exec(timeoutCtx, `DELETE FROM graphs WHERE graph_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SaveRun inserts a new run row. The server calls it once per run,
// after the engine has returned the finished run.
func (s *pgStorage) SaveRun(ctx context.Context, r *graph.Run) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.upsertRun(timeoutCtx, r, true)
}

// UpdateRun overwrites an existing run row with its terminal state.
func (s *pgStorage) UpdateRun(ctx context.Context, r *graph.Run) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.upsertRun(timeoutCtx, r, false)
}

func (s *pgStorage) upsertRun(ctx context.Context, r *graph.Run, insert bool) error {
	stateJSON, err := json.Marshal(r.CurrentState)
	if err != nil {
		return fmt.Errorf("marshal current_state: %w", err)
	}
	logsJSON, err := json.Marshal(r.ExecutionLogs)
	if err != nil {
		return fmt.Errorf("marshal execution_logs: %w", err)
	}

	if insert {
		_, err = s.db.Exec(ctx, `
            INSERT INTO runs (
                run_id, graph_id, status, current_node, current_state, execution_logs,
                started_at, completed_at, error, iteration_count, max_iterations
            ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			r.RunID, r.GraphID, r.Status, r.CurrentNode, stateJSON, logsJSON,
			r.StartedAt, r.CompletedAt, r.Error, r.IterationCount, r.MaxIterations)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	}

	tag, err := s.db.Exec(ctx, `
        UPDATE runs SET
            status = $2, current_node = $3, current_state = $4, execution_logs = $5,
            completed_at = $6, error = $7, iteration_count = $8
        WHERE run_id = $1`,
		r.RunID, r.Status, r.CurrentNode, stateJSON, logsJSON,
		r.CompletedAt, r.Error, r.IterationCount)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanRun(row pgx.Row) (*graph.Run, error) {
	var r graph.Run
	var stateJSON, logsJSON []byte

	if err := row.Scan(
		&r.RunID, &r.GraphID, &r.Status, &r.CurrentNode, &stateJSON, &logsJSON,
		&r.StartedAt, &r.CompletedAt, &r.Error, &r.IterationCount, &r.MaxIterations,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stateJSON, &r.CurrentState); err != nil {
		return nil, fmt.Errorf("unmarshal current_state: %w", err)
	}
	if err := json.Unmarshal(logsJSON, &r.ExecutionLogs); err != nil {
		return nil, fmt.Errorf("unmarshal execution_logs: %w", err)
	}
	return &r, nil
}

func (s *pgStorage) GetRun(ctx context.Context, runID uuid.UUID) (*graph.Run, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := s.db.QueryRow(timeoutCtx, `
        SELECT run_id, graph_id, status, current_node, current_state, execution_logs,
               started_at, completed_at, error, iteration_count, max_iterations
        FROM runs WHERE run_id = $1`, runID)
	return scanRun(row)
}

func (s *pgStorage) ListRunsByGraph(ctx context.Context, graphID uuid.UUID, limit int) ([]*graph.Run, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(timeoutCtx, `
        SELECT run_id, graph_id, status, current_node, current_state, execution_logs,
               started_at, completed_at, error, iteration_count, max_iterations
        FROM runs WHERE graph_id = $1 ORDER BY started_at DESC LIMIT $2`, graphID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*graph.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
