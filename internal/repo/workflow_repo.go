package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Weave/internal/domain"
)

// WorkflowRepo — репозиторий для работы с workflows.
//
// Узлы и рёбра хранятся как JSONB в формате канваса.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// Create создаёт новый workflow.
func (r *WorkflowRepo) Create(ctx context.Context, wf *domain.Workflow) error {
	nodesJSON, edgesJSON, err := marshalGraph(wf)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflows (id, name, description, nodes, edges, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		wf.ID,
		wf.Name,
		nullString(wf.Description),
		nodesJSON,
		edgesJSON,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetByID возвращает workflow по ID.
func (r *WorkflowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := `
		SELECT id, name, description, nodes, edges, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`
	wf, err := scanWorkflow(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow by id: %w", err)
	}
	return wf, nil
}

// List возвращает список workflows, последние изменённые первыми.
func (r *WorkflowRepo) List(ctx context.Context) ([]domain.Workflow, error) {
	query := `
		SELECT id, name, description, nodes, edges, created_at, updated_at
		FROM workflows
		ORDER BY updated_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	workflows := make([]domain.Workflow, 0)
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, *wf)
	}
	return workflows, rows.Err()
}

// Update сохраняет имя, описание и граф workflow.
func (r *WorkflowRepo) Update(ctx context.Context, wf *domain.Workflow) error {
	nodesJSON, edgesJSON, err := marshalGraph(wf)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflows
		SET name = $2, description = $3, nodes = $4, edges = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		wf.ID,
		wf.Name,
		nullString(wf.Description),
		nodesJSON,
		edgesJSON,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет workflow (каскадно удалит executions и node_results).
func (r *WorkflowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM workflows WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func marshalGraph(wf *domain.Workflow) ([]byte, []byte, error) {
	nodes := wf.Nodes
	if nodes == nil {
		nodes = []domain.Node{}
	}
	edges := wf.Edges
	if edges == nil {
		edges = []domain.Edge{}
	}

	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(edges)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal edges: %w", err)
	}
	return nodesJSON, edgesJSON, nil
}

// scanWorkflow сканирует строку в Workflow.
// pgx.Rows реализует pgx.Row, поэтому helper общий для QueryRow и Query.
func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var wf domain.Workflow
	var description *string
	var nodesJSON, edgesJSON []byte

	if err := row.Scan(
		&wf.ID,
		&wf.Name,
		&description,
		&nodesJSON,
		&edgesJSON,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if description != nil {
		wf.Description = *description
	}
	if err := unmarshalGraph(nodesJSON, edgesJSON, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func unmarshalGraph(nodesJSON, edgesJSON []byte, wf *domain.Workflow) error {
	if nodesJSON != nil {
		if err := json.Unmarshal(nodesJSON, &wf.Nodes); err != nil {
			return fmt.Errorf("unmarshal nodes: %w", err)
		}
	}
	if edgesJSON != nil {
		if err := json.Unmarshal(edgesJSON, &wf.Edges); err != nil {
			return fmt.Errorf("unmarshal edges: %w", err)
		}
	}
	return nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
