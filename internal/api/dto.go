package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Weave/internal/domain"
)

// Workflow DTOs

// CreateWorkflowRequest — запрос на создание workflow.
type CreateWorkflowRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Nodes       []domain.Node `json:"nodes"`
	Edges       []domain.Edge `json:"edges"`
}

// UpdateWorkflowRequest — запрос на обновление workflow.
// Отсутствующие поля не меняются.
type UpdateWorkflowRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Nodes       *[]domain.Node `json:"nodes,omitempty"`
	Edges       *[]domain.Edge `json:"edges,omitempty"`
}

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Nodes       []domain.Node `json:"nodes"`
	Edges       []domain.Edge `json:"edges"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(wf domain.Workflow) WorkflowResponse {
	nodes := wf.Nodes
	if nodes == nil {
		nodes = []domain.Node{}
	}
	edges := wf.Edges
	if edges == nil {
		edges = []domain.Edge{}
	}
	return WorkflowResponse{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		Nodes:       nodes,
		Edges:       edges,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}
}

// Execution DTOs

// ExecuteRequest — запрос на выполнение workflow.
//
// Scope: "full" (default), "selected" или "single".
// NodeIDs обязателен для selected и single.
type ExecuteRequest struct {
	Scope   string   `json:"scope,omitempty"`
	NodeIDs []string `json:"nodeIds,omitempty"`
}

// RunGraphRequest — запрос на выполнение графа без сохранения.
// Если NodeIDs задан, выполняется только их замыкание зависимостей.
type RunGraphRequest struct {
	Nodes   []domain.Node `json:"nodes"`
	Edges   []domain.Edge `json:"edges"`
	NodeIDs []string      `json:"nodeIds,omitempty"`
}

// ExecutionResponse — ответ с execution.
type ExecutionResponse struct {
	ID              uuid.UUID           `json:"id"`
	WorkflowID      uuid.UUID           `json:"workflow_id"`
	Status          string              `json:"status"`
	Scope           string              `json:"scope"`
	SelectedNodeIDs []string            `json:"selected_node_ids,omitempty"`
	NodeResults     []domain.NodeResult `json:"node_results,omitempty"`
	Error           string              `json:"error,omitempty"`
	StartedAt       time.Time           `json:"started_at"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	DurationMs      int64               `json:"duration_ms"`
}

// ExecutionFromDomain конвертирует domain.Execution в ExecutionResponse.
func ExecutionFromDomain(e domain.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:              e.ID,
		WorkflowID:      e.WorkflowID,
		Status:          string(e.Status),
		Scope:           string(e.Scope),
		SelectedNodeIDs: e.SelectedNodeIDs,
		NodeResults:     e.NodeResults,
		Error:           e.ErrorMessage,
		StartedAt:       e.StartedAt,
		CompletedAt:     e.CompletedAt,
		DurationMs:      e.DurationMs,
	}
}
