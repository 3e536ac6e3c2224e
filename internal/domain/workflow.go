package domain

import (
	"time"

	"github.com/google/uuid"
)

// Workflow — сохранённый граф узлов пользователя.
//
// Workflow — это "шаблон": каждое выполнение (Execution) берёт снимок
// его узлов и рёбер в виде Graph.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// Name — имя workflow.
	Name string `json:"name"`

	// Description — описание назначения workflow.
	Description string `json:"description,omitempty"`

	// Nodes — узлы графа.
	Nodes []Node `json:"nodes"`

	// Edges — рёбра графа.
	Edges []Edge `json:"edges"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultWorkflowName — имя workflow, если пользователь его не задал.
const DefaultWorkflowName = "Untitled Workflow"

// Graph возвращает снимок графа workflow.
// Слайсы копируются, чтобы последующие правки workflow не влияли на run.
func (w *Workflow) Graph() Graph {
	nodes := make([]Node, len(w.Nodes))
	copy(nodes, w.Nodes)
	edges := make([]Edge, len(w.Edges))
	copy(edges, w.Edges)
	return Graph{Nodes: nodes, Edges: edges}
}

// Execution — запись о выполнении workflow.
//
// Движок её не создаёт: это делает вызывающая сторона (API, worker),
// сохраняя RunResult в БД.
type Execution struct {
	// ID — уникальный идентификатор execution.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на выполняемый workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Status — текущий статус.
	Status RunStatus `json:"status"`

	// Scope — область выполнения: full, selected, single.
	Scope ExecutionScope `json:"scope"`

	// SelectedNodeIDs — целевые узлы для scope selected/single.
	SelectedNodeIDs []string `json:"selected_node_ids,omitempty"`

	// NodeResults — результаты узлов в порядке выполнения.
	NodeResults []NodeResult `json:"node_results"`

	// ErrorMessage — ошибка, прервавшая run целиком (например, цикл).
	ErrorMessage string `json:"error_message,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// DurationMs — продолжительность в миллисекундах.
	DurationMs int64 `json:"duration,omitempty"`
}

// NewExecution создаёт execution в статусе pending.
func NewExecution(workflowID uuid.UUID, scope ExecutionScope, selected []string) *Execution {
	return &Execution{
		ID:              uuid.New(),
		WorkflowID:      workflowID,
		Status:          RunStatusPending,
		Scope:           scope,
		SelectedNodeIDs: selected,
		NodeResults:     make([]NodeResult, 0),
		StartedAt:       time.Now(),
	}
}

// Start переводит execution в running.
func (e *Execution) Start() {
	e.Status = RunStatusRunning
	e.StartedAt = time.Now()
}

// IsFinished возвращает true, если execution завершён.
func (e *Execution) IsFinished() bool {
	return e.Status.IsTerminal()
}

// Complete записывает результат run.
func (e *Execution) Complete(result *RunResult) {
	now := time.Now()
	e.Status = result.Status
	e.NodeResults = result.NodeResults
	e.CompletedAt = &now
	e.DurationMs = now.Sub(e.StartedAt).Milliseconds()
}

// MarkFailed переводит execution в failed с ошибкой уровня run.
func (e *Execution) MarkFailed(err string) {
	now := time.Now()
	e.Status = RunStatusFailed
	e.ErrorMessage = err
	e.CompletedAt = &now
	e.DurationMs = now.Sub(e.StartedAt).Milliseconds()
}
