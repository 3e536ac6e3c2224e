package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Weave/internal/domain"
	"github.com/shaiso/Weave/internal/runner"
)

const defaultRunTimeout = 10 * time.Minute

// WorkflowStore — хранилище workflows. Реализуется *repo.WorkflowRepo.
type WorkflowStore interface {
	Create(ctx context.Context, wf *domain.Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	List(ctx context.Context) ([]domain.Workflow, error)
	Update(ctx context.Context, wf *domain.Workflow) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ExecutionStore — хранилище executions. Реализуется *repo.ExecutionRepo.
type ExecutionStore interface {
	Create(ctx context.Context, exec *domain.Execution) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]domain.Execution, error)
	Finish(ctx context.Context, exec *domain.Execution) error
}

// ExecutionQueue ставит execution в очередь worker'а. Реализуется *mq.Publisher.
type ExecutionQueue interface {
	PublishExecutionRequested(ctx context.Context, executionID uuid.UUID) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workflows  WorkflowStore
	executions ExecutionStore
	runner     *runner.Runner
	queue      ExecutionQueue
	corsOrigin string
	runTimeout time.Duration
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Workflows  WorkflowStore
	Executions ExecutionStore

	// Runner выполняет графы синхронно (ad hoc run и execution без очереди).
	Runner *runner.Runner

	// Queue — если задана, executions workflow выполняет worker.
	Queue ExecutionQueue

	// CORSOrigin — разрешённый origin UI (default: "*").
	CORSOrigin string

	// RunTimeout — ограничение синхронного run (default: 10m).
	RunTimeout time.Duration

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := cfg.Runner
	if r == nil {
		r = runner.New(runner.Config{Logger: logger})
	}

	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}

	return &Handler{
		workflows:  cfg.Workflows,
		executions: cfg.Executions,
		runner:     r,
		queue:      cfg.Queue,
		corsOrigin: cfg.CORSOrigin,
		runTimeout: runTimeout,
		logger:     logger,
	}
}
