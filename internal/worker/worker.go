package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Weave/internal/domain"
	"github.com/shaiso/Weave/internal/mq"
	"github.com/shaiso/Weave/internal/runner"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
	defaultPrefetch     = 1
	defaultRunTimeout   = 30 * time.Minute
)

// ExecutionStore — хранилище executions. Реализуется *repo.ExecutionRepo.
type ExecutionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	ListPending(ctx context.Context, limit int) ([]domain.Execution, error)
	Claim(ctx context.Context, exec *domain.Execution) error
	Finish(ctx context.Context, exec *domain.Execution) error
}

// WorkflowStore — хранилище workflows. Реализуется *repo.WorkflowRepo.
type WorkflowStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
}

// Worker выполняет executions, поставленные в очередь API.
//
// Worker — stateless компонент системы, который:
//   - Получает execution.requested из очереди RabbitMQ (event-driven)
//   - Периодически проверяет pending executions в БД (polling fallback)
//   - Выполняет граф через runner.Runner, публикуя статусы узлов
//   - Сохраняет итог и публикует execution.completed
//
// Workers масштабируются горизонтально: execution забирает тот,
// кто первым переведёт его из pending в running.
type Worker struct {
	executions ExecutionStore
	workflows  WorkflowStore
	runner     *runner.Runner

	// MQ
	events mq.EventPublisher
	conn   *mq.Connection

	consumer *mq.Consumer

	// Configuration
	pollInterval time.Duration
	batchSize    int
	prefetch     int
	runTimeout   time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Executions ExecutionStore
	Workflows  WorkflowStore

	// Runner — исполнитель графов с подключёнными коллабораторами.
	Runner *runner.Runner

	// Events — публикация node.status и execution.completed (опционально).
	Events mq.EventPublisher

	// Conn — соединение для consumer'а. Без него работает только polling.
	Conn *mq.Connection

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // executions за один poll (default: 50)

	// Prefetch — сколько executions worker выполняет одновременно (default: 1).
	Prefetch int

	// RunTimeout — максимальная длительность одного execution (default: 30m).
	RunTimeout time.Duration

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := cfg.Runner
	if r == nil {
		r = runner.New(runner.Config{Logger: logger})
	}

	return &Worker{
		executions:   cfg.Executions,
		workflows:    cfg.Workflows,
		runner:       r,
		events:       cfg.Events,
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		prefetch:     prefetch,
		runTimeout:   runTimeout,
		logger:       logger,
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для executions.requested (если есть соединение)
//   - Polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	if w.IsStopped() {
		return ErrWorkerStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"prefetch", w.prefetch,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueExecutionsRequested),
			Handler:  w.handleExecutionRequested,
			Prefetch: w.prefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("execution consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения текущих executions.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу: подхватываем executions, созданные пока worker был выключен
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (w *Worker) poll(ctx context.Context) {
	pending, err := w.executions.ListPending(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("failed to list pending executions", "error", err)
		}
		return
	}

	if len(pending) == 0 {
		return
	}

	w.logger.Debug("poll found pending executions", "count", len(pending))

	for i := range pending {
		if ctx.Err() != nil {
			return
		}

		err := w.processExecution(ctx, pending[i].ID)
		if err != nil && !errors.Is(err, ErrExecutionNotPending) {
			w.logger.Error("failed to process execution from poll",
				"execution_id", pending[i].ID,
				"error", err,
			)
		}
	}
}
