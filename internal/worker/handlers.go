package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Weave/internal/domain"
	"github.com/shaiso/Weave/internal/mq"
	"github.com/shaiso/Weave/internal/repo"
	"github.com/shaiso/Weave/internal/runner"
	"github.com/shaiso/Weave/internal/telemetry"
)

// handleExecutionRequested обрабатывает сообщение из executions.requested.
func (w *Worker) handleExecutionRequested(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.ExecutionRequestedPayload](&delivery.Message)
	if err != nil {
		return fmt.Errorf("%w: parse execution.requested: %v", mq.ErrPermanent, err)
	}

	w.logger.Debug("received execution.requested", "execution_id", payload.ExecutionID)

	if err := w.processExecution(ctx, payload.ExecutionID); err != nil {
		// Ожидаемые ситуации: ack без повтора
		if errors.Is(err, ErrExecutionNotFound) || errors.Is(err, ErrExecutionNotPending) {
			w.logger.Debug("execution not processed", "execution_id", payload.ExecutionID, "reason", err)
			return nil
		}
		return err
	}

	return nil
}

// processExecution забирает execution, выполняет граф и сохраняет итог.
//
//  1. Загрузка execution, проверка статуса pending
//  2. Загрузка workflow (снимок графа)
//  3. Claim: pending → running
//  4. Выполнение через runner с публикацией статусов
//  5. Finish: итог и результаты узлов в одной транзакции
//  6. Публикация execution.completed
func (w *Worker) processExecution(ctx context.Context, executionID uuid.UUID) error {
	exec, err := w.executions.GetByID(ctx, executionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
		}
		return fmt.Errorf("get execution: %w", err)
	}

	if exec.Status != domain.RunStatusPending {
		return ErrExecutionNotPending
	}

	logger := telemetry.WithWorkflowID(telemetry.WithExecutionID(w.logger, exec.ID.String()), exec.WorkflowID.String())

	exec.Start()
	if err := w.executions.Claim(ctx, exec); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return ErrExecutionNotPending
		}
		return fmt.Errorf("claim execution: %w", err)
	}

	logger.Info("execution started", "scope", exec.Scope, "targets", len(exec.SelectedNodeIDs))

	wf, err := w.workflows.GetByID(ctx, exec.WorkflowID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		exec.MarkFailed(ErrWorkflowNotFound.Error())
	case err != nil:
		// Execution уже running: фиксируем ошибку, иначе он зависнет
		exec.MarkFailed(fmt.Sprintf("load workflow: %v", err))
	default:
		w.run(telemetry.WithLogger(ctx, logger), exec, wf)
	}

	if err := w.executions.Finish(context.WithoutCancel(ctx), exec); err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}

	logger.Info("execution finished",
		"status", exec.Status,
		"duration_ms", exec.DurationMs,
		"error", exec.ErrorMessage,
	)

	w.publishCompletion(ctx, exec)
	return nil
}

// run выполняет граф workflow в scope execution'а и записывает итог в exec.
func (w *Worker) run(ctx context.Context, exec *domain.Execution, wf *domain.Workflow) {
	ctx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	r := w.runner
	var statuses *mq.StatusPublisher
	if w.events != nil {
		statuses = mq.NewStatusPublisher(w.events, exec.ID, 0, telemetry.FromContext(ctx, w.logger))
		r = r.WithObserver(statuses)
	}

	g := wf.Graph()

	var (
		result *domain.RunResult
		err    error
	)
	if exec.Scope == domain.ScopeFull || len(exec.SelectedNodeIDs) == 0 {
		result, err = r.Execute(ctx, &g)
	} else {
		result, err = r.ExecuteSubset(ctx, &g, exec.SelectedNodeIDs)
	}

	if statuses != nil {
		statuses.Close()
	}

	if err != nil {
		exec.MarkFailed(err.Error())
		return
	}
	exec.Complete(result)
}

// publishCompletion публикует execution.completed.
// Ошибка публикации не откатывает execution: итог уже в БД.
func (w *Worker) publishCompletion(ctx context.Context, exec *domain.Execution) {
	if w.events == nil {
		return
	}

	if err := mq.PublishExecutionCompleted(ctx, w.events, exec); err != nil {
		w.logger.Warn("failed to publish execution.completed",
			"execution_id", exec.ID,
			"error", err,
		)
	}
}

var _ runner.StatusObserver = (*mq.StatusPublisher)(nil)
