package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Weave/internal/domain"
)

// DefaultHistoryLimit — сколько последних executions возвращает история.
const DefaultHistoryLimit = 50

// ExecutionRepo — репозиторий для работы с executions и node_results.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// Create создаёт запись execution.
func (r *ExecutionRepo) Create(ctx context.Context, exec *domain.Execution) error {
	query := `
		INSERT INTO executions (id, workflow_id, status, scope, selected_node_ids, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		exec.ID,
		exec.WorkflowID,
		exec.Status,
		exec.Scope,
		exec.SelectedNodeIDs,
		exec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetByID возвращает execution вместе с результатами узлов.
func (r *ExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := `
		SELECT id, workflow_id, status, scope, selected_node_ids, error_message,
		       started_at, completed_at, duration_ms
		FROM executions
		WHERE id = $1
	`
	exec, err := scanExecution(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution by id: %w", err)
	}

	results, err := r.ListNodeResults(ctx, id)
	if err != nil {
		return nil, err
	}
	exec.NodeResults = results

	return exec, nil
}

// ListByWorkflow возвращает историю executions workflow, новые первыми.
// Результаты узлов не загружаются.
func (r *ExecutionRepo) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `
		SELECT id, workflow_id, status, scope, selected_node_ids, error_message,
		       started_at, completed_at, duration_ms
		FROM executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	executions := make([]domain.Execution, 0)
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		executions = append(executions, *exec)
	}
	return executions, rows.Err()
}

// UpdateStatus обновляет статус execution (pending → running).
func (r *ExecutionRepo) UpdateStatus(ctx context.Context, exec *domain.Execution) error {
	query := `
		UPDATE executions
		SET status = $2, started_at = $3
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, exec.ID, exec.Status, exec.StartedAt)
	if err != nil {
		return fmt.Errorf("update execution status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Claim атомарно переводит execution из pending в running.
// Если execution уже забрал другой worker, возвращает ErrInvalidState.
func (r *ExecutionRepo) Claim(ctx context.Context, exec *domain.Execution) error {
	query := `
		UPDATE executions
		SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4
	`
	result, err := r.pool.Exec(ctx, query, exec.ID, exec.Status, exec.StartedAt, domain.RunStatusPending)
	if err != nil {
		return fmt.Errorf("claim execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ListPending возвращает ожидающие executions, старые первыми.
// Используется worker'ом как fallback, если сообщение из очереди потерялось.
func (r *ExecutionRepo) ListPending(ctx context.Context, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `
		SELECT id, workflow_id, status, scope, selected_node_ids, error_message,
		       started_at, completed_at, duration_ms
		FROM executions
		WHERE status = $1
		ORDER BY started_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, domain.RunStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending executions: %w", err)
	}
	defer rows.Close()

	executions := make([]domain.Execution, 0)
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		executions = append(executions, *exec)
	}
	return executions, rows.Err()
}

// Finish сохраняет итог execution и результаты узлов в одной транзакции.
func (r *ExecutionRepo) Finish(ctx context.Context, exec *domain.Execution) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			UPDATE executions
			SET status = $2, error_message = $3, completed_at = $4, duration_ms = $5
			WHERE id = $1
		`
		result, err := tx.Exec(ctx, query,
			exec.ID,
			exec.Status,
			nullString(exec.ErrorMessage),
			exec.CompletedAt,
			exec.DurationMs,
		)
		if err != nil {
			return fmt.Errorf("finish execution: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrNotFound
		}

		for i := range exec.NodeResults {
			if err := insertNodeResult(ctx, tx, exec.ID, i, &exec.NodeResults[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListNodeResults возвращает результаты узлов execution в порядке выполнения.
func (r *ExecutionRepo) ListNodeResults(ctx context.Context, executionID uuid.UUID) ([]domain.NodeResult, error) {
	query := `
		SELECT id, node_id, node_name, node_type, status, inputs, outputs,
		       error_message, warning, started_at, completed_at, duration_ms
		FROM node_results
		WHERE execution_id = $1
		ORDER BY position ASC
	`
	rows, err := r.pool.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list node results: %w", err)
	}
	defer rows.Close()

	results := make([]domain.NodeResult, 0)
	for rows.Next() {
		nr, err := scanNodeResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node result: %w", err)
		}
		results = append(results, *nr)
	}
	return results, rows.Err()
}

// --- Helpers ---

func insertNodeResult(ctx context.Context, tx pgx.Tx, executionID uuid.UUID, position int, nr *domain.NodeResult) error {
	inputsJSON, err := json.Marshal(nr.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(nr.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	query := `
		INSERT INTO node_results (id, execution_id, position, node_id, node_name, node_type, status,
		                          inputs, outputs, error_message, warning, started_at, completed_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = tx.Exec(ctx, query,
		nr.ID,
		executionID,
		position,
		nr.NodeID,
		nr.NodeName,
		nr.NodeKind,
		nr.Status,
		inputsJSON,
		outputsJSON,
		nullString(nr.ErrorMessage),
		nullString(nr.Warning),
		nr.StartedAt,
		nr.CompletedAt,
		nr.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert node result %s: %w", nr.NodeID, err)
	}
	return nil
}

// scanExecution сканирует строку в Execution.
func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var exec domain.Execution
	var errorMessage *string
	var completedAt *time.Time
	var durationMs *int64

	if err := row.Scan(
		&exec.ID,
		&exec.WorkflowID,
		&exec.Status,
		&exec.Scope,
		&exec.SelectedNodeIDs,
		&errorMessage,
		&exec.StartedAt,
		&completedAt,
		&durationMs,
	); err != nil {
		return nil, err
	}

	if errorMessage != nil {
		exec.ErrorMessage = *errorMessage
	}
	if durationMs != nil {
		exec.DurationMs = *durationMs
	}
	exec.CompletedAt = completedAt
	exec.NodeResults = make([]domain.NodeResult, 0)

	return &exec, nil
}

// scanNodeResult сканирует строку в NodeResult.
func scanNodeResult(row pgx.Row) (*domain.NodeResult, error) {
	var nr domain.NodeResult
	var inputsJSON, outputsJSON []byte
	var errorMessage, warning *string

	if err := row.Scan(
		&nr.ID,
		&nr.NodeID,
		&nr.NodeName,
		&nr.NodeKind,
		&nr.Status,
		&inputsJSON,
		&outputsJSON,
		&errorMessage,
		&warning,
		&nr.StartedAt,
		&nr.CompletedAt,
		&nr.DurationMs,
	); err != nil {
		return nil, err
	}

	if inputsJSON != nil {
		if err := json.Unmarshal(inputsJSON, &nr.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
	}
	if outputsJSON != nil {
		if err := json.Unmarshal(outputsJSON, &nr.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	if errorMessage != nil {
		nr.ErrorMessage = *errorMessage
	}
	if warning != nil {
		nr.Warning = *warning
	}

	return &nr, nil
}
