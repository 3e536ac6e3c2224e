package worker

import "errors"

// Ошибки воркера.
var (
	// ErrExecutionNotFound — execution не найден в БД.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionNotPending — execution уже выполняется или завершён.
	ErrExecutionNotPending = errors.New("execution is not pending")

	// ErrWorkflowNotFound — workflow execution'а удалён.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")
)
