package domain

// NodeStatus — статус узла в рамках run.
//
// Жизненный цикл:
//
//	pending → running → success
//	                  ↘ failed
type NodeStatus string

const (
	// NodeStatusPending — узел запланирован, но ещё не выполнялся.
	NodeStatusPending NodeStatus = "pending"

	// NodeStatusRunning — узел выполняется.
	NodeStatusRunning NodeStatus = "running"

	// NodeStatusSuccess — узел успешно выполнен.
	NodeStatusSuccess NodeStatus = "success"

	// NodeStatusFailed — узел завершился с ошибкой.
	NodeStatusFailed NodeStatus = "failed"

	// NodeStatusSkipped — зарезервирован для совместимости с UI.
	// Движок его не выставляет: узлы после упавшей зависимости получают failed.
	NodeStatusSkipped NodeStatus = "skipped"
)

// IsTerminal возвращает true, если статус финальный.
func (s NodeStatus) IsTerminal() bool {
	switch s {
	case NodeStatusSuccess, NodeStatusFailed, NodeStatusSkipped:
		return true
	default:
		return false
	}
}

// RunStatus — агрегированный статус run / execution.
//
// Жизненный цикл execution:
//
//	pending → running → success
//	                  ↘ partial
//	                  ↘ failed
type RunStatus string

const (
	// RunStatusPending — execution создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning — execution в процессе выполнения.
	RunStatusRunning RunStatus = "running"

	// RunStatusSuccess — ни один узел не упал.
	RunStatusSuccess RunStatus = "success"

	// RunStatusPartial — упали некоторые, но не все узлы.
	RunStatusPartial RunStatus = "partial"

	// RunStatusFailed — упали все узлы или run прерван до выполнения.
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusPartial, RunStatusFailed:
		return true
	default:
		return false
	}
}

// ExecutionScope — область выполнения workflow.
type ExecutionScope string

const (
	// ScopeFull — весь граф.
	ScopeFull ExecutionScope = "full"

	// ScopeSelected — выбранные узлы и их зависимости.
	ScopeSelected ExecutionScope = "selected"

	// ScopeSingle — один узел и его зависимости.
	ScopeSingle ExecutionScope = "single"
)

// ParseExecutionScope парсит строку в ExecutionScope.
// Пустая или неизвестная строка даёт ScopeFull.
func ParseExecutionScope(s string) ExecutionScope {
	switch s {
	case "selected":
		return ScopeSelected
	case "single":
		return ScopeSingle
	default:
		return ScopeFull
	}
}
