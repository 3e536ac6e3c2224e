package domain

import (
	"time"

	"github.com/google/uuid"
)

// NodeResult — результат выполнения одного узла в рамках run.
//
// Создаётся один раз на узел за run и после создания не меняется.
// Добавляется в RunResult в порядке выполнения, а не объявления.
type NodeResult struct {
	// ID — уникальный идентификатор результата.
	ID uuid.UUID `json:"id"`

	// NodeID — ID узла графа.
	NodeID string `json:"nodeId"`

	// NodeName — label узла на момент выполнения.
	NodeName string `json:"nodeName"`

	// NodeKind — тип узла.
	NodeKind NodeKind `json:"nodeType"`

	// Status — success или failed.
	Status NodeStatus `json:"status"`

	// Inputs — значения, связанные с портами узла.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Outputs — результат узла, {"result": value}.
	Outputs map[string]any `json:"outputs,omitempty"`

	// ErrorMessage — текст ошибки, если узел упал.
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Warning — нефатальное предупреждение (например, timestamp обрезан).
	Warning string `json:"warning,omitempty"`

	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`

	// DurationMs — продолжительность выполнения в миллисекундах.
	DurationMs int64 `json:"duration"`
}

// OutputKey — ключ основного значения в NodeResult.Outputs.
const OutputKey = "result"

// Output возвращает основное значение результата.
func (r *NodeResult) Output() (any, bool) {
	if r.Outputs == nil {
		return nil, false
	}
	v, ok := r.Outputs[OutputKey]
	return v, ok
}

// Failed возвращает true, если узел упал.
func (r *NodeResult) Failed() bool {
	return r.Status == NodeStatusFailed
}

// RunResult — результат одного run.
//
// Статус вычисляется из результатов узлов и отдельно не хранится.
type RunResult struct {
	NodeResults []NodeResult `json:"nodeResults"`
	Status      RunStatus    `json:"status"`
}

// NewRunResult создаёт RunResult и вычисляет его статус.
func NewRunResult(results []NodeResult) *RunResult {
	if results == nil {
		results = make([]NodeResult, 0)
	}
	return &RunResult{
		NodeResults: results,
		Status:      DeriveStatus(results),
	}
}

// DeriveStatus вычисляет агрегированный статус run.
//
//   - failed — все узлы упали
//   - partial — упали некоторые узлы
//   - success — ни один узел не упал (в том числе пустой run)
func DeriveStatus(results []NodeResult) RunStatus {
	failed := 0
	for i := range results {
		if results[i].Failed() {
			failed++
		}
	}

	switch {
	case failed == 0:
		return RunStatusSuccess
	case failed == len(results):
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

// Result возвращает результат узла по ID.
func (r *RunResult) Result(nodeID string) (*NodeResult, bool) {
	for i := range r.NodeResults {
		if r.NodeResults[i].NodeID == nodeID {
			return &r.NodeResults[i], true
		}
	}
	return nil, false
}

// Counts возвращает количество успешных и упавших узлов.
func (r *RunResult) Counts() (succeeded, failed int) {
	for i := range r.NodeResults {
		if r.NodeResults[i].Failed() {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}
