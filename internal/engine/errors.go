package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/Weave/internal/domain"
)

// Ошибки структуры графа. Прерывают run до выполнения узлов.
var (
	// ErrEmptyNodeID — узел не имеет ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrMissingNode — ребро ссылается на несуществующий узел.
	ErrMissingNode = errors.New("edge references unknown node")

	// ErrSelfLoop — ребро из узла в самого себя.
	ErrSelfLoop = errors.New("edge source equals target")

	// ErrDuplicateEdge — два одинаковых ребра.
	ErrDuplicateEdge = errors.New("duplicate edge")

	// ErrDuplicateBinding — несколько рёбер в один однозначный порт узла.
	ErrDuplicateBinding = errors.New("port bound more than once")

	// ErrUnknownTarget — целевой узел для частичного выполнения не найден.
	ErrUnknownTarget = errors.New("unknown target node")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// Ошибки выполнения узла. Записываются в NodeResult, run продолжается.
var (
	// ErrMissingInput — обязательный вход узла отсутствует.
	ErrMissingInput = errors.New("missing required input")

	// ErrInference — ошибка вызова модели.
	ErrInference = errors.New("inference failed")

	// ErrProcessing — ошибка обработки медиа.
	ErrProcessing = errors.New("media processing failed")

	// ErrUnknownKind — неизвестный тип узла.
	ErrUnknownKind = errors.New("unknown node kind")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// ValidationError — ошибка валидации графа с контекстом.
type ValidationError struct {
	NodeID  string // ID узла, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(nodeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// CycleError — граф не является DAG.
type CycleError struct {
	// Remaining — узлы, которые не удалось упорядочить, в порядке объявления.
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic dependency detected among nodes: %s", strings.Join(e.Remaining, ", "))
}

func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// MissingInputError — у узла нет значения для обязательного входа.
type MissingInputError struct {
	NodeID string
	Port   string
	Reason string
}

func (e *MissingInputError) Error() string {
	msg := "missing required input"
	if e.Port != "" {
		msg += " " + e.Port
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *MissingInputError) Unwrap() error {
	return ErrMissingInput
}

// InferenceReason — класс ошибки модели.
type InferenceReason string

const (
	InferenceReasonAuth      InferenceReason = "auth"
	InferenceReasonQuota     InferenceReason = "quota"
	InferenceReasonTransient InferenceReason = "transient"
	InferenceReasonOther     InferenceReason = "other"
)

// InferenceError оборачивает ошибку коллаборатора модели.
type InferenceError struct {
	NodeID string
	Model  string
	Reason InferenceReason
	Err    error
}

func (e *InferenceError) Error() string {
	switch e.Reason {
	case InferenceReasonAuth:
		return fmt.Sprintf("inference %s: invalid credentials: %v", e.Model, e.Err)
	case InferenceReasonQuota:
		return fmt.Sprintf("inference %s: quota exceeded: %v", e.Model, e.Err)
	default:
		return fmt.Sprintf("inference %s: %v", e.Model, e.Err)
	}
}

// Unwrap позволяет errors.Is как по ErrInference, так и по исходной ошибке.
func (e *InferenceError) Unwrap() []error {
	return []error{ErrInference, e.Err}
}

// ReasonedError — ошибка коллаборатора, знающая свой класс.
type ReasonedError interface {
	error
	InferenceReason() InferenceReason
}

// ClassifyInference определяет класс ошибки модели.
//
// Сначала учитывается ReasonedError, затем ошибки контекста,
// затем текст ошибки (коды и формулировки Gemini API).
func ClassifyInference(err error) InferenceReason {
	if err == nil {
		return InferenceReasonOther
	}

	var reasoned ReasonedError
	if errors.As(err, &reasoned) {
		return reasoned.InferenceReason()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return InferenceReasonTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api_key_invalid"),
		strings.Contains(msg, "api key not valid"),
		strings.Contains(msg, "permission_denied"),
		strings.Contains(msg, "unauthenticated"):
		return InferenceReasonAuth
	case strings.Contains(msg, "quota"),
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "429"):
		return InferenceReasonQuota
	case strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "connection reset"):
		return InferenceReasonTransient
	default:
		return InferenceReasonOther
	}
}

// ProcessingError оборачивает ошибку обработки медиа.
type ProcessingError struct {
	NodeID    string
	Operation string // "crop", "extract-frame"
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *ProcessingError) Unwrap() []error {
	return []error{ErrProcessing, e.Err}
}

// UnknownKindError — тип узла не поддерживается движком.
//
// ConfigKind заполняется, если конфигурация узла принадлежит другому типу.
type UnknownKindError struct {
	NodeID     string
	Kind       domain.NodeKind
	ConfigKind domain.NodeKind
}

func (e *UnknownKindError) Error() string {
	if e.ConfigKind != "" {
		return fmt.Sprintf("node kind %q does not match config of kind %q", e.Kind, e.ConfigKind)
	}
	return fmt.Sprintf("unknown node kind %q, known kinds: %s", e.Kind, joinKinds(domain.Kinds()))
}

func joinKinds(kinds []domain.NodeKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func (e *UnknownKindError) Unwrap() error {
	return ErrUnknownKind
}

// IsGraphError возвращает true для ошибок структуры графа,
// которые прерывают run целиком.
func IsGraphError(err error) bool {
	var cycle *CycleError
	var validation *ValidationError
	return errors.As(err, &cycle) || errors.As(err, &validation)
}
