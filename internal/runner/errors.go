package runner

import "errors"

// Ошибки конфигурации runner'а. Попадают в NodeResult узла, которому
// нужен отсутствующий коллаборатор.
var (
	// ErrNoInferencer — коллаборатор модели не настроен.
	ErrNoInferencer = errors.New("inference collaborator not configured")

	// ErrNoCropper — коллаборатор обрезки не настроен.
	ErrNoCropper = errors.New("crop collaborator not configured")

	// ErrNoFrameExtractor — коллаборатор извлечения кадра не настроен.
	ErrNoFrameExtractor = errors.New("frame extraction collaborator not configured")

	// ErrEmptyResponse — коллаборатор вернул пустой результат.
	ErrEmptyResponse = errors.New("collaborator returned empty result")

	// ErrNodePanic — executor узла запаниковал.
	ErrNodePanic = errors.New("node executor panicked")
)
