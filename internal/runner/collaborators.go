package runner

import (
	"context"

	"github.com/shaiso/Weave/internal/domain"
)

// InferenceRequest — запрос к языковой модели.
type InferenceRequest struct {
	Model        string
	SystemPrompt string
	UserMessage  string

	// ImageURLs — изображения, прикладываемые к запросу.
	ImageURLs []string

	Temperature float64
	MaxTokens   int
}

// Inferencer — коллаборатор вызова модели.
//
// Таймауты запроса — ответственность реализации.
type Inferencer interface {
	Infer(ctx context.Context, req InferenceRequest) (string, error)
}

// CropRequest — параметры обрезки изображения (уже нормализованные).
type CropRequest struct {
	ImageURL string
	X        int
	Y        int
	Width    int
	Height   int
}

// Cropper — коллаборатор обрезки изображения.
// Возвращает URL обрезанного изображения.
type Cropper interface {
	Crop(ctx context.Context, req CropRequest) (string, error)
}

// FrameRequest — параметры извлечения кадра.
type FrameRequest struct {
	VideoURL         string
	TimestampSeconds float64
}

// FrameResult — результат извлечения кадра.
type FrameResult struct {
	FrameURL string

	// ActualTimestamp — момент, из которого реально взят кадр.
	ActualTimestamp float64

	// VideoDuration — длительность видео; 0, если неизвестна.
	VideoDuration float64

	// Warning — нефатальное предупреждение коллаборатора.
	Warning string
}

// FrameExtractor — коллаборатор извлечения кадра из видео.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, req FrameRequest) (*FrameResult, error)
}

// StatusObserver получает переходы статусов узлов.
//
// Вызывается синхронно из run, поэтому реализация не должна блокировать.
type StatusObserver interface {
	OnNodeStatus(nodeID string, status domain.NodeStatus)
}

// ObserverFunc — адаптер функции к StatusObserver.
type ObserverFunc func(nodeID string, status domain.NodeStatus)

// OnNodeStatus вызывает f(nodeID, status).
func (f ObserverFunc) OnNodeStatus(nodeID string, status domain.NodeStatus) {
	f(nodeID, status)
}
