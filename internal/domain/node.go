package domain

import (
	"encoding/json"
	"fmt"
)

// NodeKind — тип узла workflow.
//
// Значения совпадают с именами типов, которые сохраняет канвас.
type NodeKind string

const (
	// KindText — статический текст.
	KindText NodeKind = "text"

	// KindImageUpload — заранее загруженное изображение.
	KindImageUpload NodeKind = "imageUpload"

	// KindVideoUpload — заранее загруженное видео.
	KindVideoUpload NodeKind = "videoUpload"

	// KindLLM — вызов языковой модели.
	KindLLM NodeKind = "llm"

	// KindCropImage — обрезка изображения.
	KindCropImage NodeKind = "cropImage"

	// KindExtractFrame — извлечение кадра из видео.
	KindExtractFrame NodeKind = "extractFrame"
)

// Kinds возвращает все известные типы узлов в каноническом порядке.
func Kinds() []NodeKind {
	return []NodeKind{
		KindText,
		KindImageUpload,
		KindVideoUpload,
		KindLLM,
		KindCropImage,
		KindExtractFrame,
	}
}

// IsValid возвращает true, если тип узла известен.
func (k NodeKind) IsValid() bool {
	switch k {
	case KindText, KindImageUpload, KindVideoUpload, KindLLM, KindCropImage, KindExtractFrame:
		return true
	default:
		return false
	}
}

// Значения по умолчанию для конфигураций узлов.
const (
	DefaultLLMModel       = "gemini-2.5-flash"
	DefaultLLMTemperature = 0.7
	DefaultLLMMaxTokens   = 1024
	DefaultCropWidth      = 100
	DefaultCropHeight     = 100
)

// Node — узел графа workflow.
//
// Узел принадлежит workflow и редактируется UI между запусками.
// Во время run узел только читается.
type Node struct {
	// ID — уникальный идентификатор узла в рамках workflow.
	ID string `json:"id"`

	// Kind — тип узла, определяет конфигурацию и executor.
	Kind NodeKind `json:"type"`

	// Label — отображаемое имя узла.
	Label string `json:"label,omitempty"`

	// Config — конфигурация, специфичная для типа.
	// Nil, если тип неизвестен.
	Config NodeConfig `json:"-"`

	// LastStatus — статус последнего выполнения (для UI).
	LastStatus NodeStatus `json:"status,omitempty"`
}

// NodeConfig — закрытое объединение конфигураций узлов.
//
// Реализуется только типами этого пакета.
type NodeConfig interface {
	// Kind возвращает тип узла, которому принадлежит конфигурация.
	Kind() NodeKind

	nodeConfig()
}

// TextConfig — конфигурация текстового узла.
type TextConfig struct {
	Value string `json:"value"`
}

// ImageUploadConfig — конфигурация узла загруженного изображения.
type ImageUploadConfig struct {
	ImageURL string `json:"imageUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
}

// VideoUploadConfig — конфигурация узла загруженного видео.
type VideoUploadConfig struct {
	VideoURL    string  `json:"videoUrl,omitempty"`
	FileName    string  `json:"fileName,omitempty"`
	FileSize    int64   `json:"fileSize,omitempty"`
	DurationSec float64 `json:"duration,omitempty"`
}

// LLMConfig — конфигурация узла вызова модели.
type LLMConfig struct {
	// Model — имя модели (например, "gemini-2.5-flash").
	Model string `json:"model"`

	// PromptTemplate — статический user message.
	// Может содержать Go template выражения: {{ .Inputs.port }}.
	PromptTemplate string `json:"prompt"`

	// SystemPrompt — статический system prompt (опционально).
	SystemPrompt string `json:"systemPrompt,omitempty"`

	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

// CropConfig — прямоугольник обрезки в пикселях.
type CropConfig struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FrameConfig — конфигурация извлечения кадра.
type FrameConfig struct {
	TimestampSeconds float64 `json:"timestamp"`
}

func (TextConfig) Kind() NodeKind        { return KindText }
func (ImageUploadConfig) Kind() NodeKind { return KindImageUpload }
func (VideoUploadConfig) Kind() NodeKind { return KindVideoUpload }
func (LLMConfig) Kind() NodeKind         { return KindLLM }
func (CropConfig) Kind() NodeKind        { return KindCropImage }
func (FrameConfig) Kind() NodeKind       { return KindExtractFrame }

func (TextConfig) nodeConfig()        {}
func (ImageUploadConfig) nodeConfig() {}
func (VideoUploadConfig) nodeConfig() {}
func (LLMConfig) nodeConfig()         {}
func (CropConfig) nodeConfig()        {}
func (FrameConfig) nodeConfig()       {}

// DefaultConfig возвращает конфигурацию по умолчанию для типа узла.
// Для неизвестного типа возвращает nil.
func DefaultConfig(kind NodeKind) NodeConfig {
	switch kind {
	case KindText:
		return TextConfig{}
	case KindImageUpload:
		return ImageUploadConfig{}
	case KindVideoUpload:
		return VideoUploadConfig{}
	case KindLLM:
		return LLMConfig{
			Model:       DefaultLLMModel,
			Temperature: DefaultLLMTemperature,
			MaxTokens:   DefaultLLMMaxTokens,
		}
	case KindCropImage:
		return CropConfig{Width: DefaultCropWidth, Height: DefaultCropHeight}
	case KindExtractFrame:
		return FrameConfig{}
	default:
		return nil
	}
}

// nodeJSON — представление узла на проводе.
type nodeJSON struct {
	ID     string          `json:"id"`
	Kind   NodeKind        `json:"type"`
	Label  string          `json:"label,omitempty"`
	Status NodeStatus      `json:"status,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON сериализует узел вместе с конфигурацией в поле data.
func (n Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{
		ID:     n.ID,
		Kind:   n.Kind,
		Label:  n.Label,
		Status: n.LastStatus,
	}
	if n.Config != nil {
		data, err := json.Marshal(n.Config)
		if err != nil {
			return nil, fmt.Errorf("marshal node %s config: %w", n.ID, err)
		}
		out.Data = data
	}
	return json.Marshal(out)
}

// UnmarshalJSON разбирает узел, выбирая тип конфигурации по полю type.
//
// Отсутствующие поля data получают значения по умолчанию.
// Неизвестный тип не является ошибкой разбора: Config остаётся nil,
// а ошибка проявится при выполнении этого узла.
func (n *Node) UnmarshalJSON(b []byte) error {
	var in nodeJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	n.ID = in.ID
	n.Kind = in.Kind
	n.Label = in.Label
	n.LastStatus = in.Status
	n.Config = nil

	cfg, err := decodeConfig(in.Kind, in.Data)
	if err != nil {
		return fmt.Errorf("node %s: %w", in.ID, err)
	}
	n.Config = cfg
	return nil
}

// decodeConfig декодирует data поверх конфигурации по умолчанию.
func decodeConfig(kind NodeKind, data json.RawMessage) (NodeConfig, error) {
	hasData := len(data) > 0 && string(data) != "null"

	switch kind {
	case KindText:
		cfg := TextConfig{}
		if err := decodeInto(hasData, data, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case KindImageUpload:
		cfg := ImageUploadConfig{}
		if err := decodeInto(hasData, data, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case KindVideoUpload:
		cfg := VideoUploadConfig{}
		if err := decodeInto(hasData, data, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case KindLLM:
		cfg := DefaultConfig(KindLLM).(LLMConfig)
		if err := decodeInto(hasData, data, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case KindCropImage:
		cfg := DefaultConfig(KindCropImage).(CropConfig)
		if err := decodeInto(hasData, data, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case KindExtractFrame:
		cfg := FrameConfig{}
		if err := decodeInto(hasData, data, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	default:
		return nil, nil
	}
}

func decodeInto(hasData bool, data json.RawMessage, dst any) error {
	if !hasData {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
