package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/Weave/internal/domain"
	"github.com/shaiso/Weave/internal/engine"
)

// nodeOutput — результат executor'а.
type nodeOutput struct {
	// Value — основное значение, сохраняется как Outputs["result"].
	Value any

	// Warning — нефатальное предупреждение.
	Warning string
}

// dispatch выбирает executor по типу конфигурации узла.
//
// Новый тип узла добавляется сюда вместе с его NodeConfig.
// incoming — рёбра, входящие в узел.
func (r *Runner) dispatch(ctx context.Context, node *domain.Node, incoming []domain.Edge, inputs engine.Inputs) (*nodeOutput, error) {
	if node.Config != nil && node.Config.Kind() != node.Kind {
		return nil, &engine.UnknownKindError{NodeID: node.ID, Kind: node.Kind, ConfigKind: node.Config.Kind()}
	}

	switch cfg := node.Config.(type) {
	case domain.TextConfig:
		return execText(cfg, inputs)
	case domain.ImageUploadConfig:
		return execUpload(node.ID, cfg.ImageURL, "image")
	case domain.VideoUploadConfig:
		return execUpload(node.ID, cfg.VideoURL, "video")
	case domain.LLMConfig:
		return r.execLLM(ctx, node.ID, cfg, inputs)
	case domain.CropConfig:
		return r.execCrop(ctx, node.ID, cfg, incoming, inputs)
	case domain.FrameConfig:
		return r.execFrame(ctx, node.ID, cfg, incoming, inputs)
	default:
		return nil, &engine.UnknownKindError{NodeID: node.ID, Kind: node.Kind}
	}
}

// execText возвращает связанный текст или статическое значение.
// Пустая строка — валидный результат.
func execText(cfg domain.TextConfig, inputs engine.Inputs) (*nodeOutput, error) {
	if s, ok := inputs.First(engine.PortText, engine.DefaultPort); ok {
		return &nodeOutput{Value: s}, nil
	}
	return &nodeOutput{Value: cfg.Value}, nil
}

// execUpload возвращает URL уже загруженного файла.
func execUpload(nodeID, url, media string) (*nodeOutput, error) {
	if strings.TrimSpace(url) == "" {
		return nil, &engine.MissingInputError{
			NodeID: nodeID,
			Port:   media + "Url",
			Reason: "no " + media + " uploaded",
		}
	}
	return &nodeOutput{Value: url}, nil
}

// execLLM собирает промпт и вызывает модель.
//
// Связанные systemPrompt и userMessage перекрывают конфигурацию.
// Без связанного сообщения используется отрендеренный PromptTemplate.
func (r *Runner) execLLM(ctx context.Context, nodeID string, cfg domain.LLMConfig, inputs engine.Inputs) (*nodeOutput, error) {
	system := cfg.SystemPrompt
	if s, ok := inputs.String(engine.PortSystemPrompt); ok {
		system = s
	}

	user, ok := inputs.First(engine.PortUserMessage, engine.DefaultPort)
	if !ok {
		rendered, err := engine.RenderPrompt(cfg.PromptTemplate, inputs)
		if err != nil {
			return nil, engine.NewValidationError(nodeID, "prompt", err.Error(), err)
		}
		user = rendered
	}

	images := inputs.Strings(engine.PortImages)
	if img, ok := inputs.String(engine.PortImage); ok {
		images = append(images, img)
	}

	if strings.TrimSpace(user) == "" && len(images) == 0 {
		return nil, &engine.MissingInputError{
			NodeID: nodeID,
			Port:   engine.PortUserMessage,
			Reason: "no prompt provided",
		}
	}

	model := cfg.Model
	if model == "" {
		model = domain.DefaultLLMModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = domain.DefaultLLMMaxTokens
	}

	if r.inferencer == nil {
		return nil, &engine.InferenceError{NodeID: nodeID, Model: model, Reason: engine.InferenceReasonOther, Err: ErrNoInferencer}
	}

	text, err := r.inferencer.Infer(ctx, InferenceRequest{
		Model:        model,
		SystemPrompt: system,
		UserMessage:  user,
		ImageURLs:    images,
		Temperature:  cfg.Temperature,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return nil, &engine.InferenceError{
			NodeID: nodeID,
			Model:  model,
			Reason: engine.ClassifyInference(err),
			Err:    err,
		}
	}

	return &nodeOutput{Value: text}, nil
}

// execCrop обрезает связанное изображение.
// Порт image и порт по умолчанию вместе принимают ровно одно ребро.
func (r *Runner) execCrop(ctx context.Context, nodeID string, cfg domain.CropConfig, incoming []domain.Edge, inputs engine.Inputs) (*nodeOutput, error) {
	if err := singleInput(nodeID, "image", incoming, engine.PortImage); err != nil {
		return nil, err
	}

	imageURL, ok := inputs.First(engine.PortImage, engine.DefaultPort)
	if !ok {
		return nil, &engine.MissingInputError{
			NodeID: nodeID,
			Port:   engine.PortImage,
			Reason: "no image input connected",
		}
	}

	if r.cropper == nil {
		return nil, &engine.ProcessingError{NodeID: nodeID, Operation: "crop", Err: ErrNoCropper}
	}

	url, err := r.cropper.Crop(ctx, CropRequest{
		ImageURL: imageURL,
		X:        max(cfg.X, 0),
		Y:        max(cfg.Y, 0),
		Width:    max(cfg.Width, 1),
		Height:   max(cfg.Height, 1),
	})
	if err != nil {
		return nil, &engine.ProcessingError{NodeID: nodeID, Operation: "crop", Err: err}
	}
	if url == "" {
		return nil, &engine.ProcessingError{NodeID: nodeID, Operation: "crop", Err: ErrEmptyResponse}
	}

	return &nodeOutput{Value: url}, nil
}

// execFrame извлекает кадр из связанного видео.
//
// Timestamp за пределами видео не является ошибкой: коллаборатор берёт
// последний кадр, а результат получает предупреждение.
func (r *Runner) execFrame(ctx context.Context, nodeID string, cfg domain.FrameConfig, incoming []domain.Edge, inputs engine.Inputs) (*nodeOutput, error) {
	if err := singleInput(nodeID, "video", incoming, engine.PortVideo); err != nil {
		return nil, err
	}

	videoURL, ok := inputs.First(engine.PortVideo, engine.DefaultPort)
	if !ok {
		return nil, &engine.MissingInputError{
			NodeID: nodeID,
			Port:   engine.PortVideo,
			Reason: "no video input connected",
		}
	}

	if r.frames == nil {
		return nil, &engine.ProcessingError{NodeID: nodeID, Operation: "extract-frame", Err: ErrNoFrameExtractor}
	}

	ts := cfg.TimestampSeconds
	var warning string
	if ts < 0 {
		warning = fmt.Sprintf("Timestamp %gs is negative. Using 0s instead.", ts)
		ts = 0
	}

	res, err := r.frames.ExtractFrame(ctx, FrameRequest{VideoURL: videoURL, TimestampSeconds: ts})
	if err != nil {
		return nil, &engine.ProcessingError{NodeID: nodeID, Operation: "extract-frame", Err: err}
	}
	if res == nil || res.FrameURL == "" {
		return nil, &engine.ProcessingError{NodeID: nodeID, Operation: "extract-frame", Err: ErrEmptyResponse}
	}

	switch {
	case res.Warning != "":
		warning = res.Warning
	case res.VideoDuration > 0 && ts > res.VideoDuration:
		warning = ClampWarning(ts, res.VideoDuration)
	}

	return &nodeOutput{Value: res.FrameURL, Warning: warning}, nil
}

// singleInput проверяет, что в port и порт по умолчанию входит не больше одного ребра.
// Считаются рёбра, а не значения: упавший источник тоже занимает вход.
func singleInput(nodeID, media string, incoming []domain.Edge, port string) error {
	if n := engine.CountEdges(incoming, port, engine.DefaultPort); n > 1 {
		return engine.NewValidationError(nodeID, port,
			fmt.Sprintf("expected exactly one %s input, %d connected", media, n), engine.ErrDuplicateBinding)
	}
	return nil
}

// ClampWarning формирует предупреждение о timestamp за концом видео.
func ClampWarning(timestamp, duration float64) string {
	return fmt.Sprintf("Timestamp %gs exceeds video duration (%.2fs). Using last frame.", timestamp, duration)
}
