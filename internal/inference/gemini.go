// Package inference реализует коллаборатор вызова модели поверх Gemini.
package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/shaiso/Weave/internal/engine"
	"github.com/shaiso/Weave/internal/runner"
)

// Значения по умолчанию.
const (
	defaultTimeout = 60 * time.Second

	// maxImageBytes — предел размера одного изображения для inline-передачи.
	maxImageBytes = 20 << 20
)

// Ошибки клиента модели.
var (
	// ErrEmptyResponse — модель не вернула текста.
	ErrEmptyResponse = errors.New("empty completion response")

	// ErrImageFetch — не удалось загрузить изображение для запроса.
	ErrImageFetch = errors.New("image fetch failed")
)

// GeminiClient — runner.Inferencer поверх google.golang.org/genai.
//
// Без API ключа клиент работает в demo-режиме и возвращает
// заглушку, не обращаясь к сети.
type GeminiClient struct {
	client     *genai.Client
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Config — конфигурация GeminiClient.
type Config struct {
	// APIKey — ключ Gemini API (GOOGLE_AI_API_KEY). Пустой ключ включает demo-режим.
	APIKey string

	// Timeout — таймаут одного запроса (default: 60s).
	Timeout time.Duration

	// BaseURL переопределяет адрес Gemini API (опционально).
	BaseURL string

	// HTTPClient — клиент для загрузки изображений и запросов к API (опционально).
	HTTPClient *http.Client

	Logger *slog.Logger
}

var _ runner.Inferencer = (*GeminiClient)(nil)

// New создаёт GeminiClient.
func New(ctx context.Context, cfg Config) (*GeminiClient, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &GeminiClient{httpClient: httpClient, timeout: timeout, logger: logger}
	if cfg.APIKey == "" {
		logger.Warn("GOOGLE_AI_API_KEY not set, inference runs in demo mode")
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("creating GenAI client: %w", err)
	}
	c.client = client

	return c, nil
}

// DemoMode возвращает true, если клиент не обращается к модели.
func (c *GeminiClient) DemoMode() bool {
	return c.client == nil
}

// Infer отправляет запрос в модель и возвращает текст ответа.
func (c *GeminiClient) Infer(ctx context.Context, req runner.InferenceRequest) (string, error) {
	if c.DemoMode() {
		return demoResponse(req.UserMessage), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Temperature передаётся всегда: 0 — осознанный выбор пользователя
	temp := float32(req.Temperature)
	config := &genai.GenerateContentConfig{Temperature: &temp}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	images, err := c.fetchImages(ctx, req.ImageURLs)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: buildParts(images, req.UserMessage)}}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return "", classify(fmt.Errorf("generating content: %w", err))
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("inference completed",
		"model", req.Model,
		"images", len(req.ImageURLs),
		"response_len", len(text),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return text, nil
}

// buildParts собирает части запроса: изображения, затем текст.
func buildParts(images []*genai.Blob, userMessage string) []*genai.Part {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, &genai.Part{InlineData: img})
	}
	if userMessage != "" {
		parts = append(parts, &genai.Part{Text: userMessage})
	}
	return parts
}

// fetchImages загружает изображения для inline-передачи в модель.
func (c *GeminiClient) fetchImages(ctx context.Context, urls []string) ([]*genai.Blob, error) {
	blobs := make([]*genai.Blob, 0, len(urls))
	for _, u := range urls {
		blob, err := c.fetchImage(ctx, u)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, blob)
	}
	return blobs, nil
}

// fetchImage загружает одно изображение.
// Ошибки сети и 5xx считаются временными, остальные нет.
func (c *GeminiClient) fetchImage(ctx context.Context, u string) (*genai.Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &classifiedError{
			reason: engine.InferenceReasonOther,
			err:    fmt.Errorf("%w: %s: %v", ErrImageFetch, u, err),
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &classifiedError{
			reason: engine.InferenceReasonTransient,
			err:    fmt.Errorf("%w: %s: %v", ErrImageFetch, u, err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		reason := engine.InferenceReasonOther
		if resp.StatusCode >= http.StatusInternalServerError {
			reason = engine.InferenceReasonTransient
		}
		return nil, &classifiedError{
			reason: reason,
			err:    fmt.Errorf("%w: %s: status %d", ErrImageFetch, u, resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, &classifiedError{
			reason: engine.InferenceReasonTransient,
			err:    fmt.Errorf("%w: %s: %v", ErrImageFetch, u, err),
		}
	}
	if len(data) > maxImageBytes {
		return nil, &classifiedError{
			reason: engine.InferenceReasonOther,
			err:    fmt.Errorf("%w: %s: larger than %d bytes", ErrImageFetch, u, maxImageBytes),
		}
	}

	mimeType := imageMIMEType(u)
	if ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && strings.HasPrefix(ct, "image/") {
		mimeType = ct
	}

	return &genai.Blob{Data: data, MIMEType: mimeType}, nil
}

// imageMIMEType угадывает MIME тип по расширению URL.
func imageMIMEType(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(p))); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/png"
}

func demoResponse(userMessage string) string {
	return fmt.Sprintf("[DEMO MODE]\n\nPrompt: %q\n\n"+
		"Response: Lines of code unfold,\nBugs dance in midnight's cold glow,\nCoffee fuels the soul.\n\n"+
		"(Add GOOGLE_AI_API_KEY to .env for real AI)", userMessage)
}
