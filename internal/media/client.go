// Package media реализует коллабораторы обработки изображений и видео
// поверх HTTP сервиса обработки медиа.
//
// Эндпоинты:
//   - POST /api/process/crop          {imageUrl, x, y, width, height} → {croppedImageUrl}
//   - POST /api/process/extract-frame {videoUrl, timestamp}           → {frameUrl, actualTimestamp?, videoDuration?, warning?}
//
// Ошибка сервиса приходит как {"error": "..."} со статусом >= 400.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/shaiso/Weave/internal/runner"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	// maxResponseBytes — предел размера ответа сервиса.
	maxResponseBytes = 1 << 20
)

// Ошибки клиента медиа-сервиса.
var (
	// ErrRequest — HTTP-запрос завершился ошибкой.
	ErrRequest = errors.New("media request failed")

	// ErrBadResponse — ответ сервиса не содержит ожидаемых полей.
	ErrBadResponse = errors.New("unexpected media response")
)

// Client — HTTP-клиент сервиса обработки медиа.
// Реализует runner.Cropper и runner.FrameExtractor.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config — конфигурация Client.
type Config struct {
	// BaseURL — адрес сервиса (MEDIA_BASE_URL).
	BaseURL string

	// Timeout — таймаут одного запроса (default: 30s).
	Timeout time.Duration

	// HTTPClient — клиент для запросов (опционально).
	HTTPClient *http.Client

	Logger *slog.Logger
}

var (
	_ runner.Cropper        = (*Client)(nil)
	_ runner.FrameExtractor = (*Client)(nil)
)

// NewClient создаёт клиент медиа-сервиса.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Crop обрезает изображение и возвращает URL результата.
func (c *Client) Crop(ctx context.Context, req runner.CropRequest) (string, error) {
	body := map[string]any{
		"imageUrl": req.ImageURL,
		"x":        req.X,
		"y":        req.Y,
		"width":    req.Width,
		"height":   req.Height,
	}

	resp, err := c.post(ctx, "/api/process/crop", body)
	if err != nil {
		return "", err
	}

	url := gjson.GetBytes(resp, "croppedImageUrl")
	if url.Type != gjson.String || url.String() == "" {
		return "", fmt.Errorf("%w: croppedImageUrl missing", ErrBadResponse)
	}

	return url.String(), nil
}

// ExtractFrame извлекает кадр из видео.
func (c *Client) ExtractFrame(ctx context.Context, req runner.FrameRequest) (*runner.FrameResult, error) {
	body := map[string]any{
		"videoUrl":  req.VideoURL,
		"timestamp": req.TimestampSeconds,
	}

	resp, err := c.post(ctx, "/api/process/extract-frame", body)
	if err != nil {
		return nil, err
	}

	fields := gjson.GetManyBytes(resp, "frameUrl", "actualTimestamp", "videoDuration", "warning")
	if fields[0].Type != gjson.String || fields[0].String() == "" {
		return nil, fmt.Errorf("%w: frameUrl missing", ErrBadResponse)
	}

	result := &runner.FrameResult{
		FrameURL:        fields[0].String(),
		ActualTimestamp: req.TimestampSeconds,
		VideoDuration:   fields[2].Float(),
		Warning:         fields[3].String(),
	}
	if fields[1].Type == gjson.Number {
		result.ActualTimestamp = fields[1].Float()
	}

	return result, nil
}

// post отправляет JSON и возвращает тело успешного ответа.
func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %v", ErrRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRequest, err)
	}
	if len(respBody) > maxResponseBytes {
		return nil, fmt.Errorf("%w: response larger than %d bytes", ErrBadResponse, maxResponseBytes)
	}

	c.logger.Debug("media request completed",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(respBody, "error").String()
		if msg == "" {
			msg = truncate(string(respBody), 200)
		}
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrRequest, resp.StatusCode, msg)
	}

	if !gjson.ValidBytes(respBody) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrBadResponse)
	}

	return respBody, nil
}

// truncate обрезает строку до maxLen символов.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
