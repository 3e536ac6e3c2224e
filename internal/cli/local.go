package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Weave/internal/domain"
	"github.com/shaiso/Weave/internal/inference"
	"github.com/shaiso/Weave/internal/media"
	"github.com/shaiso/Weave/internal/runner"
	"github.com/shaiso/Weave/internal/telemetry"
)

const defaultParallel = 4

// LocalConfig — окружение локального выполнения графов.
type LocalConfig struct {
	// APIKey — ключ Gemini. Пустой ключ включает demo-режим.
	APIKey string

	// MediaURL — адрес сервиса обработки медиа.
	// Без него узлы cropImage и extractFrame падают.
	MediaURL string

	// Pacing — пауза между узлами одного графа.
	Pacing time.Duration

	// Parallel — сколько графов выполнять одновременно (default: 4).
	Parallel int

	// Targets — если задан, выполняется только замыкание этих узлов.
	Targets []string

	Logger *slog.Logger
}

// LocalResult — итог выполнения одного файла.
type LocalResult struct {
	File        string              `json:"file"`
	Status      string              `json:"status"`
	Error       string              `json:"error,omitempty"`
	NodeResults []domain.NodeResult `json:"nodeResults,omitempty"`
}

// NewRunCmd создаёт команду локального выполнения графов.
// Графы выполняются в процессе CLI, без API и БД.
func NewRunCmd(outputFn func() *Output) *cobra.Command {
	cfg := LocalConfig{}
	var pacingMs int

	cmd := &cobra.Command{
		Use:   "run FILE...",
		Short: "Execute graph JSON files locally",
		Long: `Execute one or more graph files ({nodes, edges}) in-process.

Files run concurrently (--parallel); nodes within a graph run sequentially
in dependency order. Inference uses GOOGLE_AI_API_KEY (demo mode without it),
crop and frame extraction use MEDIA_BASE_URL.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Pacing = time.Duration(pacingMs) * time.Millisecond
			cfg.Logger = telemetry.NewLogger(os.Stderr)

			r, err := NewLocalRunner(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			results, err := RunFiles(cmd.Context(), r, args, cfg)
			if err != nil {
				return err
			}

			return printLocalResults(outputFn(), results)
		},
	}

	cmd.Flags().StringVar(&cfg.APIKey, "api-key", os.Getenv("GOOGLE_AI_API_KEY"), "Gemini API key")
	cmd.Flags().StringVar(&cfg.MediaURL, "media-url", os.Getenv("MEDIA_BASE_URL"), "Media processing service URL")
	cmd.Flags().IntVar(&pacingMs, "pacing-ms", 0, "Pause between nodes in milliseconds")
	cmd.Flags().IntVar(&cfg.Parallel, "parallel", defaultParallel, "Graphs executed concurrently")
	cmd.Flags().StringSliceVar(&cfg.Targets, "node", nil, "Target node ID (repeatable); dependencies run too")

	return cmd
}

// NewLocalRunner собирает Runner с реальными коллабораторами.
func NewLocalRunner(ctx context.Context, cfg LocalConfig) (*runner.Runner, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gemini, err := inference.New(ctx, inference.Config{APIKey: cfg.APIKey, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("create inference client: %w", err)
	}
	if gemini.DemoMode() {
		logger.Warn("GOOGLE_AI_API_KEY is not set, inference runs in demo mode")
	}

	rc := runner.Config{
		Inferencer: inference.NewRetrying(gemini, inference.RetryPolicy{}, logger),
		Pacing:     cfg.Pacing,
		Logger:     logger,
	}

	if cfg.MediaURL != "" {
		mc := media.NewClient(media.Config{BaseURL: cfg.MediaURL, Logger: logger})
		rc.Cropper = mc
		rc.FrameExtractor = mc
	}

	return runner.New(rc), nil
}

// RunFiles выполняет графы из файлов, не более cfg.Parallel одновременно.
//
// Ошибка чтения или структуры графа записывается в результат файла
// и не прерывает остальные. Порядок результатов совпадает с files.
func RunFiles(ctx context.Context, r *runner.Runner, files []string, cfg LocalConfig) ([]LocalResult, error) {
	parallel := cfg.Parallel
	if parallel <= 0 {
		parallel = defaultParallel
	}

	results := make([]LocalResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for i, file := range files {
		g.Go(func() error {
			results[i] = runFile(ctx, r, file, cfg.Targets)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runFile читает и выполняет один граф.
func runFile(ctx context.Context, r *runner.Runner, file string, targets []string) LocalResult {
	res := LocalResult{File: file}

	g, err := loadGraph(file)
	if err != nil {
		res.Status = string(domain.RunStatusFailed)
		res.Error = err.Error()
		return res
	}

	var result *domain.RunResult
	if len(targets) > 0 {
		result, err = r.ExecuteSubset(ctx, g, targets)
	} else {
		result, err = r.Execute(ctx, g)
	}
	if err != nil {
		res.Status = string(domain.RunStatusFailed)
		res.Error = err.Error()
		return res
	}

	res.Status = string(result.Status)
	res.NodeResults = result.NodeResults
	return res
}

// loadGraph читает граф {nodes, edges} из JSON файла.
func loadGraph(file string) (*domain.Graph, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	var g domain.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return &g, nil
}

// printLocalResults выводит результаты и возвращает ошибку,
// если хотя бы один граф не выполнился полностью.
func printLocalResults(out *Output, results []LocalResult) error {
	failed := 0
	for _, res := range results {
		if res.Status != string(domain.RunStatusSuccess) {
			failed++
		}
	}

	if out.IsJSON() {
		out.JSON(results)
	} else {
		for _, res := range results {
			out.Success(fmt.Sprintf("%s: %s", res.File, res.Status))
			if res.Error != "" {
				out.Error(res.Error)
			}
			if len(res.NodeResults) > 0 {
				out.Table(nodeResultHeaders, nodeResultRows(toResponses(res.NodeResults)))
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d graphs did not succeed", failed, len(results))
	}
	return nil
}

// toResponses приводит доменные результаты к форме ответа API.
func toResponses(results []domain.NodeResult) []NodeResultResponse {
	out := make([]NodeResultResponse, len(results))
	for i, r := range results {
		out[i] = NodeResultResponse{
			NodeID:       r.NodeID,
			NodeName:     r.NodeName,
			NodeType:     string(r.NodeKind),
			Status:       string(r.Status),
			Outputs:      r.Outputs,
			ErrorMessage: r.ErrorMessage,
			Warning:      r.Warning,
			Duration:     r.DurationMs,
		}
	}
	return out
}
