// Weave Worker — выполняет executions из очереди.
//
// Worker:
//   - Получает execution.requested из RabbitMQ
//   - Подхватывает pending executions из БД (polling fallback)
//   - Выполняет граф и публикует статусы узлов
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Weave/internal/inference"
	"github.com/shaiso/Weave/internal/media"
	"github.com/shaiso/Weave/internal/mq"
	"github.com/shaiso/Weave/internal/repo"
	"github.com/shaiso/Weave/internal/runner"
	"github.com/shaiso/Weave/internal/telemetry"
	"github.com/shaiso/Weave/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting weave-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	r, err := newRunner(ctx, logger)
	if err != nil {
		logger.Error("failed to create runner", "error", err)
		os.Exit(1)
	}

	cfg := worker.Config{
		Executions: repo.NewExecutionRepo(pool),
		Workflows:  repo.NewWorkflowRepo(pool),
		Runner:     r,
		Prefetch:   intFromEnv("WORKER_CONCURRENCY", 1),
		Logger:     logger,
	}

	mqConn, err := mq.NewConnection(mq.URLFromEnv(), "weave-worker", logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		cfg.Conn = mqConn
		cfg.Events = mq.NewPublisher(mqConn, logger)
	}

	w := worker.New(cfg)
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if w.IsStopped() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	server := &http.Server{Addr: port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("weave-worker stopped")
}

// newRunner собирает Runner из переменных окружения.
func newRunner(ctx context.Context, logger *slog.Logger) (*runner.Runner, error) {
	gemini, err := inference.New(ctx, inference.Config{
		APIKey: os.Getenv("GOOGLE_AI_API_KEY"),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	if gemini.DemoMode() {
		logger.Warn("GOOGLE_AI_API_KEY is not set, inference runs in demo mode")
	}

	cfg := runner.Config{
		Inferencer: inference.NewRetrying(gemini, inference.RetryPolicy{}, logger),
		Metrics:    telemetry.NewMetrics(prometheus.DefaultRegisterer),
		Pacing:     time.Duration(intFromEnv("WEAVE_PACING_MS", 0)) * time.Millisecond,
		Logger:     logger,
	}

	if url := os.Getenv("MEDIA_BASE_URL"); url != "" {
		mc := media.NewClient(media.Config{BaseURL: url, Logger: logger})
		cfg.Cropper = mc
		cfg.FrameExtractor = mc
	} else {
		logger.Warn("MEDIA_BASE_URL is not set, crop and frame nodes will fail")
	}

	return runner.New(cfg), nil
}

// intFromEnv читает неотрицательное целое из переменной окружения.
func intFromEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
