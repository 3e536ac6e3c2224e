// Weave API — HTTP API для workflows и executions.
//
// Без RabbitMQ executions выполняются синхронно в запросе,
// с RabbitMQ ставятся в очередь weave-worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Weave/internal/api"
	"github.com/shaiso/Weave/internal/inference"
	"github.com/shaiso/Weave/internal/media"
	"github.com/shaiso/Weave/internal/mq"
	"github.com/shaiso/Weave/internal/repo"
	"github.com/shaiso/Weave/internal/runner"
	"github.com/shaiso/Weave/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weave_api_healthz_requests_total",
		Help: "Total /healthz requests handled by weave-api",
	})
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting weave-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	r, err := newRunner(ctx, logger)
	if err != nil {
		logger.Error("failed to create runner", "error", err)
		os.Exit(1)
	}

	cfg := api.Config{
		Workflows:  repo.NewWorkflowRepo(pool),
		Executions: repo.NewExecutionRepo(pool),
		Runner:     r,
		CORSOrigin: os.Getenv("CORS_ORIGIN"),
		Logger:     logger,
	}

	// RabbitMQ опционален: без него executions выполняются синхронно
	var mqConn *mq.Connection
	if os.Getenv("WEAVE_SYNC") != "true" {
		mqConn, err = mq.NewConnection(mq.URLFromEnv(), "weave-api", logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, executing synchronously", "error", err)
		} else {
			defer mqConn.Close()
			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			cfg.Queue = mq.NewPublisher(mqConn, logger)
			logger.Debug("rabbitmq topology", "info", mq.TopologyInfo())
		}
	}

	handler := api.NewHandler(cfg)

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		if mqConn != nil && !mqConn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "rabbitmq disconnected")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
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
		Pacing:     pacingFromEnv(),
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

// pacingFromEnv читает WEAVE_PACING_MS.
func pacingFromEnv() time.Duration {
	ms, err := strconv.Atoi(os.Getenv("WEAVE_PACING_MS"))
	if err != nil || ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
