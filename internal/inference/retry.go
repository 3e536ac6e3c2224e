package inference

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/Weave/internal/engine"
	"github.com/shaiso/Weave/internal/runner"
)

// Стратегии backoff.
const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

// RetryPolicy — политика повторов inference при временных ошибках.
type RetryPolicy struct {
	// MaxAttempts — общее число попыток, включая первую (default: 3).
	MaxAttempts int

	// InitialDelay — задержка перед первым повтором (default: 1s).
	InitialDelay time.Duration

	// MaxDelay — верхняя граница задержки (default: 30s).
	MaxDelay time.Duration

	// Backoff — "exponential" (default) или "fixed".
	Backoff string
}

// Retrying — runner.Inferencer, повторяющий запрос при ошибках
// класса transient. Ошибки auth, quota и other возвращаются сразу.
type Retrying struct {
	inner  runner.Inferencer
	policy RetryPolicy
	logger *slog.Logger
}

var _ runner.Inferencer = (*Retrying)(nil)

// NewRetrying оборачивает inner политикой повторов.
func NewRetrying(inner runner.Inferencer, policy RetryPolicy, logger *slog.Logger) *Retrying {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.Backoff == "" {
		policy.Backoff = BackoffExponential
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Retrying{inner: inner, policy: policy, logger: logger}
}

// Infer вызывает inner.Infer, повторяя временные ошибки.
func (r *Retrying) Infer(ctx context.Context, req runner.InferenceRequest) (string, error) {
	var lastErr error

	for attempt := 1; ; attempt++ {
		text, err := r.inner.Infer(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if attempt >= r.policy.MaxAttempts || !retryable(err) {
			return "", lastErr
		}

		delay := calculateBackoff(attempt, r.policy)
		r.logger.Debug("retrying inference",
			"model", req.Model,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", errors.Join(lastErr, ctx.Err())
		}
	}
}

// retryable возвращает true для временных ошибок.
// Отмена контекста не повторяется.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return engine.ClassifyInference(err) == engine.InferenceReasonTransient
}

// calculateBackoff вычисляет задержку после attempt-й попытки.
func calculateBackoff(attempt int, policy RetryPolicy) time.Duration {
	delay := policy.InitialDelay

	if policy.Backoff == BackoffExponential {
		// delay = initialDelay * 2^(attempt-1)
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > policy.MaxDelay {
				break
			}
		}
	}

	return min(delay, policy.MaxDelay)
}
