package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Weave/internal/domain"
	"github.com/shaiso/Weave/internal/engine"
	"github.com/shaiso/Weave/internal/telemetry"
)

// Runner выполняет графы workflow.
//
// Runner не хранит состояние между run'ами: каждый run владеет своей
// картой выходов и списком результатов, поэтому один Runner можно
// использовать из нескольких горутин одновременно.
type Runner struct {
	inferencer Inferencer
	cropper    Cropper
	frames     FrameExtractor
	observer   StatusObserver
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	pacing     time.Duration
	now        func() time.Time
}

// Config — конфигурация Runner.
type Config struct {
	// Коллабораторы. Nil допустим: узлы, которым он нужен, упадут.
	Inferencer     Inferencer
	Cropper        Cropper
	FrameExtractor FrameExtractor

	// Observer — получатель статусов узлов (опционально).
	Observer StatusObserver

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// Pacing — пауза между узлами (default: 0).
	// Ограничивает частоту запросов к внешним сервисам.
	Pacing time.Duration

	Logger *slog.Logger
}

// New создаёт новый Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pacing := cfg.Pacing
	if pacing < 0 {
		pacing = 0
	}

	return &Runner{
		inferencer: cfg.Inferencer,
		cropper:    cfg.Cropper,
		frames:     cfg.FrameExtractor,
		observer:   cfg.Observer,
		metrics:    cfg.Metrics,
		logger:     logger,
		pacing:     pacing,
		now:        time.Now,
	}
}

// WithObserver возвращает копию Runner с другим observer'ом.
// Используется хостами, которые публикуют статусы отдельно для каждого run.
func (r *Runner) WithObserver(observer StatusObserver) *Runner {
	cp := *r
	cp.observer = observer
	return &cp
}

// Execute выполняет весь граф.
//
// Ошибка возвращается только если граф невалиден или содержит цикл;
// в этом случае ни один узел не выполняется. Ошибки узлов записываются
// в RunResult.
func (r *Runner) Execute(ctx context.Context, g *domain.Graph) (*domain.RunResult, error) {
	return r.run(ctx, g, domain.ScopeFull)
}

// ExecuteSubset выполняет targets и все узлы, от которых они
// транзитивно зависят. Остальные узлы не выполняются и не попадают
// в результат. Пустой targets означает весь граф.
func (r *Runner) ExecuteSubset(ctx context.Context, g *domain.Graph, targets []string) (*domain.RunResult, error) {
	if len(targets) == 0 {
		return r.Execute(ctx, g)
	}

	scope := domain.ScopeSelected
	if len(targets) == 1 {
		scope = domain.ScopeSingle
	}

	sub, err := engine.Subgraph(g, targets)
	if err != nil {
		r.logger.Debug("run aborted", "error", err)
		r.metrics.ObserveRun(string(domain.RunStatusFailed), string(scope))
		return nil, err
	}

	return r.run(ctx, sub, scope)
}

// run упорядочивает граф и последовательно выполняет узлы.
func (r *Runner) run(ctx context.Context, g *domain.Graph, scope domain.ExecutionScope) (*domain.RunResult, error) {
	if g == nil {
		g = &domain.Graph{}
	}

	// Логгер вызывающего (с execution_id и т.п.) имеет приоритет
	logger := telemetry.WithRunID(telemetry.FromContext(ctx, r.logger), uuid.NewString())
	logger.Debug("run ordering", "nodes", len(g.Nodes), "edges", len(g.Edges), "scope", scope)

	dag, err := engine.BuildDAG(g)
	if err != nil {
		logger.Debug("run aborted", "error", err)
		r.metrics.ObserveRun(string(domain.RunStatusFailed), string(scope))
		return nil, err
	}

	for _, node := range dag.Order {
		r.notify(logger, node.ID, domain.NodeStatusPending)
	}

	// prior — выходы успешно выполненных узлов (nodeID → value)
	prior := make(map[string]any, len(dag.Order))
	results := make([]domain.NodeResult, 0, len(dag.Order))

	for i, node := range dag.Order {
		if i > 0 {
			r.pace(ctx)
		}

		res := r.executeNode(ctx, logger, node.Def, g.IncomingEdges(node.ID), prior)
		if res.Status == domain.NodeStatusSuccess {
			prior[node.ID], _ = res.Output()
		}
		results = append(results, res)
	}

	result := domain.NewRunResult(results)
	succeeded, failed := result.Counts()

	logger.Info("run completed",
		"status", result.Status,
		"scope", scope,
		"succeeded", succeeded,
		"failed", failed,
	)
	r.metrics.ObserveRun(string(result.Status), string(scope))

	return result, nil
}

// executeNode выполняет один узел и формирует его NodeResult.
func (r *Runner) executeNode(
	ctx context.Context,
	logger *slog.Logger,
	node *domain.Node,
	incoming []domain.Edge,
	prior map[string]any,
) domain.NodeResult {
	logger = telemetry.WithNodeID(logger, node.ID, string(node.Kind))
	inputs := engine.Bind(node.ID, incoming, prior)

	res := domain.NodeResult{
		ID:        uuid.New(),
		NodeID:    node.ID,
		NodeName:  node.Label,
		NodeKind:  node.Kind,
		Inputs:    inputs,
		StartedAt: r.now(),
	}

	r.notify(logger, node.ID, domain.NodeStatusRunning)
	logger.Debug("node started", "inputs", len(inputs))

	var (
		out *nodeOutput
		err error
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("run cancelled: %w", ctxErr)
	} else {
		out, err = r.safeDispatch(ctx, node, incoming, inputs)
	}

	res.CompletedAt = r.now()
	elapsed := res.CompletedAt.Sub(res.StartedAt)
	res.DurationMs = elapsed.Milliseconds()

	if err != nil {
		res.Status = domain.NodeStatusFailed
		res.ErrorMessage = err.Error()
		logger.Warn("node failed", "error", err, "duration_ms", res.DurationMs)
	} else {
		res.Status = domain.NodeStatusSuccess
		res.Outputs = map[string]any{domain.OutputKey: out.Value}
		res.Warning = out.Warning
		if out.Warning != "" {
			logger.Warn("node warning", "warning", out.Warning)
		}
		logger.Info("node succeeded", "duration_ms", res.DurationMs)
	}

	r.metrics.ObserveNode(string(node.Kind), string(res.Status), elapsed)
	r.notify(logger, node.ID, res.Status)

	return res
}

// safeDispatch вызывает executor узла, превращая панику в ошибку узла.
func (r *Runner) safeDispatch(ctx context.Context, node *domain.Node, incoming []domain.Edge, inputs engine.Inputs) (out *nodeOutput, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrNodePanic, rec)
		}
	}()
	return r.dispatch(ctx, node, incoming, inputs)
}

// notify сообщает observer'у о смене статуса. Паника observer'а
// логируется и не влияет на run.
func (r *Runner) notify(logger *slog.Logger, nodeID string, status domain.NodeStatus) {
	if r.observer == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("status observer panicked", "node_id", nodeID, "status", status, "panic", rec)
		}
	}()
	r.observer.OnNodeStatus(nodeID, status)
}

// pace выдерживает паузу между узлами. Отмена ctx прерывает паузу.
func (r *Runner) pace(ctx context.Context) {
	if r.pacing <= 0 {
		return
	}
	timer := time.NewTimer(r.pacing)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
