package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/Weave/internal/domain"
	"github.com/shaiso/Weave/internal/engine"
	"github.com/shaiso/Weave/internal/repo"
	"github.com/shaiso/Weave/internal/telemetry"
)

// ListExecutions возвращает историю executions workflow, новые первыми.
// GET /api/v1/workflows/{id}/executions?limit=50
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	workflowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	limit := repo.DefaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	executions, err := h.executions.ListByWorkflow(r.Context(), workflowID, limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ExecutionResponse, len(executions))
	for i, e := range executions {
		result[i] = ExecutionFromDomain(e)
	}

	List(w, result, len(result))
}

// GetExecution возвращает execution с результатами узлов.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid execution id")
		return
	}

	exec, err := h.executions.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	Success(w, ExecutionFromDomain(*exec))
}

// ExecuteWorkflow запускает workflow целиком или для выбранных узлов.
// POST /api/v1/workflows/{id}/executions
//
// С очередью execution создаётся в pending и выполняется worker'ом (202).
// Без очереди граф выполняется в запросе и возвращается итог (200).
// Невалидный граф отклоняется с 422 до создания execution.
func (h *Handler) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	var req ExecuteRequest
	if err := decodeOptional(r.Body, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	scope, targets, msg := resolveScope(req)
	if msg != "" {
		BadRequest(w, msg)
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), workflowID)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	g := wf.Graph()
	if err := checkGraph(&g, targets); HandleGraphError(w, h.logger, err) {
		return
	}

	exec := domain.NewExecution(wf.ID, scope, targets)
	logger := telemetry.WithExecutionID(telemetry.WithWorkflowID(h.logger, wf.ID.String()), exec.ID.String())

	if h.queue != nil {
		if err := h.executions.Create(r.Context(), exec); HandleRepoError(w, h.logger, err, "") {
			return
		}
		if err := h.queue.PublishExecutionRequested(r.Context(), exec.ID); err != nil {
			// Execution останется pending: его подхватит polling worker'а
			logger.Warn("failed to publish execution.requested", "error", err)
		}

		logger.Info("execution queued", "scope", scope)
		JSON(w, http.StatusAccepted, DataResponse{Data: ExecutionFromDomain(*exec)})
		return
	}

	exec.Start()
	if err := h.executions.Create(r.Context(), exec); HandleRepoError(w, h.logger, err, "") {
		return
	}

	result, err := h.execute(telemetry.WithLogger(r.Context(), logger), &g, targets)
	if err != nil {
		exec.MarkFailed(err.Error())
	} else {
		exec.Complete(result)
	}

	// Итог сохраняем даже если клиент отключился
	if err := h.executions.Finish(context.WithoutCancel(r.Context()), exec); HandleRepoError(w, h.logger, err, "") {
		return
	}

	logger.Info("execution finished", "status", exec.Status, "duration_ms", exec.DurationMs)
	Success(w, ExecutionFromDomain(*exec))
}

// RunGraph выполняет переданный граф без сохранения.
// POST /api/v1/run
func (h *Handler) RunGraph(w http.ResponseWriter, r *http.Request) {
	var req RunGraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	g := domain.Graph{Nodes: req.Nodes, Edges: req.Edges}

	result, err := h.execute(r.Context(), &g, req.NodeIDs)
	if HandleGraphError(w, h.logger, err) {
		return
	}

	Success(w, result)
}

// execute выполняет граф целиком или замыкание targets.
func (h *Handler) execute(ctx context.Context, g *domain.Graph, targets []string) (*domain.RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, h.runTimeout)
	defer cancel()

	if len(targets) == 0 {
		return h.runner.Execute(ctx, g)
	}
	return h.runner.ExecuteSubset(ctx, g, targets)
}

// resolveScope проверяет согласованность scope и списка узлов.
// Возвращает непустое сообщение, если запрос некорректен.
func resolveScope(req ExecuteRequest) (domain.ExecutionScope, []string, string) {
	if req.Scope != "" && req.Scope != string(domain.ScopeFull) &&
		req.Scope != string(domain.ScopeSelected) && req.Scope != string(domain.ScopeSingle) {
		return "", nil, "invalid scope: " + req.Scope
	}

	scope := domain.ParseExecutionScope(req.Scope)
	if req.Scope == "" && len(req.NodeIDs) > 0 {
		// Scope выводится из количества узлов
		scope = domain.ScopeSelected
		if len(req.NodeIDs) == 1 {
			scope = domain.ScopeSingle
		}
	}

	switch scope {
	case domain.ScopeFull:
		return scope, nil, ""
	case domain.ScopeSingle:
		if len(req.NodeIDs) != 1 {
			return "", nil, "scope single requires exactly one node id"
		}
	default:
		if len(req.NodeIDs) == 0 {
			return "", nil, "scope selected requires node ids"
		}
	}
	return scope, req.NodeIDs, ""
}

// checkGraph проверяет структуру графа до создания execution.
func checkGraph(g *domain.Graph, targets []string) error {
	if len(targets) > 0 {
		sub, err := engine.Subgraph(g, targets)
		if err != nil {
			return err
		}
		g = sub
	}
	_, err := engine.BuildDAG(g)
	return err
}

// decodeOptional декодирует JSON тело; пустое тело допустимо.
func decodeOptional(body io.Reader, dst any) error {
	err := json.NewDecoder(body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
