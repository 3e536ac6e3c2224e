package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Weave/internal/domain"
	"github.com/shaiso/Weave/internal/repo"
	"github.com/shaiso/Weave/internal/runner"
	"github.com/shaiso/Weave/internal/telemetry"
)

// --- fakes ---

type memWorkflows struct {
	mu    sync.Mutex
	items map[uuid.UUID]domain.Workflow
}

func (m *memWorkflows) Create(_ context.Context, wf *domain.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[wf.ID] = *wf
	return nil
}

func (m *memWorkflows) GetByID(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &wf, nil
}

func (m *memWorkflows) List(_ context.Context) ([]domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Workflow, 0, len(m.items))
	for _, wf := range m.items {
		out = append(out, wf)
	}
	return out, nil
}

func (m *memWorkflows) Update(_ context.Context, wf *domain.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[wf.ID]; !ok {
		return repo.ErrNotFound
	}
	m.items[wf.ID] = *wf
	return nil
}

func (m *memWorkflows) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

type memExecutions struct {
	mu    sync.Mutex
	items map[uuid.UUID]domain.Execution
	order []uuid.UUID
}

func (m *memExecutions) Create(_ context.Context, exec *domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[exec.ID] = *exec
	m.order = append(m.order, exec.ID)
	return nil
}

func (m *memExecutions) GetByID(_ context.Context, id uuid.UUID) (*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &e, nil
}

func (m *memExecutions) ListByWorkflow(_ context.Context, workflowID uuid.UUID, limit int) ([]domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Execution, 0)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		if e := m.items[m.order[i]]; e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memExecutions) Finish(_ context.Context, exec *domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[exec.ID] = *exec
	return nil
}

type fakeQueue struct {
	ids []uuid.UUID
}

func (q *fakeQueue) PublishExecutionRequested(_ context.Context, id uuid.UUID) error {
	q.ids = append(q.ids, id)
	return nil
}

type testServer struct {
	mux        *http.ServeMux
	workflows  *memWorkflows
	executions *memExecutions
}

func newTestServer(t *testing.T, queue ExecutionQueue) *testServer {
	t.Helper()

	logger := telemetry.Discard()
	ts := &testServer{
		mux:        http.NewServeMux(),
		workflows:  &memWorkflows{items: make(map[uuid.UUID]domain.Workflow)},
		executions: &memExecutions{items: make(map[uuid.UUID]domain.Execution)},
	}

	h := NewHandler(Config{
		Workflows:  ts.workflows,
		Executions: ts.executions,
		Runner:     runner.New(runner.Config{Logger: logger}),
		Queue:      queue,
		Logger:     logger,
	})
	h.RegisterRoutes(ts.mux)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var resp struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Data
}

const chainGraph = `{
	"name": "chain",
	"nodes": [
		{"id": "a", "type": "text", "data": {"value": "hello"}},
		{"id": "b", "type": "text"},
		{"id": "c", "type": "text", "data": {"value": "other"}}
	],
	"edges": [{"id": "e1", "source": "a", "target": "b"}]
}`

func (ts *testServer) createWorkflow(t *testing.T, raw string) WorkflowResponse {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", bytes.NewBufferString(raw))
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[WorkflowResponse](t, rec)
}

// --- tests ---

func TestWorkflowCRUD(t *testing.T) {
	ts := newTestServer(t, nil)

	wf := ts.createWorkflow(t, chainGraph)
	assert.Equal(t, "chain", wf.Name)
	require.Len(t, wf.Nodes, 3)
	assert.Equal(t, domain.TextConfig{Value: "hello"}, wf.Nodes[0].Config)

	rec := ts.do(t, http.MethodGet, "/api/v1/workflows/"+wf.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/workflows/"+wf.ID.String(), map[string]any{"name": "renamed"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeData[WorkflowResponse](t, rec)
	assert.Equal(t, "renamed", updated.Name)
	assert.Len(t, updated.Nodes, 3, "nodes must survive a partial update")

	rec = ts.do(t, http.MethodGet, "/api/v1/workflows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]WorkflowResponse](t, rec), 1)

	rec = ts.do(t, http.MethodDelete, "/api/v1/workflows/"+wf.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/workflows/"+wf.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateWorkflow_DefaultName(t *testing.T) {
	ts := newTestServer(t, nil)

	wf := ts.createWorkflow(t, `{"nodes": [], "edges": []}`)
	assert.Equal(t, domain.DefaultWorkflowName, wf.Name)
}

func TestGetWorkflow_InvalidID(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/workflows/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteWorkflow_Sync(t *testing.T) {
	ts := newTestServer(t, nil)
	wf := ts.createWorkflow(t, chainGraph)

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/executions", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	exec := decodeData[ExecutionResponse](t, rec)
	assert.Equal(t, string(domain.RunStatusSuccess), exec.Status)
	assert.Equal(t, string(domain.ScopeFull), exec.Scope)
	require.Len(t, exec.NodeResults, 3)
	assert.Equal(t, "hello", exec.NodeResults[1].Outputs["result"])
	assert.NotNil(t, exec.CompletedAt)

	rec = ts.do(t, http.MethodGet, "/api/v1/executions/"+exec.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/workflows/"+wf.ID.String()+"/executions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]ExecutionResponse](t, rec), 1)
}

func TestExecuteWorkflow_SingleScope(t *testing.T) {
	ts := newTestServer(t, nil)
	wf := ts.createWorkflow(t, chainGraph)

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/executions",
		ExecuteRequest{Scope: "single", NodeIDs: []string{"b"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	exec := decodeData[ExecutionResponse](t, rec)
	assert.Equal(t, string(domain.ScopeSingle), exec.Scope)
	require.Len(t, exec.NodeResults, 2)
	assert.Equal(t, "a", exec.NodeResults[0].NodeID)
	assert.Equal(t, "b", exec.NodeResults[1].NodeID)
}

func TestExecuteWorkflow_BadScope(t *testing.T) {
	ts := newTestServer(t, nil)
	wf := ts.createWorkflow(t, chainGraph)
	path := "/api/v1/workflows/" + wf.ID.String() + "/executions"

	tests := []struct {
		name string
		req  ExecuteRequest
	}{
		{"unknown scope", ExecuteRequest{Scope: "partial"}},
		{"single without node", ExecuteRequest{Scope: "single"}},
		{"single with two nodes", ExecuteRequest{Scope: "single", NodeIDs: []string{"a", "b"}}},
		{"selected without nodes", ExecuteRequest{Scope: "selected"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, path, tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestExecuteWorkflow_InvalidGraph(t *testing.T) {
	ts := newTestServer(t, nil)
	wf := ts.createWorkflow(t, `{
		"nodes": [{"id": "a", "type": "text"}, {"id": "b", "type": "text"}],
		"edges": [{"source": "a", "target": "b"}, {"source": "b", "target": "a"}]
	}`)

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/executions", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), string(ErrCodeInvalidGraph))
	assert.Empty(t, ts.executions.items, "no execution should be recorded")

	rec = ts.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/executions",
		ExecuteRequest{Scope: "single", NodeIDs: []string{"missing"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestExecuteWorkflow_Queued(t *testing.T) {
	queue := &fakeQueue{}
	ts := newTestServer(t, queue)
	wf := ts.createWorkflow(t, chainGraph)

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/executions",
		ExecuteRequest{Scope: "selected", NodeIDs: []string{"b", "c"}})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	exec := decodeData[ExecutionResponse](t, rec)
	assert.Equal(t, string(domain.RunStatusPending), exec.Status)
	assert.Equal(t, []string{"b", "c"}, exec.SelectedNodeIDs)
	assert.Equal(t, []uuid.UUID{exec.ID}, queue.ids)
}

func TestExecuteWorkflow_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/"+uuid.NewString()+"/executions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunGraph(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/run", bytes.NewBufferString(chainGraph))
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decodeData[domain.RunResult](t, rec)
	assert.Equal(t, domain.RunStatusSuccess, result.Status)
	assert.Len(t, result.NodeResults, 3)
}

func TestRunGraph_DanglingEdge(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/run", map[string]any{
		"nodes": []map[string]any{{"id": "a", "type": "text"}},
		"edges": []map[string]any{{"source": "a", "target": "ghost"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodOptions, "/api/v1/workflows", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestResolveScope_Inferred(t *testing.T) {
	tests := []struct {
		name  string
		req   ExecuteRequest
		scope domain.ExecutionScope
		ids   []string
	}{
		{"empty", ExecuteRequest{}, domain.ScopeFull, nil},
		{"full ignores ids", ExecuteRequest{Scope: "full", NodeIDs: []string{"a"}}, domain.ScopeFull, nil},
		{"one id", ExecuteRequest{NodeIDs: []string{"a"}}, domain.ScopeSingle, []string{"a"}},
		{"two ids", ExecuteRequest{NodeIDs: []string{"a", "b"}}, domain.ScopeSelected, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, ids, msg := resolveScope(tt.req)
			require.Empty(t, msg)
			assert.Equal(t, tt.scope, scope)
			assert.Equal(t, tt.ids, ids)
		})
	}
}
