package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/pipewright/internal/application/catalog"
	"github.com/aescanero/pipewright/internal/application/executor"
	"github.com/aescanero/pipewright/internal/application/orchestrator"
	"github.com/aescanero/pipewright/internal/application/workers"
	eventsmemory "github.com/aescanero/pipewright/pkg/adapters/events/memory"
	metricsprom "github.com/aescanero/pipewright/pkg/adapters/metrics/prometheus"
	storagememory "github.com/aescanero/pipewright/pkg/adapters/storage/memory"
	"github.com/aescanero/pipewright/pkg/domain"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zaptest.NewLogger(t)

	registry := prometheus.NewRegistry()
	collector := metricsprom.NewCollector(registry)

	cat := catalog.NewCatalog(storagememory.NewSchemaRepository(), collector, logger)
	bus := eventsmemory.NewEventBus(logger, eventsmemory.WithMetrics(collector))
	pool := workers.NewPool(collector, logger)
	manager := orchestrator.NewManager(cat, storagememory.NewExecutionStore(), bus,
		executor.NewExecutor(logger, executor.WithMetrics(collector)), pool, collector, logger)

	t.Cleanup(func() {
		_ = manager.Shutdown(context.Background())
		_ = bus.Close()
	})

	return NewServer(&Config{
		Catalog:           cat,
		Executions:        manager,
		Pool:              pool,
		Gatherer:          registry,
		HeartbeatInterval: 50 * time.Millisecond,
		Logger:            logger,
	})
}

const schemaBody = `{
  "name": "summarise",
  "node_definitions": [
    {"node_id": "i1", "node_type": "input", "node_name": "Input"},
    {"node_id": "t1", "node_type": "transform", "node_name": "Transform", "config": {"type": "text_generation"}},
    {"node_id": "o1", "node_type": "output", "node_name": "Output", "config": {"mapping": {"result": "t1"}}}
  ],
  "edge_definitions": [
    {"id": "e1", "source_node_id": "i1", "target_node_id": "t1"},
    {"id": "e2", "source_node_id": "t1", "target_node_id": "o1"}
  ],
  "input_schema": {"type": "object", "properties": {"x": {"type": "number"}}},
  "output_schema": {"type": "object", "properties": {"result": {"type": "object"}}},
  "variable_mappings": {
    "x": {"source": "input", "variable": "x"},
    "result": {"source": "output", "variable": "result"}
  }
}`

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func createSchema(t *testing.T, h http.Handler) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/schemas", schemaBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var schema domain.PipelineSchema
	decode(t, w, &schema)
	return schema.ID
}

func createExecution(t *testing.T, h http.Handler, schemaID string, start bool) *domain.PipelineExecution {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"schema_id":  schemaID,
		"input_data": map[string]interface{}{"x": 1},
		"start":      start,
	})
	require.NoError(t, err)
	w := do(t, h, http.MethodPost, "/api/v1/executions", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var execution domain.PipelineExecution
	decode(t, w, &execution)
	return &execution
}

func waitCompleted(t *testing.T, h http.Handler, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		w := do(t, h, http.MethodGet, "/api/v1/executions/"+id, "")
		var execution domain.PipelineExecution
		decode(t, w, &execution)
		return execution.Status == domain.ExecutionStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t).Handler()

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	createSchema(t, h)
	w = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pipewright_")
}

func TestSchemaEndpoints(t *testing.T) {
	h := newTestServer(t).Handler()
	id := createSchema(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/schemas/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var schema domain.PipelineSchema
	decode(t, w, &schema)
	assert.True(t, schema.IsValid)
	assert.Equal(t, domain.SchemaStatusDraft, schema.Status)

	w = do(t, h, http.MethodGet, "/api/v1/schemas/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/schemas", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/schemas/"+id+"/validate?types=topology", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report domain.ValidationReport
	decode(t, w, &report)
	assert.Len(t, report.Results, 1)

	w = do(t, h, http.MethodPost, "/api/v1/schemas/"+id+"/validate?types=semantics", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/schemas/validate", schemaBody)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &report)
	assert.Equal(t, domain.ValidationPassed, report.OverallStatus)

	w = do(t, h, http.MethodPost, "/api/v1/schemas/"+id+"/activate", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPut, "/api/v1/schemas/"+id, schemaBody)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &schema)
	assert.Equal(t, 2, schema.Version)

	w = do(t, h, http.MethodPost, "/api/v1/schemas/"+id+"/deprecate", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodPost, "/api/v1/schemas/"+id+"/deprecate", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/schemas?status=deprecated", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = do(t, h, http.MethodDelete, "/api/v1/schemas/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestExecutionEndpoints(t *testing.T) {
	h := newTestServer(t).Handler()
	schemaID := createSchema(t, h)

	execution := createExecution(t, h, schemaID, true)
	assert.Equal(t, domain.ExecutionStatusRunning, execution.Status)
	waitCompleted(t, h, execution.ID)

	w := do(t, h, http.MethodPost, "/api/v1/executions/"+execution.ID+"/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/executions/"+execution.ID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	pending := createExecution(t, h, schemaID, false)
	w = do(t, h, http.MethodPost, "/api/v1/executions/"+pending.ID+"/cancel", `{"reason":"not needed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var cancelled domain.PipelineExecution
	decode(t, w, &cancelled)
	assert.Equal(t, domain.ExecutionStatusCancelled, cancelled.Status)
	assert.Equal(t, "not needed", cancelled.CancelReason)

	w = do(t, h, http.MethodPost, "/api/v1/executions", `{"schema_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, http.MethodPost, "/api/v1/executions", `{"input_data":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, http.MethodPost, "/api/v1/executions", `{"schema_id":"`+schemaID+`","execution_mode":"turbo"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, http.MethodPost, "/api/v1/executions/missing/start", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/executions?status=cancelled", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data  []domain.PipelineExecution `json:"data"`
		Total int                        `json:"total"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Data, 1)
	assert.Equal(t, pending.ID, list.Data[0].ID)

	w = do(t, h, http.MethodGet, "/api/v1/executions?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, http.MethodGet, "/api/v1/executions?status=sleeping", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCleanupEndpoint(t *testing.T) {
	h := newTestServer(t).Handler()
	schemaID := createSchema(t, h)
	createExecution(t, h, schemaID, false)

	w := do(t, h, http.MethodPost, "/api/v1/executions/cleanup", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, http.MethodPost, "/api/v1/executions/cleanup?max_age=soon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/executions/cleanup?max_age=9000000000000", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "out of range")

	w = do(t, h, http.MethodPost, "/api/v1/executions/cleanup?max_age=24", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":0`)

	time.Sleep(5 * time.Millisecond)
	w = do(t, h, http.MethodPost, "/api/v1/executions/cleanup?max_age=1ms", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":1`)

	w = do(t, h, http.MethodPost, "/api/v1/executions/cleanup?max_age=1ms", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":0`)
}

func TestParseMaxAge(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "24", want: 24 * time.Hour},
		{raw: "90m", want: 90 * time.Minute},
		{raw: "2562047", want: 2562047 * time.Hour},
		{raw: "2562048", wantErr: true},
		{raw: "9223372036854775807", wantErr: true},
		{raw: "-9000000000000", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseMaxAge(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Positive(t, got)
		})
	}
}

// readEvents collects SSE event names until the stream ends
func readEvents(t *testing.T, resp *http.Response, onEvent func(name string)) []string {
	t.Helper()
	var names []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event:"); ok {
			name = strings.TrimSpace(name)
			names = append(names, name)
			if onEvent != nil {
				onEvent(name)
			}
		}
	}
	return names
}

func TestExecutionEventStream(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	h := srv.Handler()

	schemaID := createSchema(t, h)
	execution := createExecution(t, h, schemaID, false)

	resp, err := http.Get(ts.URL + "/api/v1/executions/" + execution.ID + "/events")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	names := readEvents(t, resp, func(name string) {
		if name == string(domain.EventTypeStatus) {
			w := do(t, h, http.MethodPost, "/api/v1/executions/"+execution.ID+"/start", "")
			require.Equal(t, http.StatusAccepted, w.Code)
		}
	})

	require.GreaterOrEqual(t, len(names), 4)
	assert.Equal(t, "connected", names[0])
	assert.Equal(t, "status", names[1])
	assert.Equal(t, "execution:started", names[2])
	assert.Contains(t, names, "node:started")
	assert.Contains(t, names, "step:updated")
	assert.Equal(t, "execution:completed", names[len(names)-1])
}

func TestExecutionEventStream_TerminalAndUnknown(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	h := srv.Handler()

	schemaID := createSchema(t, h)
	execution := createExecution(t, h, schemaID, false)
	w := do(t, h, http.MethodPost, "/api/v1/executions/"+execution.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp, err := http.Get(ts.URL + "/api/v1/executions/" + execution.ID + "/events")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, []string{"connected", "status"}, readEvents(t, resp, nil))

	missing, err := http.Get(ts.URL + "/api/v1/executions/missing/events")
	require.NoError(t, err)
	defer func() { _ = missing.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestExecutionEventStream_Heartbeat(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	schemaID := createSchema(t, srv.Handler())
	execution := createExecution(t, srv.Handler(), schemaID, false)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/executions/"+execution.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	heartbeats := 0
	readEvents(t, resp, func(name string) {
		if name == "heartbeat" {
			heartbeats++
			if heartbeats == 2 {
				cancel()
			}
		}
	})
	assert.GreaterOrEqual(t, heartbeats, 2)
}
