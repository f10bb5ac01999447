package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/pipewright/internal/application/executor"
	"github.com/aescanero/pipewright/internal/application/orchestrator"
	"github.com/aescanero/pipewright/internal/application/workers"
	eventsmemory "github.com/aescanero/pipewright/pkg/adapters/events/memory"
	storagememory "github.com/aescanero/pipewright/pkg/adapters/storage/memory"
	"github.com/aescanero/pipewright/pkg/domain"
)

func setup(t *testing.T) (*orchestrator.Manager, *httptest.Server) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	schemas := storagememory.NewSchemaRepository()
	require.NoError(t, schemas.SaveSchema(context.Background(), &domain.PipelineSchema{
		ID:   "s1",
		Name: "passthrough",
		NodeDefinitions: []domain.NodeDefinition{
			{NodeID: "i1", NodeType: domain.NodeTypeInput},
			{NodeID: "o1", NodeType: domain.NodeTypeOutput},
		},
		EdgeDefinitions: []domain.EdgeDefinition{{ID: "e1", SourceNodeID: "i1", TargetNodeID: "o1"}},
	}))

	bus := eventsmemory.NewEventBus(logger)
	pool := workers.NewPool(nil, logger)
	manager := orchestrator.NewManager(schemas, storagememory.NewExecutionStore(), bus,
		executor.NewExecutor(logger), pool, nil, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/v1/executions/:id/ws", NewHandler(manager, time.Second, logger).HandleExecutionStream)
	ts := httptest.NewServer(router)

	t.Cleanup(func() {
		ts.Close()
		_ = manager.Shutdown(context.Background())
		_ = bus.Close()
	})
	return manager, ts
}

func wsURL(ts *httptest.Server, id string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/executions/" + id + "/ws"
}

func TestHandleExecutionStream(t *testing.T) {
	manager, ts := setup(t)
	ctx := context.Background()

	execution, err := manager.Create(ctx, orchestrator.CreateRequest{SchemaID: "s1", InputData: map[string]interface{}{"a": 1}})
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, execution.ID), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var types []string
	for {
		var payload map[string]interface{}
		if err := conn.ReadJSON(&payload); err != nil {
			break
		}
		assert.Equal(t, execution.ID, payload["execution_id"])
		typ, _ := payload["type"].(string)
		types = append(types, typ)

		if typ == string(domain.EventTypeStatus) {
			_, err := manager.Start(ctx, execution.ID)
			require.NoError(t, err)
		}
	}

	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, "connected", types[0])
	assert.Equal(t, "status", types[1])
	assert.Equal(t, "execution:completed", types[len(types)-1])
}

func TestHandleExecutionStream_UnknownExecution(t *testing.T) {
	_, ts := setup(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "missing"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
