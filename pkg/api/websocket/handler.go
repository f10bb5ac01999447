package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aescanero/pipewright/internal/application/orchestrator"
	"github.com/aescanero/pipewright/pkg/domain"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles WebSocket connections
type Handler struct {
	executions *orchestrator.Manager
	heartbeat  time.Duration
	logger     *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(executions *orchestrator.Manager, heartbeat time.Duration, logger *zap.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Handler{
		executions: executions,
		heartbeat:  heartbeat,
		logger:     logger,
	}
}

// HandleExecutionStream streams the events of one execution
func (h *Handler) HandleExecutionStream(c *gin.Context) {
	executionID := c.Param("id")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Unknown ids are answered over plain HTTP before the upgrade
	execution, events, cleanup, err := h.executions.Watch(ctx, executionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}
	defer cleanup()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("execution_id", executionID),
		zap.String("client", c.ClientIP()))

	// The reader only notices the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(event domain.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event.Payload()); err != nil {
			h.logger.Debug("failed to write message",
				zap.String("execution_id", executionID),
				zap.Error(err))
			return false
		}
		return true
	}

	if !send(domain.Event{Type: domain.EventTypeConnected, ExecutionID: executionID, Timestamp: time.Now()}) {
		return
	}
	if !send(domain.NewStatusEvent(execution, time.Now())) {
		return
	}
	if execution.Status.IsTerminal() {
		h.close(conn)
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if !send(event) {
				return
			}
			if event.Type.IsTerminal() {
				h.close(conn)
				return
			}
		case now := <-heartbeat.C:
			if !send(domain.Event{Type: domain.EventTypeHeartbeat, ExecutionID: executionID, Timestamp: now}) {
				return
			}
		}
	}
}

func (h *Handler) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "execution finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
