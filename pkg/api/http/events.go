package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aescanero/pipewright/pkg/domain"
)

// handleExecutionEvents streams the progress of one execution as Server-Sent
// Events: connected, a status snapshot, then live events with periodic
// heartbeats. The stream ends after a terminal execution event.
func (s *Server) handleExecutionEvents(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	execution, events, cleanup, err := s.executions.Watch(ctx, id)
	if err != nil {
		s.fail(c, err, http.StatusBadRequest)
		return
	}
	defer cleanup()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	s.logger.Debug("event stream opened",
		zap.String("execution_id", id),
		zap.String("client", c.ClientIP()))

	s.writeEvent(c, domain.Event{
		Type:        domain.EventTypeConnected,
		ExecutionID: id,
		Timestamp:   time.Now(),
	})
	s.writeEvent(c, domain.NewStatusEvent(execution, time.Now()))

	if execution.Status.IsTerminal() {
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("event stream closed by client", zap.String("execution_id", id))
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			s.writeEvent(c, event)
			if event.Type.IsTerminal() {
				return
			}
		case now := <-heartbeat.C:
			s.writeEvent(c, domain.Event{
				Type:        domain.EventTypeHeartbeat,
				ExecutionID: id,
				Timestamp:   now,
			})
		}
	}
}

func (s *Server) writeEvent(c *gin.Context, event domain.Event) {
	c.SSEvent(string(event.Type), event.Payload())
	c.Writer.Flush()
}
