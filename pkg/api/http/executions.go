package http

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aescanero/pipewright/internal/application/orchestrator"
	"github.com/aescanero/pipewright/pkg/domain"
	"github.com/aescanero/pipewright/pkg/ports"
)

// CreateExecutionRequest is the body of POST /executions
type CreateExecutionRequest struct {
	SchemaID  string                 `json:"schema_id" binding:"required"`
	InputData map[string]interface{} `json:"input_data"`
	Mode      domain.ExecutionMode   `json:"execution_mode"`
	Variables map[string]interface{} `json:"variables"`
	CreatedBy string                 `json:"created_by"`
	// Start runs the execution right after creating it
	Start bool `json:"start"`
}

// CancelRequest is the optional body of POST /executions/:id/cancel
type CancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCreateExecution(c *gin.Context) {
	var req CreateExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	execution, err := s.executions.Create(ctx, orchestrator.CreateRequest{
		SchemaID:  req.SchemaID,
		InputData: req.InputData,
		Mode:      req.Mode,
		Variables: req.Variables,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		s.fail(c, err, http.StatusBadRequest)
		return
	}

	if req.Start {
		execution, err = s.executions.Start(ctx, execution.ID)
		if err != nil {
			s.fail(c, err, http.StatusConflict)
			return
		}
	}

	c.JSON(http.StatusCreated, execution)
}

func (s *Server) handleListExecutions(c *gin.Context) {
	filter := ports.ExecutionFilter{
		SchemaID: c.Query("schema_id"),
		Status:   domain.ExecutionStatus(c.Query("status")),
		Mode:     domain.ExecutionMode(c.Query("mode")),
	}

	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		s.badRequest(c, err.Error())
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.badRequest(c, err.Error())
		return
	}

	executions, total, err := s.executions.List(c.Request.Context(), filter, ports.Page{Limit: limit, Offset: offset})
	if err != nil {
		s.fail(c, err, http.StatusBadRequest)
		return
	}

	c.JSON(http.StatusOK, ListResponse{
		Data:   executions,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetExecution(c *gin.Context) {
	execution, err := s.executions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, execution)
}

func (s *Server) handleStartExecution(c *gin.Context) {
	execution, err := s.executions.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusAccepted, execution)
}

func (s *Server) handleCancelExecution(c *gin.Context) {
	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, err.Error())
			return
		}
	}

	execution, err := s.executions.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		s.fail(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusOK, execution)
}

// handleCleanup sweeps executions older than ?max_age, given as a Go
// duration ("36h") or a whole number of hours
func (s *Server) handleCleanup(c *gin.Context) {
	raw := c.Query("max_age")
	if raw == "" {
		s.badRequest(c, "max_age is required")
		return
	}
	maxAge, err := parseMaxAge(raw)
	if err != nil {
		s.badRequest(c, err.Error())
		return
	}

	removed, err := s.executions.Cleanup(c.Request.Context(), maxAge)
	if err != nil {
		s.fail(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"removed": removed,
		"max_age": maxAge.String(),
	})
}

// maxAgeHours is the largest hour count a time.Duration can hold
const maxAgeHours = int64(math.MaxInt64 / time.Hour)

func parseMaxAge(raw string) (time.Duration, error) {
	if hours, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if hours > maxAgeHours || hours < -maxAgeHours {
			return 0, fmt.Errorf("max_age %s hours is out of range", raw)
		}
		return time.Duration(hours) * time.Hour, nil
	}
	return time.ParseDuration(raw)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewInvalidRequest("%s must be an integer", key)
	}
	return v, nil
}
