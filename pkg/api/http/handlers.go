package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aescanero/pipewright/pkg/domain"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ListResponse wraps a page of results
type ListResponse struct {
	Data   interface{} `json:"data"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		})
		return
	}

	health := s.pool.Health()
	status, code := "healthy", http.StatusOK
	if !health.Healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": health.Timestamp.UTC(),
		"checks": gin.H{
			"workers": health,
		},
	})
}

// badRequest answers a malformed request
func (s *Server) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{Code: "INVALID_REQUEST", Message: message},
	})
}

// fail maps a domain error to a response. invalidStatus is the code used for
// InvalidRequestError: 409 where the request collides with current state,
// 400 where the arguments themselves are wrong.
func (s *Server) fail(c *gin.Context, err error, invalidStatus int) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{Code: "NOT_FOUND", Message: err.Error()},
		})
	case errors.Is(err, domain.ErrInvalidRequest):
		code := "INVALID_REQUEST"
		if invalidStatus == http.StatusConflict {
			code = "CONFLICT"
		}
		c.JSON(invalidStatus, ErrorResponse{
			Error: ErrorDetail{Code: code, Message: err.Error()},
		})
	default:
		s.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{Code: "INTERNAL", Message: "internal error", Details: err.Error()},
		})
	}
}
