package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aescanero/pipewright/internal/application/validator"
	"github.com/aescanero/pipewright/pkg/domain"
)

func (s *Server) handleCreateSchema(c *gin.Context) {
	var schema domain.PipelineSchema
	if err := c.ShouldBindJSON(&schema); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	created, err := s.catalog.Create(c.Request.Context(), &schema)
	if err != nil {
		s.fail(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleListSchemas(c *gin.Context) {
	schemas, err := s.catalog.List(c.Request.Context(), domain.SchemaStatus(c.Query("status")))
	if err != nil {
		s.fail(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Data: schemas, Total: len(schemas)})
}

func (s *Server) handleGetSchema(c *gin.Context) {
	schema, err := s.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, schema)
}

func (s *Server) handleUpdateSchema(c *gin.Context) {
	var schema domain.PipelineSchema
	if err := c.ShouldBindJSON(&schema); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	updated, err := s.catalog.Update(c.Request.Context(), c.Param("id"), &schema)
	if err != nil {
		s.fail(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteSchema(c *gin.Context) {
	if err := s.catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err, http.StatusConflict)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleValidateSchema(c *gin.Context) {
	types, err := validationTypes(c)
	if err != nil {
		s.fail(c, err, http.StatusBadRequest)
		return
	}

	report, err := s.catalog.Validate(c.Request.Context(), c.Param("id"), types...)
	if err != nil {
		s.fail(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleValidateDocument validates a schema posted in the body without
// storing it
func (s *Server) handleValidateDocument(c *gin.Context) {
	types, err := validationTypes(c)
	if err != nil {
		s.fail(c, err, http.StatusBadRequest)
		return
	}

	var schema domain.PipelineSchema
	if err := c.ShouldBindJSON(&schema); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	report, err := s.catalog.ValidateDocument(&schema, types...)
	if err != nil {
		s.fail(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleActivateSchema(c *gin.Context) {
	schema, err := s.catalog.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusOK, schema)
}

func (s *Server) handleDeprecateSchema(c *gin.Context) {
	schema, err := s.catalog.Deprecate(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusOK, schema)
}

// validationTypes reads ?types=topology,variables
func validationTypes(c *gin.Context) ([]domain.ValidationType, error) {
	raw := c.Query("types")
	if raw == "" {
		return nil, nil
	}
	return validator.ParseTypes(strings.Split(raw, ","))
}
