package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/pipewright/internal/application/validator"
	"github.com/aescanero/pipewright/pkg/domain"
	"github.com/aescanero/pipewright/pkg/ports"
)

// Catalog stores schemas and keeps their validation reports current
type Catalog struct {
	repo      ports.SchemaRepository
	validator *validator.Validator
	metrics   ports.MetricsCollector
	logger    *zap.Logger
	now       func() time.Time
}

// NewCatalog creates a catalog over repo. metrics may be nil.
func NewCatalog(repo ports.SchemaRepository, metrics ports.MetricsCollector, logger *zap.Logger) *Catalog {
	return &Catalog{
		repo:      repo,
		validator: validator.NewValidator(),
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Create stores a new draft schema at version 1. The schema is validated
// before it is stored; an invalid schema is stored too, flagged is_valid=false.
func (c *Catalog) Create(ctx context.Context, schema *domain.PipelineSchema) (*domain.PipelineSchema, error) {
	if err := checkDocument(schema); err != nil {
		return nil, err
	}

	if schema.ID == "" {
		schema.ID = uuid.New().String()
	}

	now := c.now()
	schema.Version = 1
	schema.Status = domain.SchemaStatusDraft
	schema.CreatedAt = now
	schema.UpdatedAt = now

	if err := c.validate(schema); err != nil {
		return nil, err
	}
	if err := c.repo.CreateSchema(ctx, schema); err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save schema: %w", err)
	}

	c.logger.Info("schema created",
		zap.String("schema_id", schema.ID),
		zap.String("name", schema.Name),
		zap.Bool("is_valid", schema.IsValid))
	return schema, nil
}

// Update replaces the definition of a schema and bumps its version. An
// active schema that no longer validates falls back to draft.
func (c *Catalog) Update(ctx context.Context, id string, schema *domain.PipelineSchema) (*domain.PipelineSchema, error) {
	if err := checkDocument(schema); err != nil {
		return nil, err
	}

	current, err := c.repo.GetSchemaByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.SchemaStatusDeprecated {
		return nil, domain.NewInvalidRequest("schema %s is deprecated", id)
	}

	schema.ID = id
	schema.Version = current.Version + 1
	schema.Status = current.Status
	schema.CreatedBy = current.CreatedBy
	schema.CreatedAt = current.CreatedAt
	schema.UpdatedAt = c.now()

	if err := c.validate(schema); err != nil {
		return nil, err
	}
	if schema.Status == domain.SchemaStatusActive && !schema.IsValid {
		schema.Status = domain.SchemaStatusDraft
	}
	if err := c.repo.SaveSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to save schema: %w", err)
	}

	c.logger.Info("schema updated",
		zap.String("schema_id", id),
		zap.Int("version", schema.Version),
		zap.String("status", string(schema.Status)),
		zap.Bool("is_valid", schema.IsValid))
	return schema, nil
}

// Get returns a schema by id
func (c *Catalog) Get(ctx context.Context, id string) (*domain.PipelineSchema, error) {
	return c.repo.GetSchemaByID(ctx, id)
}

// GetSchemaByID lets the catalog serve as the execution manager's schema store
func (c *Catalog) GetSchemaByID(ctx context.Context, id string) (*domain.PipelineSchema, error) {
	return c.repo.GetSchemaByID(ctx, id)
}

// List returns the stored schemas, optionally limited to one status
func (c *Catalog) List(ctx context.Context, status domain.SchemaStatus) ([]*domain.PipelineSchema, error) {
	if status != "" && !validStatus(status) {
		return nil, domain.NewInvalidRequest("unknown schema status %q", status)
	}

	schemas, err := c.repo.ListSchemas(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return schemas, nil
	}

	out := schemas[:0]
	for _, s := range schemas {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

// Delete removes a schema. Executions already created keep their snapshot.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.repo.DeleteSchema(ctx, id); err != nil {
		return err
	}
	c.logger.Info("schema deleted", zap.String("schema_id", id))
	return nil
}

// Validate re-runs the validator on a stored schema. A run over every
// validator refreshes the stored report; a partial run is only returned.
func (c *Catalog) Validate(ctx context.Context, id string, types ...domain.ValidationType) (*domain.ValidationReport, error) {
	schema, err := c.repo.GetSchemaByID(ctx, id)
	if err != nil {
		return nil, err
	}

	report, err := c.check(schema, types...)
	if err != nil {
		return nil, err
	}
	if len(types) > 0 && len(types) < len(domain.ValidationTypes) {
		return report, nil
	}

	schema.Validation = report
	schema.IsValid = report.Valid()
	if schema.Status == domain.SchemaStatusActive && !schema.IsValid {
		schema.Status = domain.SchemaStatusDraft
	}
	if err := c.repo.SaveSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to save schema: %w", err)
	}
	return report, nil
}

// ValidateDocument validates a schema that is not stored
func (c *Catalog) ValidateDocument(schema *domain.PipelineSchema, types ...domain.ValidationType) (*domain.ValidationReport, error) {
	if schema == nil {
		return nil, domain.NewInvalidRequest("schema is required")
	}
	return c.check(schema, types...)
}

// Activate publishes a valid schema
func (c *Catalog) Activate(ctx context.Context, id string) (*domain.PipelineSchema, error) {
	return c.transition(ctx, id, domain.SchemaStatusActive, func(s *domain.PipelineSchema) error {
		if !s.IsValid {
			return domain.NewInvalidRequest("schema %s is not valid and cannot be activated", id)
		}
		return nil
	})
}

// Deprecate retires a schema. Deprecated schemas can still be executed.
func (c *Catalog) Deprecate(ctx context.Context, id string) (*domain.PipelineSchema, error) {
	return c.transition(ctx, id, domain.SchemaStatusDeprecated, func(s *domain.PipelineSchema) error {
		if s.Status == domain.SchemaStatusDeprecated {
			return domain.NewInvalidRequest("schema %s is already deprecated", id)
		}
		return nil
	})
}

// Import stores schemas loaded from files. New ids are created, known ids
// updated, and an "active" status in the file is kept when the schema is valid.
func (c *Catalog) Import(ctx context.Context, schemas []*domain.PipelineSchema) (int, error) {
	imported := 0
	for _, schema := range schemas {
		wantActive := schema.Status == domain.SchemaStatusActive

		var err error
		var stored *domain.PipelineSchema
		if _, getErr := c.repo.GetSchemaByID(ctx, schema.ID); getErr == nil {
			stored, err = c.Update(ctx, schema.ID, schema)
		} else if errors.Is(getErr, domain.ErrNotFound) {
			stored, err = c.Create(ctx, schema)
		} else {
			err = getErr
		}
		if err != nil {
			return imported, fmt.Errorf("failed to import schema %s: %w", schema.ID, err)
		}

		if wantActive && stored.IsValid && stored.Status != domain.SchemaStatusActive {
			if _, err := c.Activate(ctx, stored.ID); err != nil {
				return imported, fmt.Errorf("failed to activate schema %s: %w", stored.ID, err)
			}
		}
		imported++
	}
	return imported, nil
}

func (c *Catalog) transition(ctx context.Context, id string, to domain.SchemaStatus, guard func(*domain.PipelineSchema) error) (*domain.PipelineSchema, error) {
	schema, err := c.repo.GetSchemaByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guard(schema); err != nil {
		return nil, err
	}

	from := schema.Status
	schema.Status = to
	schema.UpdatedAt = c.now()
	if err := c.repo.SaveSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to save schema: %w", err)
	}

	c.logger.Info("schema status changed",
		zap.String("schema_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return schema, nil
}

// validate attaches a full validation report to schema
func (c *Catalog) validate(schema *domain.PipelineSchema) error {
	report, err := c.check(schema)
	if err != nil {
		return err
	}
	schema.Validation = report
	schema.IsValid = report.Valid()
	return nil
}

func (c *Catalog) check(schema *domain.PipelineSchema, types ...domain.ValidationType) (*domain.ValidationReport, error) {
	report, err := c.validator.Validate(schema, types...)
	if err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.RecordValidation(string(report.OverallStatus))
	}
	return report, nil
}

func checkDocument(schema *domain.PipelineSchema) error {
	if schema == nil {
		return domain.NewInvalidRequest("schema is required")
	}
	if strings.TrimSpace(schema.Name) == "" {
		return domain.NewInvalidRequest("schema name is required")
	}
	return nil
}

func validStatus(s domain.SchemaStatus) bool {
	switch s {
	case domain.SchemaStatusDraft, domain.SchemaStatusActive, domain.SchemaStatusDeprecated:
		return true
	}
	return false
}
