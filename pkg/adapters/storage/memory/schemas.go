package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/pipewright/pkg/domain"
)

// SchemaRepository keeps schemas in process memory
type SchemaRepository struct {
	schemas map[string]*domain.PipelineSchema
	mu      sync.RWMutex
}

// NewSchemaRepository creates a new in-memory schema repository
func NewSchemaRepository() *SchemaRepository {
	return &SchemaRepository{
		schemas: make(map[string]*domain.PipelineSchema),
	}
}

// GetSchemaByID returns a copy of a schema
func (r *SchemaRepository) GetSchemaByID(ctx context.Context, id string) (*domain.PipelineSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.schemas[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "schema", ID: id}
	}
	return schema.Clone()
}

// CreateSchema inserts a schema unless its id is taken
func (r *SchemaRepository) CreateSchema(ctx context.Context, schema *domain.PipelineSchema) error {
	if schema == nil || schema.ID == "" {
		return domain.NewInvalidRequest("schema must have an id")
	}

	stored, err := schema.Clone()
	if err != nil {
		return fmt.Errorf("failed to copy schema: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schemas[schema.ID]; ok {
		return domain.NewInvalidRequest("schema %s already exists", schema.ID)
	}
	r.schemas[schema.ID] = stored
	return nil
}

// SaveSchema inserts or replaces a schema
func (r *SchemaRepository) SaveSchema(ctx context.Context, schema *domain.PipelineSchema) error {
	if schema == nil || schema.ID == "" {
		return domain.NewInvalidRequest("schema must have an id")
	}

	stored, err := schema.Clone()
	if err != nil {
		return fmt.Errorf("failed to copy schema: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.schemas[schema.ID] = stored
	return nil
}

// ListSchemas returns every schema, oldest first
func (r *SchemaRepository) ListSchemas(ctx context.Context) ([]*domain.PipelineSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.PipelineSchema, 0, len(r.schemas))
	for _, schema := range r.schemas {
		c, err := schema.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to copy schema %s: %w", schema.ID, err)
		}
		out = append(out, c)
	}
	sortSchemas(out)
	return out, nil
}

// DeleteSchema removes a schema
func (r *SchemaRepository) DeleteSchema(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schemas[id]; !ok {
		return &domain.NotFoundError{Resource: "schema", ID: id}
	}
	delete(r.schemas, id)
	return nil
}

func sortSchemas(schemas []*domain.PipelineSchema) {
	sort.Slice(schemas, func(i, j int) bool {
		if !schemas[i].CreatedAt.Equal(schemas[j].CreatedAt) {
			return schemas[i].CreatedAt.Before(schemas[j].CreatedAt)
		}
		return schemas[i].ID < schemas[j].ID
	})
}
