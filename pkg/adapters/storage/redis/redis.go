package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/pipewright/pkg/domain"
)

// SchemaRepository stores schemas as JSON documents in Redis
type SchemaRepository struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
}

// NewSchemaRepository creates a new Redis schema repository
func NewSchemaRepository(client *redis.Client, prefix string, logger *zap.Logger) *SchemaRepository {
	if prefix == "" {
		prefix = "pipewright"
	}
	return &SchemaRepository{
		client: client,
		logger: logger,
		prefix: prefix,
	}
}

// GetSchemaByID loads a schema
func (r *SchemaRepository) GetSchemaByID(ctx context.Context, id string) (*domain.PipelineSchema, error) {
	data, err := r.client.Get(ctx, r.schemaKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.NotFoundError{Resource: "schema", ID: id}
		}
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}

	var schema domain.PipelineSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return &schema, nil
}

// CreateSchema stores a schema with SET NX so a taken id is never overwritten
func (r *SchemaRepository) CreateSchema(ctx context.Context, schema *domain.PipelineSchema) error {
	if schema == nil || schema.ID == "" {
		return domain.NewInvalidRequest("schema must have an id")
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.schemaKey(schema.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if !created {
		return domain.NewInvalidRequest("schema %s already exists", schema.ID)
	}

	r.logger.Debug("schema created", zap.String("schema_id", schema.ID))
	return nil
}

// SaveSchema inserts or replaces a schema
func (r *SchemaRepository) SaveSchema(ctx context.Context, schema *domain.PipelineSchema) error {
	if schema == nil || schema.ID == "" {
		return domain.NewInvalidRequest("schema must have an id")
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	if err := r.client.Set(ctx, r.schemaKey(schema.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save schema: %w", err)
	}

	r.logger.Debug("schema saved",
		zap.String("schema_id", schema.ID),
		zap.Int("version", schema.Version),
		zap.String("status", string(schema.Status)))

	return nil
}

// ListSchemas scans every stored schema, oldest first
func (r *SchemaRepository) ListSchemas(ctx context.Context) ([]*domain.PipelineSchema, error) {
	pattern := r.schemaKey("*")

	var cursor uint64
	var keys []string
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	schemas := make([]*domain.PipelineSchema, 0, len(keys))
	for _, key := range keys {
		data, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			// Deleted between scan and get
			continue
		}

		var schema domain.PipelineSchema
		if err := json.Unmarshal(data, &schema); err != nil {
			r.logger.Warn("skipping unreadable schema",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		schemas = append(schemas, &schema)
	}

	sort.Slice(schemas, func(i, j int) bool {
		if !schemas[i].CreatedAt.Equal(schemas[j].CreatedAt) {
			return schemas[i].CreatedAt.Before(schemas[j].CreatedAt)
		}
		return schemas[i].ID < schemas[j].ID
	})
	return schemas, nil
}

// DeleteSchema removes a schema
func (r *SchemaRepository) DeleteSchema(ctx context.Context, id string) error {
	removed, err := r.client.Del(ctx, r.schemaKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete schema: %w", err)
	}
	if removed == 0 {
		return &domain.NotFoundError{Resource: "schema", ID: id}
	}

	r.logger.Debug("schema deleted", zap.String("schema_id", id))
	return nil
}

func (r *SchemaRepository) schemaKey(id string) string {
	return strings.Join([]string{r.prefix, "schema", id}, ":")
}
