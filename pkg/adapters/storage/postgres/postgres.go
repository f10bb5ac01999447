package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aescanero/pipewright/pkg/domain"
)

// Migration creates the schema table. It is safe to run repeatedly.
const Migration = `CREATE TABLE IF NOT EXISTS pipeline_schemas (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	version    INT NOT NULL,
	status     TEXT NOT NULL,
	is_valid   BOOLEAN NOT NULL DEFAULT FALSE,
	document   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// SchemaRepository stores schemas in PostgreSQL. Indexed columns mirror the
// document so listings can be filtered without decoding it.
type SchemaRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewSchemaRepository creates a new PostgreSQL schema repository
func NewSchemaRepository(db *pgxpool.Pool, logger *zap.Logger) *SchemaRepository {
	return &SchemaRepository{db: db, logger: logger}
}

// Migrate creates the backing table
func (r *SchemaRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Migration); err != nil {
		return fmt.Errorf("failed to migrate schema table: %w", err)
	}
	return nil
}

// GetSchemaByID loads a schema
func (r *SchemaRepository) GetSchemaByID(ctx context.Context, id string) (*domain.PipelineSchema, error) {
	var document []byte
	err := r.db.QueryRow(ctx, "SELECT document FROM pipeline_schemas WHERE id = $1", id).Scan(&document)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Resource: "schema", ID: id}
		}
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	return decode(document)
}

// CreateSchema inserts a schema; a taken id leaves the stored row untouched
func (r *SchemaRepository) CreateSchema(ctx context.Context, schema *domain.PipelineSchema) error {
	if schema == nil || schema.ID == "" {
		return domain.NewInvalidRequest("schema must have an id")
	}

	document, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	tag, err := r.db.Exec(ctx, `INSERT INTO pipeline_schemas (id, name, version, status, is_valid, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		schema.ID, schema.Name, schema.Version, string(schema.Status), schema.IsValid, document, schema.CreatedAt, schema.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewInvalidRequest("schema %s already exists", schema.ID)
	}

	r.logger.Debug("schema created", zap.String("schema_id", schema.ID))
	return nil
}

// SaveSchema upserts a schema
func (r *SchemaRepository) SaveSchema(ctx context.Context, schema *domain.PipelineSchema) error {
	if schema == nil || schema.ID == "" {
		return domain.NewInvalidRequest("schema must have an id")
	}

	document, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	_, err = r.db.Exec(ctx, `INSERT INTO pipeline_schemas (id, name, version, status, is_valid, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			status = EXCLUDED.status,
			is_valid = EXCLUDED.is_valid,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at`,
		schema.ID, schema.Name, schema.Version, string(schema.Status), schema.IsValid, document, schema.CreatedAt, schema.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save schema: %w", err)
	}

	r.logger.Debug("schema saved",
		zap.String("schema_id", schema.ID),
		zap.Int("version", schema.Version))
	return nil
}

// ListSchemas returns every schema, oldest first
func (r *SchemaRepository) ListSchemas(ctx context.Context) ([]*domain.PipelineSchema, error) {
	rows, err := r.db.Query(ctx, "SELECT document FROM pipeline_schemas ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	defer rows.Close()

	var schemas []*domain.PipelineSchema
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan schema: %w", err)
		}
		schema, err := decode(document)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	return schemas, nil
}

// DeleteSchema removes a schema
func (r *SchemaRepository) DeleteSchema(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM pipeline_schemas WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete schema: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Resource: "schema", ID: id}
	}
	return nil
}

func decode(document []byte) (*domain.PipelineSchema, error) {
	var schema domain.PipelineSchema
	if err := json.Unmarshal(document, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return &schema, nil
}
