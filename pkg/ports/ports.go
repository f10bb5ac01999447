package ports

import (
	"context"
	"time"

	"github.com/aescanero/pipewright/pkg/domain"
)

// SchemaStore is the read-through schema collaborator used by the engine.
// Unknown ids yield a *domain.NotFoundError.
type SchemaStore interface {
	GetSchemaByID(ctx context.Context, id string) (*domain.PipelineSchema, error)
}

// SchemaRepository persists schemas for the catalog
type SchemaRepository interface {
	SchemaStore
	// CreateSchema stores a schema whose id must not exist yet; a taken id
	// yields a *domain.InvalidRequestError
	CreateSchema(ctx context.Context, schema *domain.PipelineSchema) error
	SaveSchema(ctx context.Context, schema *domain.PipelineSchema) error
	ListSchemas(ctx context.Context) ([]*domain.PipelineSchema, error)
	DeleteSchema(ctx context.Context, id string) error
}

// ExecutionFilter narrows a listing of executions. Empty fields match all.
type ExecutionFilter struct {
	SchemaID string
	Status   domain.ExecutionStatus
	Mode     domain.ExecutionMode
}

// Page selects a window of a listing
type Page struct {
	Limit  int
	Offset int
}

// ExecutionStore is the concurrency-safe registry of executions and steps.
// All reads return copies; all writes go through Update.
type ExecutionStore interface {
	Create(ctx context.Context, execution *domain.PipelineExecution) error
	Get(ctx context.Context, id string) (*domain.PipelineExecution, error)
	Update(ctx context.Context, id string, fn func(*domain.PipelineExecution) error) (*domain.PipelineExecution, error)
	List(ctx context.Context, filter ExecutionFilter, page Page) ([]*domain.PipelineExecution, int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

// EventBus is the process-wide publish/subscribe channel for progress events
type EventBus interface {
	Publish(ctx context.Context, event domain.Event) error
	// Subscribe returns events for one execution id (all events when empty)
	// and a cleanup func that must be called to deregister.
	Subscribe(ctx context.Context, executionID string) (<-chan domain.Event, func())
	Close() error
}

// EventMirror receives a copy of every published event for external consumers
type EventMirror interface {
	Mirror(ctx context.Context, event domain.Event) error
}

// TransformExecutor runs real-mode transform work. It may block for seconds.
type TransformExecutor interface {
	Execute(ctx context.Context, nodeConfig map[string]interface{}, upstream map[string]interface{}) (interface{}, error)
}

// MetricsCollector records engine metrics
type MetricsCollector interface {
	RecordExecutionCreated(mode string)
	RecordExecutionFinished(status string, duration time.Duration)
	RecordNodeExecuted(nodeType, status string, duration time.Duration)
	RecordValidation(status string)
	SetActiveExecutions(count int)
	RecordEventPublished(eventType string, subscribers int)
	RecordEventDropped(eventType string)
}
