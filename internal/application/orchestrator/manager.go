package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/pipewright/internal/application/executor"
	"github.com/aescanero/pipewright/internal/application/validator"
	"github.com/aescanero/pipewright/internal/application/workers"
	"github.com/aescanero/pipewright/pkg/domain"
	"github.com/aescanero/pipewright/pkg/ports"
)

// errNotRunning aborts a terminal transition that lost a race with another one
var errNotRunning = errors.New("execution is not running")

// CreateRequest describes a new execution
type CreateRequest struct {
	SchemaID  string                 `json:"schema_id"`
	InputData map[string]interface{} `json:"input_data"`
	Mode      domain.ExecutionMode   `json:"execution_mode"`
	Variables map[string]interface{} `json:"variables,omitempty"`
	CreatedBy string                 `json:"created_by,omitempty"`
}

// Manager owns the lifecycle of executions: it creates them from schema
// snapshots, drives their graph walks in the background and publishes every
// transition on the event bus
type Manager struct {
	schemas   ports.SchemaStore
	store     ports.ExecutionStore
	eventBus  ports.EventBus
	executor  *executor.Executor
	validator *validator.Validator
	pool      *workers.Pool
	metrics   ports.MetricsCollector
	logger    *zap.Logger

	// Cancel funcs of running walks
	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	now func() time.Time
}

// NewManager creates a new execution manager. metrics may be nil.
func NewManager(
	schemas ports.SchemaStore,
	store ports.ExecutionStore,
	eventBus ports.EventBus,
	exec *executor.Executor,
	pool *workers.Pool,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		schemas:   schemas,
		store:     store,
		eventBus:  eventBus,
		executor:  exec,
		validator: validator.NewValidator(),
		pool:      pool,
		metrics:   metrics,
		logger:    logger,
		cancels:   make(map[string]context.CancelFunc),
		now:       time.Now,
	}
}

// Create snapshots a schema into a new pending execution with one pending
// step per node
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*domain.PipelineExecution, error) {
	if req.SchemaID == "" {
		return nil, domain.NewInvalidRequest("schema_id is required")
	}
	if req.Mode == "" {
		req.Mode = domain.ExecutionModeMock
	}
	if !req.Mode.Valid() {
		return nil, domain.NewInvalidRequest("unsupported execution mode %q", req.Mode)
	}

	schema, err := m.schemas.GetSchemaByID(ctx, req.SchemaID)
	if err != nil {
		return nil, err
	}
	snapshot, err := schema.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot schema: %w", err)
	}
	m.admit(snapshot)

	now := m.now()
	execution := &domain.PipelineExecution{
		ID:            uuid.New().String(),
		SchemaID:      snapshot.ID,
		SchemaVersion: snapshot.Version,
		ExecutionMode: req.Mode,
		Status:        domain.ExecutionStatusPending,
		InputData:     req.InputData,
		ExecutionContext: domain.ExecutionContext{
			Mode:      req.Mode,
			Variables: req.Variables,
			TraceID:   uuid.New().String(),
		},
		CreatedBy: req.CreatedBy,
		CreatedAt: now,
		Schema:    snapshot,
	}
	if execution.InputData == nil {
		execution.InputData = map[string]interface{}{}
	}

	execution.Steps = make([]*domain.ExecutionStep, 0, len(snapshot.NodeDefinitions))
	for _, def := range snapshot.NodeDefinitions {
		execution.Steps = append(execution.Steps, &domain.ExecutionStep{
			ID:          uuid.New().String(),
			ExecutionID: execution.ID,
			NodeID:      def.NodeID,
			NodeType:    def.NodeType,
			NodeName:    def.NodeName,
			Status:      domain.StepStatusPending,
		})
	}

	if err := m.store.Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to store execution: %w", err)
	}

	if m.metrics != nil {
		m.metrics.RecordExecutionCreated(string(req.Mode))
	}
	m.logger.Info("execution created",
		zap.String("execution_id", execution.ID),
		zap.String("schema_id", execution.SchemaID),
		zap.Int("schema_version", execution.SchemaVersion),
		zap.String("mode", string(req.Mode)),
		zap.Int("steps", len(execution.Steps)))

	return execution.Clone(), nil
}

// Start moves a pending execution to running and walks its graph in the
// background. It returns as soon as the status has flipped.
func (m *Manager) Start(ctx context.Context, id string) (*domain.PipelineExecution, error) {
	walkCtx, cancel := context.WithCancel(context.Background())

	// The cancel func is registered in the same store update that flips the
	// status, so a Cancel or Cleanup observing running always finds it
	registered := false
	started, err := m.store.Update(ctx, id, func(e *domain.PipelineExecution) error {
		if e.Status != domain.ExecutionStatusPending {
			return domain.NewInvalidRequest("execution %s is %s, only pending executions can be started", id, e.Status)
		}
		now := m.now()
		e.Status = domain.ExecutionStatusRunning
		e.StartedAt = &now

		m.mu.Lock()
		m.cancels[id] = cancel
		m.mu.Unlock()
		registered = true
		return nil
	})
	if err != nil {
		if registered {
			m.release(id)
		}
		cancel()
		return nil, err
	}

	if walkCtx.Err() != nil {
		// Cancelled or cleaned up before the walk was scheduled
		m.logger.Info("execution stopped before its walk started", zap.String("execution_id", id))
		return m.store.Get(ctx, id)
	}

	m.publish(ctx, domain.EventTypeExecutionStarted, id, "", map[string]interface{}{
		"status":         started.Status,
		"schema_id":      started.SchemaID,
		"execution_mode": started.ExecutionMode,
	})
	m.logger.Info("execution started",
		zap.String("execution_id", id),
		zap.String("schema_id", started.SchemaID))

	err = m.pool.Go(id, func(poolCtx context.Context) {
		// Pool shutdown cancels the walk like an explicit cancel would
		stop := context.AfterFunc(poolCtx, cancel)
		defer stop()
		m.walk(walkCtx, started)
	})
	if err != nil {
		m.release(id)
		m.fail(context.WithoutCancel(ctx), id, err, map[string]interface{}{"error_type": "scheduling"})
		return nil, fmt.Errorf("failed to schedule execution: %w", err)
	}

	return started, nil
}

// Cancel marks a pending or running execution cancelled. A node already
// running is not interrupted; no further node starts.
func (m *Manager) Cancel(ctx context.Context, id, reason string) (*domain.PipelineExecution, error) {
	cancelled, err := m.store.Update(ctx, id, func(e *domain.PipelineExecution) error {
		if e.Status.IsTerminal() {
			return domain.NewInvalidRequest("execution %s is already %s", id, e.Status)
		}
		m.terminate(e, domain.ExecutionStatusCancelled)
		e.CancelReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.release(id)
	m.finished(cancelled)
	m.publish(ctx, domain.EventTypeExecutionCancelled, id, "", map[string]interface{}{
		"status":        cancelled.Status,
		"cancel_reason": reason,
		"duration_ms":   cancelled.DurationMs,
	})
	m.logger.Info("execution cancelled",
		zap.String("execution_id", id),
		zap.String("reason", reason))

	return cancelled, nil
}

// Get returns an execution with its steps
func (m *Manager) Get(ctx context.Context, id string) (*domain.PipelineExecution, error) {
	return m.store.Get(ctx, id)
}

// List returns executions matching filter, newest first, with the total
// match count
func (m *Manager) List(ctx context.Context, filter ports.ExecutionFilter, page ports.Page) ([]*domain.PipelineExecution, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.NewInvalidRequest("unknown status filter %q", filter.Status)
	}
	if filter.Mode != "" && !filter.Mode.Valid() {
		return nil, 0, domain.NewInvalidRequest("unknown mode filter %q", filter.Mode)
	}
	if page.Limit < 0 || page.Offset < 0 {
		return nil, 0, domain.NewInvalidRequest("limit and offset must not be negative")
	}
	return m.store.List(ctx, filter, page)
}

// Cleanup deletes every execution created more than maxAge ago, whatever its
// status, and returns how many were removed
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge < 0 {
		return 0, domain.NewInvalidRequest("max age must not be negative")
	}

	removed, err := m.store.DeleteOlderThan(ctx, m.now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to delete executions: %w", err)
	}

	// Walks of removed executions have nothing left to report to
	for _, id := range removed {
		m.release(id)
	}

	if len(removed) > 0 {
		m.logger.Info("executions cleaned up",
			zap.Int("removed", len(removed)),
			zap.Duration("max_age", maxAge))
	}
	return len(removed), nil
}

// Watch subscribes to the events of one execution and then returns its
// current state, so no transition falls between the snapshot and the stream.
// The cleanup func must be called when the caller stops reading.
func (m *Manager) Watch(ctx context.Context, id string) (*domain.PipelineExecution, <-chan domain.Event, func(), error) {
	events, cleanup := m.eventBus.Subscribe(ctx, id)

	execution, err := m.store.Get(ctx, id)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return execution, events, cleanup, nil
}

// Shutdown cancels every running walk and waits for them to finish
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down execution manager")

	if err := m.pool.Shutdown(ctx); err != nil {
		return err
	}

	m.logger.Info("execution manager shut down complete")
	return nil
}

// release cancels and forgets the walk context of an execution
func (m *Manager) release(id string) {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	delete(m.cancels, id)
	m.mu.Unlock()

	if ok {
		cancel()
	}
}

// terminate stamps a terminal status. Steps that never ran are skipped
// unless the execution completed.
func (m *Manager) terminate(e *domain.PipelineExecution, status domain.ExecutionStatus) {
	now := m.now()
	e.Status = status
	e.CompletedAt = &now

	from := e.CreatedAt
	if e.StartedAt != nil {
		from = *e.StartedAt
	}
	e.DurationMs = domain.DurationSince(from, now)

	if status == domain.ExecutionStatusCompleted {
		return
	}
	for _, step := range e.Steps {
		if step.Status == domain.StepStatusPending {
			step.Status = domain.StepStatusSkipped
		}
	}
}

func (m *Manager) finished(e *domain.PipelineExecution) {
	if m.metrics == nil {
		return
	}
	var d time.Duration
	if e.DurationMs != nil {
		d = time.Duration(*e.DurationMs) * time.Millisecond
	}
	m.metrics.RecordExecutionFinished(string(e.Status), d)
}

// publish sends an event; delivery problems are logged, never returned
func (m *Manager) publish(ctx context.Context, eventType domain.EventType, executionID, nodeID string, data map[string]interface{}) {
	event := domain.Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Timestamp:   m.now(),
		Data:        data,
	}

	if err := m.eventBus.Publish(context.WithoutCancel(ctx), event); err != nil {
		m.logger.Warn("failed to publish event",
			zap.String("execution_id", executionID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}
