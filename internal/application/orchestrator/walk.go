package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/pipewright/internal/application/executor"
	"github.com/aescanero/pipewright/pkg/domain"
)

// walk runs the graph of a started execution to a terminal state. Nothing
// here returns an error to a caller: every outcome lands on the record.
func (m *Manager) walk(ctx context.Context, execution *domain.PipelineExecution) {
	id := execution.ID
	defer m.release(id)

	// The background context keeps record updates and events flowing after
	// the walk context is cancelled
	bg := context.Background()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("execution walk panicked",
				zap.String("execution_id", id),
				zap.Any("panic", r))
			m.fail(bg, id, fmt.Errorf("execution panicked: %v", r), map[string]interface{}{"error_type": "panic"})
		}
	}()

	graph, err := executor.BuildGraph(execution.Schema)
	if err != nil {
		m.fail(bg, id, err, map[string]interface{}{"error_type": "graph"})
		return
	}

	results, err := m.executor.Execute(ctx, &executor.Run{
		ExecutionID: id,
		Mode:        execution.ExecutionMode,
		Input:       execution.InputData,
		Variables:   execution.ExecutionContext.Variables,
		Graph:       graph,
		Observer:    &stepObserver{manager: m, ctx: bg, executionID: id},
	})

	switch {
	case err == nil:
		m.complete(bg, id, mergeOutputs(graph.NodeIDs(), results))
	case errors.Is(err, context.Canceled):
		// An explicit Cancel already recorded the outcome; this only
		// catches walks stopped by shutdown
		m.cancelRunning(bg, id, "engine shutdown")
	default:
		m.fail(bg, id, err, errorDetails(err))
	}
}

// mergeOutputs shallow-merges every object-shaped node output in node
// definition order; later nodes win on key collisions
func mergeOutputs(order []string, results map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, id := range order {
		if obj, ok := results[id].(map[string]interface{}); ok {
			for k, v := range obj {
				out[k] = v
			}
		}
	}
	return out
}

func errorDetails(err error) map[string]interface{} {
	details := map[string]interface{}{"error_type": "node_execution"}

	var nodeErr *domain.NodeExecutionError
	if errors.As(err, &nodeErr) {
		details["node_id"] = nodeErr.NodeID
		details["node_type"] = nodeErr.NodeType
	}

	var extErr *domain.ExternalExecutorError
	var cycleErr *domain.CycleError
	switch {
	case errors.As(err, &extErr):
		details["error_type"] = "external_executor"
		details["executor"] = extErr.Executor
	case errors.As(err, &cycleErr):
		details["error_type"] = "cycle"
		details["cycle"] = cycleErr.Path
	}
	return details
}

// finish applies a terminal transition to a running execution. It reports
// false when the execution already left running (cancelled mid-walk) or was
// cleaned up.
func (m *Manager) finish(ctx context.Context, id string, status domain.ExecutionStatus, apply func(*domain.PipelineExecution)) (*domain.PipelineExecution, bool) {
	execution, err := m.store.Update(ctx, id, func(e *domain.PipelineExecution) error {
		if e.Status != domain.ExecutionStatusRunning {
			return errNotRunning
		}
		m.terminate(e, status)
		apply(e)
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNotRunning) {
			m.logger.Warn("failed to record terminal status",
				zap.String("execution_id", id),
				zap.String("status", string(status)),
				zap.Error(err))
		}
		return nil, false
	}

	m.finished(execution)
	return execution, true
}

func (m *Manager) complete(ctx context.Context, id string, output map[string]interface{}) {
	execution, ok := m.finish(ctx, id, domain.ExecutionStatusCompleted, func(e *domain.PipelineExecution) {
		e.OutputData = output
	})
	if !ok {
		return
	}

	m.publish(ctx, domain.EventTypeExecutionCompleted, id, "", map[string]interface{}{
		"status":      execution.Status,
		"output_data": execution.OutputData,
		"duration_ms": execution.DurationMs,
	})
	m.logger.Info("execution completed",
		zap.String("execution_id", id),
		zap.Int64p("duration_ms", execution.DurationMs))
}

func (m *Manager) fail(ctx context.Context, id string, cause error, details map[string]interface{}) {
	message := cause.Error()
	execution, ok := m.finish(ctx, id, domain.ExecutionStatusFailed, func(e *domain.PipelineExecution) {
		e.ErrorMessage = &message
		e.ErrorDetails = details
	})
	if !ok {
		return
	}

	m.publish(ctx, domain.EventTypeExecutionFailed, id, "", map[string]interface{}{
		"status":        execution.Status,
		"error_message": message,
		"error_details": details,
		"duration_ms":   execution.DurationMs,
	})
	m.logger.Warn("execution failed",
		zap.String("execution_id", id),
		zap.Error(cause))
}

func (m *Manager) cancelRunning(ctx context.Context, id, reason string) {
	execution, ok := m.finish(ctx, id, domain.ExecutionStatusCancelled, func(e *domain.PipelineExecution) {
		e.CancelReason = reason
	})
	if !ok {
		return
	}

	m.publish(ctx, domain.EventTypeExecutionCancelled, id, "", map[string]interface{}{
		"status":        execution.Status,
		"cancel_reason": reason,
		"duration_ms":   execution.DurationMs,
	})
	m.logger.Info("execution cancelled",
		zap.String("execution_id", id),
		zap.String("reason", reason))
}

// stepObserver mirrors node transitions onto step records and events
type stepObserver struct {
	manager     *Manager
	ctx         context.Context
	executionID string
}

// NodeStarted refuses to start a node once the execution has left running,
// so a cancel that raced the walk's own context check still wins
func (o *stepObserver) NodeStarted(nodeID string, input map[string]interface{}) error {
	step, err := o.updateStep(nodeID, func(e *domain.PipelineExecution, s *domain.ExecutionStep) error {
		if e.Status != domain.ExecutionStatusRunning {
			return errNotRunning
		}
		now := o.manager.now()
		s.Status = domain.StepStatusRunning
		s.StartedAt = &now
		s.InputData = input
		return nil
	})
	if err != nil {
		return fmt.Errorf("node %s not started: %w: %w", nodeID, err, context.Canceled)
	}

	o.manager.publish(o.ctx, domain.EventTypeNodeStarted, o.executionID, nodeID, map[string]interface{}{
		"node_type": step.NodeType,
		"node_name": step.NodeName,
	})
	o.stepUpdated(step)
	return nil
}

func (o *stepObserver) NodeCompleted(nodeID string, output interface{}, duration time.Duration) {
	step, _ := o.updateStep(nodeID, func(_ *domain.PipelineExecution, s *domain.ExecutionStep) error {
		now := o.manager.now()
		s.Status = domain.StepStatusCompleted
		s.OutputData = output
		s.CompletedAt = &now
		ms := duration.Milliseconds()
		s.DurationMs = &ms
		return nil
	})
	if step == nil {
		return
	}

	o.manager.publish(o.ctx, domain.EventTypeNodeCompleted, o.executionID, nodeID, map[string]interface{}{
		"node_type":   step.NodeType,
		"output_data": output,
		"duration_ms": step.DurationMs,
	})
	o.stepUpdated(step)
}

func (o *stepObserver) NodeFailed(nodeID string, err error, duration time.Duration) {
	step, _ := o.updateStep(nodeID, func(_ *domain.PipelineExecution, s *domain.ExecutionStep) error {
		now := o.manager.now()
		s.Status = domain.StepStatusFailed
		s.ErrorMessage = err.Error()
		s.CompletedAt = &now
		ms := duration.Milliseconds()
		s.DurationMs = &ms
		return nil
	})
	if step == nil {
		return
	}

	o.manager.publish(o.ctx, domain.EventTypeNodeFailed, o.executionID, nodeID, map[string]interface{}{
		"node_type":     step.NodeType,
		"error_message": step.ErrorMessage,
	})
	o.stepUpdated(step)
}

func (o *stepObserver) Emit(eventType domain.EventType, nodeID string, data map[string]interface{}) {
	o.manager.publish(o.ctx, eventType, o.executionID, nodeID, data)
}

func (o *stepObserver) stepUpdated(step *domain.ExecutionStep) {
	o.manager.publish(o.ctx, domain.EventTypeStepUpdated, o.executionID, step.NodeID, map[string]interface{}{
		"step": step,
	})
}

// updateStep applies fn to one step record and returns the stored copy. It
// returns an error when the execution or step is gone or fn refuses.
func (o *stepObserver) updateStep(nodeID string, fn func(*domain.PipelineExecution, *domain.ExecutionStep) error) (*domain.ExecutionStep, error) {
	var updated *domain.ExecutionStep
	_, err := o.manager.store.Update(o.ctx, o.executionID, func(e *domain.PipelineExecution) error {
		step, ok := e.Step(nodeID)
		if !ok {
			return &domain.NotFoundError{Resource: "step", ID: nodeID}
		}
		if err := fn(e, step); err != nil {
			return err
		}
		copied := *step
		updated = &copied
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNotRunning) {
			o.manager.logger.Warn("failed to update step",
				zap.String("execution_id", o.executionID),
				zap.String("node_id", nodeID),
				zap.Error(err))
		}
		return nil, err
	}
	return updated, nil
}
