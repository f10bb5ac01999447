package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aescanero/pipewright/pkg/domain"
	"github.com/aescanero/pipewright/pkg/ports"
)

const tracerName = "github.com/aescanero/pipewright/executor"

// Observer receives node lifecycle notifications during a walk. Calls are made
// from the walking goroutine, except Emit which parallel branches never use.
// An error from NodeStarted stops the walk before the node runs.
type Observer interface {
	NodeStarted(nodeID string, input map[string]interface{}) error
	NodeCompleted(nodeID string, output interface{}, duration time.Duration)
	NodeFailed(nodeID string, err error, duration time.Duration)
	Emit(eventType domain.EventType, nodeID string, data map[string]interface{})
}

// Run describes one walk of a graph
type Run struct {
	ExecutionID string
	Mode        domain.ExecutionMode
	Input       map[string]interface{}
	Variables   map[string]interface{}
	Graph       *Graph
	Observer    Observer
}

func (r *Run) observer() Observer {
	if r.Observer == nil {
		return nopObserver{}
	}
	return r.Observer
}

// Executor runs pipeline graphs
type Executor struct {
	transform ports.TransformExecutor
	metrics   ports.MetricsCollector
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithTransformExecutor sets the collaborator used by real-mode transforms
func WithTransformExecutor(t ports.TransformExecutor) Option {
	return func(e *Executor) {
		e.transform = t
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m ports.MetricsCollector) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global provider
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewExecutor creates a new graph executor
func NewExecutor(logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		tracer: otel.Tracer(tracerName),
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute walks the whole graph and returns every node's result keyed by node
// id. The first node failure aborts the walk. Cancelling ctx stops further
// nodes from starting; a node already running is not interrupted.
func (e *Executor) Execute(ctx context.Context, run *Run) (map[string]interface{}, error) {
	if run == nil || run.Graph == nil {
		return nil, domain.NewInvalidRequest("run has no graph")
	}

	w := &walk{
		executor: e,
		run:      run,
		ctx:      ctx,
		state:    make(map[string]visitState, run.Graph.Len()),
		results:  make(map[string]interface{}, run.Graph.Len()),
	}

	for _, id := range run.Graph.order {
		if err := w.visit(id); err != nil {
			return w.results, err
		}
	}
	return w.results, nil
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// walk is the state of one depth-first traversal
type walk struct {
	executor *Executor
	run      *Run
	ctx      context.Context
	state    map[string]visitState
	stack    []string
	results  map[string]interface{}
}

func (w *walk) visit(id string) error {
	switch w.state[id] {
	case visited:
		return nil
	case visiting:
		return &domain.CycleError{Path: w.cyclePath(id)}
	}

	w.state[id] = visiting
	w.stack = append(w.stack, id)

	for _, dep := range w.run.Graph.Dependencies(id) {
		if err := w.visit(dep); err != nil {
			return err
		}
	}

	if err := w.ctx.Err(); err != nil {
		return err
	}

	output, err := w.executor.runNode(w, id)
	if err != nil {
		return err
	}

	w.results[id] = output
	w.stack = w.stack[:len(w.stack)-1]
	w.state[id] = visited
	return nil
}

func (w *walk) cyclePath(id string) []string {
	for i, onStack := range w.stack {
		if onStack == id {
			path := append([]string{}, w.stack[i:]...)
			return append(path, id)
		}
	}
	return []string{id, id}
}

// runNode wraps a node's behaviour with the uniform started/completed/failed
// reporting
func (e *Executor) runNode(w *walk, id string) (interface{}, error) {
	def, _ := w.run.Graph.Node(id)
	runner := w.run.Graph.runners[id]
	kind := runner.kind()
	deps := w.run.Graph.Dependencies(id)

	upstream := make(map[string]interface{}, len(deps))
	for _, dep := range deps {
		upstream[dep] = w.results[dep]
	}

	obs := w.run.observer()
	if err := obs.NodeStarted(id, upstream); err != nil {
		return nil, err
	}

	// The in-flight node keeps running even if the execution is cancelled
	ctx, span := e.tracer.Start(context.WithoutCancel(w.ctx), "pipeline.execute_node",
		trace.WithAttributes(
			attribute.String("execution.id", w.run.ExecutionID),
			attribute.String("node.id", id),
			attribute.String("node.type", string(kind)),
			attribute.String("execution.mode", string(w.run.Mode)),
		),
	)
	defer span.End()

	nc := &nodeContext{
		ctx:           ctx,
		executor:      e,
		run:           w.run,
		def:           def,
		upstream:      upstream,
		upstreamOrder: deps,
		incoming:      w.run.Graph.incoming[id],
		results:       w.results,
	}

	start := time.Now()
	output, err := safeExecute(runner, nc)
	duration := time.Since(start)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		e.recordNode(kind, domain.StepStatusFailed, duration)
		e.logger.Error("node execution failed",
			zap.String("execution_id", w.run.ExecutionID),
			zap.String("node_id", id),
			zap.String("node_type", string(kind)),
			zap.Duration("duration", duration),
			zap.Error(err))

		obs.NodeFailed(id, err, duration)

		var nodeErr *domain.NodeExecutionError
		if errors.As(err, &nodeErr) {
			return nil, err
		}
		return nil, &domain.NodeExecutionError{NodeID: id, NodeType: kind, Cause: err}
	}

	span.SetStatus(codes.Ok, "node executed")
	e.recordNode(kind, domain.StepStatusCompleted, duration)
	e.logger.Debug("node execution completed",
		zap.String("execution_id", w.run.ExecutionID),
		zap.String("node_id", id),
		zap.String("node_type", string(kind)),
		zap.Duration("duration", duration))

	obs.NodeCompleted(id, output, duration)
	return output, nil
}

func (e *Executor) recordNode(nodeType domain.NodeType, status domain.StepStatus, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordNodeExecuted(string(nodeType), string(status), d)
	}
}

// safeExecute converts a panicking node into an ordinary failure
func safeExecute(n node, nc *nodeContext) (out interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("node panicked: %v", r)
		}
	}()
	return n.execute(nc)
}

type nopObserver struct{}

func (nopObserver) NodeStarted(string, map[string]interface{}) error      { return nil }
func (nopObserver) NodeCompleted(string, interface{}, time.Duration)      {}
func (nopObserver) NodeFailed(string, error, time.Duration)               {}
func (nopObserver) Emit(domain.EventType, string, map[string]interface{}) {}
