package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/pipewright/internal/application/executor"
	"github.com/aescanero/pipewright/internal/application/workers"
	eventsmemory "github.com/aescanero/pipewright/pkg/adapters/events/memory"
	storagememory "github.com/aescanero/pipewright/pkg/adapters/storage/memory"
	"github.com/aescanero/pipewright/pkg/domain"
	"github.com/aescanero/pipewright/pkg/ports"
)

type fixture struct {
	manager *Manager
	schemas *storagememory.SchemaRepository
	bus     *eventsmemory.EventBus
	pool    *workers.Pool
}

func newFixture(t *testing.T, opts ...executor.Option) *fixture {
	t.Helper()
	return newFixtureWithStore(t, storagememory.NewExecutionStore(), opts...)
}

func newFixtureWithStore(t *testing.T, store ports.ExecutionStore, opts ...executor.Option) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	schemas := storagememory.NewSchemaRepository()
	bus := eventsmemory.NewEventBus(logger)
	pool := workers.NewPool(nil, logger)
	exec := executor.NewExecutor(logger, opts...)

	m := NewManager(schemas, store, bus, exec, pool, nil, logger)
	t.Cleanup(func() {
		_ = pool.Shutdown(context.Background())
		_ = bus.Close()
	})

	return &fixture{manager: m, schemas: schemas, bus: bus, pool: pool}
}

func (f *fixture) save(t *testing.T, schema *domain.PipelineSchema) {
	t.Helper()
	require.NoError(t, f.schemas.SaveSchema(context.Background(), schema))
}

// blockingTransform holds real-mode transforms until released
type blockingTransform struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingTransform() *blockingTransform {
	return &blockingTransform{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingTransform) Execute(_ context.Context, _ map[string]interface{}, _ map[string]interface{}) (interface{}, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return map[string]interface{}{"answer": 42}, nil
}

func linearSchema(transformConfig map[string]interface{}) *domain.PipelineSchema {
	return &domain.PipelineSchema{
		ID:      "linear",
		Name:    "linear",
		Version: 1,
		Status:  domain.SchemaStatusActive,
		NodeDefinitions: []domain.NodeDefinition{
			{NodeID: "i1", NodeType: domain.NodeTypeInput, NodeName: "Input"},
			{NodeID: "t1", NodeType: domain.NodeTypeTransform, NodeName: "Transform", Config: transformConfig},
			{NodeID: "o1", NodeType: domain.NodeTypeOutput, NodeName: "Output", Config: map[string]interface{}{
				"mapping": map[string]interface{}{"result": "t1"},
			}},
		},
		EdgeDefinitions: []domain.EdgeDefinition{
			{ID: "e1", SourceNodeID: "i1", TargetNodeID: "t1"},
			{ID: "e2", SourceNodeID: "t1", TargetNodeID: "o1"},
		},
		InputSchema: &domain.FieldSchema{Type: "object", Properties: map[string]*domain.FieldSchema{
			"x": {Type: "number"},
		}},
		OutputSchema: &domain.FieldSchema{Type: "object", Properties: map[string]*domain.FieldSchema{
			"result": {Type: "object"},
		}},
	}
}

func waitForStatus(t *testing.T, m *Manager, id string, status domain.ExecutionStatus) *domain.PipelineExecution {
	t.Helper()
	var last *domain.PipelineExecution
	require.Eventually(t, func() bool {
		e, err := m.Get(context.Background(), id)
		require.NoError(t, err)
		last = e
		return e.Status == status
	}, 2*time.Second, 5*time.Millisecond, "execution never reached %s", status)
	return last
}

func stepStatuses(e *domain.PipelineExecution) map[string]domain.StepStatus {
	out := make(map[string]domain.StepStatus, len(e.Steps))
	for _, s := range e.Steps {
		out[s.NodeID] = s.Status
	}
	return out
}

func TestManager_EndToEndMock(t *testing.T) {
	f := newFixture(t)
	f.save(t, linearSchema(map[string]interface{}{"type": "text_generation"}))
	ctx := context.Background()

	created, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear", InputData: map[string]interface{}{"x": 1}})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusPending, created.Status)
	assert.Equal(t, domain.ExecutionModeMock, created.ExecutionMode)
	assert.Len(t, created.Steps, 3)
	assert.Nil(t, created.OutputData)
	assert.NotEmpty(t, created.ExecutionContext.TraceID)

	started, err := f.manager.Start(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusRunning, started.Status)
	assert.NotNil(t, started.StartedAt)

	done := waitForStatus(t, f.manager, created.ID, domain.ExecutionStatusCompleted)
	require.NotNil(t, done.OutputData)
	assert.Contains(t, done.OutputData, "result")
	assert.Equal(t, 1, done.OutputData["x"])
	assert.NotNil(t, done.CompletedAt)
	assert.NotNil(t, done.DurationMs)
	assert.Nil(t, done.ErrorMessage)

	for _, step := range done.Steps {
		assert.Equal(t, domain.StepStatusCompleted, step.Status, step.NodeID)
		require.NotNil(t, step.StartedAt)
		require.NotNil(t, step.CompletedAt)
		assert.False(t, step.CompletedAt.Before(*step.StartedAt))
	}
}

func TestManager_CreateErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Create(ctx, CreateRequest{SchemaID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.manager.Create(ctx, CreateRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	f.save(t, linearSchema(nil))
	_, err = f.manager.Create(ctx, CreateRequest{SchemaID: "linear", Mode: "turbo"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestManager_SnapshotIsolatedFromSchemaUpdates(t *testing.T) {
	f := newFixture(t)
	f.save(t, linearSchema(nil))
	ctx := context.Background()

	created, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear"})
	require.NoError(t, err)

	// Replacing the schema after creation does not change what runs
	changed := linearSchema(nil)
	changed.NodeDefinitions = changed.NodeDefinitions[:1]
	changed.EdgeDefinitions = nil
	f.save(t, changed)

	_, err = f.manager.Start(ctx, created.ID)
	require.NoError(t, err)
	done := waitForStatus(t, f.manager, created.ID, domain.ExecutionStatusCompleted)
	assert.Len(t, done.Steps, 3)
}

func TestManager_DoubleStartRejected(t *testing.T) {
	f := newFixture(t)
	f.save(t, linearSchema(nil))
	ctx := context.Background()

	created, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear"})
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, created.ID)
	require.NoError(t, err)

	_, err = f.manager.Start(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.manager.Start(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManager_CancelPending(t *testing.T) {
	f := newFixture(t)
	f.save(t, linearSchema(nil))
	ctx := context.Background()

	created, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear"})
	require.NoError(t, err)

	cancelled, err := f.manager.Cancel(ctx, created.ID, "user request")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCancelled, cancelled.Status)
	assert.Equal(t, "user request", cancelled.CancelReason)
	assert.NotNil(t, cancelled.CompletedAt)
	assert.NotNil(t, cancelled.DurationMs)
	for _, status := range stepStatuses(cancelled) {
		assert.Equal(t, domain.StepStatusSkipped, status)
	}

	_, err = f.manager.Start(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestManager_CancelTerminalHasNoSideEffect(t *testing.T) {
	f := newFixture(t)
	f.save(t, linearSchema(nil))
	ctx := context.Background()

	created, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear"})
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, created.ID)
	require.NoError(t, err)
	before := waitForStatus(t, f.manager, created.ID, domain.ExecutionStatusCompleted)

	for i := 0; i < 2; i++ {
		_, err = f.manager.Cancel(ctx, created.ID, "too late")
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	}

	after, err := f.manager.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.CompletedAt, after.CompletedAt)
	assert.Empty(t, after.CancelReason)

	_, err = f.manager.Cancel(ctx, "missing", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManager_NodeFailureFailsExecution(t *testing.T) {
	f := newFixture(t)
	f.save(t, linearSchema(map[string]interface{}{"simulate_error": "model unavailable"}))
	ctx := context.Background()

	created, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear"})
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, created.ID)
	require.NoError(t, err)

	failed := waitForStatus(t, f.manager, created.ID, domain.ExecutionStatusFailed)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "model unavailable")
	assert.Equal(t, "t1", failed.ErrorDetails["node_id"])
	assert.Nil(t, failed.OutputData)
	assert.Equal(t, map[string]domain.StepStatus{
		"i1": domain.StepStatusCompleted,
		"t1": domain.StepStatusFailed,
		"o1": domain.StepStatusSkipped,
	}, stepStatuses(failed))

	step, ok := failed.Step("t1")
	require.True(t, ok)
	assert.Contains(t, step.ErrorMessage, "model unavailable")
}

func TestManager_CycleFailsExecution(t *testing.T) {
	f := newFixture(t)
	schema := linearSchema(nil)
	schema.EdgeDefinitions = append(schema.EdgeDefinitions, domain.EdgeDefinition{ID: "back", SourceNodeID: "o1", TargetNodeID: "i1"})
	f.save(t, schema)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear"})
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, created.ID)
	require.NoError(t, err)

	failed := waitForStatus(t, f.manager, created.ID, domain.ExecutionStatusFailed)
	assert.Equal(t, "cycle", failed.ErrorDetails["error_type"])
}

func TestManager_CancelRunningLetsInFlightNodeFinish(t *testing.T) {
	blocking := newBlockingTransform()
	f := newFixture(t, executor.WithTransformExecutor(blocking))
	f.save(t, linearSchema(map[string]interface{}{"prompt": "hi"}))
	ctx := context.Background()

	created, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear", Mode: domain.ExecutionModeReal})
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, created.ID)
	require.NoError(t, err)

	<-blocking.started
	cancelled, err := f.manager.Cancel(ctx, created.ID, "stop")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCancelled, cancelled.Status)

	close(blocking.release)
	require.Eventually(t, func() bool { return f.pool.Active() == 0 }, 2*time.Second, 5*time.Millisecond)

	final, err := f.manager.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCancelled, final.Status)
	assert.Equal(t, "stop", final.CancelReason)

	statuses := stepStatuses(final)
	assert.Equal(t, domain.StepStatusCompleted, statuses["t1"])
	assert.Equal(t, domain.StepStatusSkipped, statuses["o1"])
}

func TestManager_WatchStreamsLifecycle(t *testing.T) {
	f := newFixture(t)
	f.save(t, linearSchema(nil))
	ctx := context.Background()

	created, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear"})
	require.NoError(t, err)

	snapshot, events, cleanup, err := f.manager.Watch(ctx, created.ID)
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, domain.ExecutionStatusPending, snapshot.Status)

	_, err = f.manager.Start(ctx, created.ID)
	require.NoError(t, err)

	var types []domain.EventType
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case ev := <-events:
			assert.Equal(t, created.ID, ev.ExecutionID)
			types = append(types, ev.Type)
			done = ev.Type.IsTerminal()
		case <-timeout:
			t.Fatalf("no terminal event, got %v", types)
		}
	}

	require.NotEmpty(t, types)
	assert.Equal(t, domain.EventTypeExecutionStarted, types[0])
	assert.Equal(t, domain.EventTypeExecutionCompleted, types[len(types)-1])
	assert.Contains(t, types, domain.EventTypeNodeStarted)
	assert.Contains(t, types, domain.EventTypeNodeCompleted)
	assert.Contains(t, types, domain.EventTypeStepUpdated)

	_, _, _, err = f.manager.Watch(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, f.bus.SubscriberCount())
}

func TestManager_CleanupIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.save(t, linearSchema(nil))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear"})
		require.NoError(t, err)
	}

	removed, err := f.manager.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	f.manager.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	removed, err = f.manager.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = f.manager.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	_, err = f.manager.Cleanup(ctx, -time.Second)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestManager_List(t *testing.T) {
	f := newFixture(t)
	f.save(t, linearSchema(nil))
	ctx := context.Background()

	first, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear"})
	require.NoError(t, err)
	second, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear", Mode: domain.ExecutionModeReal})
	require.NoError(t, err)

	all, total, err := f.manager.List(ctx, ports.ExecutionFilter{}, ports.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)

	reals, _, err := f.manager.List(ctx, ports.ExecutionFilter{Mode: domain.ExecutionModeReal}, ports.Page{})
	require.NoError(t, err)
	require.Len(t, reals, 1)
	assert.Equal(t, second.ID, reals[0].ID)

	_, _, err = f.manager.List(ctx, ports.ExecutionFilter{Status: "sleeping"}, ports.Page{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, _, err = f.manager.List(ctx, ports.ExecutionFilter{}, ports.Page{Limit: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestManager_ShutdownCancelsRunningWalks(t *testing.T) {
	blocking := newBlockingTransform()
	f := newFixture(t, executor.WithTransformExecutor(blocking))
	f.save(t, linearSchema(map[string]interface{}{"prompt": "hi"}))
	ctx := context.Background()

	created, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear", Mode: domain.ExecutionModeReal})
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, created.ID)
	require.NoError(t, err)
	<-blocking.started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(blocking.release)
	}()
	require.NoError(t, f.manager.Shutdown(ctx))

	final, err := f.manager.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCancelled, final.Status)
	assert.Equal(t, "engine shutdown", final.CancelReason)

	// A closed pool cannot take new walks; the execution fails instead of
	// hanging in running
	next, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear"})
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, next.ID)
	require.Error(t, err)

	failed, err := f.manager.Get(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, failed.Status)
}

func TestMergeOutputs(t *testing.T) {
	out := mergeOutputs([]string{"a", "b", "c"}, map[string]interface{}{
		"a": map[string]interface{}{"k": 1, "x": "a"},
		"b": []interface{}{1, 2},
		"c": map[string]interface{}{"k": 2},
	})
	assert.Equal(t, map[string]interface{}{"k": 2, "x": "a"}, out)
}

// cancelOnRunStore runs onRunning once, right after the first update that
// leaves an execution running has committed
type cancelOnRunStore struct {
	ports.ExecutionStore
	once      sync.Once
	onRunning func(id string)
}

func (s *cancelOnRunStore) Update(ctx context.Context, id string, fn func(*domain.PipelineExecution) error) (*domain.PipelineExecution, error) {
	updated, err := s.ExecutionStore.Update(ctx, id, fn)
	if err == nil && updated.Status == domain.ExecutionStatusRunning && s.onRunning != nil {
		s.once.Do(func() { s.onRunning(id) })
	}
	return updated, err
}

func drainEventTypes(events <-chan domain.Event) []domain.EventType {
	var types []domain.EventType
	for {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}

func TestManager_CancelBetweenStartTransitionAndWalk(t *testing.T) {
	store := &cancelOnRunStore{ExecutionStore: storagememory.NewExecutionStore()}
	f := newFixtureWithStore(t, store)
	f.save(t, linearSchema(nil))
	ctx := context.Background()

	created, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear", Mode: domain.ExecutionModeMock})
	require.NoError(t, err)

	events, unsubscribe := f.bus.Subscribe(ctx, created.ID)
	defer unsubscribe()

	var cancelErr error
	store.onRunning = func(id string) {
		_, cancelErr = f.manager.Cancel(ctx, id, "client went away")
	}

	started, err := f.manager.Start(ctx, created.ID)
	require.NoError(t, err)
	require.NoError(t, cancelErr)
	assert.Equal(t, domain.ExecutionStatusCancelled, started.Status)

	require.NoError(t, f.pool.Shutdown(ctx))

	got, err := f.manager.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCancelled, got.Status)
	assert.Equal(t, "client went away", got.CancelReason)
	assert.Nil(t, got.OutputData)
	for node, status := range stepStatuses(got) {
		assert.Equal(t, domain.StepStatusSkipped, status, "node %s ran after the execution was cancelled", node)
	}

	types := drainEventTypes(events)
	assert.Equal(t, []domain.EventType{domain.EventTypeExecutionCancelled}, types)
}

func TestStepObserver_RefusesNodeAfterCancel(t *testing.T) {
	f := newFixture(t)
	f.save(t, linearSchema(nil))
	ctx := context.Background()

	created, err := f.manager.Create(ctx, CreateRequest{SchemaID: "linear", Mode: domain.ExecutionModeMock})
	require.NoError(t, err)
	_, err = f.manager.Cancel(ctx, created.ID, "stop")
	require.NoError(t, err)

	obs := &stepObserver{manager: f.manager, ctx: ctx, executionID: created.ID}
	err = obs.NodeStarted("i1", nil)
	assert.ErrorIs(t, err, context.Canceled)

	got, err := f.manager.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepStatusSkipped, stepStatuses(got)["i1"])
}
