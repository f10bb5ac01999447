package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/pipewright/pkg/domain"
	"github.com/aescanero/pipewright/pkg/ports"
)

func newExecution(id, schemaID string, status domain.ExecutionStatus, createdAt time.Time) *domain.PipelineExecution {
	return &domain.PipelineExecution{
		ID:            id,
		SchemaID:      schemaID,
		ExecutionMode: domain.ExecutionModeMock,
		Status:        status,
		CreatedAt:     createdAt,
		Steps: []*domain.ExecutionStep{
			{ID: id + "-s1", ExecutionID: id, NodeID: "i1", Status: domain.StepStatusPending},
		},
	}
}

func TestExecutionStore_CreateGet(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	exec := newExecution("e1", "s1", domain.ExecutionStatusPending, time.Now())
	require.NoError(t, store.Create(ctx, exec))
	assert.ErrorIs(t, store.Create(ctx, exec), domain.ErrInvalidRequest)

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SchemaID)

	// Mutating a returned copy never reaches the store
	got.Status = domain.ExecutionStatusFailed
	got.Steps[0].Status = domain.StepStatusFailed
	again, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusPending, again.Status)
	assert.Equal(t, domain.StepStatusPending, again.Steps[0].Status)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecutionStore_UpdateIsAtomic(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newExecution("e1", "s1", domain.ExecutionStatusPending, time.Now())))

	rejected := errors.New("rejected")
	_, err := store.Update(ctx, "e1", func(e *domain.PipelineExecution) error {
		e.Status = domain.ExecutionStatusRunning
		return rejected
	})
	assert.ErrorIs(t, err, rejected)

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusPending, got.Status)

	updated, err := store.Update(ctx, "e1", func(e *domain.PipelineExecution) error {
		e.Status = domain.ExecutionStatusRunning
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusRunning, updated.Status)

	_, err = store.Update(ctx, "missing", func(*domain.PipelineExecution) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecutionStore_ConcurrentUpdates(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newExecution("e1", "s1", domain.ExecutionStatusRunning, time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "e1", func(e *domain.PipelineExecution) error {
				e.Steps[0].RetryCount++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Steps[0].RetryCount)
}

func TestExecutionStore_ListFiltersAndPages(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, store.Create(ctx, newExecution("old", "s1", domain.ExecutionStatusCompleted, base.Add(-time.Hour))))
	require.NoError(t, store.Create(ctx, newExecution("mid", "s2", domain.ExecutionStatusPending, base)))
	require.NoError(t, store.Create(ctx, newExecution("new", "s1", domain.ExecutionStatusPending, base)))

	all, total, err := store.List(ctx, ports.ExecutionFilter{}, ports.Page{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	// Equal timestamps fall back to insertion order, newest first
	assert.Equal(t, []string{"new", "mid", "old"}, ids(all))

	bySchema, total, err := store.List(ctx, ports.ExecutionFilter{SchemaID: "s1"}, ports.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"new", "old"}, ids(bySchema))

	byStatus, _, err := store.List(ctx, ports.ExecutionFilter{Status: domain.ExecutionStatusCompleted}, ports.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids(byStatus))

	byMode, _, err := store.List(ctx, ports.ExecutionFilter{Mode: domain.ExecutionModeReal}, ports.Page{})
	require.NoError(t, err)
	assert.Empty(t, byMode)

	paged, total, err := store.List(ctx, ports.ExecutionFilter{}, ports.Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"mid"}, ids(paged))

	beyond, _, err := store.List(ctx, ports.ExecutionFilter{}, ports.Page{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestExecutionStore_DeleteOlderThan(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Create(ctx, newExecution("a", "s1", domain.ExecutionStatusRunning, now.Add(-2*time.Hour))))
	require.NoError(t, store.Create(ctx, newExecution("b", "s1", domain.ExecutionStatusCompleted, now.Add(-3*time.Hour))))
	require.NoError(t, store.Create(ctx, newExecution("c", "s1", domain.ExecutionStatusPending, now)))

	removed, err := store.DeleteOlderThan(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, removed)
	assert.Equal(t, 1, store.Count())

	removed, err = store.DeleteOlderThan(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestSchemaRepository(t *testing.T) {
	repo := NewSchemaRepository()
	ctx := context.Background()

	_, err := repo.GetSchemaByID(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	schema := &domain.PipelineSchema{ID: "s1", Name: "first", Version: 1, CreatedAt: time.Now()}
	require.NoError(t, repo.SaveSchema(ctx, schema))
	require.NoError(t, repo.SaveSchema(ctx, &domain.PipelineSchema{ID: "s2", Name: "second", Version: 1, CreatedAt: time.Now().Add(time.Second)}))

	schema.Name = "mutated"
	got, err := repo.GetSchemaByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)

	list, err := repo.ListSchemas(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].ID)

	require.NoError(t, repo.DeleteSchema(ctx, "s1"))
	assert.ErrorIs(t, repo.DeleteSchema(ctx, "s1"), domain.ErrNotFound)
	assert.ErrorIs(t, repo.SaveSchema(ctx, &domain.PipelineSchema{}), domain.ErrInvalidRequest)
}

func TestSchemaRepository_CreateIsExclusive(t *testing.T) {
	repo := NewSchemaRepository()
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	var created atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := repo.CreateSchema(ctx, &domain.PipelineSchema{ID: "s1", Name: fmt.Sprintf("writer-%d", n)})
			if err == nil {
				created.Add(1)
				return
			}
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load())

	assert.ErrorIs(t, repo.CreateSchema(ctx, &domain.PipelineSchema{}), domain.ErrInvalidRequest)
}

func ids(executions []*domain.PipelineExecution) []string {
	out := make([]string, len(executions))
	for i, e := range executions {
		out[i] = e.ID
	}
	return out
}
