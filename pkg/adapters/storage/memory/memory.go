package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aescanero/pipewright/pkg/domain"
	"github.com/aescanero/pipewright/pkg/ports"
)

// ExecutionStore is the mutex-guarded registry of executions and their
// steps. Records never leave the store: reads return copies and writes go
// through Update.
type ExecutionStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	seq     uint64
}

type entry struct {
	execution *domain.PipelineExecution
	seq       uint64
}

// NewExecutionStore creates a new in-memory execution store
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		entries: make(map[string]*entry),
	}
}

// Create registers a new execution
func (s *ExecutionStore) Create(ctx context.Context, execution *domain.PipelineExecution) error {
	if execution == nil || execution.ID == "" {
		return domain.NewInvalidRequest("execution must have an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[execution.ID]; exists {
		return domain.NewInvalidRequest("execution already exists: %s", execution.ID)
	}

	s.seq++
	s.entries[execution.ID] = &entry{execution: execution.Clone(), seq: s.seq}
	return nil
}

// Get returns a copy of an execution
func (s *ExecutionStore) Get(ctx context.Context, id string) (*domain.PipelineExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "execution", ID: id}
	}
	return e.execution.Clone(), nil
}

// Update applies fn to a copy of the execution under the store lock and
// commits it only when fn succeeds, so a rejected transition has no effect
func (s *ExecutionStore) Update(ctx context.Context, id string, fn func(*domain.PipelineExecution) error) (*domain.PipelineExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "execution", ID: id}
	}

	working := e.execution.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	e.execution = working
	return working.Clone(), nil
}

// List returns the executions matching filter, newest first, plus the total
// number of matches before paging
func (s *ExecutionStore) List(ctx context.Context, filter ports.ExecutionFilter, page ports.Page) ([]*domain.PipelineExecution, int, error) {
	s.mu.RLock()
	matches := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if matchesFilter(e.execution, filter) {
			matches = append(matches, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if !a.execution.CreatedAt.Equal(b.execution.CreatedAt) {
			return a.execution.CreatedAt.After(b.execution.CreatedAt)
		}
		return a.seq > b.seq
	})

	total := len(matches)
	start := page.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}

	out := make([]*domain.PipelineExecution, 0, end-start)
	for _, e := range matches[start:end] {
		out = append(out, e.execution.Clone())
	}
	return out, total, nil
}

// DeleteOlderThan removes every execution created before cutoff, whatever its
// status, and returns the removed ids
func (s *ExecutionStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, e := range s.entries {
		if e.execution.CreatedAt.Before(cutoff) {
			delete(s.entries, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed, nil
}

// Count returns the number of stored executions
func (s *ExecutionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func matchesFilter(e *domain.PipelineExecution, filter ports.ExecutionFilter) bool {
	if filter.SchemaID != "" && e.SchemaID != filter.SchemaID {
		return false
	}
	if filter.Status != "" && e.Status != filter.Status {
		return false
	}
	if filter.Mode != "" && e.ExecutionMode != filter.Mode {
		return false
	}
	return true
}
