package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/pipewright/pkg/domain"
	"github.com/aescanero/pipewright/pkg/ports"
)

// DefaultBufferSize is the per-subscriber channel capacity
const DefaultBufferSize = 256

// ErrBusClosed is returned by Publish after Close
var ErrBusClosed = errors.New("event bus is closed")

// EventBus is the process-wide publish/subscribe channel. Each subscriber
// gets its own buffered channel; when it is full the event is dropped for that
// subscriber only, so a slow observer never blocks a graph walk.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscription
	closed      bool

	bufferSize int
	mirror     ports.EventMirror
	metrics    ports.MetricsCollector
	logger     *zap.Logger
}

type subscription struct {
	executionID string
	ch          chan domain.Event
	once        sync.Once
}

// Option configures an EventBus
type Option func(*EventBus)

// WithBufferSize sets the per-subscriber channel capacity
func WithBufferSize(size int) Option {
	return func(b *EventBus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithMirror forwards a copy of every published event to an external sink
func WithMirror(m ports.EventMirror) Option {
	return func(b *EventBus) {
		b.mirror = m
	}
}

// WithMetrics records publish and drop counts
func WithMetrics(m ports.MetricsCollector) Option {
	return func(b *EventBus) {
		b.metrics = m
	}
}

// NewEventBus creates a new in-memory event bus
func NewEventBus(logger *zap.Logger, opts ...Option) *EventBus {
	b := &EventBus{
		subscribers: make(map[string]*subscription),
		bufferSize:  DefaultBufferSize,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers an event to every subscriber of its execution id and to
// the catch-all subscribers. It never blocks on a slow subscriber.
func (b *EventBus) Publish(ctx context.Context, event domain.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}

	delivered := 0
	for id, sub := range b.subscribers {
		if sub.executionID != "" && sub.executionID != event.ExecutionID {
			continue
		}
		select {
		case sub.ch <- event:
			delivered++
		default:
			if b.metrics != nil {
				b.metrics.RecordEventDropped(string(event.Type))
			}
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("subscriber_id", id),
				zap.String("execution_id", event.ExecutionID),
				zap.String("event_type", string(event.Type)))
		}
	}
	b.mu.RUnlock()

	if b.metrics != nil {
		b.metrics.RecordEventPublished(string(event.Type), delivered)
	}

	if b.mirror != nil {
		if err := b.mirror.Mirror(ctx, event); err != nil {
			b.logger.Warn("failed to mirror event",
				zap.String("execution_id", event.ExecutionID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}

	return nil
}

// Subscribe registers an observer for one execution id, or for every
// execution when executionID is empty. The subscription ends when the cleanup
// func is called or ctx is done; either closes the channel.
func (b *EventBus) Subscribe(ctx context.Context, executionID string) (<-chan domain.Event, func()) {
	id := uuid.New().String()
	sub := &subscription{
		executionID: executionID,
		ch:          make(chan domain.Event, b.bufferSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subscribers[id] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		zap.String("subscriber_id", id),
		zap.String("execution_id", executionID))

	stop := make(chan struct{})
	cleanup := func() {
		sub.once.Do(func() {
			close(stop)
			b.mu.Lock()
			if _, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(sub.ch)
			}
			b.mu.Unlock()
			b.logger.Debug("subscriber removed", zap.String("subscriber_id", id))
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-stop:
		}
	}()

	return sub.ch, cleanup
}

// SubscriberCount returns the number of live subscriptions
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close ends every subscription. Later publishes fail with ErrBusClosed.
func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	return nil
}
