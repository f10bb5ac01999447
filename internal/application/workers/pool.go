package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/pipewright/pkg/ports"
)

// ErrPoolClosed is returned by Go after Shutdown has begun
var ErrPoolClosed = errors.New("worker pool is shut down")

// Pool owns the goroutines of background graph walks. It does not cap
// concurrency: every started execution gets its own goroutine.
type Pool struct {
	metrics ports.MetricsCollector
	logger  *zap.Logger

	mu     sync.Mutex
	active map[string]time.Time
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a new worker pool
func NewPool(metrics ports.MetricsCollector, logger *zap.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		metrics: metrics,
		logger:  logger,
		active:  make(map[string]time.Time),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Go runs fn on its own goroutine under id. The context passed to fn is
// cancelled when the pool shuts down. A panic in fn is logged and swallowed;
// callers that must observe it recover themselves.
func (p *Pool) Go(id string, fn func(ctx context.Context)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if _, running := p.active[id]; running {
		p.mu.Unlock()
		return fmt.Errorf("walk already running: %s", id)
	}
	p.active[id] = time.Now()
	p.wg.Add(1)
	count := len(p.active)
	p.mu.Unlock()

	p.reportActive(count)

	go func() {
		defer p.wg.Done()
		defer p.finish(id)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("walk panicked",
					zap.String("execution_id", id),
					zap.Any("panic", r))
			}
		}()

		fn(p.ctx)
	}()

	return nil
}

func (p *Pool) finish(id string) {
	p.mu.Lock()
	delete(p.active, id)
	count := len(p.active)
	p.mu.Unlock()

	p.reportActive(count)
}

func (p *Pool) reportActive(count int) {
	if p.metrics != nil {
		p.metrics.SetActiveExecutions(count)
	}
}

// Active returns the number of running walks
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Shutdown cancels every running walk and waits for them to return
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	running := len(p.active)
	p.mu.Unlock()

	p.logger.Info("shutting down worker pool", zap.Int("running", running))
	p.cancel()

	// Wait for all walks to finish with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// HealthStatus is a snapshot of the pool
type HealthStatus struct {
	ActiveWalks int           `json:"active_walks"`
	OldestWalk  time.Duration `json:"oldest_walk_ns"`
	Accepting   bool          `json:"accepting"`
	Healthy     bool          `json:"healthy"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Health returns the current pool status. The pool is healthy while it
// accepts new walks.
func (p *Pool) Health() *HealthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var oldest time.Duration
	for _, started := range p.active {
		if age := now.Sub(started); age > oldest {
			oldest = age
		}
	}

	return &HealthStatus{
		ActiveWalks: len(p.active),
		OldestWalk:  oldest,
		Accepting:   !p.closed,
		Healthy:     !p.closed,
		Timestamp:   now,
	}
}
