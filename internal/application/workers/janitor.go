package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper deletes executions older than a maximum age
type Sweeper interface {
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// CleanupRecorder receives the number of executions each sweep removed
type CleanupRecorder interface {
	RecordCleanup(removed int)
}

// Janitor periodically removes executions past their retention
type Janitor struct {
	sweeper  Sweeper
	maxAge   time.Duration
	interval time.Duration
	recorder CleanupRecorder
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewJanitor creates a new cleanup janitor. recorder may be nil.
func NewJanitor(sweeper Sweeper, maxAge, interval time.Duration, recorder CleanupRecorder, logger *zap.Logger) *Janitor {
	return &Janitor{
		sweeper:  sweeper,
		maxAge:   maxAge,
		interval: interval,
		recorder: recorder,
		logger:   logger,
	}
}

// Start starts the sweep loop. A non-positive interval disables it.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running || j.interval <= 0 {
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})

	go j.run(j.stopCh, j.doneCh)
}

// Stop stops the sweep loop and waits for an in-progress sweep
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	stopCh, doneCh := j.stopCh, j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (j *Janitor) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			j.Sweep(context.Background())
		}
	}
}

// Sweep runs one cleanup pass and returns the number of executions removed
func (j *Janitor) Sweep(ctx context.Context) int {
	removed, err := j.sweeper.Cleanup(ctx, j.maxAge)
	if err != nil {
		j.logger.Error("execution cleanup failed", zap.Error(err))
		return 0
	}

	if j.recorder != nil {
		j.recorder.RecordCleanup(removed)
	}
	if removed > 0 {
		j.logger.Info("execution cleanup completed",
			zap.Int("removed", removed),
			zap.Duration("max_age", j.maxAge))
	}
	return removed
}
