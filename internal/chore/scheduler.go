package chore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler drives Engine.Tick on a fixed interval.
type Scheduler struct {
	// OnTick, if set, is called after every pass. Set it before Start.
	OnTick func(d time.Duration, err error)

	mu       sync.RWMutex
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a scheduler. A non-positive interval means one minute.
func NewScheduler(engine *Engine, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		logger:   logger,
	}
}

// Start runs one tick immediately, then one per interval until ctx is done
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler and waits for a running tick.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	err := s.engine.Tick(ctx)
	if ctx.Err() != nil {
		return
	}
	if s.OnTick != nil {
		s.OnTick(time.Since(start), err)
	}
	if err != nil {
		s.logger.Error("tick failed", "error", err)
		return
	}
	s.logger.Debug("tick complete", "duration", time.Since(start))
}
