// Package daemon implements the periodic detection scheduler.
package daemon

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

// DefaultCheckInterval is how often an active scheduler runs a check.
const DefaultCheckInterval = 3 * time.Second

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	Interval time.Duration // Time between checks (default 3s)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: DefaultCheckInterval,
	}
}

// Scheduler runs the detector immediately on Start and then on every tick,
// handing each result to the handler. It is Inactive until Start is called.
//
// Only one check per activation is in flight at a time; a tick that fires while the previous
// check is still running is skipped. Results from an earlier activation, or
// ones that finish after Stop, are dropped.
type Scheduler struct {
	config   SchedulerConfig
	detector domain.Detector
	handler  domain.ResultHandler
	logger   *zap.Logger

	mu         sync.Mutex
	active     bool
	cancel     context.CancelFunc // set iff active
	generation uint64
	loopDone   chan struct{}
}

// NewScheduler creates an inactive scheduler.
func NewScheduler(
	config SchedulerConfig,
	detector domain.Detector,
	handler domain.ResultHandler,
	logger *zap.Logger,
) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultCheckInterval
	}
	return &Scheduler{
		config:   config,
		detector: detector,
		handler:  handler,
		logger:   logger,
	}
}

// Start activates the scheduler. It is a no-op when already active.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.active = true
	s.cancel = cancel
	s.generation++
	s.loopDone = make(chan struct{})

	gen := s.generation
	done := s.loopDone
	inFlight := new(atomic.Bool)

	s.logger.Info("detection scheduler started",
		zap.Duration("interval", s.config.Interval))

	// Run a check immediately on startup
	s.trigger(ctx, gen, inFlight)

	go s.loop(ctx, gen, inFlight, done)
}

// Stop deactivates the scheduler and waits for the ticker loop to exit.
// It is a no-op when already inactive. An in-flight check is not
// interrupted, but its result is discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.cancel()
	s.cancel = nil
	done := s.loopDone
	s.loopDone = nil
	s.mu.Unlock()

	<-done
	s.logger.Info("detection scheduler stopped")
}

// Active reports whether the scheduler is running.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Scheduler) loop(ctx context.Context, gen uint64, inFlight *atomic.Bool, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx, gen, inFlight)
		}
	}
}

// trigger starts one check on its own goroutine unless another check of the
// same activation is running.
func (s *Scheduler) trigger(ctx context.Context, gen uint64, inFlight *atomic.Bool) {
	if !inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("previous check still running, skipping tick")
		return
	}

	go func() {
		defer inFlight.Store(false)

		result := s.detector.Detect(ctx)
		if !s.current(gen) {
			s.logger.Debug("dropping result from inactive scheduler",
				zap.Bool("detected", result.Detected))
			return
		}
		s.handler.Handle(ctx, result)
	}()
}

// current reports whether gen is the live activation.
func (s *Scheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.generation == gen
}

// HandlerFunc adapts a function to domain.ResultHandler.
type HandlerFunc func(ctx context.Context, result domain.DetectionResult)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, result domain.DetectionResult) {
	f(ctx, result)
}

// Handlers fans a result out to several handlers in order.
type Handlers []domain.ResultHandler

// Handle passes result to each handler.
func (hs Handlers) Handle(ctx context.Context, result domain.DetectionResult) {
	for _, h := range hs {
		h.Handle(ctx, result)
	}
}

var (
	_ domain.ResultHandler = HandlerFunc(nil)
	_ domain.ResultHandler = Handlers(nil)
)
