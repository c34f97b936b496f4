// Package alert turns positive detections into user-facing alerts.
package alert

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

type listener struct {
	id uint64
	fn func(domain.DetectionEvent)
}

// Dispatcher implements domain.ResultHandler.
// Every positive result is forwarded to listeners and live sinks, then
// raises the warning prompt. At most one prompt is open at a time; later
// positive results refresh it.
type Dispatcher struct {
	prompt    domain.WarningPrompt
	terminate func()
	logger    *zap.Logger

	mu        sync.RWMutex
	sinks     []domain.AlertSink
	listeners []listener
	nextID    uint64

	// promptMu orders wg.Add against Wait and Close.
	promptMu  sync.Mutex
	closed    atomic.Bool
	prompting atomic.Bool
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher. prompt and terminate may be nil.
func NewDispatcher(prompt domain.WarningPrompt, terminate func(), logger *zap.Logger, sinks ...domain.AlertSink) *Dispatcher {
	return &Dispatcher{
		prompt:    prompt,
		terminate: terminate,
		logger:    logger,
		sinks:     sinks,
	}
}

// AddSink registers another display-layer consumer.
func (d *Dispatcher) AddSink(sink domain.AlertSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, sink)
}

// OnRecordingDetected registers a listener and returns its unsubscribe func.
func (d *Dispatcher) OnRecordingDetected(handler func(domain.DetectionEvent)) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, listener{id: id, fn: handler})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, l := range d.listeners {
				if l.id == id {
					d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Handle dispatches one scheduler result. Negative results, and any result
// after Close, are ignored.
func (d *Dispatcher) Handle(ctx context.Context, result domain.DetectionResult) {
	if !result.Detected {
		return
	}
	if d.closed.Load() {
		d.logger.Debug("dispatcher closed, dropping detection")
		return
	}

	event := domain.DetectionEvent{
		Detected:  true,
		Processes: result.Processes,
		Timestamp: result.Timestamp,
	}

	d.mu.RLock()
	listeners := make([]listener, len(d.listeners))
	copy(listeners, d.listeners)
	sinks := make([]domain.AlertSink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.RUnlock()

	for _, l := range listeners {
		d.notify(l, event)
	}

	for _, s := range sinks {
		if !s.Live() {
			d.logger.Debug("alert sink not live, skipping")
			continue
		}
		if err := s.Publish(event); err != nil {
			d.logger.Warn("failed to publish detection event", zap.Error(err))
		}
	}

	d.raisePrompt(ctx, result.Processes)
}

func (d *Dispatcher) notify(l listener, event domain.DetectionEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("recording listener panicked",
				zap.Uint64("listener", l.id),
				zap.Any("panic", r))
		}
	}()
	l.fn(event)
}

// raisePrompt opens the warning, or refreshes the one already showing.
func (d *Dispatcher) raisePrompt(ctx context.Context, processes []domain.ProcessRecord) {
	if d.prompt == nil {
		return
	}

	d.promptMu.Lock()
	defer d.promptMu.Unlock()
	if d.closed.Load() {
		return
	}
	if !d.prompting.CompareAndSwap(false, true) {
		// Re-alert through the open warning instead of stacking another.
		if r, ok := d.prompt.(refresher); ok {
			r.Refresh(processes)
		}
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.prompting.Store(false)

		resolution, err := d.prompt.Warn(ctx, processes)
		if err != nil {
			d.logger.Warn("warning prompt failed", zap.Error(err))
			return
		}

		d.logger.Info("recording warning resolved", zap.String("resolution", string(resolution)))
		if resolution == domain.ResolutionTerminate && d.terminate != nil {
			d.logger.Warn("user chose to exit after recording warning")
			d.terminate()
		}
	}()
}

// Wait blocks until any open prompt has been resolved.
// New prompts cannot open while it waits.
func (d *Dispatcher) Wait() {
	d.promptMu.Lock()
	defer d.promptMu.Unlock()
	d.wg.Wait()
}

// Close stops all further dispatching and waits for an open prompt to resolve.
// Results handed in after Close starts reach no listener, sink or prompt.
func (d *Dispatcher) Close() {
	d.promptMu.Lock()
	d.closed.Store(true)
	d.promptMu.Unlock()
	d.wg.Wait()
}

// Ensure Dispatcher implements domain.ResultHandler.
var _ domain.ResultHandler = (*Dispatcher)(nil)
