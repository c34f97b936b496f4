package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

// Scheduler is the lifecycle surface of the periodic checker.
type Scheduler interface {
	Start()
	Stop()
	Active() bool
}

// ListenerRegistry fans positive detections out to in-process listeners.
type ListenerRegistry interface {
	OnRecordingDetected(handler func(domain.DetectionEvent)) (unsubscribe func())
}

// Guard is the surface the host application talks to.
// Every method is safe for concurrent use and none of them panics.
type Guard struct {
	detector   domain.Detector
	scheduler  Scheduler
	listeners  ListenerRegistry
	events     domain.EventLog
	appVersion string
	logger     *zap.Logger

	toggleMu sync.Mutex
	now      func() time.Time
	newID    func() string
}

// NewGuard wires the facade. events may be nil; LogSecurityEvent then reports failure.
func NewGuard(
	detector domain.Detector,
	scheduler Scheduler,
	listeners ListenerRegistry,
	events domain.EventLog,
	appVersion string,
	logger *zap.Logger,
) *Guard {
	return &Guard{
		detector:   detector,
		scheduler:  scheduler,
		listeners:  listeners,
		events:     events,
		appVersion: appVersion,
		logger:     logger,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// GetDetectionStatus reports whether periodic detection is running.
func (g *Guard) GetDetectionStatus() bool {
	return g.scheduler.Active()
}

// ToggleDetection starts or stops periodic detection and returns the resulting state.
// Calls are serialized so overlapping toggles cannot race.
func (g *Guard) ToggleDetection(enable bool) bool {
	g.toggleMu.Lock()
	defer g.toggleMu.Unlock()

	if enable {
		g.scheduler.Start()
	} else {
		g.scheduler.Stop()
	}

	active := g.scheduler.Active()
	g.logger.Info("detection toggled",
		zap.Bool("requested", enable),
		zap.Bool("active", active))
	return active
}

// CheckRecordingNow runs one check outside the scheduler.
func (g *Guard) CheckRecordingNow(ctx context.Context) domain.DetectionResult {
	return g.detector.Detect(ctx)
}

// OnRecordingDetected registers a listener for positive checks.
// Late subscribers get no replay of past events.
func (g *Guard) OnRecordingDetected(handler func(domain.DetectionEvent)) func() {
	if g.listeners == nil || handler == nil {
		return func() {}
	}
	return g.listeners.OnRecordingDetected(handler)
}

// LogSecurityEvent appends payload to the event log with a timestamp and the app version.
// Failures are reported in the result, never returned or raised.
func (g *Guard) LogSecurityEvent(payload map[string]any) (result domain.LogResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, r)
			g.logger.Error("security event logging panicked", zap.Error(err))
			result = domain.LogResult{Success: false, Error: err.Error()}
		}
	}()

	if g.events == nil {
		err := fmt.Errorf("%w: event log not available", domain.ErrPersistenceFailed)
		g.logger.Warn("failed to log security event", zap.Error(err))
		return domain.LogResult{Success: false, Error: err.Error()}
	}

	copied := make(map[string]any, len(payload))
	for k, v := range payload {
		copied[k] = v
	}

	event := domain.SecurityEvent{
		ID:         g.newID(),
		Payload:    copied,
		Timestamp:  g.now(),
		AppVersion: g.appVersion,
	}

	if err := g.events.Append(event); err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
		g.logger.Warn("failed to log security event",
			zap.String("id", event.ID),
			zap.Error(err))
		return domain.LogResult{Success: false, Error: err.Error()}
	}

	g.logger.Info("security event logged", zap.String("id", event.ID))
	return domain.LogResult{Success: true}
}
