package infra

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

// BackendSet is the ordered, probed list of process backends.
// Probing happens once in NewBackendSet; the result is static afterwards.
type BackendSet struct {
	backends []domain.ProcessLister
}

// NewBackendSet probes every backend for this platform in priority order:
// gopsutil snapshot, lookup service, tasklist fallback.
func NewBackendSet(ctx context.Context, logger *zap.Logger) *BackendSet {
	return NewBackendSetWith(logger,
		NewSnapshotLister(ctx),
		NewLookupLister(),
		NewTasklistLister(logger),
	)
}

// NewBackendSetWith builds a set from explicit backends (for testing).
// Unavailable backends stay in the list so status output can show them.
func NewBackendSetWith(logger *zap.Logger, backends ...domain.ProcessLister) *BackendSet {
	for _, b := range backends {
		if !b.IsAvailable() {
			logger.Warn("process backend unavailable, falling back",
				zap.String("backend", b.Name()))
		}
	}
	return &BackendSet{backends: backends}
}

// Backends returns the backends in priority order.
func (s *BackendSet) Backends() []domain.ProcessLister {
	out := make([]domain.ProcessLister, len(s.backends))
	copy(out, s.backends)
	return out
}

// Available returns only the backends that passed the probe, in order.
func (s *BackendSet) Available() []domain.ProcessLister {
	var out []domain.ProcessLister
	for _, b := range s.backends {
		if b.IsAvailable() {
			out = append(out, b)
		}
	}
	return out
}

// Status reports the probe result of each backend.
func (s *BackendSet) Status() []domain.BackendStatus {
	statuses := make([]domain.BackendStatus, 0, len(s.backends))
	for _, b := range s.backends {
		st := domain.BackendStatus{Name: b.Name(), Available: b.IsAvailable()}
		switch v := b.(type) {
		case *SnapshotLister:
			st.Reason = v.reason
		case *LookupLister:
			st.Reason = v.reason
		case *TasklistLister:
			if !v.Supported() {
				st.Reason = domain.ErrUnsupportedPlatform.Error()
			}
		}
		statuses = append(statuses, st)
	}
	return statuses
}
