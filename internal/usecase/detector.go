// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
	"github.com/eliteGoblin/focusd/recguard/internal/signature"
)

// DetectorImpl implements domain.Detector.
// It holds only read-only state, so Detect may run concurrently with itself.
type DetectorImpl struct {
	backends []domain.ProcessLister
	table    *signature.Table
	logger   *zap.Logger
}

// NewDetector creates a detector over backends in priority order.
func NewDetector(backends []domain.ProcessLister, table *signature.Table, logger *zap.Logger) *DetectorImpl {
	bs := make([]domain.ProcessLister, len(backends))
	copy(bs, backends)
	return &DetectorImpl{
		backends: bs,
		table:    table,
		logger:   logger,
	}
}

// Detect runs one check. The first backend that lists without error wins;
// results are never merged across backends. Exhaustion yields a negative result.
func (d *DetectorImpl) Detect(ctx context.Context) domain.DetectionResult {
	for _, b := range d.backends {
		if !b.IsAvailable() {
			continue
		}

		processes, err := d.list(ctx, b)
		if err != nil {
			d.logger.Warn("process enumeration failed, trying next backend",
				zap.String("backend", b.Name()),
				zap.Error(err))
			continue
		}

		result := domain.NewDetectionResult(signature.Match(processes, d.table))
		if result.Detected {
			d.logger.Warn("SECURITY ALERT: recording software detected",
				zap.String("backend", b.Name()),
				zap.Strings("processes", result.ProcessNames()))
		}
		return result
	}

	d.logger.Warn("all process backends exhausted, reporting no detection")
	return domain.NewDetectionResult(nil)
}

// list calls one backend, turning a panic into ErrEnumerationFailed.
func (d *DetectorImpl) list(ctx context.Context, b domain.ProcessLister) (processes []domain.ProcessRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			processes = nil
			err = fmt.Errorf("%w: %s panicked: %v", domain.ErrEnumerationFailed, b.Name(), r)
		}
	}()
	return b.List(ctx)
}

// Ensure DetectorImpl implements domain.Detector.
var _ domain.Detector = (*DetectorImpl)(nil)
