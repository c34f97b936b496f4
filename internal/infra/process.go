// Package infra implements infrastructure concerns (process backends, event log, paths).
package infra

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

// SnapshotLister implements domain.ProcessLister using gopsutil.
// It is the preferred backend: structured data with real PIDs and executable paths.
type SnapshotLister struct {
	available bool
	reason    string
}

// NewSnapshotLister probes gopsutil once and records whether it works here.
func NewSnapshotLister(ctx context.Context) *SnapshotLister {
	s := &SnapshotLister{}
	if _, err := process.PidsWithContext(ctx); err != nil {
		s.reason = err.Error()
		return s
	}
	s.available = true
	return s
}

func (s *SnapshotLister) Name() string {
	return "snapshot"
}

func (s *SnapshotLister) IsAvailable() bool {
	return s.available
}

// List returns every process whose name can be read.
// Command is the executable path when readable, else the bare name.
func (s *SnapshotLister) List(ctx context.Context) ([]domain.ProcessRecord, error) {
	if !s.available {
		return nil, fmt.Errorf("%w: snapshot: %s", domain.ErrBackendUnavailable, s.reason)
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot: %v", domain.ErrEnumerationFailed, err)
	}

	records := make([]domain.ProcessRecord, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // Process may have exited
		}

		command := name
		if exe, err := p.ExeWithContext(ctx); err == nil && exe != "" {
			command = exe
		}

		records = append(records, domain.ProcessRecord{
			Name:    name,
			PID:     int(p.Pid),
			Command: command,
		})
	}

	return records, nil
}

// Ensure SnapshotLister implements domain.ProcessLister.
var _ domain.ProcessLister = (*SnapshotLister)(nil)
