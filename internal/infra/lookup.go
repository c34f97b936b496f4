package infra

import (
	"context"
	"fmt"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

// lookupFunc queries the platform process lookup service once.
type lookupFunc func(ctx context.Context) ([]domain.ProcessRecord, error)

// LookupLister implements domain.ProcessLister on top of the OS process
// lookup service: WMI Win32_Process on Windows, the /proc table on Linux.
type LookupLister struct {
	query     lookupFunc
	available bool
	reason    string
}

// NewLookupLister probes the platform lookup service.
func NewLookupLister() *LookupLister {
	query, err := platformLookup()
	if err != nil {
		return &LookupLister{reason: err.Error()}
	}
	return &LookupLister{query: query, available: true}
}

func (l *LookupLister) Name() string {
	return "lookup"
}

func (l *LookupLister) IsAvailable() bool {
	return l.available
}

func (l *LookupLister) List(ctx context.Context) ([]domain.ProcessRecord, error) {
	if !l.available {
		return nil, fmt.Errorf("%w: lookup: %s", domain.ErrBackendUnavailable, l.reason)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: lookup: %v", domain.ErrEnumerationFailed, err)
	}
	records, err := l.query(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup: %v", domain.ErrEnumerationFailed, err)
	}
	return records, nil
}

// Ensure LookupLister implements domain.ProcessLister.
var _ domain.ProcessLister = (*LookupLister)(nil)
