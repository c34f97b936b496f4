//go:build windows

package infra

import (
	"context"
	"fmt"

	"github.com/yusufpapurcu/wmi"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

// win32Process mirrors the Win32_Process columns we read.
// Field names must match the WMI property names.
type win32Process struct {
	Name           string
	ProcessId      uint32
	ExecutablePath *string
}

const (
	wmiProbeQuery = "SELECT Name, ProcessId, ExecutablePath FROM Win32_Process WHERE ProcessId = 0"
	wmiListQuery  = "SELECT Name, ProcessId, ExecutablePath FROM Win32_Process"
)

func platformLookup() (lookupFunc, error) {
	var probe []win32Process
	if err := wmi.Query(wmiProbeQuery, &probe); err != nil {
		return nil, fmt.Errorf("wmi unavailable: %w", err)
	}
	return wmiLookup, nil
}

func wmiLookup(ctx context.Context) ([]domain.ProcessRecord, error) {
	var rows []win32Process
	if err := wmi.Query(wmiListQuery, &rows); err != nil {
		return nil, err
	}

	records := make([]domain.ProcessRecord, 0, len(rows))
	for _, r := range rows {
		command := r.Name
		if r.ExecutablePath != nil && *r.ExecutablePath != "" {
			command = *r.ExecutablePath
		}
		records = append(records, domain.ProcessRecord{
			Name:    r.Name,
			PID:     int(r.ProcessId),
			Command: command,
		})
	}
	return records, ctx.Err()
}
