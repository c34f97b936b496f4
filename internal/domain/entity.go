// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"errors"
	"time"
)

// Error taxonomy shared by backends, the detector and the event log.
var (
	// ErrBackendUnavailable means the backend failed its startup probe.
	// It is permanent for the process lifetime.
	ErrBackendUnavailable = errors.New("process backend unavailable")

	// ErrEnumerationFailed is a transient failure of a single List call.
	ErrEnumerationFailed = errors.New("process enumeration failed")

	// ErrUnsupportedPlatform is reported by the shell fallback off Windows.
	// It is never surfaced as a failure.
	ErrUnsupportedPlatform = errors.New("recording detection is only supported on Windows")

	// ErrPersistenceFailed wraps any event log write failure.
	ErrPersistenceFailed = errors.New("security event persistence failed")
)

// ProcessRecord is one running process as reported by a backend.
// PID is 0 when the backend cannot supply one; treat 0 as unknown.
type ProcessRecord struct {
	Name    string `json:"name"`
	PID     int    `json:"pid"`
	Command string `json:"command"`
}

// DetectionResult is the outcome of a single detection check.
// Build it with NewDetectionResult so Detected always agrees with Processes.
type DetectionResult struct {
	Detected  bool            `json:"detected"`
	Processes []ProcessRecord `json:"processes"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewDetectionResult finalizes a result. The timestamp is taken here, not at call start.
func NewDetectionResult(processes []ProcessRecord) DetectionResult {
	if processes == nil {
		processes = []ProcessRecord{}
	}
	return DetectionResult{
		Detected:  len(processes) > 0,
		Processes: processes,
		Timestamp: time.Now(),
	}
}

// ProcessNames returns the names of the matched processes in order.
func (r DetectionResult) ProcessNames() []string {
	names := make([]string, len(r.Processes))
	for i, p := range r.Processes {
		names[i] = p.Name
	}
	return names
}

// DetectionEvent is what the display layer receives on a positive check.
type DetectionEvent struct {
	Detected  bool            `json:"detected"`
	Processes []ProcessRecord `json:"processes"`
	Timestamp time.Time       `json:"timestamp"`
}

// SecurityEvent is one entry of the persisted, append-only event log.
type SecurityEvent struct {
	ID         string         `json:"id"`
	Payload    map[string]any `json:"payload"`
	Timestamp  time.Time      `json:"timestamp"`
	AppVersion string         `json:"appVersion"`
}

// LogResult reports the outcome of LogSecurityEvent to the host application.
type LogResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Resolution is the user's answer to a recording warning.
type Resolution string

const (
	ResolutionContinue  Resolution = "continue"
	ResolutionTerminate Resolution = "terminate"
)

// BackendStatus is one line of the startup capability probe.
type BackendStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}
