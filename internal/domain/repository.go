package domain

import "context"

// ProcessLister enumerates running processes through one OS facility.
// Implementations: gopsutil snapshot, WMI or /proc lookup, tasklist fallback.
type ProcessLister interface {
	// Name returns the backend name (e.g., "snapshot", "lookup", "tasklist").
	Name() string

	// IsAvailable reports the result of the startup probe.
	IsAvailable() bool

	// List returns the current process table.
	// Errors wrap ErrBackendUnavailable or ErrEnumerationFailed.
	List(ctx context.Context) ([]ProcessRecord, error)
}

// Detector runs one detection check.
// Detect never fails: backend exhaustion yields an empty, negative result.
type Detector interface {
	Detect(ctx context.Context) DetectionResult
}

// ResultHandler consumes results produced by the scheduler.
type ResultHandler interface {
	Handle(ctx context.Context, result DetectionResult)
}

// AlertSink is a display-layer consumer of detection events.
type AlertSink interface {
	// Publish forwards one event to the display layer.
	Publish(event DetectionEvent) error

	// Live reports whether the sink can still accept events.
	Live() bool
}

// WarningPrompt shows the modal recording warning and waits for the user.
type WarningPrompt interface {
	Warn(ctx context.Context, processes []ProcessRecord) (Resolution, error)
}

// EventLog is the persisted, ordered security event log.
// Implementation: SQLCipher encrypted SQLite database.
type EventLog interface {
	// Append stores one event at the end of the log.
	Append(event SecurityEvent) error

	// List returns all events in insertion order.
	List() ([]SecurityEvent, error)

	// Close releases resources (e.g., database connection).
	Close() error
}

// KeyProvider abstracts the source of the event log encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
