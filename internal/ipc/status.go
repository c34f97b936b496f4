package ipc

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

// StatusFileName is the status snapshot inside the data directory.
const StatusFileName = "status.json"

// StatusSnapshot is the watcher state as seen by `recguard status`.
type StatusSnapshot struct {
	Active    bool                   `json:"active"`
	Detected  bool                   `json:"detected"`
	Processes []domain.ProcessRecord `json:"processes"`
	CheckedAt time.Time              `json:"checked_at"` // Zero until the first check
	PID       int                    `json:"pid"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// StatusPath returns the status file path under dir.
func StatusPath(dir string) string {
	return filepath.Join(dir, StatusFileName)
}

// WriteStatus persists status under dir using an atomic write.
func WriteStatus(dir string, status *StatusSnapshot) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	return atomicWriteJSON(StatusPath(dir), status)
}

// ReadStatus loads the status snapshot from dir.
func ReadStatus(dir string) (*StatusSnapshot, error) {
	data, err := os.ReadFile(StatusPath(dir))
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RemoveStatus deletes the status file; a missing file is not an error.
func RemoveStatus(dir string) error {
	if err := os.Remove(StatusPath(dir)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename
func atomicWriteJSON(path string, data interface{}) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	// Ensure cleanup on error
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}

	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil // Prevent defer cleanup

	return os.Rename(tmpPath, path)
}

// StatusRecorder keeps status.json current. It is a domain.ResultHandler
// for scheduler results and is told about toggles via SetActive.
type StatusRecorder struct {
	dir    string
	logger *zap.Logger

	mu   sync.Mutex
	last StatusSnapshot
}

// NewStatusRecorder creates a recorder writing under dir.
func NewStatusRecorder(dir string, logger *zap.Logger) *StatusRecorder {
	return &StatusRecorder{
		dir:    dir,
		logger: logger,
		last:   StatusSnapshot{Processes: []domain.ProcessRecord{}, PID: os.Getpid()},
	}
}

// Handle records the latest check result.
func (r *StatusRecorder) Handle(ctx context.Context, result domain.DetectionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last.Detected = result.Detected
	r.last.Processes = result.Processes
	r.last.CheckedAt = result.Timestamp
	r.flush()
}

// SetActive records the scheduler state.
func (r *StatusRecorder) SetActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last.Active = active
	r.flush()
}

// Snapshot returns a copy of the last written status.
func (r *StatusRecorder) Snapshot() StatusSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *StatusRecorder) flush() {
	r.last.UpdatedAt = time.Now()
	if err := WriteStatus(r.dir, &r.last); err != nil {
		r.logger.Warn("failed to write status", zap.Error(err))
	}
}

// Ensure StatusRecorder implements domain.ResultHandler.
var _ domain.ResultHandler = (*StatusRecorder)(nil)
