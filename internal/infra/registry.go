package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const registryFileName = "watcher.json"

// WatcherEntry is the registry record of the running watcher.
type WatcherEntry struct {
	PID           int       `json:"pid"`
	AppVersion    string    `json:"app_version"`
	Mode          ExecMode  `json:"mode"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat int64     `json:"last_heartbeat"`
}

// ProcessChecker reports whether a PID is running.
type ProcessChecker interface {
	IsRunning(pid int) bool
}

// gopsutilChecker implements ProcessChecker with gopsutil.
type gopsutilChecker struct{}

func (gopsutilChecker) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExistsWithContext(context.Background(), int32(pid))
	return err == nil && ok
}

// WatcherRegistry keeps a single watcher per data directory.
type WatcherRegistry struct {
	path    string
	checker ProcessChecker
}

// NewWatcherRegistry creates a registry in dataDir.
func NewWatcherRegistry(dataDir string) *WatcherRegistry {
	return NewWatcherRegistryWithChecker(dataDir, gopsutilChecker{})
}

// NewWatcherRegistryWithChecker creates a registry with a custom checker (for testing).
func NewWatcherRegistryWithChecker(dataDir string, checker ProcessChecker) *WatcherRegistry {
	return &WatcherRegistry{
		path:    filepath.Join(dataDir, registryFileName),
		checker: checker,
	}
}

// Path returns the registry file path.
func (r *WatcherRegistry) Path() string {
	return r.path
}

// Register records the current process as the watcher.
// It fails when another live watcher is registered.
func (r *WatcherRegistry) Register(pid int, appVersion string, mode ExecMode) error {
	existing, err := r.Get()
	if err != nil {
		return err
	}
	if existing != nil && existing.PID != pid && r.checker.IsRunning(existing.PID) {
		return fmt.Errorf("watcher already running with pid %d", existing.PID)
	}

	now := time.Now()
	return r.atomicWrite(&WatcherEntry{
		PID:           pid,
		AppVersion:    appVersion,
		Mode:          mode,
		StartedAt:     now,
		LastHeartbeat: now.Unix(),
	})
}

// UpdateHeartbeat updates the timestamp for liveness checks.
func (r *WatcherRegistry) UpdateHeartbeat() error {
	entry, err := r.Get()
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("watcher not registered")
	}
	entry.LastHeartbeat = time.Now().Unix()
	return r.atomicWrite(entry)
}

// Running returns the registered watcher if its process is alive.
func (r *WatcherRegistry) Running() (*WatcherEntry, bool) {
	entry, err := r.Get()
	if err != nil || entry == nil {
		return nil, false
	}
	return entry, r.checker.IsRunning(entry.PID)
}

// Get returns the registry entry, or nil when none exists.
func (r *WatcherRegistry) Get() (*WatcherEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entry WatcherEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt watcher registry: %w", err)
	}
	return &entry, nil
}

// Clear removes the registry if it belongs to pid.
func (r *WatcherRegistry) Clear(pid int) error {
	entry, err := r.Get()
	if err != nil || entry == nil || entry.PID != pid {
		return err
	}
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// atomicWrite writes the registry to file atomically (write + rename).
func (r *WatcherRegistry) atomicWrite(entry *WatcherEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return err
	}

	// Write to temp file first (unique per process to avoid race)
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}
	return nil
}
