package infra

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/eliteGoblin/focusd/recguard/internal/ipc"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser keeps state under the invoking user's home directory
	ExecModeUser ExecMode = "user"
	// ExecModeSystem keeps state in a system directory (running as root)
	ExecModeSystem ExecMode = "system"
)

const (
	eventDBName    = "events.db"
	logFileName    = "recguard.log"
	errLogFileName = "recguard.error.log"
)

// PathConfig holds every on-disk location recguard uses.
type PathConfig struct {
	Mode       ExecMode
	DataDir    string // Where the encrypted event log and key live
	EventDB    string
	KeyFile    string
	CommandDir string // Directory watched for control commands
	StatusPath string
	LogPath    string
	ErrLogPath string
	IsRoot     bool
}

// DetectPaths determines the data locations based on effective UID.
func DetectPaths() *PathConfig {
	if os.Geteuid() == 0 {
		p := NewPathConfig("/var/lib/recguard")
		p.Mode = ExecModeSystem
		p.IsRoot = true
		return p
	}
	return NewPathConfig(filepath.Join(GetRealUserHome(), ".recguard"))
}

// NewPathConfig lays out all paths under dataDir (user mode).
func NewPathConfig(dataDir string) *PathConfig {
	return &PathConfig{
		Mode:       ExecModeUser,
		DataDir:    dataDir,
		EventDB:    filepath.Join(dataDir, eventDBName),
		KeyFile:    filepath.Join(dataDir, keyFileName),
		CommandDir: dataDir,
		StatusPath: ipc.StatusPath(dataDir),
		LogPath:    filepath.Join(dataDir, logFileName),
		ErrLogPath: filepath.Join(dataDir, errLogFileName),
	}
}

// EnsureDataDir creates the data directory with owner-only permissions.
func (p *PathConfig) EnsureDataDir() error {
	return os.MkdirAll(p.DataDir, 0700)
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns the root home, so we use SUDO_USER to find the real user.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
