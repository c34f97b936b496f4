// Package ipc is the file based control channel of a running watcher.
package ipc

import (
	"os"
	"path/filepath"
	"strings"
)

// CommandFileName is the command file inside the data directory.
const CommandFileName = "cmd.txt"

// Command is a control request written by the CLI for the watcher.
type Command string

const (
	CmdEnable  Command = "enable"  // Start periodic detection
	CmdDisable Command = "disable" // Stop periodic detection
	CmdCheck   Command = "check"   // Run one check now
	CmdQuit    Command = "quit"    // Shut the watcher down
)

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	switch c {
	case CmdEnable, CmdDisable, CmdCheck, CmdQuit:
		return true
	}
	return false
}

// CommandPath returns the command file path under dir.
func CommandPath(dir string) string {
	return filepath.Join(dir, CommandFileName)
}

// WriteCommand writes cmd to the command file under dir.
func WriteCommand(dir string, cmd Command) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(CommandPath(dir), []byte(string(cmd)), 0600)
}

// ReadCommand reads and clears the command file under dir.
// It returns an empty command when nothing valid is pending.
func ReadCommand(dir string) (Command, error) {
	path := CommandPath(dir)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil // No command pending
		}
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}

	// Clear the file immediately to prevent re-execution
	if err := os.WriteFile(path, []byte(""), 0600); err != nil {
		return "", err
	}

	cmd := Command(strings.ToLower(strings.TrimSpace(string(data))))
	if !cmd.Valid() {
		return "", nil // Unknown commands are ignored
	}
	return cmd, nil
}
