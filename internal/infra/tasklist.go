package infra

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

// CommandRunner abstracts command execution for testing
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RealCommandRunner executes real system commands
type RealCommandRunner struct{}

// Output executes a command and returns its stdout
func (r *RealCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = nil // Prevent any interactive prompts
	return cmd.Output()
}

// quotedField matches one CSV field wrapped in double quotes.
var quotedField = regexp.MustCompile(`"([^"]*)"`)

// TasklistLister implements domain.ProcessLister by parsing `tasklist /FO CSV`.
// It is the last-resort backend and only meaningful on Windows.
type TasklistLister struct {
	runner CommandRunner
	goos   string
	logger *zap.Logger
}

// NewTasklistLister creates the shell fallback for the current OS.
func NewTasklistLister(logger *zap.Logger) *TasklistLister {
	return NewTasklistListerWithRunner(&RealCommandRunner{}, runtime.GOOS, logger)
}

// NewTasklistListerWithRunner creates a fallback with a custom runner and OS (for testing).
func NewTasklistListerWithRunner(runner CommandRunner, goos string, logger *zap.Logger) *TasklistLister {
	return &TasklistLister{runner: runner, goos: goos, logger: logger}
}

func (t *TasklistLister) Name() string {
	return "tasklist"
}

// IsAvailable is always true: off Windows the fallback answers with an empty list.
func (t *TasklistLister) IsAvailable() bool {
	return true
}

// Supported reports whether the fallback actually runs a command on this OS.
func (t *TasklistLister) Supported() bool {
	return t.goos == "windows"
}

// List runs tasklist and parses its CSV output.
// On unsupported platforms it logs and returns an empty list without error.
func (t *TasklistLister) List(ctx context.Context) ([]domain.ProcessRecord, error) {
	if !t.Supported() {
		t.logger.Info("screen recording detection is unsupported on this platform",
			zap.String("os", t.goos),
			zap.Error(domain.ErrUnsupportedPlatform))
		return []domain.ProcessRecord{}, nil
	}

	out, err := t.runner.Output(ctx, "tasklist", "/FO", "CSV")
	if err != nil {
		return nil, fmt.Errorf("%w: tasklist: %v", domain.ErrEnumerationFailed, err)
	}
	return ParseTasklistCSV(string(out)), nil
}

// ParseTasklistCSV parses tasklist CSV output. The first line is a header.
// The first quoted field is the lower-cased process name; the second, when
// numeric, is the PID. Unparseable lines yield an empty name, which the
// matcher never matches.
func ParseTasklistCSV(output string) []domain.ProcessRecord {
	records := make([]domain.ProcessRecord, 0)
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	header := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if header {
			header = false
			continue
		}
		if line == "" {
			continue
		}

		fields := quotedField.FindAllStringSubmatch(line, 2)
		var rec domain.ProcessRecord
		if len(fields) > 0 {
			rec.Name = strings.ToLower(fields[0][1])
		}
		if len(fields) > 1 {
			if pid, err := strconv.Atoi(strings.TrimSpace(fields[1][1])); err == nil && pid >= 0 {
				rec.PID = pid
			}
		}
		rec.Command = rec.Name
		records = append(records, rec)
	}
	return records
}

// Ensure TasklistLister implements domain.ProcessLister.
var _ domain.ProcessLister = (*TasklistLister)(nil)
