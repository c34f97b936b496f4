// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

// FakeBackend is a scripted domain.ProcessLister.
// Each List call consumes the next step; the last step repeats.
type FakeBackend struct {
	name      string
	available bool

	mu    sync.Mutex
	steps []Step
	calls int
}

// Step is one scripted List answer.
type Step struct {
	Records []domain.ProcessRecord
	Err     error
}

// NewFakeBackend creates an available backend answering with steps.
func NewFakeBackend(name string, steps ...Step) *FakeBackend {
	return &FakeBackend{name: name, available: true, steps: steps}
}

// NewUnavailableBackend creates a backend that failed its startup probe.
func NewUnavailableBackend(name string) *FakeBackend {
	return &FakeBackend{name: name}
}

func (f *FakeBackend) Name() string      { return f.name }
func (f *FakeBackend) IsAvailable() bool { return f.available }

func (f *FakeBackend) List(ctx context.Context) ([]domain.ProcessRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if !f.available {
		return nil, fmt.Errorf("%w: %s", domain.ErrBackendUnavailable, f.name)
	}
	if len(f.steps) == 0 {
		return []domain.ProcessRecord{}, nil
	}

	step := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	return step.Records, step.Err
}

// Calls returns how many times List was called.
func (f *FakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Failing returns a transient enumeration failure for backend name.
func Failing(name string) Step {
	return Step{Err: fmt.Errorf("%w: %s: access denied", domain.ErrEnumerationFailed, name)}
}

// Listing returns a step answering with the named processes, PIDs from 100.
func Listing(names ...string) Step {
	records := make([]domain.ProcessRecord, len(names))
	for i, n := range names {
		records[i] = domain.ProcessRecord{Name: n, PID: 100 + i, Command: n}
	}
	return Step{Records: records}
}

// TasklistCSV renders names as `tasklist /FO CSV` output.
func TasklistCSV(names ...string) string {
	var sb strings.Builder
	sb.WriteString("\"Image Name\",\"PID\",\"Session Name\",\"Session#\",\"Mem Usage\"\r\n")
	for i, n := range names {
		fmt.Fprintf(&sb, "\"%s\",\"%d\",\"Console\",\"1\",\"10,240 K\"\r\n", n, 1000+i)
	}
	return sb.String()
}

// StaticRunner implements infra.CommandRunner with canned output.
type StaticRunner struct {
	Out []byte
	Err error
}

func (r *StaticRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.Out, r.Err
}
