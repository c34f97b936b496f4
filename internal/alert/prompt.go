package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

const (
	choiceContinue = iota
	choiceExit
)

// refresher is implemented by prompts that can update an open warning in place.
type refresher interface {
	Refresh(processes []domain.ProcessRecord)
}

// refreshMsg replaces the process list of an open warning.
type refreshMsg struct {
	processes []domain.ProcessRecord
}

// promptModel is the Bubbletea model for the recording warning.
// OK is both the default and the cancel choice.
type promptModel struct {
	processes []domain.ProcessRecord
	cursor    int
	choice    domain.Resolution
	done      bool
}

func newPromptModel(processes []domain.ProcessRecord) promptModel {
	return promptModel{processes: processes, cursor: choiceContinue}
}

func (m promptModel) Init() tea.Cmd {
	return nil
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshMsg:
		m.processes = msg.processes
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m promptModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "left", "h", "shift+tab":
		m.cursor = choiceContinue
	case "right", "l", "tab":
		m.cursor = choiceExit
	case "enter", " ":
		m.choice = domain.ResolutionContinue
		if m.cursor == choiceExit {
			m.choice = domain.ResolutionTerminate
		}
		m.done = true
		return m, tea.Quit
	case "esc", "q", "ctrl+c":
		m.choice = domain.ResolutionContinue
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m promptModel) View() string {
	if m.done {
		return ""
	}
	return renderWarning(m.processes, m.cursor) + "\n"
}

// TerminalPrompt implements domain.WarningPrompt as a Bubbletea dialog.
type TerminalPrompt struct {
	input  io.Reader
	output io.Writer

	mu      sync.Mutex
	program *tea.Program // set while a warning is open
}

// NewTerminalPrompt creates a prompt on the process terminal.
func NewTerminalPrompt() *TerminalPrompt {
	return &TerminalPrompt{}
}

// NewTerminalPromptWithIO creates a prompt with custom streams (for testing).
func NewTerminalPromptWithIO(input io.Reader, output io.Writer) *TerminalPrompt {
	return &TerminalPrompt{input: input, output: output}
}

// Warn shows the dialog and blocks until the user answers or ctx ends.
// A cancelled dialog resolves to continue.
func (p *TerminalPrompt) Warn(ctx context.Context, processes []domain.ProcessRecord) (domain.Resolution, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.input != nil {
		opts = append(opts, tea.WithInput(p.input))
	}
	if p.output != nil {
		opts = append(opts, tea.WithOutput(p.output))
	}

	program := tea.NewProgram(newPromptModel(processes), opts...)
	p.mu.Lock()
	p.program = program
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.program = nil
		p.mu.Unlock()
	}()

	final, err := program.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return domain.ResolutionContinue, ctx.Err()
		}
		return domain.ResolutionContinue, fmt.Errorf("warning prompt failed: %w", err)
	}

	m, ok := final.(promptModel)
	if !ok || !m.done {
		return domain.ResolutionContinue, nil
	}
	return m.choice, nil
}

// Refresh shows processes in the open warning. It is a no-op when none is open.
func (p *TerminalPrompt) Refresh(processes []domain.ProcessRecord) {
	p.mu.Lock()
	program := p.program
	p.mu.Unlock()
	if program != nil {
		program.Send(refreshMsg{processes: processes})
	}
}

// LogPrompt implements domain.WarningPrompt for headless runs.
// It records the warning and always continues.
type LogPrompt struct {
	logger *zap.Logger
}

// NewLogPrompt creates a headless prompt.
func NewLogPrompt(logger *zap.Logger) *LogPrompt {
	return &LogPrompt{logger: logger}
}

func (p *LogPrompt) Warn(ctx context.Context, processes []domain.ProcessRecord) (domain.Resolution, error) {
	p.logger.Warn(WarningMessage,
		zap.String("title", WarningTitle),
		zap.Strings("processes", processNames(processes)))
	return domain.ResolutionContinue, nil
}

// Refresh logs the warning again for a still-running recorder.
func (p *LogPrompt) Refresh(processes []domain.ProcessRecord) {
	p.logger.Warn(WarningMessage,
		zap.String("title", WarningTitle),
		zap.Strings("processes", processNames(processes)),
		zap.Bool("repeat", true))
}

var (
	_ refresher            = (*TerminalPrompt)(nil)
	_ refresher            = (*LogPrompt)(nil)
	_ domain.WarningPrompt = (*TerminalPrompt)(nil)
	_ domain.WarningPrompt = (*LogPrompt)(nil)
)
