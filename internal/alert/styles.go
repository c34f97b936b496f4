package alert

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
	"github.com/eliteGoblin/focusd/recguard/internal/signature"
)

var (
	// Colors
	colorRed     = lipgloss.Color("#FF5555")
	colorYellow  = lipgloss.Color("#F1FA8C")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorMagenta = lipgloss.Color("#FF79C6")
	colorWhite   = lipgloss.Color("#F8F8F2")
	colorGray    = lipgloss.Color("#6272A4")
	colorPanel   = lipgloss.Color("#44475A")

	alertPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorRed).
			Padding(0, 1)

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorMagenta)
	labelStyle    = lipgloss.NewStyle().Foreground(colorGray)
	valueStyle    = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle     = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle     = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(colorGreen)
	buttonStyle   = lipgloss.NewStyle().Foreground(colorWhite).Padding(0, 2)
	selectedStyle = lipgloss.NewStyle().Background(colorPanel).Foreground(colorWhite).Bold(true).Padding(0, 2)
	helpStyle     = lipgloss.NewStyle().Foreground(colorGray)
)

// Warning dialog text.
const (
	WarningTitle   = "Security Alert"
	WarningMessage = "Screen Recording Detected"
	ButtonContinue = "OK"
	ButtonExit     = "Exit Application"
)

// WarningDetail is the body of the recording warning.
func WarningDetail(processes []domain.ProcessRecord) string {
	return fmt.Sprintf("The following recording software has been detected: %s\n\n"+
		"This activity has been logged and reported to the administrator.\n\n"+
		"Please close all recording software to continue using this application.",
		strings.Join(processNames(processes), ", "))
}

func processNames(processes []domain.ProcessRecord) []string {
	names := make([]string, len(processes))
	for i, p := range processes {
		names[i] = p.Name
	}
	return names
}

// renderWarning draws the warning panel with the given button selected.
func renderWarning(processes []domain.ProcessRecord, selected int) string {
	buttons := []string{ButtonContinue, ButtonExit}
	rendered := make([]string, len(buttons))
	for i, b := range buttons {
		if i == selected {
			rendered[i] = selectedStyle.Render(b)
		} else {
			rendered[i] = buttonStyle.Render(b)
		}
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		critStyle.Render(WarningTitle),
		warnStyle.Render(WarningMessage),
		"",
		valueStyle.Width(64).Render(WarningDetail(processes)),
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, rendered...),
		"",
		helpStyle.Render("←/→ select · enter confirm · esc dismiss"),
	)
	return alertPanelStyle.Render(body)
}

// RenderResult formats one detection result for terminal output.
func RenderResult(result domain.DetectionResult) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Recording check"))
	sb.WriteString("  ")
	sb.WriteString(labelStyle.Render(result.Timestamp.Format("2006-01-02 15:04:05")))
	sb.WriteString("\n")

	if !result.Detected {
		sb.WriteString(okStyle.Render("✓ no recording software running"))
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString(critStyle.Render(fmt.Sprintf("✗ %d recording process(es) detected", len(result.Processes))))
	sb.WriteString("\n")
	for _, p := range result.Processes {
		pid := "unknown"
		if p.PID > 0 {
			pid = fmt.Sprintf("%d", p.PID)
		}
		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			warnStyle.Render(p.Name),
			labelStyle.Render("pid"),
			valueStyle.Render(pid)))
		if p.Command != "" && p.Command != p.Name {
			sb.WriteString(fmt.Sprintf("    %s\n", labelStyle.Render(p.Command)))
		}
	}
	return sb.String()
}

// RenderProducts formats the signature table grouped by product.
func RenderProducts(products []signature.Product) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Known recording software"))
	sb.WriteString("\n")
	for _, p := range products {
		sb.WriteString(headerStyle.Render(p.Name))
		sb.WriteString(" ")
		sb.WriteString(labelStyle.Render("(" + p.ID + ")"))
		sb.WriteString("\n")
		for _, exe := range p.Executables {
			sb.WriteString("  ")
			sb.WriteString(valueStyle.Render(exe))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// RenderBackends formats the backend capability probe.
func RenderBackends(statuses []domain.BackendStatus) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Process backends (priority order)"))
	sb.WriteString("\n")
	for i, st := range statuses {
		mark := okStyle.Render("available")
		if !st.Available {
			mark = critStyle.Render("unavailable")
		}
		line := fmt.Sprintf("%d. %-9s %s", i+1, st.Name, mark)
		if st.Reason != "" {
			line += "  " + labelStyle.Render(st.Reason)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
