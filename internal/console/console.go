// Package console holds the terminal styles shared by prompts, the pipeline
// and the rollout watcher.
package console

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// OK marks a completed step.
func OK(s string) string { return okStyle.Render("✓ " + s) }

// Warn marks something the operator should look at.
func Warn(s string) string { return warnStyle.Render("! " + s) }

// Fail marks a failure.
func Fail(s string) string { return failStyle.Render("✗ " + s) }

// Muted renders secondary detail.
func Muted(s string) string { return mutedStyle.Render(s) }

// Title renders a section heading.
func Title(s string) string { return titleStyle.Render(s) }

// Highlight renders a value the operator is asked about, like a version.
func Highlight(s string) string { return activeStyle.Render(s) }

// Phase colours a Kubernetes pod phase.
func Phase(phase string) string {
	return phaseStyle(phase).Render(phase)
}

func phaseStyle(phase string) lipgloss.Style {
	switch strings.ToLower(strings.TrimSpace(phase)) {
	case "running", "succeeded":
		return okStyle
	case "pending", "containercreating":
		return activeStyle
	case "failed", "unknown", "crashloopbackoff":
		return failStyle
	default:
		return mutedStyle
	}
}
