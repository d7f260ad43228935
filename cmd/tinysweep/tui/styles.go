// Package tui renders live progress for a compression run with Bubble Tea.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
	"github.com/jamesainslie/tinysweep/pkg/tinysweep/pipeline"
)

// Color palette for the TUI.
var (
	primaryColor = lipgloss.Color("#7D56F4")
	accentColor  = lipgloss.Color("#00D9FF")

	successColor = lipgloss.Color("#28A745")
	warningColor = lipgloss.Color("#FFC107")
	dangerColor  = lipgloss.Color("#DC3545")

	mutedColor  = lipgloss.Color("#666666")
	borderColor = lipgloss.Color("#333333")
)

var (
	// outerBoxStyle is the main container style.
	outerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(borderColor)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	pathStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	mutedTextStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorTextStyle = lipgloss.NewStyle().
			Foreground(dangerColor)

	successTextStyle = lipgloss.NewStyle().
				Foreground(successColor)

	warningTextStyle = lipgloss.NewStyle().
				Foreground(warningColor)

	statLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	statValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF"))
)

// outcomeStyle colors an outcome label.
func outcomeStyle(o pipeline.Outcome) lipgloss.Style {
	switch o {
	case pipeline.OutcomeCompressed:
		return successTextStyle
	case pipeline.OutcomeFailed:
		return errorTextStyle
	case pipeline.OutcomeSkipped:
		return warningTextStyle
	default:
		return mutedTextStyle
	}
}

// levelStyle colors a log level.
func levelStyle(l logging.Level) lipgloss.Style {
	switch l {
	case logging.LevelError:
		return errorTextStyle
	case logging.LevelWarn:
		return warningTextStyle
	case logging.LevelDebug:
		return mutedTextStyle
	default:
		return statValueStyle
	}
}

// renderDivider renders a horizontal rule of the given width.
func renderDivider(width int) string {
	if width < 1 {
		width = 1
	}
	return dividerStyle.Render(strings.Repeat("─", width))
}

// truncatePath shortens path to width, keeping its tail.
func truncatePath(path string, width int) string {
	if width <= 3 || len(path) <= width {
		return path
	}
	return "..." + path[len(path)-width+3:]
}
