package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/promptdeck/promptdeck/internal/gateway"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#B794F4"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7A7A8C"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E4E4EC"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#68D391"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F6E05E"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FC8181"))
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#63B3ED"))
	modelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#B794F4"))
)

// field renders a "Label: value" line.
func field(label, value string) string {
	return fmt.Sprintf("%s %s", subtleStyle.Render(label+":"), textStyle.Render(value))
}

func availabilityStyle(a gateway.Availability) lipgloss.Style {
	switch a {
	case gateway.Available:
		return successStyle
	case gateway.Downloadable, gateway.Downloading:
		return warnStyle
	default:
		return errorStyle
	}
}
