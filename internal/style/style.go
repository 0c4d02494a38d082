// Package style holds the shared lipgloss styles for CLI output.
package style

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorSuccess = lipgloss.Color("76")  // green
	colorError   = lipgloss.Color("196") // red
	colorMuted   = lipgloss.Color("242") // gray
)

var (
	Bold = lipgloss.NewStyle().Bold(true)

	Dim = lipgloss.NewStyle().Foreground(colorMuted)

	Success = lipgloss.NewStyle().Foreground(colorSuccess)

	Error = lipgloss.NewStyle().
		Bold(true).
		Foreground(colorError)
)
