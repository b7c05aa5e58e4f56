package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	headingColor = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	subtleColor  = lipgloss.AdaptiveColor{Light: "#8C8C8C", Dark: "#6C6C6C"}
	changedColor = lipgloss.AdaptiveColor{Light: "#C27C0E", Dark: "#F5A623"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#D0021B", Dark: "#FF5F56"}

	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(headingColor)
	subtleStyle  = lipgloss.NewStyle().Foreground(subtleColor)
	changedStyle = lipgloss.NewStyle().Foreground(changedColor)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(errorColor)
)

// row lays out an identifier, a digest and a free-form detail column.
func row(id, digest, detail string) string {
	return fmt.Sprintf("%-36s %-16s  %s", id, digest, detail)
}
