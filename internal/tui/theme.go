// Package tui holds the terminal styles of the kapipe CLI.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// kapipe Sky Blue Theme
var (
	// Primary colors - Sky blue palette
	LightSkyBlue = lipgloss.Color("#B0E0E6")
	DarkSkyBlue  = lipgloss.Color("#4A90D9")

	// Neutral colors
	White     = lipgloss.Color("#FFFFFF")
	LightGray = lipgloss.Color("#B0B0B0")

	// Status colors
	Success = lipgloss.Color("#00FF88")
	Warning = lipgloss.Color("#FFD700")
	Error   = lipgloss.Color("#FF6B6B")

	// Styles
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Background(DarkSkyBlue).
			Bold(true).
			Padding(0, 2)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(LightSkyBlue).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(LightSkyBlue)

	ValueStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(DarkSkyBlue).
			Padding(1, 2)
)

// Divider returns a horizontal divider
func Divider(width int) string {
	return DimStyle.Render(strings.Repeat("─", width))
}

const (
	CheckMark = "✓"
	CrossMark = "✗"
)
