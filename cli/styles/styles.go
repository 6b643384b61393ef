// Package styles provides consistent styling for the sourcedctl CLI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	Primary   = lipgloss.Color("#0891B2") // Cyan
	Secondary = lipgloss.Color("#7C3AED") // Purple
	Success   = lipgloss.Color("#10B981") // Emerald green
	Warning   = lipgloss.Color("#F59E0B") // Amber
	Error     = lipgloss.Color("#EF4444") // Red
	Text      = lipgloss.Color("#F9FAFB") // Almost white
	TextMuted = lipgloss.Color("#9CA3AF") // Gray
	Border    = lipgloss.Color("#374151") // Border gray
)

// Text styles
var (
	// Title style for headers
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	// Subtitle for secondary headers
	Subtitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Secondary)

	// Normal text
	Normal = lipgloss.NewStyle().
		Foreground(Text)

	// Muted text for less important info
	Muted = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Highlight for important values
	Highlight = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	// Code style for inline code
	Code = lipgloss.NewStyle().
		Foreground(Warning)

	// SuccessStyle for success messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success)

	// WarningStyle for warning messages
	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	// ErrorStyle for error messages
	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error)
)

// Box is a rounded container for summaries.
var Box = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(Border).
	Padding(1, 2)

// Icons
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconStream  = "⇶"
	IconDot     = "•"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + Normal.Render(msg)
}

// FormatError formats an error message with icon.
func FormatError(msg string) string {
	return ErrorStyle.Render(IconError) + " " + Normal.Render(msg)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(msg string) string {
	return WarningStyle.Render(IconWarning) + " " + Normal.Render(msg)
}

// FormatKeyValue formats a key-value pair in aligned columns.
func FormatKeyValue(key, value string) string {
	keyStyle := lipgloss.NewStyle().
		Foreground(TextMuted).
		Width(18)
	return keyStyle.Render(key+":") + " " + Highlight.Render(value)
}

// DisableColors disables all colors for terminals that don't support them.
func DisableColors() {
	Primary = lipgloss.Color("")
	Secondary = lipgloss.Color("")
	Success = lipgloss.Color("")
	Warning = lipgloss.Color("")
	Error = lipgloss.Color("")
	Text = lipgloss.Color("")
	TextMuted = lipgloss.Color("")
	Border = lipgloss.Color("")
}
