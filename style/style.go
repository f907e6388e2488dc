// Package style provides a functional API for composing and applying lipgloss styles.
package style

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/massdroid-cli/massd/color"
)

// New returns an empty lipgloss.Style used as a foundation for visual composition.
func New() lipgloss.Style {
	return lipgloss.NewStyle()
}

// Colored initializes a new style with the specified foreground and background colors.
func Colored(fg, bg lipgloss.Color) lipgloss.Style {
	return New().Foreground(fg).Background(bg)
}

// Fg returns a rendering function that applies the specified foreground color to a string.
func Fg(c lipgloss.Color) func(string) string {
	return func(s string) string { return Colored(c, "").Render(s) }
}

var (
	Faint = func(s string) string { return New().Faint(true).Render(s) }
	Bold  = func(s string) string { return New().Bold(true).Render(s) }
)

// Tag returns a rendering function that encapsulates a string in a colored, padded tag block.
func Tag(fg, bg lipgloss.Color) func(string) string {
	return func(s string) string { return Colored(fg, bg).Padding(0, 1).Render(s) }
}

// Phase renders a continuity phase name with the color matching its meaning.
func Phase(name string) string {
	switch name {
	case "idle":
		return Fg(color.Idle)(name)
	case "armed_on_loss", "awaiting_stability":
		return Fg(color.Armed)(name)
	case "resuming":
		return Bold(Fg(color.Working)(name))
	case "confirmed":
		return Fg(color.Success)(name)
	case "exhausted":
		return Fg(color.Failure)(name)
	default:
		return name
	}
}

// Outcome renders a resume outcome as a colored tag.
func Outcome(name string) string {
	switch name {
	case "success":
		return Tag(color.Black, color.Success)(name)
	case "exhausted":
		return Tag(color.White, color.Failure)(name)
	default:
		return Tag(color.Black, color.Gray)(name)
	}
}
