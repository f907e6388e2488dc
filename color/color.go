// Package color provides the small palette used by the CLI output.
package color

import "github.com/charmbracelet/lipgloss"

// New initializes a lipgloss.Color from a string value.
func New(value string) lipgloss.Color {
	return lipgloss.Color(value)
}

// Standard ANSI 8-color palette.
var (
	Red    = New("1")
	Green  = New("2")
	Yellow = New("3")
	Blue   = New("4")
	Purple = New("5")
	Cyan   = New("6")
	White  = New("7")
	Black  = New("8")
)

var (
	Orange = New("#ffb703")
	Gray   = New("#808080")
)

// Semantic colors for continuity output.
var (
	Idle     = Gray
	Armed    = Yellow
	Working  = Orange
	Success  = Green
	Failure  = Red
	Endpoint = Cyan
)
