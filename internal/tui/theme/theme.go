// Package theme provides the Lip Gloss color palette and reusable styles
// for the examiner console. It is a leaf package apart from the engine's
// value types.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/proctorai/proctor/internal/proctor"
)

// Status colors.
var (
	ColorNormal     = lipgloss.Color("#22c55e")
	ColorWarning    = lipgloss.Color("#d97706")
	ColorSuspicious = lipgloss.Color("#dc2626")
	ColorInactive   = lipgloss.Color("#4b5563")
)

// UI chrome colors.
var (
	ColorBorder   = lipgloss.Color("#4b5563")
	ColorDimmed   = lipgloss.Color("#6b7280")
	ColorBright   = lipgloss.Color("#f9fafb")
	ColorExaminer = lipgloss.Color("#a855f7")
	ColorHealthy  = lipgloss.Color("#22c55e")
	ColorDanger   = lipgloss.Color("#dc2626")
)

// Score gauge gradient ends.
const (
	GaugeLow  = "#22c55e"
	GaugeHigh = "#dc2626"
)

// StatusColor returns the color for a session verdict.
func StatusColor(s proctor.Status) lipgloss.Color {
	switch s {
	case proctor.Normal:
		return ColorNormal
	case proctor.Warning:
		return ColorWarning
	case proctor.Suspicious:
		return ColorSuspicious
	default:
		return ColorDimmed
	}
}

// StatusGlyph returns a glyph for a session verdict.
func StatusGlyph(s proctor.Status) string {
	switch s {
	case proctor.Normal:
		return "●"
	case proctor.Warning:
		return "▲"
	case proctor.Suspicious:
		return "✗"
	default:
		return "·"
	}
}

// StatusBadge renders the colored glyph and name of a status. Inactive
// sessions are dimmed.
func StatusBadge(s proctor.Status, active bool) string {
	color := StatusColor(s)
	if !active {
		color = ColorInactive
	}
	return lipgloss.NewStyle().Foreground(color).Render(StatusGlyph(s) + " " + s.String())
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleExaminer = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorExaminer)
)
