package tui

import (
	catppuccin "github.com/catppuccin/go"
	"github.com/charmbracelet/lipgloss"
)

// Catppuccin Mocha palette.
var flavor = catppuccin.Mocha

var (
	colorBase     = lipgloss.Color(flavor.Base().Hex)
	colorSurface0 = lipgloss.Color(flavor.Surface0().Hex)
	colorSurface1 = lipgloss.Color(flavor.Surface1().Hex)
	colorText     = lipgloss.Color(flavor.Text().Hex)
	colorSubtext0 = lipgloss.Color(flavor.Subtext0().Hex)
	colorBlue     = lipgloss.Color(flavor.Blue().Hex)
	colorGreen    = lipgloss.Color(flavor.Green().Hex)
	colorRed      = lipgloss.Color(flavor.Red().Hex)
	colorYellow   = lipgloss.Color(flavor.Yellow().Hex)
	colorMauve    = lipgloss.Color(flavor.Mauve().Hex)
	colorOverlay0 = lipgloss.Color(flavor.Overlay0().Hex)
)

// Header and list styles.
var (
	// TitleStyle renders the slot name in the header bar.
	TitleStyle = lipgloss.NewStyle().
			Foreground(colorBase).
			Background(colorBlue).
			Padding(0, 1).
			Bold(true)

	// HeaderStyle is used for the column header above the profile list.
	HeaderStyle = lipgloss.NewStyle().
			Foreground(colorMauve).
			Bold(true)

	// CursorRowStyle highlights the row under the cursor.
	CursorRowStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Background(colorSurface1).
			Bold(true)

	RowStyle = lipgloss.NewStyle().Foreground(colorText)

	// EnabledMarkStyle colors the marker of the active profile.
	EnabledMarkStyle = lipgloss.NewStyle().Foreground(colorGreen)

	DimStyle = lipgloss.NewStyle().Foreground(colorOverlay0)
)

// Status bar styles.
var (
	StatusStyle = lipgloss.NewStyle().Foreground(colorSubtext0)

	ErrorStyle = lipgloss.NewStyle().Foreground(colorRed)

	// WarningStyle is used for the restart notice after a switch.
	WarningStyle = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(colorOverlay0).
			Background(colorSurface0).
			Padding(0, 1)
)

// Overlay styles.
var (
	OverlayStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBlue).
			Padding(1, 2)

	OverlayTitleStyle = lipgloss.NewStyle().
				Foreground(colorMauve).
				Bold(true)

	OverlayButtonActiveStyle = lipgloss.NewStyle().
					Foreground(colorBase).
					Background(colorBlue).
					Padding(0, 2)

	OverlayButtonInactiveStyle = lipgloss.NewStyle().
					Foreground(colorText).
					Background(colorSurface0).
					Padding(0, 2)
)
