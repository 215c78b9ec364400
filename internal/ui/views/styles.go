package views

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles contains all the style definitions for the UI
type Styles struct {
	Title         lipgloss.Style
	Confirm       lipgloss.Style
	Dim           lipgloss.Style
	Search        lipgloss.Style
	Mode          lipgloss.Style
	InfoBox       lipgloss.Style
	Help          lipgloss.Style
	Main          lipgloss.Style
	Scroll        lipgloss.Style
	Highlight     lipgloss.Style
	SelectionBg   lipgloss.Style
	Video         lipgloss.Style
	Path          lipgloss.Style
	StatusInfo    lipgloss.Style
	StatusError   lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusLoading lipgloss.Style
	Section       lipgloss.Style
}

// NewStyles creates a new Styles instance with default values
func NewStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")),
		Confirm: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		Dim:     lipgloss.NewStyle().Faint(true),
		Search:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")), // yellow
		Mode:    lipgloss.NewStyle().Foreground(lipgloss.Color("51")),  // cyan
		InfoBox: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			Padding(1, 2).
			Width(60).
			BorderForeground(lipgloss.Color("241")),
		Help: lipgloss.NewStyle().Faint(true),
		Main: lipgloss.NewStyle().
			Padding(1, 2),
		Scroll:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
		Highlight:     lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true),
		SelectionBg:   lipgloss.NewStyle().Background(lipgloss.Color("238")),
		Video:         lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		Path:          lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		StatusInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")), // red
		StatusSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("78")),  // green
		StatusLoading: lipgloss.NewStyle().Foreground(lipgloss.Color("241")), // gray
		Section: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")),
	}
}
