package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/noborus/ov/oviewer"
)

// HelpRenderer handles help content rendering
type HelpRenderer struct {
	titleStyle   lipgloss.Style
	sectionStyle lipgloss.Style
	keyStyle     lipgloss.Style
	descStyle    lipgloss.Style
}

// NewHelpRenderer creates a new help renderer
func NewHelpRenderer() *HelpRenderer {
	return &HelpRenderer{
		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1),
		sectionStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginTop(1),
		keyStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		descStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	}
}

// RenderHelpContent generates help content with colors for the pager
func (r *HelpRenderer) RenderHelpContent(keys keyMap, settings settingsKeyMap) string {
	var help strings.Builder

	help.WriteString(r.titleStyle.Render("snaphound Help"))
	help.WriteString("\n")

	r.section(&help, "Navigation", keys.Up, keys.Down, keys.PageUp, keys.PageDown, keys.Top, keys.Bottom)
	r.section(&help, "Search", keys.Search, keys.Blur)
	help.WriteString(lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241")).
		Render("  Queries shorter than three characters show the whole library"))
	help.WriteString("\n")
	r.section(&help, "Settings screen", settings.Up, settings.Down, settings.Pick, settings.Type,
		settings.Remove, settings.Save, settings.Reset, settings.Back)
	r.section(&help, "Other", keys.Settings, keys.Log, keys.Help, keys.Quit)

	return strings.TrimRight(help.String(), "\n")
}

func (r *HelpRenderer) section(help *strings.Builder, title string, bindings ...key.Binding) {
	help.WriteString(r.sectionStyle.Render(title))
	help.WriteString("\n")
	for _, b := range bindings {
		h := b.Help()
		help.WriteString(fmt.Sprintf("  %-10s %s\n", r.keyStyle.Render(h.Key), r.descStyle.Render(h.Desc)))
	}
	help.WriteString("\n")
}

// RenderHistory generates the status log content for the pager
func (r *HelpRenderer) RenderHistory(lines []string) string {
	var b strings.Builder
	b.WriteString(r.titleStyle.Render("snaphound status log"))
	b.WriteString("\n")
	if len(lines) == 0 {
		b.WriteString(r.descStyle.Render("No status messages yet"))
		return b.String()
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

// PagerOps shows long content in a full screen pager
type PagerOps struct {
	program *tea.Program // reference to Bubble Tea program for terminal management
}

// NewPagerOps creates a new pager operations instance
func NewPagerOps(program *tea.Program) *PagerOps {
	return &PagerOps{program: program}
}

// ShowInPager shows content using ov pager
func (p *PagerOps) ShowInPager(content string) error {
	if p == nil || p.program == nil {
		return fmt.Errorf("program not set")
	}

	// Release terminal control to run ov
	if err := p.program.ReleaseTerminal(); err != nil {
		return err
	}

	// Ensure terminal is restored even if ov fails
	defer func() {
		// Small delay to ensure ov has fully exited before restoring terminal
		time.Sleep(100 * time.Millisecond)
		_ = p.program.RestoreTerminal() // Ignore error as we're in defer context
	}()

	root, err := oviewer.NewRoot(strings.NewReader(content))
	if err != nil {
		return err
	}

	// Configure ov to not write on exit (to avoid messing with our screen)
	config := oviewer.NewConfig()
	config.IsWriteOriginal = false
	configureVimKeyBindings(&config)

	root.SetConfig(config)

	// Run the oviewer (this will take over the terminal)
	return root.Run()
}

// configureVimKeyBindings adds j/k style navigation on top of ov's defaults
func configureVimKeyBindings(config *oviewer.Config) {
	if config.Keybind == nil {
		config.Keybind = make(map[string][]string)
	}
	config.Keybind["exit"] = []string{"Escape", "q"}
	config.Keybind["down"] = []string{"Enter", "Down", "ctrl+n", "j"}
	config.Keybind["up"] = []string{"Up", "ctrl+p", "k"}
	config.Keybind["top"] = []string{"Home", "g"}
	config.Keybind["bottom"] = []string{"End", "G"}
	config.Keybind["page_down"] = []string{"PageDown", "ctrl+v", "ctrl+f", " "}
	config.Keybind["page_up"] = []string{"PageUp", "ctrl+b"}
}
