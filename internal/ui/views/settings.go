package views

import (
	"fmt"
	"strings"
)

// SettingsRenderer renders the search path editor
type SettingsRenderer struct {
	styles *Styles
}

// NewSettingsRenderer creates a new settings renderer
func NewSettingsRenderer(styles *Styles) *SettingsRenderer {
	return &SettingsRenderer{styles: styles}
}

// Render renders the settings screen
func (r *SettingsRenderer) Render(state ViewState) string {
	var b strings.Builder

	b.WriteString(r.styles.Title.Render("snaphound settings"))
	b.WriteString("\n\n")
	b.WriteString(r.styles.Section.Render("Search paths"))
	if state.Dirty {
		b.WriteString(r.styles.Search.Render("  (unsaved changes)"))
	}
	b.WriteString("\n")

	if len(state.Paths) == 0 {
		b.WriteString(r.styles.Dim.Render("  No search paths configured"))
		b.WriteString("\n")
	}
	for i, p := range state.Paths {
		line := fmt.Sprintf("  %s", p)
		if i == state.PathIndex {
			line = r.styles.SelectionBg.Render(fmt.Sprintf("> %s", p))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case state.ConfirmReset:
		b.WriteString(r.styles.Confirm.Render("Reset all indexed data? (y/n): "))
		b.WriteString("\n")
	case state.PathInput != "":
		b.WriteString(state.PathInput)
		b.WriteString("\n")
	}

	if state.Busy != "" {
		b.WriteString(r.styles.StatusLoading.Render(fmt.Sprintf("%s %s", state.Spinner, state.Busy)))
		b.WriteString("\n")
	} else if state.StatusText != "" {
		b.WriteString(renderStatus(r.styles, state.StatusText, state.StatusLevel))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(state.HelpView)
	return b.String()
}
