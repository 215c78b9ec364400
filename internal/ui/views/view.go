package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"snaphound/internal/domain"
)

// Screen selects what the UI shows
type Screen int

const (
	// ScreenInfo is shown until the host can serve the library
	ScreenInfo Screen = iota
	// ScreenMedia is the searchable media list
	ScreenMedia
	// ScreenSettings edits the search paths
	ScreenSettings
)

// chromeLines is everything on the media screen that is not a list row:
// container padding, title, search box and the blank line under it, plus
// the blank line, status and help at the bottom.
const chromeLines = 8

// ListHeight returns how many rows of the media list fit a terminal of the given height
func ListHeight(termHeight int) int {
	h := termHeight - chromeLines
	if h < 1 {
		h = 1
	}
	return h
}

// MediaRow is one rendered list entry
type MediaRow struct {
	Item     domain.MediaDescriptor
	Resolved bool
}

// ViewState contains all the state needed for rendering
type ViewState struct {
	Width   int
	Height  int
	Screen  Screen
	Spinner string

	Mode        domain.Mode
	Query       string
	SearchInput string
	Rows        []MediaRow // rows inside the viewport only
	Offset      int
	Selected    int
	Total       int

	StatusText  string
	StatusLevel domain.StatusLevel
	HelpView    string

	Paths        []string
	PathIndex    int
	Dirty        bool
	PathInput    string // non-empty while typing a path
	ConfirmReset bool
	Busy         string
}

// Renderer handles all view rendering
type Renderer struct {
	styles        *Styles
	mediaRender   *MediaRenderer
	settingRender *SettingsRenderer
}

// NewRenderer creates a new renderer
func NewRenderer() *Renderer {
	styles := NewStyles()
	return &Renderer{
		styles:        styles,
		mediaRender:   NewMediaRenderer(styles),
		settingRender: NewSettingsRenderer(styles),
	}
}

// Render produces the complete view
func (r *Renderer) Render(state ViewState) string {
	switch state.Screen {
	case ScreenInfo:
		return r.renderInfo(state)
	case ScreenSettings:
		return r.styles.Main.Render(r.settingRender.Render(state))
	}

	content := &strings.Builder{}
	content.WriteString(r.titleLine(state))
	content.WriteString("\n")
	content.WriteString(state.SearchInput)
	content.WriteString("\n\n")

	listHeight := ListHeight(state.Height)
	lines := r.renderList(state, r.contentWidth(state))
	for len(lines) < listHeight {
		lines = append(lines, "")
	}
	content.WriteString(strings.Join(lines, "\n"))

	content.WriteString("\n\n")
	content.WriteString(renderStatus(r.styles, state.StatusText, state.StatusLevel))
	content.WriteString("\n")
	content.WriteString(state.HelpView)

	return r.styles.Main.MaxHeight(state.Height).Render(content.String())
}

func (r *Renderer) contentWidth(state ViewState) int {
	// Use a default width if state.Width is not set
	termWidth := state.Width
	if termWidth <= 0 {
		termWidth = 80
	}
	return termWidth - 4 // Account for main container padding
}

// titleLine renders the logo with the mode and position right aligned
func (r *Renderer) titleLine(state ViewState) string {
	logo := r.styles.Title.Render("snaphound")

	var mode string
	if state.Mode == domain.ModeSearching {
		mode = r.styles.Search.Render(fmt.Sprintf("[search: %s]", state.Query))
	} else {
		mode = r.styles.Mode.Render("[library]")
	}

	position := ""
	if state.Total > 0 {
		first := state.Offset + 1
		last := state.Offset + len(state.Rows)
		position = r.styles.Dim.Render(fmt.Sprintf("%d-%d of %d", first, last, state.Total))
	}
	rightContent := strings.TrimSpace(mode + "  " + position)

	paddingWidth := r.contentWidth(state) - lipgloss.Width(logo) - lipgloss.Width(rightContent)
	if paddingWidth > 0 {
		return logo + strings.Repeat(" ", paddingWidth) + rightContent
	}
	// If not enough space, just show with minimal spacing
	return fmt.Sprintf("%s  %s", logo, rightContent)
}

func (r *Renderer) renderList(state ViewState, width int) []string {
	if state.Total == 0 {
		if state.Mode == domain.ModeSearching {
			return []string{r.styles.Dim.Render("Searching...")}
		}
		return []string{r.styles.Dim.Render("Loading library...")}
	}

	lines := make([]string, 0, len(state.Rows))
	for i, row := range state.Rows {
		selected := state.Offset+i == state.Selected
		lines = append(lines, r.mediaRender.RenderItem(row.Item, row.Resolved, selected, width))
	}
	return lines
}

// renderStatus colours the status line by level
func renderStatus(styles *Styles, text string, level domain.StatusLevel) string {
	if text == "" {
		return ""
	}
	switch level {
	case domain.StatusError:
		return styles.StatusError.Render(text)
	case domain.StatusSuccess:
		return styles.StatusSuccess.Render(text)
	default:
		return styles.StatusInfo.Render(text)
	}
}

// renderInfo renders the screen shown while the host is still preparing
func (r *Renderer) renderInfo(state ViewState) string {
	var b strings.Builder
	b.WriteString(r.styles.Title.Render("snaphound"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%s Waiting for the indexing host...", state.Spinner))
	if state.StatusText != "" {
		b.WriteString("\n\n")
		b.WriteString(renderStatus(r.styles, state.StatusText, state.StatusLevel))
	}
	b.WriteString("\n\n")
	b.WriteString(r.styles.Help.Render("s settings • q quit"))

	box := r.styles.InfoBox.Render(b.String())
	if state.Width <= 0 || state.Height <= 0 {
		return box
	}
	return lipgloss.Place(state.Width, state.Height, lipgloss.Center, lipgloss.Center, box)
}
