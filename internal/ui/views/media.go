package views

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"snaphound/internal/domain"
)

const (
	videoMarker    = "▶"
	resolvedMark   = "●"
	unresolvedMark = "○"
	emptyText      = "No media found"
)

// MediaRenderer handles rendering of media items
type MediaRenderer struct {
	styles *Styles
}

// NewMediaRenderer creates a new media renderer
func NewMediaRenderer(styles *Styles) *MediaRenderer {
	return &MediaRenderer{styles: styles}
}

// RenderItem renders a single list row. The sentinel renders as the empty
// state message.
func (r *MediaRenderer) RenderItem(item domain.MediaDescriptor, resolved, isSelected bool, width int) string {
	if item.IsSentinel() {
		return r.styles.Dim.Render(emptyText)
	}

	mark := unresolvedMark
	if resolved {
		mark = resolvedMark
	}

	kind := " "
	if item.IsVideo() {
		kind = videoMarker
	}

	name := item.DisplayName()
	prefix := mark + " " + kind + " "
	budget := width - lipgloss.Width(prefix)
	name = truncate(name, budget)

	path := ""
	if rest := budget - lipgloss.Width(name) - 2; rest > 4 {
		path = "  " + truncate(item.Path, rest)
	}

	nameStyle := lipgloss.NewStyle()
	kindStyle := r.styles.Video
	pathStyle := r.styles.Path
	markStyle := r.styles.Dim
	if isSelected {
		nameStyle = nameStyle.Inherit(r.styles.SelectionBg).Bold(true)
		kindStyle = kindStyle.Inherit(r.styles.SelectionBg)
		pathStyle = pathStyle.Inherit(r.styles.SelectionBg)
		markStyle = markStyle.Inherit(r.styles.SelectionBg)
	}

	return markStyle.Render(mark+" ") + kindStyle.Render(kind+" ") + nameStyle.Render(name) + pathStyle.Render(path)
}

// truncate shortens s to at most width cells, marking the cut with an ellipsis
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return strings.TrimRight(string(runes), " ") + "…"
}
