// Package ui is the terminal front end: a search box over the media list,
// the info screen shown while the host starts, and the search path editor.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"snaphound/internal/catalog"
	"snaphound/internal/domain"
	"snaphound/internal/eventbus"
	"snaphound/internal/logging"
	"snaphound/internal/settings"
	"snaphound/internal/ui/views"
	"snaphound/internal/visibility"
)

// maxHistory is how many status lines the log pager keeps
const maxHistory = 200

// Searcher receives the query as it is typed
type Searcher interface {
	Input(query string)
	Mode() domain.Mode
}

// Prober checks that a resolved resource can actually be loaded
type Prober interface {
	Probe(ctx context.Context, uri string) error
}

// Deps groups the services the model talks to
type Deps struct {
	Context context.Context
	Catalog *catalog.Catalog
	Search  Searcher
	Gate    *visibility.Gate
	Session *settings.Session
	Prober  Prober
}

// Model represents the application state
type Model struct {
	ctx     context.Context
	catalog *catalog.Catalog
	search  Searcher
	gate    *visibility.Gate
	session *settings.Session
	prober  Prober
	program *tea.Program // reference to Bubble Tea program for terminal management
	pager   *PagerOps

	renderer     *views.Renderer
	helpRenderer *HelpRenderer
	keys         keyMap
	settingsKeys settingsKeyMap
	help         help.Model
	input        textinput.Model
	pathInput    textinput.Model
	spinner      spinner.Model

	screen     views.Screen
	prevScreen views.Screen
	ready      bool
	width      int
	height     int

	items    []domain.MediaDescriptor // catalog order, failed items removed
	cursor   int
	offset   int
	onScreen map[string]bool
	query    string

	statusText  string
	statusLevel domain.StatusLevel
	history     []string

	pathIndex    int
	typingPath   bool
	confirmReset bool
	busy         string

	inPagerMode bool // tracks if we're currently in pager mode
}

// NewModel creates a new UI model
func NewModel(deps Deps) *Model {
	ctx := deps.Context
	if ctx == nil {
		ctx = context.Background()
	}

	input := textinput.New()
	input.Placeholder = "Search media..."
	input.Prompt = "/ "
	input.CharLimit = 256
	input.Focus()

	pathInput := textinput.New()
	pathInput.Placeholder = "/path/to/photos"
	pathInput.Prompt = "path: "

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		ctx:          ctx,
		catalog:      deps.Catalog,
		search:       deps.Search,
		gate:         deps.Gate,
		session:      deps.Session,
		prober:       deps.Prober,
		renderer:     views.NewRenderer(),
		helpRenderer: NewHelpRenderer(),
		keys:         newKeyMap(),
		settingsKeys: newSettingsKeyMap(),
		help:         help.New(),
		input:        input,
		pathInput:    pathInput,
		spinner:      sp,
		screen:       views.ScreenInfo,
		onScreen:     make(map[string]bool),
	}
}

// SetProgram sets the program reference used to hand the terminal to the pager
func (m *Model) SetProgram(p *tea.Program) {
	m.program = p
	m.pager = NewPagerOps(p)
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink)
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = max(msg.Width-10, 10)
		m.pathInput.Width = max(msg.Width-12, 10)
		m.clampViewport()
		return m, m.observeViewport()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventMsg:
		return m, m.handleEvent(msg.Event)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case probeResultMsg:
		if msg.err == nil {
			return m, nil
		}
		logging.Warn("UI: failed to load %s: %v", msg.uri, msg.err)
		m.gate.MarkFailed(msg.id, msg.err)
		m.addHistory(fmt.Sprintf("failed to load %s: %v", msg.uri, msg.err))
		m.refreshItems()
		return m, m.observeViewport()

	case settingsLoadedMsg:
		m.busy = ""
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Failed to load search paths: %v", msg.err), domain.StatusError)
			return m, nil
		}
		m.pathIndex = 0
		return m, nil

	case folderPickedMsg:
		m.busy = ""
		switch {
		case msg.err != nil:
			m.setStatus(fmt.Sprintf("Failed to select folder: %v", msg.err), domain.StatusError)
		case msg.folder == "":
			m.setStatus("No folder added", domain.StatusInfo)
		default:
			m.pathIndex = len(m.session.Draft()) - 1
			m.setStatus(fmt.Sprintf("Added %s", msg.folder), domain.StatusInfo)
		}
		return m, nil

	case settingsSavedMsg:
		m.busy = ""
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Failed to save search paths: %v", msg.err), domain.StatusError)
			return m, nil
		}
		m.setStatus("Search paths saved", domain.StatusSuccess)
		return m, m.leaveSettings()

	case resetDoneMsg:
		m.busy = ""
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Failed to reset: %v", msg.err), domain.StatusError)
			return m, nil
		}
		m.setStatus("Reset requested, waiting for the host", domain.StatusInfo)
		return m, m.leaveSettings()

	case pagerMsg:
		if msg.err != nil {
			// Pager failed: log only; do not surface in status bar
			logging.Warn("UI: pager failed: %v", msg.err)
		}
		return m, nil

	case pauseRenderingMsg:
		m.inPagerMode = true
		return m, nil

	case resumeRenderingMsg:
		m.inPagerMode = false
		return m, nil
	}

	// Cursor blink and other input internals
	var cmd tea.Cmd
	if m.typingPath {
		m.pathInput, cmd = m.pathInput.Update(msg)
	} else {
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	switch m.screen {
	case views.ScreenSettings:
		return m.handleSettingsKey(msg)
	case views.ScreenInfo:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Settings):
			return m, m.openSettings()
		case key.Matches(msg, m.keys.Log):
			return m, m.showPager(m.helpRenderer.RenderHistory(m.history))
		}
		return m, nil
	}

	if m.input.Focused() {
		switch msg.Type {
		case tea.KeyEsc, tea.KeyEnter:
			m.input.Blur()
			return m, nil
		case tea.KeyUp:
			m.moveCursor(-1)
			return m, m.observeViewport()
		case tea.KeyDown:
			m.moveCursor(1)
			return m, m.observeViewport()
		case tea.KeyPgUp:
			m.moveCursor(-views.ListHeight(m.height))
			return m, m.observeViewport()
		case tea.KeyPgDown:
			m.moveCursor(views.ListHeight(m.height))
			return m, m.observeViewport()
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if value := m.input.Value(); value != m.query {
			m.query = value
			m.search.Input(value)
		}
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Search):
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.PageUp):
		m.moveCursor(-views.ListHeight(m.height))
	case key.Matches(msg, m.keys.PageDown):
		m.moveCursor(views.ListHeight(m.height))
	case key.Matches(msg, m.keys.Top):
		m.moveCursor(-len(m.items))
	case key.Matches(msg, m.keys.Bottom):
		m.moveCursor(len(m.items))
	case key.Matches(msg, m.keys.Settings):
		return m, m.openSettings()
	case key.Matches(msg, m.keys.Log):
		return m, m.showPager(m.helpRenderer.RenderHistory(m.history))
	case key.Matches(msg, m.keys.Help):
		return m, m.showPager(m.helpRenderer.RenderHelpContent(m.keys, m.settingsKeys))
	}
	return m, m.observeViewport()
}

func (m *Model) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmReset {
		m.confirmReset = false
		if msg.String() == "y" {
			m.busy = "Resetting"
			return m, m.resetAll()
		}
		return m, nil
	}

	if m.typingPath {
		switch msg.Type {
		case tea.KeyEnter:
			if m.session.AddDraft(m.pathInput.Value()) {
				m.pathIndex = len(m.session.Draft()) - 1
			}
			m.stopTyping()
			return m, nil
		case tea.KeyEsc:
			m.stopTyping()
			return m, nil
		}
		var cmd tea.Cmd
		m.pathInput, cmd = m.pathInput.Update(msg)
		return m, cmd
	}

	if m.busy != "" {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.settingsKeys.Up):
		if m.pathIndex > 0 {
			m.pathIndex--
		}
	case key.Matches(msg, m.settingsKeys.Down):
		if m.pathIndex < len(m.session.Draft())-1 {
			m.pathIndex++
		}
	case key.Matches(msg, m.settingsKeys.Pick):
		m.busy = "Waiting for folder selection"
		return m, m.pickFolder()
	case key.Matches(msg, m.settingsKeys.Type):
		m.typingPath = true
		return m, m.pathInput.Focus()
	case key.Matches(msg, m.settingsKeys.Remove):
		if err := m.session.RemoveDraft(m.pathIndex); err == nil {
			if n := len(m.session.Draft()); m.pathIndex >= n {
				m.pathIndex = max(n-1, 0)
			}
		}
	case key.Matches(msg, m.settingsKeys.Save):
		m.busy = "Saving"
		return m, m.saveSettings()
	case key.Matches(msg, m.settingsKeys.Reset):
		m.confirmReset = true
	case key.Matches(msg, m.settingsKeys.Back):
		m.session.Discard()
		return m, m.leaveSettings()
	}
	return m, nil
}

func (m *Model) stopTyping() {
	m.typingPath = false
	m.pathInput.Reset()
	m.pathInput.Blur()
}

// handleEvent applies a bus event forwarded to the UI
func (m *Model) handleEvent(e eventbus.DomainEvent) tea.Cmd {
	switch event := e.(type) {
	case eventbus.HostReadyEvent:
		if !m.ready {
			m.ready = true
			m.addHistory("host ready")
		}
		if m.screen == views.ScreenInfo {
			m.screen = views.ScreenMedia
		}
		m.refreshItems()
		return m.observeViewport()

	case eventbus.CatalogChangedEvent:
		m.refreshItems()
		return m.observeViewport()

	case eventbus.CatalogResetRequestedEvent:
		m.cursor = 0
		m.offset = 0

	case eventbus.StatusUpdatedEvent:
		m.setStatus(event.Text, event.Level)

	case eventbus.ErrorEvent:
		text := event.Message
		if event.Err != nil {
			text = fmt.Sprintf("%s: %v", event.Message, event.Err)
		}
		m.setStatus(text, domain.StatusError)

	case eventbus.ReloadRequestedEvent:
		m.ready = false
		if m.screen == views.ScreenMedia {
			m.screen = views.ScreenInfo
		}
		m.setStatus("Reloading...", domain.StatusInfo)

	case eventbus.SearchDispatchedEvent:
		if event.Mode == domain.ModeSearching {
			m.addHistory(fmt.Sprintf("searching %q (epoch %d)", event.Query, event.Epoch))
		} else {
			m.addHistory(fmt.Sprintf("listing library (epoch %d)", event.Epoch))
		}

	case eventbus.SearchPathsSavedEvent:
		m.addHistory(fmt.Sprintf("saved search paths: %s", strings.Join(event.Paths, ", ")))

	case eventbus.ResourceFailedEvent:
		m.addHistory(fmt.Sprintf("hid %s: %v", event.ID, event.Err))
	}
	return nil
}

func (m *Model) setStatus(text string, level domain.StatusLevel) {
	m.statusText = text
	m.statusLevel = level
	m.addHistory(text)
}

func (m *Model) addHistory(line string) {
	m.history = append(m.history, fmt.Sprintf("%s  %s", time.Now().Format("15:04:05"), line))
	if over := len(m.history) - maxHistory; over > 0 {
		m.history = append([]string(nil), m.history[over:]...)
	}
}

// refreshItems re-reads the catalog and mounts its items on the gate
func (m *Model) refreshItems() {
	all := m.catalog.Items()
	if changed := m.gate.Sync(all); len(changed) > 0 {
		logging.Debug("UI: %d items changed", len(changed))
	}

	items := make([]domain.MediaDescriptor, 0, len(all))
	for _, item := range all {
		if !m.gate.Hidden(item.ID) {
			items = append(items, item)
		}
	}
	m.items = items
	m.clampViewport()
}

func (m *Model) moveCursor(delta int) {
	m.cursor += delta
	m.clampViewport()
}

// clampViewport keeps the cursor on an item and inside the viewport
func (m *Model) clampViewport() {
	height := views.ListHeight(m.height)
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+height {
		m.offset = m.cursor - height + 1
	}
	if maxOffset := max(len(m.items)-height, 0); m.offset > maxOffset {
		m.offset = maxOffset
	}
}

// window returns the index range of the items inside the viewport
func (m *Model) window() (int, int) {
	end := min(m.offset+views.ListHeight(m.height), len(m.items))
	return m.offset, end
}

// observeViewport reports the on-screen ratio of every item that is or was
// in the viewport and probes the resources that just resolved
func (m *Model) observeViewport() tea.Cmd {
	if m.screen != views.ScreenMedia || m.height == 0 {
		return nil
	}

	height := views.ListHeight(m.height)
	start, end := m.window()
	visible := make(map[string]bool, end-start)

	var cmds []tea.Cmd
	for i := start; i < end; i++ {
		item := m.items[i]
		visible[item.ID] = true
		ratio := visibility.Ratio(i, 1, m.offset, height)
		if uri, resolved := m.gate.Observe(item.ID, ratio); resolved {
			cmds = append(cmds, m.probe(item.ID, uri))
		}
	}
	for id := range m.onScreen {
		if !visible[id] {
			m.gate.Observe(id, 0)
		}
	}
	m.onScreen = visible

	return tea.Batch(cmds...)
}

func (m *Model) probe(id, uri string) tea.Cmd {
	prober, ctx := m.prober, m.ctx
	return func() tea.Msg {
		if prober == nil {
			return probeResultMsg{id: id, uri: uri}
		}
		return probeResultMsg{id: id, uri: uri, err: prober.Probe(ctx, uri)}
	}
}

func (m *Model) openSettings() tea.Cmd {
	if m.screen != views.ScreenSettings {
		m.prevScreen = m.screen
	}
	m.screen = views.ScreenSettings
	m.busy = "Loading search paths"
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		paths, err := session.Fetch(ctx)
		return settingsLoadedMsg{paths: paths, err: err}
	}
}

func (m *Model) leaveSettings() tea.Cmd {
	m.typingPath = false
	m.confirmReset = false
	m.screen = m.prevScreen
	if m.screen == views.ScreenMedia && !m.ready {
		m.screen = views.ScreenInfo
	}
	return m.observeViewport()
}

func (m *Model) pickFolder() tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		folder, err := session.PickFolder(ctx)
		return folderPickedMsg{folder: folder, err: err}
	}
}

func (m *Model) saveSettings() tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return settingsSavedMsg{err: session.Save(ctx)}
	}
}

func (m *Model) resetAll() tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		return resetDoneMsg{err: session.ResetAll(ctx)}
	}
}

// showPager returns a command that runs the pager, pausing and resuming rendering
func (m *Model) showPager(content string) tea.Cmd {
	program, pager := m.program, m.pager
	return func() tea.Msg {
		if program == nil {
			return pagerMsg{err: fmt.Errorf("program not set")}
		}
		// Pause rendering while the pager owns the terminal
		program.Send(pauseRenderingMsg{})
		err := pager.ShowInPager(content)
		// Send resume message to restart rendering
		program.Send(resumeRenderingMsg{})
		return pagerMsg{err: err}
	}
}

// View renders the UI
func (m *Model) View() string {
	if m.inPagerMode {
		return ""
	}

	state := views.ViewState{
		Width:       m.width,
		Height:      m.height,
		Screen:      m.screen,
		Spinner:     m.spinner.View(),
		StatusText:  m.statusText,
		StatusLevel: m.statusLevel,
	}

	switch m.screen {
	case views.ScreenMedia:
		state.Mode = m.search.Mode()
		state.Query = strings.TrimSpace(m.query)
		state.SearchInput = m.input.View()
		state.Offset = m.offset
		state.Selected = m.cursor
		state.Total = len(m.items)
		state.HelpView = m.help.View(m.keys)

		start, end := m.window()
		for _, item := range m.items[start:end] {
			_, resolved := m.gate.URI(item.ID)
			state.Rows = append(state.Rows, views.MediaRow{Item: item, Resolved: resolved})
		}

	case views.ScreenSettings:
		state.Paths = m.session.Draft()
		state.PathIndex = m.pathIndex
		state.Dirty = m.session.Dirty()
		state.ConfirmReset = m.confirmReset
		state.Busy = m.busy
		state.HelpView = m.help.View(m.settingsKeys)
		if m.typingPath {
			state.PathInput = m.pathInput.View()
		}
	}

	return m.renderer.Render(state)
}
