package ui

import (
	"snaphound/internal/eventbus"
)

// EventMsg wraps a domain event for the UI
type EventMsg struct {
	Event eventbus.DomainEvent
}

// probeResultMsg reports whether a resolved resource could be loaded
type probeResultMsg struct {
	id  string
	uri string
	err error
}

// settingsLoadedMsg carries the search paths fetched from the host
type settingsLoadedMsg struct {
	paths []string
	err   error
}

// folderPickedMsg carries the result of the host folder picker
type folderPickedMsg struct {
	folder string
	err    error
}

// settingsSavedMsg reports the result of saving the search paths
type settingsSavedMsg struct {
	err error
}

// resetDoneMsg reports the result of a reset request
type resetDoneMsg struct {
	err error
}

// pagerMsg contains the result of a pager command
type pagerMsg struct {
	err error
}

// pauseRenderingMsg signals to pause Bubble Tea rendering
type pauseRenderingMsg struct{}

// resumeRenderingMsg signals to resume Bubble Tea rendering
type resumeRenderingMsg struct{}
