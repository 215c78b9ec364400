// Package settings edits the host's list of search paths. Edits are kept in a
// draft until saved; discarding the draft restores the last fetched list.
package settings

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"snaphound/internal/eventbus"
	"snaphound/internal/logging"
)

// Store is the host side of the search path configuration
type Store interface {
	FetchConfig(ctx context.Context) ([]string, error)
	SaveConfig(ctx context.Context, paths []string) error
	SelectFolder(ctx context.Context) (string, error)
	ResetAll(ctx context.Context) error
}

// Session holds the saved search paths and the draft being edited
type Session struct {
	store Store
	bus   eventbus.EventBus

	mu    sync.Mutex
	saved []string
	draft []string
}

// NewSession creates an empty session
func NewSession(store Store, bus eventbus.EventBus) *Session {
	return &Session{store: store, bus: bus}
}

// Fetch loads the persisted paths and resets the draft to them
func (s *Session) Fetch(ctx context.Context) ([]string, error) {
	paths, err := s.store.FetchConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch search paths: %w", err)
	}

	s.mu.Lock()
	s.saved = slices.Clone(paths)
	s.draft = slices.Clone(paths)
	s.mu.Unlock()

	logging.Info("Settings: loaded %d search paths", len(paths))
	s.publish(eventbus.SearchPathsLoadedEvent{Paths: slices.Clone(paths)})
	return slices.Clone(paths), nil
}

// AddDraft appends path to the draft. Blank and duplicate paths are ignored.
func (s *Session) AddDraft(path string) bool {
	path = strings.TrimSpace(path)
	if path == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Contains(s.draft, path) {
		return false
	}
	s.draft = append(s.draft, path)
	return true
}

// PickFolder asks the host for a folder and adds it to the draft.
// It returns the chosen folder, or "" when the picker was cancelled.
func (s *Session) PickFolder(ctx context.Context) (string, error) {
	folder, err := s.store.SelectFolder(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to select folder: %w", err)
	}
	if !s.AddDraft(folder) {
		return "", nil
	}
	return strings.TrimSpace(folder), nil
}

// RemoveDraft drops the draft entry at index
func (s *Session) RemoveDraft(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.draft) {
		return fmt.Errorf("no search path at index %d", index)
	}
	s.draft = slices.Delete(s.draft, index, index+1)
	return nil
}

// Save persists the draft in order, dropping blank entries
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	paths := make([]string, 0, len(s.draft))
	for _, p := range s.draft {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	s.mu.Unlock()

	if err := s.store.SaveConfig(ctx, paths); err != nil {
		return fmt.Errorf("failed to save search paths: %w", err)
	}

	s.mu.Lock()
	s.saved = slices.Clone(paths)
	s.draft = slices.Clone(paths)
	s.mu.Unlock()

	logging.Info("Settings: saved %d search paths", len(paths))
	s.publish(eventbus.SearchPathsSavedEvent{Paths: paths})
	return nil
}

// Discard throws away unsaved edits
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = slices.Clone(s.saved)
}

// Draft returns a copy of the paths being edited
func (s *Session) Draft() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.draft)
}

// Saved returns a copy of the last fetched or saved paths
func (s *Session) Saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.saved)
}

// Dirty reports whether the draft differs from the saved paths
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !slices.Equal(s.draft, s.saved)
}

// ResetAll asks the host to wipe its data. The host answers with
// remove_all_data and later success_reset on the event stream.
func (s *Session) ResetAll(ctx context.Context) error {
	if err := s.store.ResetAll(ctx); err != nil {
		return fmt.Errorf("failed to reset: %w", err)
	}

	s.mu.Lock()
	s.saved = nil
	s.draft = nil
	s.mu.Unlock()

	logging.Info("Settings: host reset requested")
	return nil
}

func (s *Session) publish(event eventbus.DomainEvent) {
	if s.bus != nil {
		s.bus.Publish(event)
	}
}
