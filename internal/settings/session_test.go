package settings

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaphound/internal/eventbus"
)

// memoryStore keeps the paths the way the host would persist them
type memoryStore struct {
	paths   []string
	folder  string
	saveErr error
	resets  int
}

func (m *memoryStore) FetchConfig(context.Context) ([]string, error) {
	return slices.Clone(m.paths), nil
}

func (m *memoryStore) SaveConfig(_ context.Context, paths []string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.paths = slices.Clone(paths)
	return nil
}

func (m *memoryStore) SelectFolder(context.Context) (string, error) {
	return m.folder, nil
}

func (m *memoryStore) ResetAll(context.Context) error {
	m.resets++
	m.paths = nil
	return nil
}

type recordingBus struct {
	events []eventbus.DomainEvent
}

func (b *recordingBus) Publish(e eventbus.DomainEvent) { b.events = append(b.events, e) }
func (b *recordingBus) Subscribe(eventbus.EventType, eventbus.EventHandler) func() {
	return func() {}
}
func (b *recordingBus) Close() {}

func TestSaveFetchRoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	s := NewSession(store, nil)

	for _, p := range []string{"/photos/2024", "/home/me/Videos", "/a"} {
		require.True(t, s.AddDraft(p))
	}
	require.NoError(t, s.Save(ctx))

	fresh := NewSession(store, nil)
	got, err := fresh.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/photos/2024", "/home/me/Videos", "/a"}, got)
	assert.False(t, fresh.Dirty())
}

func TestDraftEditing(t *testing.T) {
	ctx := context.Background()
	s := NewSession(&memoryStore{paths: []string{"/a", "/b", "/c"}}, nil)
	_, err := s.Fetch(ctx)
	require.NoError(t, err)

	assert.False(t, s.AddDraft("  "))
	assert.False(t, s.AddDraft("/a"), "duplicates are ignored")
	assert.True(t, s.AddDraft(" /d "))

	require.NoError(t, s.RemoveDraft(1))
	assert.Equal(t, []string{"/a", "/c", "/d"}, s.Draft())
	assert.True(t, s.Dirty())

	assert.Error(t, s.RemoveDraft(3))
	assert.Error(t, s.RemoveDraft(-1))

	s.Discard()
	assert.Equal(t, []string{"/a", "/b", "/c"}, s.Draft())
	assert.False(t, s.Dirty())
}

func TestPickFolder(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{folder: "/picked"}
	s := NewSession(store, nil)

	folder, err := s.PickFolder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/picked", folder)
	assert.Equal(t, []string{"/picked"}, s.Draft())

	store.folder = ""
	folder, err = s.PickFolder(ctx)
	require.NoError(t, err)
	assert.Empty(t, folder, "cancelled picker adds nothing")
	assert.Len(t, s.Draft(), 1)
}

func TestSaveFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	s := NewSession(&memoryStore{saveErr: errors.New("disk full")}, nil)
	s.AddDraft("/a")

	err := s.Save(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []string{"/a"}, s.Draft())
	assert.True(t, s.Dirty())
}

func TestSessionPublishesEvents(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	s := NewSession(&memoryStore{paths: []string{"/a"}}, bus)

	_, err := s.Fetch(ctx)
	require.NoError(t, err)
	s.AddDraft("/b")
	require.NoError(t, s.Save(ctx))

	require.Len(t, bus.events, 2)
	assert.Equal(t, eventbus.SearchPathsLoadedEvent{Paths: []string{"/a"}}, bus.events[0])
	assert.Equal(t, eventbus.SearchPathsSavedEvent{Paths: []string{"/a", "/b"}}, bus.events[1])
}

func TestResetAll(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{paths: []string{"/a"}}
	s := NewSession(store, nil)
	_, err := s.Fetch(ctx)
	require.NoError(t, err)

	require.NoError(t, s.ResetAll(ctx))
	assert.Equal(t, 1, store.resets)
	assert.Empty(t, s.Draft())
	assert.Empty(t, s.Saved())
}
