package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaphound/internal/catalog"
	"snaphound/internal/domain"
	"snaphound/internal/eventbus"
	"snaphound/internal/search"
)

// syncBus runs handlers inline so tests observe effects immediately
type syncBus struct {
	mu        sync.Mutex
	handlers  map[eventbus.EventType][]eventbus.EventHandler
	published []eventbus.DomainEvent
}

func newSyncBus() *syncBus {
	return &syncBus{handlers: make(map[eventbus.EventType][]eventbus.EventHandler)}
}

func (b *syncBus) Publish(e eventbus.DomainEvent) {
	b.mu.Lock()
	b.published = append(b.published, e)
	hs := append([]eventbus.EventHandler(nil), b.handlers[e.Type()]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(e)
	}
}

func (b *syncBus) Subscribe(t eventbus.EventType, h eventbus.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
	return func() {}
}

func (b *syncBus) Close() {}

func (b *syncBus) ofType(t eventbus.EventType) []eventbus.DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []eventbus.DomainEvent
	for _, e := range b.published {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeModes struct {
	mode      atomic.Int32
	epoch     atomic.Uint64
	refreshes chan struct{}
}

func newFakeModes(mode domain.Mode, epoch uint64) *fakeModes {
	m := &fakeModes{refreshes: make(chan struct{}, 10)}
	m.mode.Store(int32(mode))
	m.epoch.Store(epoch)
	return m
}

func (m *fakeModes) Accepts(mode domain.Mode, epoch uint64) bool {
	return mode == domain.Mode(m.mode.Load()) && (epoch == 0 || epoch == m.epoch.Load())
}

func (m *fakeModes) Refresh(context.Context) error {
	m.refreshes <- struct{}{}
	return nil
}

type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func newTestIngestor(t *testing.T, mode domain.Mode) (*Ingestor, *syncBus, *catalog.Catalog, *fakeModes) {
	t.Helper()
	bus := newSyncBus()
	cat := catalog.New()
	modes := newFakeModes(mode, 0)
	ing := New(bus, cat, modes, Options{})
	t.Cleanup(ing.Stop)
	return ing, bus, cat, modes
}

func push(name, payload string, epoch uint64) domain.PushMessage {
	return domain.PushMessage{Name: name, Payload: []byte(payload), Epoch: epoch}
}

const batchAB = `"[{\"id\":\"a\",\"path\":\"/a.jpg\",\"type\":\"image\"},{\"id\":\"b\",\"path\":\"/b.mp4\",\"type\":\"video\"}]"`

func ids(items []domain.MediaDescriptor) []string {
	out := make([]string, len(items))
	for i, d := range items {
		out[i] = d.ID
	}
	return out
}

func TestListingMessagesMergeInListingMode(t *testing.T) {
	ing, bus, cat, _ := newTestIngestor(t, domain.ModeListing)

	ing.Handle(push(MsgFilePath, batchAB, 0))
	ing.Handle(push(MsgFilePathEnd, "", 0))

	assert.Equal(t, []string{"a", "b"}, ids(cat.Items()))
	d, _ := cat.Get("b")
	assert.True(t, d.IsVideo())

	changed := bus.ofType(eventbus.EventCatalogChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, 2, changed[0].(eventbus.CatalogChangedEvent).Size)
}

func TestListingPassWithNothingYieldsSentinel(t *testing.T) {
	ing, _, cat, _ := newTestIngestor(t, domain.ModeListing)

	ing.Handle(push(MsgFilePathEnd, "", 0))
	ing.Handle(push(MsgFilePathEnd, "", 0))

	assert.Equal(t, []string{domain.EmptyID}, ids(cat.Items()))
}

func TestStaleListingIgnoredWhileSearching(t *testing.T) {
	ing, _, cat, _ := newTestIngestor(t, domain.ModeSearching)

	ing.Handle(push(MsgFilePath, batchAB, 0))
	ing.Handle(push(MsgFilePathEnd, "", 0))
	assert.Equal(t, 0, cat.Len())

	ing.Handle(push(MsgSearchedResult, `[{"id":"c","path":"/c.jpg","type":"image"}]`, 0))
	assert.Equal(t, []string{"c"}, ids(cat.Items()))
}

func TestSearchResultsIgnoredWhileListing(t *testing.T) {
	ing, _, cat, _ := newTestIngestor(t, domain.ModeListing)

	ing.Handle(push(MsgSearchedResult, batchAB, 0))
	assert.Equal(t, 0, cat.Len())
}

func TestSupersededEpochDropped(t *testing.T) {
	ing, _, cat, modes := newTestIngestor(t, domain.ModeSearching)
	modes.epoch.Store(5)

	ing.Handle(push(MsgSearchedResult, batchAB, 4))
	assert.Equal(t, 0, cat.Len())

	ing.Handle(push(MsgSearchedResult, batchAB, 5))
	assert.Equal(t, 2, cat.Len())
}

func TestRemoveAllDataClearsSentinel(t *testing.T) {
	ing, _, cat, _ := newTestIngestor(t, domain.ModeListing)
	cat.FinalizeIfEmpty()
	require.Equal(t, 1, cat.Len())

	ing.Handle(push(MsgRemoveAllData, "", 0))
	assert.Equal(t, 0, cat.Len())
}

func TestRemoveAllDataAppliesInAnyMode(t *testing.T) {
	ing, _, cat, _ := newTestIngestor(t, domain.ModeSearching)
	cat.Merge([]domain.MediaDescriptor{{ID: "x", Path: "/x"}})

	ing.Handle(push(MsgRemoveAllData, "", 0))
	assert.Equal(t, 0, cat.Len())
}

func TestStatusForwardedVerbatim(t *testing.T) {
	ing, bus, _, _ := newTestIngestor(t, domain.ModeListing)

	ing.Handle(push(MsgStatusUpdate, `"Indexing 12 of 40 files..."`, 0))
	ing.Handle(push(MsgIndexStatus, `Index ready`, 0))
	ing.Handle(push(MsgError, `"Python missing"`, 0))

	statuses := bus.ofType(eventbus.EventStatusUpdated)
	require.Len(t, statuses, 3)
	assert.Equal(t, eventbus.StatusUpdatedEvent{Source: MsgStatusUpdate, Text: "Indexing 12 of 40 files...", Level: domain.StatusInfo}, statuses[0])
	assert.Equal(t, "Index ready", statuses[1].(eventbus.StatusUpdatedEvent).Text)
	assert.Equal(t, domain.StatusError, statuses[2].(eventbus.StatusUpdatedEvent).Level)
}

func TestCanFetchListRequestsListing(t *testing.T) {
	ing, bus, _, modes := newTestIngestor(t, domain.ModeListing)

	ing.Handle(push(MsgCanFetchList, "", 0))

	assert.Len(t, bus.ofType(eventbus.EventHostReady), 1)
	select {
	case <-modes.refreshes:
	case <-time.After(2 * time.Second):
		t.Fatal("listing was not requested")
	}
}

func TestCanFetchListWhileSearchingOnlyReportsReady(t *testing.T) {
	ing, bus, _, modes := newTestIngestor(t, domain.ModeSearching)

	ing.Handle(push(MsgCanFetchList, "", 0))

	assert.Len(t, bus.ofType(eventbus.EventHostReady), 1)
	select {
	case <-modes.refreshes:
		t.Fatal("listing requested while searching")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResetRequestClearsCatalog(t *testing.T) {
	_, bus, cat, _ := newTestIngestor(t, domain.ModeListing)
	cat.Merge([]domain.MediaDescriptor{{ID: "x", Path: "/x"}})

	bus.Publish(eventbus.CatalogResetRequestedEvent{Epoch: 1, Mode: domain.ModeSearching})
	assert.Equal(t, 0, cat.Len())
}

func TestPushReceivedIsHandled(t *testing.T) {
	ing, _, cat, _ := newTestIngestor(t, domain.ModeListing)

	ing.Publish(push(MsgFilePath, batchAB, 0))
	assert.Equal(t, 2, cat.Len())
}

func TestSuccessResetReloadsOnce(t *testing.T) {
	bus := newSyncBus()
	var timers []*manualTimer
	var reloads atomic.Int32
	ing := New(bus, catalog.New(), newFakeModes(domain.ModeListing, 0), Options{
		ReloadDelay: time.Second,
		Reload: func(context.Context) error {
			reloads.Add(1)
			return nil
		},
		AfterFunc: func(d time.Duration, f func()) Timer {
			assert.Equal(t, time.Second, d)
			tm := &manualTimer{f: f}
			timers = append(timers, tm)
			return tm
		},
	})
	defer ing.Stop()

	ing.Handle(push(MsgSuccessReset, "", 0))
	ing.Handle(push(MsgSuccessReset, "", 0))
	require.Len(t, timers, 2)
	assert.True(t, timers[0].stopped, "second reset re-arms the timer")

	timers[1].f()
	assert.Equal(t, int32(1), reloads.Load())
	assert.Len(t, bus.ofType(eventbus.EventReloadRequested), 1)
}

func TestStopCancelsPendingReload(t *testing.T) {
	var tm *manualTimer
	ing := New(newSyncBus(), catalog.New(), newFakeModes(domain.ModeListing, 0), Options{
		AfterFunc: func(d time.Duration, f func()) Timer {
			tm = &manualTimer{f: f}
			return tm
		},
	})

	ing.Handle(push(MsgSuccessReset, "", 0))
	ing.Stop()
	require.NotNil(t, tm)
	assert.True(t, tm.stopped)
}

func TestMalformedBatchReportsError(t *testing.T) {
	ing, bus, cat, _ := newTestIngestor(t, domain.ModeListing)

	ing.Handle(push(MsgFilePath, `"not json"`, 0))

	assert.Equal(t, 0, cat.Len())
	assert.Len(t, bus.ofType(eventbus.EventError), 1)
}

// scriptedSubscriber fails its first attempts, then delivers msgs and holds
// the stream open until the context ends
type scriptedSubscriber struct {
	failures int
	msgs     []domain.PushMessage
	calls    atomic.Int32
}

func (s *scriptedSubscriber) Subscribe(ctx context.Context, handler func(domain.PushMessage)) error {
	n := int(s.calls.Add(1))
	if n <= s.failures {
		return errors.New("connection refused")
	}
	for _, m := range s.msgs {
		handler(m)
	}
	<-ctx.Done()
	return nil
}

func TestRunResubscribesAfterFailure(t *testing.T) {
	bus := newSyncBus()
	cat := catalog.New()
	ing := New(bus, cat, newFakeModes(domain.ModeListing, 0), Options{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
	defer ing.Stop()

	sub := &scriptedSubscriber{
		failures: 2,
		msgs:     []domain.PushMessage{push(MsgFilePath, batchAB, 0)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx, sub) }()

	require.Eventually(t, func() bool { return cat.Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), sub.calls.Load())
	assert.Len(t, bus.ofType(eventbus.EventError), 2)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type recordingRequester struct {
	mu     sync.Mutex
	epochs []uint64
}

func (r *recordingRequester) ListFiles(_ context.Context, epoch uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epochs = append(r.epochs, epoch)
	return nil
}

func (r *recordingRequester) Search(_ context.Context, _ string, epoch uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epochs = append(r.epochs, epoch)
	return nil
}

func (r *recordingRequester) CancelSearch(context.Context) error { return nil }

// heldTimers keeps debounce callbacks until the test releases them
type heldTimers struct {
	pending []func()
}

func (h *heldTimers) AfterFunc(_ time.Duration, f func()) search.Timer {
	h.pending = append(h.pending, f)
	return &manualTimer{f: f}
}

func (h *heldTimers) fireLast() {
	f := h.pending[len(h.pending)-1]
	h.pending = nil
	f()
}

func TestFirstListingGoesStaleAfterSearch(t *testing.T) {
	bus := newSyncBus()
	cat := catalog.New()
	req := &recordingRequester{}
	timers := &heldTimers{}
	opts := search.DefaultOptions()
	opts.AfterFunc = timers.AfterFunc
	coord := search.NewCoordinator(bus, req, opts)
	t.Cleanup(coord.Stop)
	ing := New(bus, cat, coord, Options{})
	t.Cleanup(ing.Stop)

	require.NoError(t, coord.Refresh(context.Background()))
	first := coord.Epoch()
	require.NotZero(t, first, "the first listing must be tagged")
	ing.Handle(push(MsgFilePath, batchAB, first))
	assert.Equal(t, []string{"a", "b"}, ids(cat.Items()))

	coord.Input("cat")
	timers.fireLast()
	require.Equal(t, domain.ModeSearching, coord.Mode())

	coord.Input("")
	timers.fireLast()
	require.Equal(t, domain.ModeListing, coord.Mode())
	assert.Equal(t, 0, cat.Len(), "leaving search clears the results")

	// The host is still streaming the first pass
	ing.Handle(push(MsgFilePath, `[{"id":"stale","path":"/stale.jpg","type":"image"}]`, first))
	ing.Handle(push(MsgFilePathEnd, "", first))
	assert.Equal(t, 0, cat.Len(), "pushes for the first listing are superseded")

	ing.Handle(push(MsgFilePath, batchAB, coord.Epoch()))
	assert.Equal(t, []string{"a", "b"}, ids(cat.Items()))

	req.mu.Lock()
	defer req.mu.Unlock()
	assert.Equal(t, []uint64{first, first + 1, first + 2}, req.epochs)
}
