package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"snaphound/internal/eventbus"
)

// Forwarder hands bus events to the program without dropping any. Forward
// never blocks the bus dispatcher: events queue until Run delivers them, and
// catalog change notifications collapse into the one already waiting.
type Forwarder struct {
	send func(tea.Msg)

	mu         sync.Mutex
	queue      []eventbus.DomainEvent
	catalogAt  int // index of the queued CatalogChangedEvent, -1 if none
	wake       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

// NewForwarder creates a forwarder delivering through send, usually (*tea.Program).Send
func NewForwarder(send func(tea.Msg)) *Forwarder {
	return &Forwarder{
		send:      send,
		catalogAt: -1,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Forward queues e for the UI
func (f *Forwarder) Forward(e eventbus.DomainEvent) {
	f.mu.Lock()
	if e.Type() == eventbus.EventCatalogChanged && f.catalogAt >= 0 {
		f.queue[f.catalogAt] = e
	} else {
		if e.Type() == eventbus.EventCatalogChanged {
			f.catalogAt = len(f.queue)
		}
		f.queue = append(f.queue, e)
	}
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued events
func (f *Forwarder) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Run delivers queued events in order until Close is called
func (f *Forwarder) Run() {
	for {
		select {
		case <-f.done:
			return
		case <-f.wake:
		}

		f.mu.Lock()
		batch := f.queue
		f.queue = nil
		f.catalogAt = -1
		f.mu.Unlock()

		for _, e := range batch {
			select {
			case <-f.done:
				return
			default:
			}
			f.send(EventMsg{Event: e})
		}
	}
}

// Close stops Run. Events still queued are discarded.
func (f *Forwarder) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
